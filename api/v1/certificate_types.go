/*
Copyright 2021 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// CertificateSpec defines the desired state of Certificate
type CertificateSpec struct {
	// Namespace the signed certificate secret is written to.
	Namespace string `json:"namespace"`

	// Service is the name of the service the certificate is issued for. It
	// is used, lowercased, as the common name and the first DNS name.
	Service string `json:"service"`

	// AltNames are additional DNS names added to the certificate as given.
	// +optional
	AltNames []string `json:"alt_names,omitempty"`
}

// CertificateStatus defines the observed state of Certificate
type CertificateStatus struct {
	// Certificate is the name of the issued secret.
	// +optional
	Certificate string `json:"certificate,omitempty"`

	// +optional
	Service string `json:"service,omitempty"`

	// +optional
	AltNames []string `json:"alt_names,omitempty"`

	// Conditions is an append-only log, oldest first.
	// +optional
	Conditions Conditions `json:"conditions,omitempty"`
}

//+kubebuilder:object:root=true
//+kubebuilder:resource:scope=Cluster,shortName=cert
//+kubebuilder:printcolumn:name="Service",type="string",JSONPath=".spec.service"
//+kubebuilder:printcolumn:name="Secret",type="string",JSONPath=".status.certificate"
//+kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"
//+kubebuilder:subresource:status

// Certificate is the Schema for the certificates API
type Certificate struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   CertificateSpec   `json:"spec,omitempty"`
	Status CertificateStatus `json:"status,omitempty"`
}

// GetConditions implements ConditionedObject.
func (c *Certificate) GetConditions() Conditions {
	return c.Status.Conditions
}

// SetConditions implements ConditionedObject.
func (c *Certificate) SetConditions(conditions Conditions) {
	c.Status.Conditions = conditions
}

//+kubebuilder:object:root=true

// CertificateList contains a list of Certificate
type CertificateList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Certificate `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Certificate{}, &CertificateList{})
}
