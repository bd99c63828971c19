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
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// WebhookHelperSpec defines the desired state of WebhookHelper
type WebhookHelperSpec struct {
	// Namespace the webhook service lives in.
	Namespace string `json:"namespace"`

	// Webhook is a MutatingWebhookConfiguration or a
	// ValidatingWebhookConfiguration manifest.
	// +kubebuilder:pruning:PreserveUnknownFields
	Webhook runtime.RawExtension `json:"webhook"`

	// ListeningPort is the port the Service exposes.
	ListeningPort int32 `json:"listening_port"`

	// TargetPort is the container port traffic is sent to. Defaults to
	// ListeningPort.
	// +optional
	TargetPort *int32 `json:"target_port,omitempty"`

	// Path the webhook is served on.
	// +optional
	Path *string `json:"path,omitempty"`

	// Deployment is the manifest of the webhook server.
	// +kubebuilder:pruning:PreserveUnknownFields
	Deployment runtime.RawExtension `json:"deployment"`

	// +optional
	ContainerName *string `json:"container_name,omitempty"`
}

// WebhookHelperStatus defines the observed state of WebhookHelper
type WebhookHelperStatus struct {
	// +optional
	ValidatingWebhookRef *corev1.ObjectReference `json:"validating_webhook_ref,omitempty"`

	// +optional
	MutatingWebhookRef *corev1.ObjectReference `json:"mutating_webhook_ref,omitempty"`

	// +optional
	ServiceRef *corev1.ObjectReference `json:"service_ref,omitempty"`

	// Conditions is an append-only log, oldest first.
	// +optional
	Conditions Conditions `json:"conditions,omitempty"`
}

//+kubebuilder:object:root=true
//+kubebuilder:resource:scope=Namespaced,shortName=wh
//+kubebuilder:printcolumn:name="Namespace",type="string",JSONPath=".spec.namespace"
//+kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"
//+kubebuilder:subresource:status

// WebhookHelper is the Schema for the webhookhelpers API
type WebhookHelper struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   WebhookHelperSpec   `json:"spec,omitempty"`
	Status WebhookHelperStatus `json:"status,omitempty"`
}

// GetConditions implements ConditionedObject.
func (w *WebhookHelper) GetConditions() Conditions {
	return w.Status.Conditions
}

// SetConditions implements ConditionedObject.
func (w *WebhookHelper) SetConditions(conditions Conditions) {
	w.Status.Conditions = conditions
}

// GetTargetPort returns the container port, falling back to the listening
// port.
func (w *WebhookHelper) GetTargetPort() int32 {
	if w.Spec.TargetPort != nil {
		return *w.Spec.TargetPort
	}
	return w.Spec.ListeningPort
}

//+kubebuilder:object:root=true

// WebhookHelperList contains a list of WebhookHelper
type WebhookHelperList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []WebhookHelper `json:"items"`
}

func init() {
	SchemeBuilder.Register(&WebhookHelper{}, &WebhookHelperList{})
}
