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
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// ConditionType names the stage a condition records.
type ConditionType string

const (
	// ConditionCreating is recorded while a resource is being provisioned.
	ConditionCreating ConditionType = "Creating"

	// ConditionDeleting is recorded while a resource is being torn down.
	ConditionDeleting ConditionType = "Deleting"

	// ConditionCertificateCreated is recorded once the signed certificate
	// has been written to its secret.
	ConditionCertificateCreated ConditionType = "CertificateCreated"

	// ConditionCreationFailed is recorded when provisioning failed. It is
	// the only condition written with status False.
	ConditionCreationFailed ConditionType = "CreationFailed"

	// ConditionServiceCreated is recorded once the Service backing a
	// WebhookHelper exists.
	ConditionServiceCreated ConditionType = "ServiceCreated"

	// ConditionWebhookCreated is recorded once the webhook configuration
	// of a WebhookHelper exists.
	ConditionWebhookCreated ConditionType = "WebhookCreated"
)

// Known reports whether t is one of the condition types written by the
// operator.
func (t ConditionType) Known() bool {
	switch t {
	case ConditionCreating, ConditionDeleting, ConditionCertificateCreated,
		ConditionCreationFailed, ConditionServiceCreated, ConditionWebhookCreated:
		return true
	}
	return false
}

// Condition is a single, immutable entry of a status log.
type Condition struct {
	// Type of the condition.
	Type ConditionType `json:"type"`

	// Message is a human readable description of the condition.
	// +optional
	Message string `json:"message,omitempty"`

	// Status of the condition, one of True, False or Unknown.
	Status metav1.ConditionStatus `json:"status"`

	// LastTransitionTime is the time the condition was appended.
	// +optional
	LastTransitionTime metav1.Time `json:"lastTransitionTime,omitempty"`
}

// Conditions is an append-only log of conditions, oldest first.
type Conditions []Condition

// Last returns the most recent condition, if any.
func (c Conditions) Last() (Condition, bool) {
	if len(c) == 0 {
		return Condition{}, false
	}
	return c[len(c)-1], true
}

// ConditionedObject is implemented by every resource whose status carries
// a condition log.
// +kubebuilder:object:generate=false
type ConditionedObject interface {
	client.Object
	GetConditions() Conditions
	SetConditions(Conditions)
}
