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

// Package stage records and classifies the progress of managed resources
// through their append-only condition logs.
package stage

import (
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	certhelperv1 "github.com/certificate-helper/certificate-helper/api/v1"
)

// UnknownCertificate is reported when the last condition says a
// certificate was created but the status does not name it.
const UnknownCertificate = "<unknown>"

// failurePrefix leads the message of a CreationFailed condition.
const failurePrefix = "Certificate-helper failed to create resource: "

// Stage is the classified state of a resource.
type Stage struct {
	Type certhelperv1.ConditionType

	// Detail is the certificate name for CertificateCreated and the
	// failure reason for CreationFailed.
	Detail string

	// Ref is the Service for ServiceCreated and the webhook configuration
	// for WebhookCreated.
	Ref *corev1.ObjectReference
}

func Creating() Stage {
	return Stage{Type: certhelperv1.ConditionCreating}
}

func Deleting() Stage {
	return Stage{Type: certhelperv1.ConditionDeleting}
}

func CertificateCreated(name string) Stage {
	return Stage{Type: certhelperv1.ConditionCertificateCreated, Detail: name}
}

func CreationFailed(reason string) Stage {
	return Stage{Type: certhelperv1.ConditionCreationFailed, Detail: reason}
}

func ServiceCreated(ref *corev1.ObjectReference) Stage {
	return Stage{Type: certhelperv1.ConditionServiceCreated, Ref: ref}
}

func WebhookCreated(ref *corev1.ObjectReference) Stage {
	return Stage{Type: certhelperv1.ConditionWebhookCreated, Ref: ref}
}

// Message is the human readable text recorded for the stage.
func (s Stage) Message() string {
	switch s.Type {
	case certhelperv1.ConditionCreating:
		return "Creating resource"
	case certhelperv1.ConditionDeleting:
		return "Deleting resource"
	case certhelperv1.ConditionCertificateCreated:
		return fmt.Sprintf("Certificate %s Created", s.Detail)
	case certhelperv1.ConditionCreationFailed:
		return failurePrefix + s.Detail
	case certhelperv1.ConditionServiceCreated:
		if s.Ref == nil {
			return "Service Created"
		}
		return fmt.Sprintf("Service %s/%s Created", s.Ref.Namespace, s.Ref.Name)
	case certhelperv1.ConditionWebhookCreated:
		if s.Ref == nil {
			return "Webhook Created"
		}
		return fmt.Sprintf("%s %s Created", s.Ref.Kind, s.Ref.Name)
	}
	return string(s.Type)
}

// Status is False for failures and True otherwise.
func (s Stage) Status() metav1.ConditionStatus {
	if s.Type == certhelperv1.ConditionCreationFailed {
		return metav1.ConditionFalse
	}
	return metav1.ConditionTrue
}

// Terminal reports whether no further work is scheduled from this stage.
func (s Stage) Terminal() bool {
	switch s.Type {
	case certhelperv1.ConditionCertificateCreated,
		certhelperv1.ConditionCreationFailed,
		certhelperv1.ConditionWebhookCreated:
		return true
	}
	return false
}

func (s Stage) String() string {
	switch {
	case s.Detail != "":
		return fmt.Sprintf("%s(%s)", s.Type, s.Detail)
	case s.Ref != nil:
		return fmt.Sprintf("%s(%s)", s.Type, s.Ref.Name)
	}
	return string(s.Type)
}

func (s Stage) condition(now metav1.Time) certhelperv1.Condition {
	return certhelperv1.Condition{
		Type:               s.Type,
		Message:            s.Message(),
		Status:             s.Status(),
		LastTransitionTime: now,
	}
}

// ClassificationError is returned when the last condition of a resource
// has a type the operator does not write.
type ClassificationError struct {
	Type certhelperv1.ConditionType
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("unable to determine condition type: %s", e.Type)
}

// Classify derives the stage of obj from its last condition.
func Classify(obj certhelperv1.ConditionedObject) (Stage, error) {
	last, ok := obj.GetConditions().Last()
	if !ok {
		return Creating(), nil
	}
	if !last.Type.Known() {
		return Stage{}, &ClassificationError{Type: last.Type}
	}

	switch last.Type {
	case certhelperv1.ConditionCreating:
		return Creating(), nil
	case certhelperv1.ConditionDeleting:
		return Deleting(), nil
	case certhelperv1.ConditionCertificateCreated:
		name := UnknownCertificate
		if cert, ok := obj.(*certhelperv1.Certificate); ok && cert.Status.Certificate != "" {
			name = cert.Status.Certificate
		}
		return CertificateCreated(name), nil
	case certhelperv1.ConditionCreationFailed:
		return CreationFailed(strings.TrimPrefix(last.Message, failurePrefix)), nil
	case certhelperv1.ConditionServiceCreated:
		var ref *corev1.ObjectReference
		if helper, ok := obj.(*certhelperv1.WebhookHelper); ok {
			ref = helper.Status.ServiceRef
		}
		return ServiceCreated(ref), nil
	case certhelperv1.ConditionWebhookCreated:
		var ref *corev1.ObjectReference
		if helper, ok := obj.(*certhelperv1.WebhookHelper); ok {
			ref = helper.Status.MutatingWebhookRef
			if ref == nil {
				ref = helper.Status.ValidatingWebhookRef
			}
		}
		return WebhookCreated(ref), nil
	}
	return Stage{}, &ClassificationError{Type: last.Type}
}
