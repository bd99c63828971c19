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

package stage

import (
	"context"

	"github.com/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	certhelperv1 "github.com/certificate-helper/certificate-helper/api/v1"
)

// Tracker appends conditions to, and classifies, managed resources.
type Tracker struct {
	Client client.Client

	// Now defaults to metav1.Now.
	Now func() metav1.Time
}

// NewTracker returns a Tracker writing through c.
func NewTracker(c client.Client) *Tracker {
	return &Tracker{Client: c, Now: metav1.Now}
}

// Update refreshes obj, appends the condition for s and replaces the
// status subresource. Earlier conditions are never changed.
func (t *Tracker) Update(ctx context.Context, obj certhelperv1.ConditionedObject, s Stage) error {
	if err := t.Client.Get(ctx, client.ObjectKeyFromObject(obj), obj); err != nil {
		return errors.Wrapf(err, "failed to get status of %s", obj.GetName())
	}

	conditions := obj.GetConditions().DeepCopy()
	conditions = append(conditions, s.condition(t.now()))
	obj.SetConditions(conditions)
	recordStage(obj, s)

	if err := t.Client.Status().Update(ctx, obj); err != nil {
		return errors.Wrapf(err, "failed to update status of %s", obj.GetName())
	}
	return nil
}

// Determine refreshes obj and classifies it from its last condition.
func (t *Tracker) Determine(ctx context.Context, obj certhelperv1.ConditionedObject) (Stage, error) {
	if err := t.Client.Get(ctx, client.ObjectKeyFromObject(obj), obj); err != nil {
		return Stage{}, errors.Wrapf(err, "failed to get status of %s", obj.GetName())
	}
	return Classify(obj)
}

func (t *Tracker) now() metav1.Time {
	if t.Now == nil {
		return metav1.Now()
	}
	return t.Now()
}

// recordStage copies the stage payload into the typed status fields.
func recordStage(obj certhelperv1.ConditionedObject, s Stage) {
	switch o := obj.(type) {
	case *certhelperv1.Certificate:
		if s.Type == certhelperv1.ConditionCertificateCreated {
			o.Status.Certificate = s.Detail
			o.Status.Service = o.Spec.Service
			o.Status.AltNames = append([]string(nil), o.Spec.AltNames...)
		}
	case *certhelperv1.WebhookHelper:
		if s.Ref == nil {
			return
		}
		switch s.Type {
		case certhelperv1.ConditionServiceCreated:
			o.Status.ServiceRef = s.Ref.DeepCopy()
		case certhelperv1.ConditionWebhookCreated:
			if s.Ref.Kind == "MutatingWebhookConfiguration" {
				o.Status.MutatingWebhookRef = s.Ref.DeepCopy()
			} else {
				o.Status.ValidatingWebhookRef = s.Ref.DeepCopy()
			}
		}
	}
}
