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

package webhookhelper

import (
	"github.com/pkg/errors"
	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/utils/pointer"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// ErrUnknownWebhookType is returned for manifests that are neither a
// mutating nor a validating webhook configuration.
var ErrUnknownWebhookType = errors.New("unable to determine webhook type")

// Variant names the kind of webhook configuration a helper manages.
type Variant string

const (
	Mutating   Variant = "Mutating"
	Validating Variant = "Validating"
)

// Webhook holds exactly one webhook configuration, selected by Variant.
type Webhook struct {
	Variant    Variant
	Mutating   *admissionregistrationv1.MutatingWebhookConfiguration
	Validating *admissionregistrationv1.ValidatingWebhookConfiguration
}

// ParseWebhook decodes raw, JSON or YAML, as a mutating webhook
// configuration and failing that as a validating one.
func ParseWebhook(raw []byte) (*Webhook, error) {
	if m, err := parseMutating(raw); err == nil {
		return &Webhook{Variant: Mutating, Mutating: m}, nil
	}
	if v, err := parseValidating(raw); err == nil {
		return &Webhook{Variant: Validating, Validating: v}, nil
	}
	return nil, ErrUnknownWebhookType
}

func parseMutating(raw []byte) (*admissionregistrationv1.MutatingWebhookConfiguration, error) {
	obj, err := decodeManifest(raw)
	if err != nil {
		return nil, err
	}
	m, ok := obj.(*admissionregistrationv1.MutatingWebhookConfiguration)
	if !ok {
		return nil, errors.Errorf("manifest is a %T, not a MutatingWebhookConfiguration", obj)
	}
	return m, nil
}

func parseValidating(raw []byte) (*admissionregistrationv1.ValidatingWebhookConfiguration, error) {
	obj, err := decodeManifest(raw)
	if err != nil {
		return nil, err
	}
	v, ok := obj.(*admissionregistrationv1.ValidatingWebhookConfiguration)
	if !ok {
		return nil, errors.Errorf("manifest is a %T, not a ValidatingWebhookConfiguration", obj)
	}
	return v, nil
}

// parseDeployment decodes the deployment manifest of a helper.
func parseDeployment(raw []byte) (*appsv1.Deployment, error) {
	obj, err := decodeManifest(raw)
	if err != nil {
		return nil, err
	}
	d, ok := obj.(*appsv1.Deployment)
	if !ok {
		return nil, errors.Errorf("manifest is a %T, not a Deployment", obj)
	}
	return d, nil
}

// decodeManifest decodes a JSON or YAML manifest into a typed object of the
// kind it declares.
func decodeManifest(raw []byte) (runtime.Object, error) {
	if len(raw) == 0 {
		return nil, errors.New("manifest is empty")
	}
	obj, _, err := scheme.Codecs.UniversalDeserializer().Decode(raw, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode manifest")
	}
	return obj, nil
}

// Object returns the active configuration.
func (w *Webhook) Object() client.Object {
	if w.Variant == Mutating {
		return w.Mutating
	}
	return w.Validating
}

// Ref references the active configuration.
func (w *Webhook) Ref() *corev1.ObjectReference {
	obj := w.Object()
	return &corev1.ObjectReference{
		APIVersion: admissionregistrationv1.SchemeGroupVersion.String(),
		Kind:       string(w.Variant) + "WebhookConfiguration",
		Name:       obj.GetName(),
		UID:        obj.GetUID(),
	}
}

// Bind points every webhook of the configuration at svc on port and path,
// trusting caBundle. Any static URL is dropped.
func (w *Webhook) Bind(caBundle []byte, svc *corev1.Service, port int32, path *string) {
	target := &admissionregistrationv1.ServiceReference{
		Name:      svc.GetName(),
		Namespace: svc.GetNamespace(),
		Port:      pointer.Int32Ptr(port),
	}
	if path != nil {
		target.Path = pointer.StringPtr(*path)
	}

	bind := func(cfg *admissionregistrationv1.WebhookClientConfig) {
		cfg.URL = nil
		cfg.CABundle = append([]byte(nil), caBundle...)
		cfg.Service = target.DeepCopy()
	}
	switch w.Variant {
	case Mutating:
		for i := range w.Mutating.Webhooks {
			bind(&w.Mutating.Webhooks[i].ClientConfig)
		}
	case Validating:
		for i := range w.Validating.Webhooks {
			bind(&w.Validating.Webhooks[i].ClientConfig)
		}
	}
}

// emptyObject returns an object of the same kind and name as ref, suitable
// for Get and Delete.
func emptyObject(ref *corev1.ObjectReference, variant Variant) client.Object {
	if variant == Mutating {
		m := &admissionregistrationv1.MutatingWebhookConfiguration{}
		m.SetName(ref.Name)
		return m
	}
	v := &admissionregistrationv1.ValidatingWebhookConfiguration{}
	v.SetName(ref.Name)
	return v
}
