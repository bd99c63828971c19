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

package webhooks

import (
	"bytes"
	"context"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"
	"sigs.k8s.io/yaml"

	certhelperv1 "github.com/certificate-helper/certificate-helper/api/v1"
)

// InvalidRequestFormat is the reason given for objects that do not decode
// as a Certificate.
const InvalidRequestFormat = "invalid request format"

// CertificateValidator admits Certificates that carry metadata and a spec
// naming their service and target namespace.
type CertificateValidator struct {
	Log logr.Logger
}

var _ admission.Handler = &CertificateValidator{}

// Handle allows requests without an object and well formed Certificates and
// denies everything else. Fields the Certificate does not know are ignored.
func (v *CertificateValidator) Handle(_ context.Context, req admission.Request) admission.Response {
	log := v.Log.WithValues("uid", req.UID, "name", req.Name, "operation", req.Operation)

	raw := bytes.TrimSpace(req.Object.Raw)
	if len(raw) == 0 {
		return admission.Allowed("")
	}
	if _, err := decodeCertificate(raw); err != nil {
		log.V(4).Info("Denying request", "error", err.Error())
		return admission.Denied(InvalidRequestFormat)
	}
	return admission.Allowed("")
}

// certificateDocument mirrors Certificate with pointers so that missing
// required fields can be told apart from empty ones.
type certificateDocument struct {
	metav1.TypeMeta `json:",inline"`
	Metadata        *metav1.ObjectMeta `json:"metadata"`
	Spec            *struct {
		Namespace *string  `json:"namespace"`
		Service   *string  `json:"service"`
		AltNames  []string `json:"alt_names,omitempty"`
	} `json:"spec"`
}

func decodeCertificate(raw []byte) (*certhelperv1.Certificate, error) {
	doc := &certificateDocument{}
	if err := yaml.Unmarshal(raw, doc); err != nil {
		return nil, errors.Wrap(err, "failed to decode certificate")
	}
	if kind := doc.Kind; kind != "" && kind != "Certificate" {
		return nil, errors.Errorf("unexpected kind %s", kind)
	}
	switch {
	case doc.Metadata == nil:
		return nil, errors.New("metadata is required")
	case doc.Spec == nil:
		return nil, errors.New("spec is required")
	case doc.Spec.Namespace == nil:
		return nil, errors.New("spec.namespace is required")
	case doc.Spec.Service == nil:
		return nil, errors.New("spec.service is required")
	}
	return &certhelperv1.Certificate{
		TypeMeta:   doc.TypeMeta,
		ObjectMeta: *doc.Metadata,
		Spec: certhelperv1.CertificateSpec{
			Namespace: *doc.Spec.Namespace,
			Service:   *doc.Spec.Service,
			AltNames:  doc.Spec.AltNames,
		},
	}, nil
}
