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

package certificate

import (
	"crypto"
	"crypto/x509/pkix"
	"strings"

	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/util/cert"
	"k8s.io/client-go/util/keyutil"

	"github.com/certificate-helper/certificate-helper/secret"
)

const (
	// NodesOrganization is the organization the kubelet-serving signer
	// requires.
	NodesOrganization = "system:nodes"

	// NodeCommonNamePrefix prefixes the common name of every request.
	NodeCommonNamePrefix = "system:node:"
)

// NewServingKeyPair creates a private key and a certificate request for
// service. The lowercased service is the first DNS name, followed by
// altNames as given.
func NewServingKeyPair(service string, altNames []string) (*KeyPair, error) {
	if service == "" {
		return nil, errors.New("a service name is required to generate a certificate request")
	}
	service = strings.ToLower(service)

	keyPEM, err := keyutil.MakeEllipticPrivateKeyPEM()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate private key")
	}
	parsed, err := keyutil.ParsePrivateKeyPEM(keyPEM)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse generated private key")
	}
	key, ok := parsed.(crypto.Signer)
	if !ok {
		return nil, errors.Errorf("generated private key %T cannot sign", parsed)
	}

	dnsNames := append([]string{service}, altNames...)
	subject := &pkix.Name{
		Organization: []string{NodesOrganization},
		CommonName:   NodeCommonNamePrefix + service,
	}
	csrPEM, err := cert.MakeCSR(key, subject, dnsNames, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate certificate request")
	}

	return &KeyPair{
		Key:       key,
		KeyPEM:    keyPEM,
		CSR:       csrPEM,
		DNSNames:  dnsNames,
		NotBefore: NotBefore,
		NotAfter:  NotAfter,
	}, nil
}

// AsSecret will take a KeyPair and convert it into a TLS corev1.Secret.
func (k *KeyPair) AsSecret(name, namespace string) *corev1.Secret {
	return secret.TLSSecret(name, namespace, k.KeyPEM, k.Cert)
}
