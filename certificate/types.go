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
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrApprovalTimeout is returned when a CSR is not signed before the
	// approval timeout.
	ErrApprovalTimeout = errors.New("timed out waiting for certificate signing request to be signed")

	// ErrCSRDenied is returned when the signer denies or fails a CSR.
	ErrCSRDenied = errors.New("certificate signing request was denied")
)

var (
	// NotBefore and NotAfter bound the requested validity. The signer
	// applies the CSR expiration inside this window.
	NotBefore = time.Date(1975, time.January, 1, 0, 0, 0, 0, time.UTC)
	NotAfter  = time.Date(4096, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// KeyPair defines a private key and the request or certificate it is used
// with.
type KeyPair struct {
	// Key is the private key.
	Key crypto.Signer
	// KeyPEM is Key in PEM form.
	KeyPEM []byte
	// CSR is the PEM encoded certificate request for Key.
	CSR []byte
	// Cert is the PEM encoded signed certificate, empty until issued.
	Cert []byte
	// DNSNames requested in CSR.
	DNSNames []string

	NotBefore time.Time
	NotAfter  time.Time
}
