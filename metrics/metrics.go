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

// Package metrics holds the prometheus collectors of the operator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

const namespace = "certificate_helper"

var (
	// CertificatesIssued counts certificates written to secrets.
	CertificatesIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certificates_issued_total",
			Help:      "Amount of certificates signed and written to secrets",
		},
	)

	// ApprovalDuration observes the time between approving a CSR and
	// reading its signed certificate.
	ApprovalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "csr_approval_duration_seconds",
			Help:      "Duration between approving a certificate signing request and receiving its certificate",
			Buckets:   []float64{.1, .5, 1, 5, 10, 20, 30, 60, 90, 120, 300},
		},
	)

	// WebhookConfigurations counts created webhook configurations by
	// variant.
	WebhookConfigurations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_configurations_total",
			Help:      "Amount of webhook configurations created",
		},
		[]string{"variant"},
	)

	// ReconcileErrors counts workflow failures handed to the error policy.
	ReconcileErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_errors_total",
			Help:      "Amount of reconciliations that failed and were requeued by the error policy",
		},
		[]string{"controller"},
	)
)

// Register adds every collector to r. All collectors are attempted and the
// failures are combined.
func Register(r prometheus.Registerer) error {
	var err error
	for _, c := range []prometheus.Collector{
		CertificatesIssued,
		ApprovalDuration,
		WebhookConfigurations,
		ReconcileErrors,
	} {
		err = multierr.Append(err, r.Register(c))
	}
	return err
}
