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

package controllers

import (
	"time"

	"github.com/pkg/errors"
	"k8s.io/client-go/kubernetes"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/certificate-helper/certificate-helper/certificate"
	certhelpercontroller "github.com/certificate-helper/certificate-helper/controllers/certificatehelper"
	"github.com/certificate-helper/certificate-helper/stage"
	"github.com/certificate-helper/certificate-helper/webhookhelper"
)

// Options tune the reconcilers registered by SetupWithManager.
type Options struct {
	// Kube is used for the CSR approval subresource.
	Kube kubernetes.Interface

	MaxConcurrentReconciles int
	ApprovalPollInterval    time.Duration
	ApprovalTimeout         time.Duration

	// CANamespace holds the cluster root CA ConfigMap.
	CANamespace string
}

// SetupWithManager will configure the Certificate and WebhookHelper
// controllers.
func SetupWithManager(mgr ctrl.Manager, opts Options) (err error) {
	c := mgr.GetClient()
	tracker := stage.NewTracker(c)

	issuer := certificate.NewIssuer(c, opts.Kube, mgr.GetScheme())
	issuer.Tracker = tracker
	if opts.ApprovalPollInterval > 0 {
		issuer.PollInterval = opts.ApprovalPollInterval
	}
	if opts.ApprovalTimeout > 0 {
		issuer.ApprovalTimeout = opts.ApprovalTimeout
	}

	manager := webhookhelper.NewManager(c, mgr.GetScheme())
	manager.Tracker = tracker
	if opts.CANamespace != "" {
		manager.CANamespace = opts.CANamespace
	}

	if err = (&certhelpercontroller.CertificateReconciler{
		Client:                  c,
		Log:                     ctrl.Log.WithName("controllers").WithName("Certificate"),
		Scheme:                  mgr.GetScheme(),
		Event:                   mgr.GetEventRecorderFor("Certificate"),
		Issuer:                  issuer,
		Tracker:                 tracker,
		MaxConcurrentReconciles: opts.MaxConcurrentReconciles,
	}).SetupWithManager(mgr); err != nil {
		return errors.Wrap(err, "unable to create controller Certificate")
	}

	if err = (&certhelpercontroller.WebhookHelperReconciler{
		Client:                  c,
		Log:                     ctrl.Log.WithName("controllers").WithName("WebhookHelper"),
		Scheme:                  mgr.GetScheme(),
		Event:                   mgr.GetEventRecorderFor("WebhookHelper"),
		Manager:                 manager,
		Tracker:                 tracker,
		MaxConcurrentReconciles: opts.MaxConcurrentReconciles,
	}).SetupWithManager(mgr); err != nil {
		return errors.Wrap(err, "unable to create controller WebhookHelper")
	}

	return
}
