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
	"context"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/source"

	certhelperv1 "github.com/certificate-helper/certificate-helper/api/v1"
	"github.com/certificate-helper/certificate-helper/certificate"
	"github.com/certificate-helper/certificate-helper/constants"
	"github.com/certificate-helper/certificate-helper/stage"
)

// CertificateReconciler reconciles a Certificate object
type CertificateReconciler struct {
	client.Client
	Log     logr.Logger
	Scheme  *runtime.Scheme
	Event   record.EventRecorder
	Issuer  *certificate.Issuer
	Tracker *stage.Tracker

	MaxConcurrentReconciles int
}

// +kubebuilder:rbac:groups=certificate-helper.io,resources=certificates,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=certificate-helper.io,resources=certificates/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=certificates.k8s.io,resources=certificatesigningrequests,verbs=get;list;watch;create;delete
// +kubebuilder:rbac:groups=certificates.k8s.io,resources=certificatesigningrequests/approval,verbs=update
// +kubebuilder:rbac:groups=certificates.k8s.io,resources=signers,resourceNames=kubernetes.io/kubelet-serving,verbs=approve
// +kubebuilder:rbac:groups="",resources=secrets,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups="",resources=events,verbs=create;patch

func (r *CertificateReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	log := r.Log.WithValues("certificate", req.NamespacedName)
	ctx = ctrl.LoggerInto(ctx, log)

	instance := &certhelperv1.Certificate{}
	if err := r.Get(ctx, req.NamespacedName, instance); err != nil {
		return fetchResult(log, err)
	}

	var (
		result ctrl.Result
		err    error
	)
	action := DetermineAction(instance, constants.Finalizer)
	log.V(4).Info("Reconciling", "action", action)
	switch action {
	case ActionCreate:
		result, err = r.create(ctx, instance)
	case ActionUpdate:
		result, err = r.update(ctx, instance)
	case ActionDelete:
		result, err = r.delete(ctx, instance)
	default:
		return ctrl.Result{}, nil
	}
	if err != nil {
		return r.errorPolicy(instance, err), nil
	}
	return result, nil
}

func (r *CertificateReconciler) errorPolicy(instance *certhelperv1.Certificate, err error) ctrl.Result {
	return errorPolicy(r.Log, "certificate", instance, err)
}

func (r *CertificateReconciler) create(ctx context.Context, instance *certhelperv1.Certificate) (ctrl.Result, error) {
	if err := r.Issuer.Issue(ctx, instance); err != nil {
		r.recordFailure(ctx, instance, err)
		return ctrl.Result{}, err
	}
	if err := addFinalizer(ctx, r.Client, instance); err != nil {
		return ctrl.Result{}, err
	}
	return requeueShort(), nil
}

// update only reports progress. Issued certificates are not re-issued when
// their spec changes.
func (r *CertificateReconciler) update(ctx context.Context, instance *certhelperv1.Certificate) (ctrl.Result, error) {
	log := ctrl.LoggerFrom(ctx)
	s, err := r.Tracker.Determine(ctx, instance)
	if err != nil {
		return ctrl.Result{}, err
	}

	switch {
	case s.Terminal():
		log.V(4).Info("Certificate settled", "stage", s.String())
		return ctrl.Result{}, nil
	case s.Type == certhelperv1.ConditionCreating:
		log.Info("Certificate is being created")
	}
	return requeueShort(), nil
}

func (r *CertificateReconciler) delete(ctx context.Context, instance *certhelperv1.Certificate) (ctrl.Result, error) {
	if err := r.Issuer.Teardown(ctx, instance); err != nil {
		return ctrl.Result{}, err
	}
	if err := removeFinalizer(ctx, r.Client, instance); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{}, nil
}

// recordFailure appends CreationFailed and emits a warning. Failures to do
// so are logged and otherwise ignored.
func (r *CertificateReconciler) recordFailure(ctx context.Context, instance *certhelperv1.Certificate, cause error) {
	if r.Event != nil {
		r.Event.Eventf(instance, corev1.EventTypeWarning, string(certhelperv1.ConditionCreationFailed), "failed to issue certificate: %v", cause)
	}
	if err := r.Tracker.Update(ctx, instance, stage.CreationFailed(cause.Error())); err != nil {
		ctrl.LoggerFrom(ctx).Error(err, "unable to record failure")
	}
}

func (r *CertificateReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&certhelperv1.Certificate{}).
		Watches(&source.Kind{Type: &corev1.Secret{}}, &handler.EnqueueRequestForOwner{
			OwnerType:    &certhelperv1.Certificate{},
			IsController: false,
		}).
		WithOptions(controller.Options{MaxConcurrentReconciles: maxConcurrentReconciles(r.MaxConcurrentReconciles)}).
		Complete(r)
}
