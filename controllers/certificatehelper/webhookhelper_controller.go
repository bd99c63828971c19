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
	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/source"

	certhelperv1 "github.com/certificate-helper/certificate-helper/api/v1"
	"github.com/certificate-helper/certificate-helper/constants"
	"github.com/certificate-helper/certificate-helper/stage"
	"github.com/certificate-helper/certificate-helper/webhookhelper"
)

// WebhookHelperReconciler reconciles a WebhookHelper object
type WebhookHelperReconciler struct {
	client.Client
	Log     logr.Logger
	Scheme  *runtime.Scheme
	Event   record.EventRecorder
	Manager *webhookhelper.Manager
	Tracker *stage.Tracker

	MaxConcurrentReconciles int
}

// +kubebuilder:rbac:groups=certificate-helper.io,resources=webhookhelpers,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=certificate-helper.io,resources=webhookhelpers/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=admissionregistration.k8s.io,resources=mutatingwebhookconfigurations;validatingwebhookconfigurations,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=apps,resources=deployments,verbs=get;list;watch;create;patch;delete
// +kubebuilder:rbac:groups="",resources=services,verbs=get;list;watch;create;patch;delete
// +kubebuilder:rbac:groups="",resources=configmaps,verbs=get;list;watch

func (r *WebhookHelperReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	log := r.Log.WithValues("webhookhelper", req.NamespacedName)
	ctx = ctrl.LoggerInto(ctx, log)

	instance := &certhelperv1.WebhookHelper{}
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

func (r *WebhookHelperReconciler) errorPolicy(instance *certhelperv1.WebhookHelper, err error) ctrl.Result {
	return errorPolicy(r.Log, "webhookhelper", instance, err)
}

func (r *WebhookHelperReconciler) create(ctx context.Context, instance *certhelperv1.WebhookHelper) (ctrl.Result, error) {
	if _, err := r.Manager.Serve(ctx, instance); err != nil {
		r.warn(instance, err)
		return ctrl.Result{}, err
	}
	if err := addFinalizer(ctx, r.Client, instance); err != nil {
		return ctrl.Result{}, err
	}
	return requeueShort(), nil
}

func (r *WebhookHelperReconciler) update(ctx context.Context, instance *certhelperv1.WebhookHelper) (ctrl.Result, error) {
	log := ctrl.LoggerFrom(ctx)
	s, err := r.Tracker.Determine(ctx, instance)
	if err != nil {
		return ctrl.Result{}, err
	}

	switch {
	case s.Terminal():
		log.V(4).Info("WebhookHelper settled", "stage", s.String())
		return ctrl.Result{}, nil
	case s.Type == certhelperv1.ConditionServiceCreated:
		return ctrl.Result{}, r.bootstrap(ctx, instance)
	case s.Type == certhelperv1.ConditionCreating:
		log.Info("WebhookHelper is being created")
	}
	return requeueShort(), nil
}

// bootstrap creates the webhook configuration. A manifest of an unknown
// kind will never succeed and is recorded as CreationFailed.
func (r *WebhookHelperReconciler) bootstrap(ctx context.Context, instance *certhelperv1.WebhookHelper) error {
	svc, err := r.Manager.ResolveService(ctx, instance)
	if err != nil {
		return err
	}
	err = r.Manager.Bootstrap(ctx, instance, svc)
	if err == nil {
		return nil
	}

	r.warn(instance, err)
	if errors.Cause(err) == webhookhelper.ErrUnknownWebhookType {
		if uerr := r.Tracker.Update(ctx, instance, stage.CreationFailed(err.Error())); uerr != nil {
			ctrl.LoggerFrom(ctx).Error(uerr, "unable to record failure")
		}
	}
	return err
}

// delete removes the webhook configuration. When the configuration cannot
// be identified there is nothing left to remove and the finalizer is
// cleared anyway.
func (r *WebhookHelperReconciler) delete(ctx context.Context, instance *certhelperv1.WebhookHelper) (ctrl.Result, error) {
	if err := r.Manager.Delete(ctx, instance); err != nil {
		if errors.Cause(err) != webhookhelper.ErrUnknownWebhookType {
			return ctrl.Result{}, err
		}
		r.warn(instance, err)
		ctrl.LoggerFrom(ctx).Error(err, "Releasing WebhookHelper without deleting its webhook configuration")
	}
	if err := removeFinalizer(ctx, r.Client, instance); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{}, nil
}

func (r *WebhookHelperReconciler) warn(instance *certhelperv1.WebhookHelper, err error) {
	if r.Event == nil {
		return
	}
	r.Event.Eventf(instance, corev1.EventTypeWarning, string(certhelperv1.ConditionCreationFailed), "%v", err)
}

func (r *WebhookHelperReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&certhelperv1.WebhookHelper{}).
		Watches(&source.Kind{Type: &corev1.Service{}}, &handler.EnqueueRequestForOwner{
			OwnerType:    &certhelperv1.WebhookHelper{},
			IsController: false,
		}).
		WithOptions(controller.Options{MaxConcurrentReconciles: maxConcurrentReconciles(r.MaxConcurrentReconciles)}).
		Complete(r)
}
