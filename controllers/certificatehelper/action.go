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
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	"github.com/certificate-helper/certificate-helper/constants"
	"github.com/certificate-helper/certificate-helper/metrics"
)

// Action is what a reconciliation does with an object.
type Action string

const (
	ActionCreate Action = "Create"
	ActionUpdate Action = "Update"
	ActionDelete Action = "Delete"
	ActionNoOp   Action = "NoOp"
)

// DetermineAction picks the action for obj from its deletion timestamp and
// whether it carries finalizer.
func DetermineAction(obj metav1.Object, finalizer string) Action {
	has := false
	for _, f := range obj.GetFinalizers() {
		if f == finalizer {
			has = true
			break
		}
	}
	if !obj.GetDeletionTimestamp().IsZero() {
		if has {
			return ActionDelete
		}
		return ActionNoOp
	}
	if has {
		return ActionUpdate
	}
	return ActionCreate
}

// fetchResult maps a failed fetch of the reconciled object to a requeue.
// An object that is gone is not requeued.
func fetchResult(log logr.Logger, err error) (ctrl.Result, error) {
	if apierrors.IsNotFound(err) {
		log.V(4).Info("Resource no longer exists")
		return ctrl.Result{}, nil
	}
	if _, ok := errors.Cause(err).(apierrors.APIStatus); ok {
		log.Error(err, "unable to fetch resource")
		return ctrl.Result{RequeueAfter: constants.RequeueAPIError}, nil
	}
	log.Error(err, "unable to reach the api server")
	return ctrl.Result{RequeueAfter: constants.RequeueUnknownError}, nil
}

// errorPolicy logs a failed workflow and requeues the object after a fixed
// delay, bypassing the workqueue's rate limiter.
func errorPolicy(log logr.Logger, controller string, obj client.Object, err error) ctrl.Result {
	log.Error(err, "Reconciliation failed", "resource", obj.GetName())
	metrics.ReconcileErrors.WithLabelValues(controller).Inc()
	return ctrl.Result{RequeueAfter: constants.RequeueErrorPolicy}
}

func addFinalizer(ctx context.Context, c client.Client, obj client.Object) error {
	patch := client.MergeFrom(obj.DeepCopyObject().(client.Object))
	controllerutil.AddFinalizer(obj, constants.Finalizer)
	return errors.Wrapf(c.Patch(ctx, obj, patch), "failed to add finalizer to %s", obj.GetName())
}

func removeFinalizer(ctx context.Context, c client.Client, obj client.Object) error {
	patch := client.MergeFrom(obj.DeepCopyObject().(client.Object))
	controllerutil.RemoveFinalizer(obj, constants.Finalizer)
	return errors.Wrapf(c.Patch(ctx, obj, patch), "failed to remove finalizer from %s", obj.GetName())
}

func requeueShort() ctrl.Result {
	return ctrl.Result{RequeueAfter: constants.RequeueShort}
}

func maxConcurrentReconciles(n int) int {
	if n <= 0 {
		return constants.DefaultMaxConcurrentReconciles
	}
	return n
}
