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
	"context"

	"github.com/pkg/errors"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	certhelperv1 "github.com/certificate-helper/certificate-helper/api/v1"
	"github.com/certificate-helper/certificate-helper/constants"
	"github.com/certificate-helper/certificate-helper/metrics"
	"github.com/certificate-helper/certificate-helper/operation"
	"github.com/certificate-helper/certificate-helper/stage"
	"github.com/certificate-helper/certificate-helper/utils"
)

var (
	// ErrServiceRequired is returned when Bootstrap is called before the
	// helper's Service exists.
	ErrServiceRequired = errors.New("a service is required to bootstrap a webhook")

	// ErrSigningCANotFound is returned when the cluster root CA bundle
	// cannot be read.
	ErrSigningCANotFound = errors.New("could not find signing CA")
)

// Manager creates and removes the webhook configuration, Deployment and
// Service described by a WebhookHelper. Children in the helper's namespace
// are garbage collected through their owner reference, the rest are removed
// by Delete.
type Manager struct {
	Client  client.Client
	Scheme  *runtime.Scheme
	Tracker *stage.Tracker

	// CANamespace holds the root CA ConfigMap. Defaults to
	// constants.DefaultRootCANamespace.
	CANamespace string
}

// NewManager returns a Manager reading the root CA from the default
// namespace.
func NewManager(c client.Client, scheme *runtime.Scheme) *Manager {
	return &Manager{
		Client:      c,
		Scheme:      scheme,
		Tracker:     stage.NewTracker(c),
		CANamespace: constants.DefaultRootCANamespace,
	}
}

// Serve creates the helper's Deployment and a Service selecting its pods,
// then records ServiceCreated. Objects that already exist are reused.
func (m *Manager) Serve(ctx context.Context, helper *certhelperv1.WebhookHelper) (*corev1.Service, error) {
	log := ctrl.LoggerFrom(ctx)

	deploy, err := parseDeployment(helper.Spec.Deployment.Raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse deployment")
	}
	if deploy.GetNamespace() == "" {
		deploy.SetNamespace(helper.Spec.Namespace)
	}
	if deploy.GetNamespace() == "" {
		deploy.SetNamespace(helper.GetNamespace())
	}
	utils.SetOwnerLabels(helper, deploy)
	if err := m.createOrGet(ctx, deploy); err != nil {
		return nil, err
	}
	log.V(4).Info("Deployment ready", "deployment", deploy.GetName(), "namespace", deploy.GetNamespace())

	svc := newService(helper, deploy.GetName(), deploy.GetNamespace(), deploy.Spec.Template.GetLabels())
	if err := m.createOrGet(ctx, svc); err != nil {
		return nil, err
	}

	if err := m.Tracker.Update(ctx, helper, stage.ServiceCreated(serviceRef(svc))); err != nil {
		return nil, err
	}

	for _, obj := range []client.Object{deploy, svc} {
		if err := m.own(ctx, helper, operation.NewNamespaced(m.Client), obj); err != nil {
			return nil, err
		}
	}
	log.Info("Service created", "service", svc.GetName(), "namespace", svc.GetNamespace())
	return svc, nil
}

// ResolveService fetches the Service recorded on the helper's status.
func (m *Manager) ResolveService(ctx context.Context, helper *certhelperv1.WebhookHelper) (*corev1.Service, error) {
	ref := helper.Status.ServiceRef
	if ref == nil {
		return nil, ErrServiceRequired
	}
	svc := &corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: ref.Name, Namespace: ref.Namespace}}
	if _, err := operation.Perform(ctx, operation.NewNamespaced(m.Client), operation.Get, svc); err != nil {
		return nil, err
	}
	return svc, nil
}

// Bootstrap binds the helper's webhook configuration to svc, trusting the
// cluster root CA, and creates it. An existing configuration of the same
// name is replaced.
func (m *Manager) Bootstrap(ctx context.Context, helper *certhelperv1.WebhookHelper, svc *corev1.Service) error {
	if svc == nil {
		return ErrServiceRequired
	}
	log := ctrl.LoggerFrom(ctx)

	webhook, err := ParseWebhook(helper.Spec.Webhook.Raw)
	if err != nil {
		return err
	}
	ca, err := m.rootCA(ctx)
	if err != nil {
		return err
	}
	webhook.Bind(ca, svc, helper.Spec.ListeningPort, helper.Spec.Path)

	obj := webhook.Object()
	utils.SetOwnerLabels(helper, obj)
	if err := m.createOrReplace(ctx, webhook); err != nil {
		return err
	}
	log.V(4).Info("Webhook configuration ready", "variant", webhook.Variant, "name", obj.GetName())

	if err := m.Tracker.Update(ctx, helper, stage.WebhookCreated(webhook.Ref())); err != nil {
		return err
	}
	if err := m.own(ctx, helper, operation.NewCluster(m.Client), obj); err != nil {
		return err
	}

	metrics.WebhookConfigurations.WithLabelValues(string(webhook.Variant)).Inc()
	log.Info("Webhook created", "variant", webhook.Variant, "name", obj.GetName())
	return nil
}

// Delete removes the helper's webhook configuration and any Service and
// Deployment it created outside its own namespace. The variant comes from
// the status refs, falling back to the manifest when none is recorded.
func (m *Manager) Delete(ctx context.Context, helper *certhelperv1.WebhookHelper) error {
	if err := m.release(ctx, helper); err != nil {
		return err
	}

	obj, err := m.resolve(helper)
	if err != nil {
		return err
	}

	ops := operation.NewCluster(m.Client)
	if _, err := operation.Perform(ctx, ops, operation.Get, obj); err != nil {
		return client.IgnoreNotFound(err)
	}
	if _, err := operation.Perform(ctx, ops, operation.Delete, obj); err != nil {
		return client.IgnoreNotFound(err)
	}
	ctrl.LoggerFrom(ctx).Info("Deleted webhook configuration", "name", obj.GetName())
	return nil
}

// release deletes the recorded Service and the Deployment of the same name
// when they live outside the helper's namespace. Objects not labelled with
// the helper's uid were not created by it and are kept.
func (m *Manager) release(ctx context.Context, helper *certhelperv1.WebhookHelper) error {
	ref := helper.Status.ServiceRef
	if ref == nil || ref.Namespace == "" || ref.Namespace == helper.GetNamespace() {
		return nil
	}
	log := ctrl.LoggerFrom(ctx)

	ops := operation.NewNamespaced(m.Client)
	meta := metav1.ObjectMeta{Name: ref.Name, Namespace: ref.Namespace}
	for _, obj := range []client.Object{
		&corev1.Service{ObjectMeta: *meta.DeepCopy()},
		&appsv1.Deployment{ObjectMeta: *meta.DeepCopy()},
	} {
		if _, err := operation.Perform(ctx, ops, operation.Get, obj); err != nil {
			if apierrors.IsNotFound(err) {
				continue
			}
			return err
		}
		if obj.GetLabels()[constants.LabelOwnerUID] != string(helper.GetUID()) {
			log.V(4).Info("Keeping object not created by this helper", "object", obj.GetName(), "namespace", obj.GetNamespace())
			continue
		}
		if _, err := operation.Perform(ctx, ops, operation.Delete, obj); client.IgnoreNotFound(err) != nil {
			return err
		}
		log.Info("Deleted webhook workload", "object", obj.GetName(), "namespace", obj.GetNamespace())
	}
	return nil
}

func (m *Manager) resolve(helper *certhelperv1.WebhookHelper) (client.Object, error) {
	switch {
	case helper.Status.MutatingWebhookRef != nil:
		return emptyObject(helper.Status.MutatingWebhookRef, Mutating), nil
	case helper.Status.ValidatingWebhookRef != nil:
		return emptyObject(helper.Status.ValidatingWebhookRef, Validating), nil
	}

	webhook, err := ParseWebhook(helper.Spec.Webhook.Raw)
	if err != nil {
		return nil, err
	}
	return emptyObject(webhook.Ref(), webhook.Variant), nil
}

// rootCA reads the cluster root CA bundle.
func (m *Manager) rootCA(ctx context.Context) ([]byte, error) {
	ns := m.CANamespace
	if ns == "" {
		ns = constants.DefaultRootCANamespace
	}
	cm := &corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{Name: constants.RootCAConfigMapName, Namespace: ns}}
	if _, err := operation.Perform(ctx, operation.NewNamespaced(m.Client), operation.Get, cm); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, errors.Wrapf(ErrSigningCANotFound, "configmap %s/%s", ns, constants.RootCAConfigMapName)
		}
		return nil, err
	}
	ca, ok := cm.Data[constants.RootCAConfigMapKey]
	if !ok || ca == "" {
		return nil, errors.Wrapf(ErrSigningCANotFound, "key %s in configmap %s/%s", constants.RootCAConfigMapKey, ns, constants.RootCAConfigMapName)
	}
	return []byte(ca), nil
}

func (m *Manager) createOrGet(ctx context.Context, obj client.Object) error {
	ops := operation.NewNamespaced(m.Client)
	_, err := operation.Perform(ctx, ops, operation.Create, obj)
	if err == nil || !apierrors.IsAlreadyExists(err) {
		return err
	}
	_, err = operation.Perform(ctx, ops, operation.Get, obj)
	return err
}

func (m *Manager) createOrReplace(ctx context.Context, webhook *Webhook) error {
	ops := operation.NewCluster(m.Client)
	obj := webhook.Object()
	_, err := operation.Perform(ctx, ops, operation.Create, obj)
	if err == nil || !apierrors.IsAlreadyExists(err) {
		return err
	}

	existing := emptyObject(webhook.Ref(), webhook.Variant)
	if _, err := operation.Perform(ctx, ops, operation.Get, existing); err != nil {
		return err
	}
	obj.SetResourceVersion(existing.GetResourceVersion())
	obj.SetUID(existing.GetUID())
	_, err = operation.Perform(ctx, ops, operation.Update, obj)
	return err
}

// own makes helper an owner of obj. Namespaced objects outside the helper's
// namespace cannot carry the reference and are left to the finalizer.
func (m *Manager) own(ctx context.Context, helper *certhelperv1.WebhookHelper, ops operation.Interface, obj client.Object) error {
	if obj.GetNamespace() != "" && obj.GetNamespace() != helper.GetNamespace() {
		ctrl.LoggerFrom(ctx).V(4).Info("Skipping cross-namespace owner reference", "object", obj.GetName(), "namespace", obj.GetNamespace())
		return nil
	}
	owner, err := operation.OwnerFor(helper, m.Scheme)
	if err != nil {
		return err
	}
	_, err = operation.Perform(ctx, ops, operation.ApplyOwner(owner), obj)
	return err
}

func newService(helper *certhelperv1.WebhookHelper, name, namespace string, selector map[string]string) *corev1.Service {
	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
		},
		Spec: corev1.ServiceSpec{
			Selector: selector,
			Ports: []corev1.ServicePort{
				{
					Name:       "webhook",
					Protocol:   corev1.ProtocolTCP,
					Port:       helper.Spec.ListeningPort,
					TargetPort: intstr.FromInt(int(helper.GetTargetPort())),
				},
			},
		},
	}
	utils.SetOwnerLabels(helper, svc)
	return svc
}

func serviceRef(svc *corev1.Service) *corev1.ObjectReference {
	return &corev1.ObjectReference{
		APIVersion: "v1",
		Kind:       "Service",
		Name:       svc.GetName(),
		Namespace:  svc.GetNamespace(),
		UID:        svc.GetUID(),
	}
}
