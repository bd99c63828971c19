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

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	certhelperv1 "github.com/certificate-helper/certificate-helper/api/v1"
	"github.com/certificate-helper/certificate-helper/testutils"
)

var _ = Describe("Manager", func() {
	var (
		ctx    context.Context
		c      client.Client
		m      *Manager
		helper *certhelperv1.WebhookHelper
	)

	newManager := func(objs ...client.Object) {
		c = fake.NewClientBuilder().WithScheme(testScheme).WithObjects(objs...).Build()
		m = NewManager(c, testScheme)
	}

	fetch := func(obj client.Object) {
		ExpectWithOffset(1, c.Get(ctx, client.ObjectKeyFromObject(obj), obj)).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		helper = testutils.MakeWebhookHelper()
	})

	Describe("Bootstrap", func() {
		Context("with a validating webhook manifest", func() {
			BeforeEach(func() {
				newManager(helper, testutils.MakeRootCAConfigMap())
			})

			It("should bind the webhook to the service and record it", func() {
				svc := testutils.MakeService()
				Expect(m.Bootstrap(ctx, helper, svc)).To(Succeed())

				vwc := &admissionregistrationv1.ValidatingWebhookConfiguration{}
				vwc.SetName("hook")
				fetch(vwc)
				Expect(vwc.Webhooks).To(HaveLen(1))
				cfg := vwc.Webhooks[0].ClientConfig
				Expect(cfg.URL).To(BeNil())
				Expect(string(cfg.CABundle)).To(Equal(testutils.TestCABundle))
				Expect(cfg.Service).NotTo(BeNil())
				Expect(cfg.Service.Name).To(Equal("hook"))
				Expect(cfg.Service.Namespace).To(Equal("ns"))
				Expect(*cfg.Service.Port).To(Equal(int32(9443)))
				Expect(*cfg.Service.Path).To(Equal("/validate"))

				Expect(vwc.OwnerReferences).To(HaveLen(1))
				Expect(vwc.OwnerReferences[0].UID).To(Equal(helper.GetUID()))
				Expect(vwc.OwnerReferences[0].Kind).To(Equal("WebhookHelper"))
				Expect(*vwc.OwnerReferences[0].BlockOwnerDeletion).To(BeFalse())

				stored := &certhelperv1.WebhookHelper{}
				stored.SetName(helper.GetName())
				stored.SetNamespace(helper.GetNamespace())
				fetch(stored)
				last, ok := stored.Status.Conditions.Last()
				Expect(ok).To(BeTrue())
				Expect(last.Type).To(Equal(certhelperv1.ConditionWebhookCreated))
				Expect(last.Message).To(Equal("ValidatingWebhookConfiguration hook Created"))
				Expect(stored.Status.ValidatingWebhookRef).NotTo(BeNil())
				Expect(stored.Status.ValidatingWebhookRef.Name).To(Equal("hook"))
				Expect(stored.Status.MutatingWebhookRef).To(BeNil())
			})

			It("should replace an existing configuration of the same name", func() {
				newManager(helper, testutils.MakeRootCAConfigMap(), testutils.MakeValidatingWebhookConfiguration())
				Expect(m.Bootstrap(ctx, helper, testutils.MakeService())).To(Succeed())

				vwc := &admissionregistrationv1.ValidatingWebhookConfiguration{}
				vwc.SetName("hook")
				fetch(vwc)
				Expect(vwc.Webhooks[0].ClientConfig.URL).To(BeNil())
				Expect(vwc.Webhooks[0].ClientConfig.Service).NotTo(BeNil())
			})
		})

		Context("with a mutating webhook manifest", func() {
			BeforeEach(func() {
				helper.Spec.Webhook = testutils.RawManifest(testutils.MakeMutatingWebhookConfiguration())
				helper.Spec.Path = nil
				newManager(helper, testutils.MakeRootCAConfigMap())
			})

			It("should create a mutating configuration without a path", func() {
				Expect(m.Bootstrap(ctx, helper, testutils.MakeService())).To(Succeed())

				mwc := &admissionregistrationv1.MutatingWebhookConfiguration{}
				mwc.SetName("hook")
				fetch(mwc)
				Expect(mwc.Webhooks[0].ClientConfig.Service.Path).To(BeNil())
				Expect(helper.Status.MutatingWebhookRef).NotTo(BeNil())
				Expect(helper.Status.ValidatingWebhookRef).To(BeNil())
			})
		})

		It("should fail fast without a service", func() {
			newManager(helper, testutils.MakeRootCAConfigMap())
			err := m.Bootstrap(ctx, helper, nil)
			Expect(err).To(Equal(ErrServiceRequired))
		})

		It("should fail when the root CA is missing", func() {
			newManager(helper)
			err := m.Bootstrap(ctx, helper, testutils.MakeService())
			Expect(errors.Cause(err)).To(Equal(ErrSigningCANotFound))
		})

		It("should fail when the root CA key is missing", func() {
			newManager(helper, testutils.MakeRootCAConfigMap(func(cm *corev1.ConfigMap) {
				cm.Data = nil
			}))
			err := m.Bootstrap(ctx, helper, testutils.MakeService())
			Expect(errors.Cause(err)).To(Equal(ErrSigningCANotFound))
		})

		It("should read the root CA from the configured namespace", func() {
			newManager(helper, testutils.MakeRootCAConfigMap(func(cm *corev1.ConfigMap) {
				cm.Namespace = "kube-public"
			}))
			m.CANamespace = "kube-public"
			Expect(m.Bootstrap(ctx, helper, testutils.MakeService())).To(Succeed())
		})

		It("should reject a manifest of another kind", func() {
			helper.Spec.Webhook = testutils.RawManifest(testutils.MakeDeployment())
			newManager(helper, testutils.MakeRootCAConfigMap())
			err := m.Bootstrap(ctx, helper, testutils.MakeService())
			Expect(err).To(Equal(ErrUnknownWebhookType))
		})
	})

	Describe("Serve", func() {
		BeforeEach(func() {
			newManager(helper)
		})

		It("should create the deployment and a service selecting its pods", func() {
			svc, err := m.Serve(ctx, helper)
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.GetName()).To(Equal("hook"))
			Expect(svc.GetNamespace()).To(Equal("ns"))

			deploy := &appsv1.Deployment{}
			deploy.SetName("hook")
			deploy.SetNamespace("ns")
			fetch(deploy)
			Expect(deploy.OwnerReferences).To(HaveLen(1))
			Expect(deploy.OwnerReferences[0].UID).To(Equal(helper.GetUID()))

			stored := &corev1.Service{}
			stored.SetName("hook")
			stored.SetNamespace("ns")
			fetch(stored)
			Expect(stored.Spec.Selector).To(Equal(map[string]string{"app": "hook"}))
			Expect(stored.Spec.Ports).To(HaveLen(1))
			Expect(stored.Spec.Ports[0].Port).To(Equal(int32(9443)))
			Expect(stored.Spec.Ports[0].TargetPort).To(Equal(intstr.FromInt(9443)))

			Expect(helper.Status.ServiceRef).NotTo(BeNil())
			Expect(helper.Status.ServiceRef.Name).To(Equal("hook"))
			last, _ := helper.Status.Conditions.Last()
			Expect(last.Type).To(Equal(certhelperv1.ConditionServiceCreated))
			Expect(last.Message).To(Equal("Service ns/hook Created"))
		})

		It("should leave objects in other namespaces unowned", func() {
			helper.Spec.Deployment = testutils.RawManifest(testutils.MakeDeployment(func(d *appsv1.Deployment) {
				d.Namespace = "elsewhere"
			}))
			newManager(helper)

			svc, err := m.Serve(ctx, helper)
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.GetNamespace()).To(Equal("elsewhere"))
			fetch(svc)
			Expect(svc.OwnerReferences).To(BeEmpty())
		})

		It("should resolve the recorded service", func() {
			_, err := m.Serve(ctx, helper)
			Expect(err).NotTo(HaveOccurred())

			svc, err := m.ResolveService(ctx, helper)
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.GetName()).To(Equal("hook"))
		})

		It("should require a recorded service to resolve", func() {
			_, err := m.ResolveService(ctx, helper)
			Expect(err).To(Equal(ErrServiceRequired))
		})
	})

	Describe("Delete", func() {
		It("should delete the configuration named by the status", func() {
			helper.Status.ValidatingWebhookRef = &corev1.ObjectReference{Name: "recorded"}
			newManager(helper, testutils.MakeValidatingWebhookConfiguration(func(v *admissionregistrationv1.ValidatingWebhookConfiguration) {
				v.Name = "recorded"
			}))

			Expect(m.Delete(ctx, helper)).To(Succeed())
			err := c.Get(ctx, client.ObjectKey{Name: "recorded"}, &admissionregistrationv1.ValidatingWebhookConfiguration{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
		})

		It("should fall back to the manifest", func() {
			helper.Spec.Webhook = testutils.RawManifest(testutils.MakeMutatingWebhookConfiguration())
			newManager(helper, testutils.MakeMutatingWebhookConfiguration())

			Expect(m.Delete(ctx, helper)).To(Succeed())
			err := c.Get(ctx, client.ObjectKey{Name: "hook"}, &admissionregistrationv1.MutatingWebhookConfiguration{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
		})

		It("should ignore a configuration that is already gone", func() {
			newManager(helper)
			Expect(m.Delete(ctx, helper)).To(Succeed())
		})

		Context("with workloads in another namespace", func() {
			var deploy *appsv1.Deployment

			BeforeEach(func() {
				deploy = testutils.MakeDeployment(func(d *appsv1.Deployment) {
					d.Namespace = "elsewhere"
				})
				helper.Spec.Deployment = testutils.RawManifest(deploy)
				newManager(helper, testutils.MakeRootCAConfigMap())

				svc, err := m.Serve(ctx, helper)
				Expect(err).NotTo(HaveOccurred())
				Expect(m.Bootstrap(ctx, helper, svc)).To(Succeed())
			})

			It("should delete the service and the deployment", func() {
				Expect(m.Delete(ctx, helper)).To(Succeed())

				err := c.Get(ctx, client.ObjectKey{Name: "hook", Namespace: "elsewhere"}, &corev1.Service{})
				Expect(apierrors.IsNotFound(err)).To(BeTrue())
				err = c.Get(ctx, client.ObjectKey{Name: "hook", Namespace: "elsewhere"}, &appsv1.Deployment{})
				Expect(apierrors.IsNotFound(err)).To(BeTrue())
				err = c.Get(ctx, client.ObjectKey{Name: "hook"}, &admissionregistrationv1.ValidatingWebhookConfiguration{})
				Expect(apierrors.IsNotFound(err)).To(BeTrue())
			})

			It("should keep workloads another helper created", func() {
				other := helper.DeepCopy()
				other.SetUID("other-uid")
				Expect(m.Delete(ctx, other)).To(Succeed())

				Expect(c.Get(ctx, client.ObjectKey{Name: "hook", Namespace: "elsewhere"}, &corev1.Service{})).To(Succeed())
				Expect(c.Get(ctx, client.ObjectKey{Name: "hook", Namespace: "elsewhere"}, &appsv1.Deployment{})).To(Succeed())
			})
		})

		It("should fail on an unrecognised manifest", func() {
			helper.Spec.Webhook = runtime.RawExtension{Raw: []byte(`{"apiVersion":"v1","kind":"ConfigMap","metadata":{"name":"x"}}`)}
			newManager(helper)
			Expect(m.Delete(ctx, helper)).To(Equal(ErrUnknownWebhookType))
		})
	})
})
