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

package bootstrap

import (
	"bytes"
	"context"
	"strings"
	"testing"

	. "github.com/onsi/gomega"
	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/yaml"

	certhelperv1 "github.com/certificate-helper/certificate-helper/api/v1"
	"github.com/certificate-helper/certificate-helper/apis"
	"github.com/certificate-helper/certificate-helper/webhookhelper"
)

func TestWebhookHelper(t *testing.T) {
	g := NewWithT(t)
	helper, err := WebhookHelper(Options{Namespace: "Tools"})
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(helper.GetName()).To(Equal("certificate-helper.tools.svc"))
	g.Expect(helper.GetNamespace()).To(Equal("Tools"))
	g.Expect(helper.Spec.ListeningPort).To(Equal(int32(9443)))
	g.Expect(helper.GetTargetPort()).To(Equal(int32(9443)))
	g.Expect(*helper.Spec.Path).To(Equal("/validate"))
	g.Expect(*helper.Spec.ContainerName).To(Equal("certificate-helper"))

	// The embedded webhook resolves to the validating variant.
	webhook, err := webhookhelper.ParseWebhook(helper.Spec.Webhook.Raw)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(webhook.Variant).To(Equal(webhookhelper.Validating))

	hooks := webhook.Validating.Webhooks
	g.Expect(hooks).To(HaveLen(1))
	g.Expect(hooks[0].Name).To(Equal("certificate-helper.tools.svc"))
	g.Expect(*hooks[0].FailurePolicy).To(Equal(admissionregistrationv1.Fail))
	g.Expect(*hooks[0].SideEffects).To(Equal(admissionregistrationv1.SideEffectClassNone))
	g.Expect(*hooks[0].TimeoutSeconds).To(Equal(int32(15)))
	g.Expect(hooks[0].Rules[0].APIGroups).To(Equal([]string{"certificate-helper.io"}))
	g.Expect(hooks[0].Rules[0].Resources).To(Equal([]string{"certificates"}))
	g.Expect(hooks[0].Rules[0].Operations).To(ConsistOf(admissionregistrationv1.Create, admissionregistrationv1.Update))
}

func TestDeployment(t *testing.T) {
	g := NewWithT(t)
	d := Deployment(Options{Namespace: "tools", Image: "registry.example.com/certificate-helper:v1"})

	g.Expect(d.Spec.Selector.MatchLabels).To(Equal(map[string]string{"app": "certificate-helper"}))
	g.Expect(d.Spec.Template.Labels).To(Equal(d.Spec.Selector.MatchLabels))
	pod := d.Spec.Template.Spec
	g.Expect(pod.ServiceAccountName).To(Equal("certificate-helper-service-account"))
	g.Expect(pod.Containers).To(HaveLen(1))
	g.Expect(pod.Containers[0].Image).To(Equal("registry.example.com/certificate-helper:v1"))
	g.Expect(pod.Containers[0].Args).To(Equal([]string{"run", "--port", "9443"}))
	g.Expect(pod.Containers[0].Ports[0].ContainerPort).To(Equal(int32(9443)))

	g.Expect(Deployment(Options{Namespace: "tools"}).Spec.Template.Spec.Containers[0].Image).To(Equal(DefaultImage))
}

func TestApply(t *testing.T) {
	g := NewWithT(t)
	scheme := runtime.NewScheme()
	g.Expect(apis.AddToScheme(scheme)).To(Succeed())
	c := fake.NewClientBuilder().WithScheme(scheme).Build()
	ctx := context.Background()

	g.Expect(Apply(ctx, c, Options{Namespace: "tools"})).To(Succeed())
	// Applying twice is harmless.
	g.Expect(Apply(ctx, c, Options{Namespace: "tools"})).To(Succeed())

	helper := &certhelperv1.WebhookHelper{}
	g.Expect(c.Get(ctx, client.ObjectKey{Name: "certificate-helper.tools.svc", Namespace: "tools"}, helper)).To(Succeed())
	g.Expect(helper.Spec.Deployment.Raw).NotTo(BeEmpty())

	g.Expect(Apply(ctx, c, Options{})).NotTo(Succeed())
}

func TestRender(t *testing.T) {
	g := NewWithT(t)
	var out bytes.Buffer
	g.Expect(Render(&out, Options{Namespace: "tools"})).To(Succeed())

	docs := strings.Split(out.String(), "---\n")
	g.Expect(docs).To(HaveLen(3))

	helper := &certhelperv1.WebhookHelper{}
	g.Expect(yaml.UnmarshalStrict([]byte(docs[0]), helper)).To(Succeed())
	g.Expect(helper.Kind).To(Equal("WebhookHelper"))
	g.Expect(helper.Spec.Namespace).To(Equal("tools"))

	g.Expect(docs[1]).To(ContainSubstring("kind: Deployment"))
	g.Expect(docs[2]).To(ContainSubstring("kind: ValidatingWebhookConfiguration"))
}
