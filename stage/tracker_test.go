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

package stage

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	certhelperv1 "github.com/certificate-helper/certificate-helper/api/v1"
	"github.com/certificate-helper/certificate-helper/apis"
	"github.com/certificate-helper/certificate-helper/testutils"
)

var (
	fixedTime   = metav1.NewTime(time.Date(2021, time.June, 1, 12, 0, 0, 0, time.UTC))
	ignoreTimes = cmpopts.IgnoreFields(certhelperv1.Condition{}, "LastTransitionTime")
)

func newScheme(t *testing.T) *runtime.Scheme {
	scheme := runtime.NewScheme()
	if err := apis.AddToScheme(scheme); err != nil {
		t.Fatalf("unable to build scheme: %v", err)
	}
	return scheme
}

func condition(t certhelperv1.ConditionType, message string) certhelperv1.Condition {
	return certhelperv1.Condition{
		Type:               t,
		Message:            message,
		Status:             metav1.ConditionTrue,
		LastTransitionTime: fixedTime,
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		cert    *certhelperv1.Certificate
		want    Stage
		wantErr bool
	}{
		{
			"no conditions is Creating",
			testutils.MakeCertificate(),
			Creating(),
			false,
		},
		{
			"certificate created names the issued secret",
			testutils.MakeCertificate(func(c *certhelperv1.Certificate) {
				c.Status.Certificate = "svc1"
				c.Status.Conditions = certhelperv1.Conditions{
					condition(certhelperv1.ConditionCertificateCreated, "Certificate svc1 Created"),
				}
			}),
			CertificateCreated("svc1"),
			false,
		},
		{
			"certificate created without a name",
			testutils.MakeCertificate(func(c *certhelperv1.Certificate) {
				c.Status.Conditions = certhelperv1.Conditions{
					condition(certhelperv1.ConditionCertificateCreated, ""),
				}
			}),
			CertificateCreated(UnknownCertificate),
			false,
		},
		{
			"creation failed carries the message",
			testutils.MakeCertificate(func(c *certhelperv1.Certificate) {
				c.Status.Conditions = certhelperv1.Conditions{
					condition(certhelperv1.ConditionCreationFailed, "signer unavailable"),
				}
			}),
			CreationFailed("signer unavailable"),
			false,
		},
		{
			"creation failed drops the recorded prefix",
			testutils.MakeCertificate(func(c *certhelperv1.Certificate) {
				c.Status.Conditions = certhelperv1.Conditions{
					condition(certhelperv1.ConditionCreationFailed, CreationFailed("signer unavailable").Message()),
				}
			}),
			CreationFailed("signer unavailable"),
			false,
		},
		{
			"only the last condition counts",
			testutils.MakeCertificate(func(c *certhelperv1.Certificate) {
				c.Status.Certificate = "svc1"
				c.Status.Conditions = certhelperv1.Conditions{
					condition(certhelperv1.ConditionCreationFailed, "first attempt"),
					condition(certhelperv1.ConditionCertificateCreated, "Certificate svc1 Created"),
				}
			}),
			CertificateCreated("svc1"),
			false,
		},
		{
			"unrecognized type is an error",
			testutils.MakeCertificate(func(c *certhelperv1.Certificate) {
				c.Status.Conditions = certhelperv1.Conditions{
					condition(certhelperv1.ConditionCertificateCreated, ""),
					condition("Frobnicated", ""),
				}
			}),
			Stage{},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)
			got, err := Classify(tt.cert)
			if tt.wantErr {
				var classification *ClassificationError
				g.Expect(errors.As(err, &classification)).To(BeTrue())
				g.Expect(classification.Type).To(Equal(certhelperv1.ConditionType("Frobnicated")))
				return
			}
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(got).To(Equal(tt.want))
		})
	}
}

func TestClassify_CreationFailedMessageIsStable(t *testing.T) {
	g := NewWithT(t)
	cert := testutils.MakeCertificate()
	failed := CreationFailed("signer unavailable")
	for i := 0; i < 3; i++ {
		cert.Status.Conditions = append(cert.Status.Conditions, condition(certhelperv1.ConditionCreationFailed, failed.Message()))
		var err error
		failed, err = Classify(cert)
		g.Expect(err).NotTo(HaveOccurred())
	}
	g.Expect(failed.Message()).To(Equal("Certificate-helper failed to create resource: signer unavailable"))
}

func TestStage_Message(t *testing.T) {
	tests := []struct {
		stage  Stage
		expect string
		status metav1.ConditionStatus
	}{
		{Creating(), "Creating resource", metav1.ConditionTrue},
		{Deleting(), "Deleting resource", metav1.ConditionTrue},
		{CertificateCreated("svc1"), "Certificate svc1 Created", metav1.ConditionTrue},
		{CreationFailed("boom"), "Certificate-helper failed to create resource: boom", metav1.ConditionFalse},
		{
			ServiceCreated(&corev1.ObjectReference{Name: "hook", Namespace: "ns"}),
			"Service ns/hook Created",
			metav1.ConditionTrue,
		},
		{
			WebhookCreated(&corev1.ObjectReference{Kind: "ValidatingWebhookConfiguration", Name: "hook"}),
			"ValidatingWebhookConfiguration hook Created",
			metav1.ConditionTrue,
		},
	}
	for _, tt := range tests {
		t.Run(tt.stage.String(), func(t *testing.T) {
			g := NewWithT(t)
			g.Expect(tt.stage.Message()).To(Equal(tt.expect))
			g.Expect(tt.stage.Status()).To(Equal(tt.status))
		})
	}
}

func TestTracker_UpdateAppendsOnly(t *testing.T) {
	stages := []Stage{
		Creating(),
		CertificateCreated("svc1"),
		CreationFailed("signer unavailable"),
		Deleting(),
	}
	for _, s := range stages {
		t.Run(s.String(), func(t *testing.T) {
			g := NewWithT(t)
			ctx := context.TODO()

			cert := testutils.MakeCertificate(func(c *certhelperv1.Certificate) {
				c.Status.Conditions = certhelperv1.Conditions{
					condition(certhelperv1.ConditionCreating, "Creating resource"),
					condition(certhelperv1.ConditionCreationFailed, "first attempt"),
				}
			})
			before := cert.Status.Conditions.DeepCopy()
			cli := fake.NewClientBuilder().WithScheme(newScheme(t)).WithObjects(cert).Build()

			tracker := NewTracker(cli)
			tracker.Now = func() metav1.Time { return fixedTime }
			g.Expect(tracker.Update(ctx, testutils.MakeCertificate(), s)).To(Succeed())

			stored := testutils.MakeCertificate()
			g.Expect(cli.Get(ctx, client.ObjectKeyFromObject(stored), stored)).To(Succeed())
			after := stored.Status.Conditions

			g.Expect(after).To(HaveLen(len(before) + 1))
			if diff := cmp.Diff(before, after[:len(before)], ignoreTimes); diff != "" {
				t.Errorf("existing conditions changed (-before +after):\n%s", diff)
			}
			for i := range before {
				g.Expect(after[i].LastTransitionTime.Time.Equal(before[i].LastTransitionTime.Time)).To(BeTrue())
			}

			added := after[len(after)-1]
			g.Expect(added.Type).To(Equal(s.Type))
			g.Expect(added.Message).To(Equal(s.Message()))
			g.Expect(added.Status).To(Equal(s.Status()))
			g.Expect(added.LastTransitionTime.Time.Equal(fixedTime.Time)).To(BeTrue())
		})
	}
}

func TestTracker_CertificateCreatedRecordsSecret(t *testing.T) {
	g := NewWithT(t)
	ctx := context.TODO()
	cert := testutils.MakeCertificate()
	cli := fake.NewClientBuilder().WithScheme(newScheme(t)).WithObjects(cert).Build()
	tracker := NewTracker(cli)

	g.Expect(tracker.Update(ctx, cert, CertificateCreated("svc1"))).To(Succeed())

	got, err := tracker.Determine(ctx, testutils.MakeCertificate())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(got).To(Equal(CertificateCreated("svc1")))

	g.Expect(cert.Status.Certificate).To(Equal("svc1"))
	g.Expect(cert.Status.Service).To(Equal(cert.Spec.Service))
	g.Expect(cert.Status.AltNames).To(Equal(cert.Spec.AltNames))
	g.Expect(cert.Status.Conditions).To(HaveLen(1))
	g.Expect(cert.Status.Conditions[0].Message).To(Equal("Certificate svc1 Created"))
}

func TestTracker_WebhookHelperRefs(t *testing.T) {
	g := NewWithT(t)
	ctx := context.TODO()
	helper := testutils.MakeWebhookHelper()
	cli := fake.NewClientBuilder().WithScheme(newScheme(t)).WithObjects(helper).Build()
	tracker := NewTracker(cli)

	svc := &corev1.ObjectReference{Kind: "Service", Name: "hook", Namespace: "ns"}
	g.Expect(tracker.Update(ctx, helper, ServiceCreated(svc))).To(Succeed())
	g.Expect(helper.Status.ServiceRef).To(Equal(svc))

	got, err := tracker.Determine(ctx, helper)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(got.Type).To(Equal(certhelperv1.ConditionServiceCreated))
	g.Expect(got.Ref).To(Equal(svc))

	hook := &corev1.ObjectReference{Kind: "MutatingWebhookConfiguration", Name: "hook"}
	g.Expect(tracker.Update(ctx, helper, WebhookCreated(hook))).To(Succeed())
	g.Expect(helper.Status.MutatingWebhookRef).To(Equal(hook))
	g.Expect(helper.Status.ValidatingWebhookRef).To(BeNil())

	got, err = tracker.Determine(ctx, helper)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(got.Terminal()).To(BeTrue())
	g.Expect(got.Ref).To(Equal(hook))
}

func TestTracker_DetermineNotFound(t *testing.T) {
	g := NewWithT(t)
	cli := fake.NewClientBuilder().WithScheme(newScheme(t)).Build()

	_, err := NewTracker(cli).Determine(context.TODO(), testutils.MakeCertificate())
	g.Expect(apierrors.IsNotFound(err)).To(BeTrue())
}
