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

// Package bootstrap assembles the manifests that run certificate-helper's
// own admission webhook through a WebhookHelper.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/utils/pointer"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/yaml"

	certhelperv1 "github.com/certificate-helper/certificate-helper/api/v1"
	"github.com/certificate-helper/certificate-helper/constants"
	"github.com/certificate-helper/certificate-helper/operation"
)

const (
	// Name is used for the Deployment and its container.
	Name = "certificate-helper"

	// WebhookConfigurationName names the ValidatingWebhookConfiguration.
	WebhookConfigurationName = "certificate-helper-admission"

	// ServiceAccountName is the account the Deployment runs as.
	ServiceAccountName = "certificate-helper-service-account"

	// DefaultImage is deployed when no image is given.
	DefaultImage = "certificate-helper:latest"

	// Port is the container and service port of the admission server.
	Port int32 = 9443

	// Path is where the admission server validates Certificates.
	Path = "/validate"
)

// Options select where and what to bootstrap.
type Options struct {
	Namespace string
	Image     string
}

func (o Options) image() string {
	if o.Image == "" {
		return DefaultImage
	}
	return o.Image
}

// ServiceName is the DNS style name of the webhook and its WebhookHelper.
func (o Options) ServiceName() string {
	return fmt.Sprintf("%s.%s.svc", Name, strings.ToLower(o.Namespace))
}

// Deployment runs the operator in admission mode.
func Deployment(o Options) *appsv1.Deployment {
	labels := map[string]string{"app": Name}
	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Deployment",
			APIVersion: appsv1.SchemeGroupVersion.String(),
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      Name,
			Namespace: o.Namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: pointer.Int32Ptr(1),
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					ServiceAccountName: ServiceAccountName,
					Containers: []corev1.Container{
						{
							Name:  Name,
							Image: o.image(),
							Args:  []string{"run", "--port", fmt.Sprint(Port)},
							Ports: []corev1.ContainerPort{
								{
									ContainerPort: Port,
									Protocol:      corev1.ProtocolTCP,
								},
							},
						},
					},
				},
			},
		},
	}
}

// ValidatingWebhookConfiguration routes Certificate writes to the admission
// server. Its client config is filled in by the WebhookHelper.
func ValidatingWebhookConfiguration(o Options) *admissionregistrationv1.ValidatingWebhookConfiguration {
	fail := admissionregistrationv1.Fail
	none := admissionregistrationv1.SideEffectClassNone
	return &admissionregistrationv1.ValidatingWebhookConfiguration{
		TypeMeta: metav1.TypeMeta{
			Kind:       "ValidatingWebhookConfiguration",
			APIVersion: admissionregistrationv1.SchemeGroupVersion.String(),
		},
		ObjectMeta: metav1.ObjectMeta{
			Name: WebhookConfigurationName,
		},
		Webhooks: []admissionregistrationv1.ValidatingWebhook{
			{
				Name:                    o.ServiceName(),
				AdmissionReviewVersions: []string{"v1"},
				FailurePolicy:           &fail,
				SideEffects:             &none,
				TimeoutSeconds:          pointer.Int32Ptr(15),
				Rules: []admissionregistrationv1.RuleWithOperations{
					{
						Operations: []admissionregistrationv1.OperationType{
							admissionregistrationv1.Create,
							admissionregistrationv1.Update,
						},
						Rule: admissionregistrationv1.Rule{
							APIGroups:   []string{certhelperv1.GroupVersion.Group},
							APIVersions: []string{certhelperv1.GroupVersion.Version},
							Resources:   []string{"certificates"},
						},
					},
				},
			},
		},
	}
}

// WebhookHelper ties the Deployment and the webhook configuration together.
func WebhookHelper(o Options) (*certhelperv1.WebhookHelper, error) {
	deployment, err := json.Marshal(Deployment(o))
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode deployment")
	}
	webhook, err := json.Marshal(ValidatingWebhookConfiguration(o))
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode webhook configuration")
	}

	return &certhelperv1.WebhookHelper{
		TypeMeta: metav1.TypeMeta{
			Kind:       "WebhookHelper",
			APIVersion: certhelperv1.GroupVersion.String(),
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      o.ServiceName(),
			Namespace: o.Namespace,
			Labels:    map[string]string{constants.LabelManagedBy: constants.ManagerName},
		},
		Spec: certhelperv1.WebhookHelperSpec{
			Namespace:     o.Namespace,
			Webhook:       runtime.RawExtension{Raw: webhook},
			ListeningPort: Port,
			TargetPort:    pointer.Int32Ptr(Port),
			Path:          pointer.StringPtr(Path),
			Deployment:    runtime.RawExtension{Raw: deployment},
			ContainerName: pointer.StringPtr(Name),
		},
	}, nil
}

// Apply creates the WebhookHelper. The WebhookHelper controller takes it
// from there. An existing helper is left untouched.
func Apply(ctx context.Context, c client.Client, o Options) error {
	if o.Namespace == "" {
		return errors.New("a namespace is required")
	}
	helper, err := WebhookHelper(o)
	if err != nil {
		return err
	}

	log := ctrl.LoggerFrom(ctx).WithValues("webhookhelper", helper.GetName(), "namespace", helper.GetNamespace())
	if _, err := operation.Perform(ctx, operation.NewNamespaced(c), operation.Create, helper); err != nil {
		if !apierrors.IsAlreadyExists(err) {
			return err
		}
		log.Info("WebhookHelper already exists")
		return nil
	}
	log.Info("Created WebhookHelper")
	return nil
}

// Render writes the WebhookHelper, followed by the manifests it embeds, to
// w as a YAML stream.
func Render(w io.Writer, o Options) error {
	helper, err := WebhookHelper(o)
	if err != nil {
		return err
	}
	for i, obj := range []runtime.Object{helper, Deployment(o), ValidatingWebhookConfiguration(o)} {
		out, err := yaml.Marshal(obj)
		if err != nil {
			return errors.Wrap(err, "failed to render manifest")
		}
		if i > 0 {
			if _, err := io.WriteString(w, "---\n"); err != nil {
				return err
			}
		}
		if _, err := w.Write(out); err != nil {
			return err
		}
	}
	return nil
}
