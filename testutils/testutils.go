/*
Copyright 2020 The Kubernetes Authors.

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

package testutils

import (
	"encoding/json"

	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/utils/pointer"

	certhelperv1 "github.com/certificate-helper/certificate-helper/api/v1"
)

// TestCABundle is the root CA published by MakeRootCAConfigMap.
const TestCABundle = "-----BEGIN CERTIFICATE-----\ntest\n-----END CERTIFICATE-----\n"

// MakeCertificate will generate a dummy type which can be customized by functions
func MakeCertificate(updaters ...func(*certhelperv1.Certificate)) *certhelperv1.Certificate {
	obj := &certhelperv1.Certificate{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Certificate",
			APIVersion: certhelperv1.GroupVersion.String(),
		},
		ObjectMeta: metav1.ObjectMeta{
			Name: "svc1",
			UID:  "svc1-uid",
		},
		Spec: certhelperv1.CertificateSpec{
			Namespace: "ns",
			Service:   "svc1",
			AltNames:  []string{"svc1.ns.svc"},
		},
	}

	for _, f := range updaters {
		f(obj)
	}

	return obj
}

// MakeWebhookHelper will generate a dummy type which can be customized by
// functions. Its webhook manifest is a ValidatingWebhookConfiguration.
func MakeWebhookHelper(updaters ...func(*certhelperv1.WebhookHelper)) *certhelperv1.WebhookHelper {
	obj := &certhelperv1.WebhookHelper{
		TypeMeta: metav1.TypeMeta{
			Kind:       "WebhookHelper",
			APIVersion: certhelperv1.GroupVersion.String(),
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      "hook.ns.svc",
			Namespace: "ns",
			UID:       "hook-uid",
		},
		Spec: certhelperv1.WebhookHelperSpec{
			Namespace:     "ns",
			Webhook:       RawManifest(MakeValidatingWebhookConfiguration()),
			ListeningPort: 9443,
			TargetPort:    pointer.Int32Ptr(9443),
			Path:          pointer.StringPtr("/validate"),
			Deployment:    RawManifest(MakeDeployment()),
			ContainerName: pointer.StringPtr("hook"),
		},
	}

	for _, f := range updaters {
		f(obj)
	}

	return obj
}

// MakeValidatingWebhookConfiguration will generate a dummy type which can be
// customized by functions
func MakeValidatingWebhookConfiguration(updaters ...func(*admissionregistrationv1.ValidatingWebhookConfiguration)) *admissionregistrationv1.ValidatingWebhookConfiguration {
	none := admissionregistrationv1.SideEffectClassNone
	obj := &admissionregistrationv1.ValidatingWebhookConfiguration{
		TypeMeta: metav1.TypeMeta{
			Kind:       "ValidatingWebhookConfiguration",
			APIVersion: admissionregistrationv1.SchemeGroupVersion.String(),
		},
		ObjectMeta: metav1.ObjectMeta{
			Name: "hook",
		},
		Webhooks: []admissionregistrationv1.ValidatingWebhook{
			{
				Name: "hook.ns.svc",
				ClientConfig: admissionregistrationv1.WebhookClientConfig{
					URL: pointer.StringPtr("https://example.com/validate"),
				},
				SideEffects:             &none,
				AdmissionReviewVersions: []string{"v1"},
			},
		},
	}

	for _, f := range updaters {
		f(obj)
	}

	return obj
}

// MakeMutatingWebhookConfiguration will generate a dummy type which can be
// customized by functions
func MakeMutatingWebhookConfiguration(updaters ...func(*admissionregistrationv1.MutatingWebhookConfiguration)) *admissionregistrationv1.MutatingWebhookConfiguration {
	none := admissionregistrationv1.SideEffectClassNone
	obj := &admissionregistrationv1.MutatingWebhookConfiguration{
		TypeMeta: metav1.TypeMeta{
			Kind:       "MutatingWebhookConfiguration",
			APIVersion: admissionregistrationv1.SchemeGroupVersion.String(),
		},
		ObjectMeta: metav1.ObjectMeta{
			Name: "hook",
		},
		Webhooks: []admissionregistrationv1.MutatingWebhook{
			{
				Name: "hook.ns.svc",
				ClientConfig: admissionregistrationv1.WebhookClientConfig{
					URL: pointer.StringPtr("https://example.com/mutate"),
				},
				SideEffects:             &none,
				AdmissionReviewVersions: []string{"v1"},
			},
		},
	}

	for _, f := range updaters {
		f(obj)
	}

	return obj
}

// MakeDeployment will generate a dummy type which can be customized by functions
func MakeDeployment(updaters ...func(*appsv1.Deployment)) *appsv1.Deployment {
	labels := map[string]string{"app": "hook"}
	obj := &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Deployment",
			APIVersion: appsv1.SchemeGroupVersion.String(),
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:   "hook",
			Labels: labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: pointer.Int32Ptr(1),
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Name:  "hook",
							Image: "hook:latest",
							Ports: []corev1.ContainerPort{{ContainerPort: 9443}},
						},
					},
				},
			},
		},
	}

	for _, f := range updaters {
		f(obj)
	}

	return obj
}

// MakeService will generate a dummy type which can be customized by functions
func MakeService(updaters ...func(*corev1.Service)) *corev1.Service {
	obj := &corev1.Service{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Service",
			APIVersion: "v1",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      "hook",
			Namespace: "ns",
		},
		Spec: corev1.ServiceSpec{
			Ports: []corev1.ServicePort{{Port: 9443}},
		},
	}

	for _, f := range updaters {
		f(obj)
	}

	return obj
}

// MakeRootCAConfigMap will generate the cluster root CA ConfigMap which can
// be customized by functions
func MakeRootCAConfigMap(updaters ...func(*corev1.ConfigMap)) *corev1.ConfigMap {
	obj := &corev1.ConfigMap{
		TypeMeta: metav1.TypeMeta{
			Kind:       "ConfigMap",
			APIVersion: "v1",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      "kube-root-ca.crt",
			Namespace: metav1.NamespaceDefault,
		},
		Data: map[string]string{
			"ca.crt": TestCABundle,
		},
	}

	for _, f := range updaters {
		f(obj)
	}

	return obj
}

// RawManifest encodes obj for use in a WebhookHelper spec.
func RawManifest(obj runtime.Object) runtime.RawExtension {
	raw, err := json.Marshal(obj)
	if err != nil {
		panic(err)
	}
	return runtime.RawExtension{Raw: raw}
}
