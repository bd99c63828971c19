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

package certificate

import (
	"context"
	"time"

	"github.com/pkg/errors"
	certv1 "k8s.io/api/certificates/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/pointer"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	certhelperv1 "github.com/certificate-helper/certificate-helper/api/v1"
	"github.com/certificate-helper/certificate-helper/constants"
	"github.com/certificate-helper/certificate-helper/metrics"
	"github.com/certificate-helper/certificate-helper/operation"
	"github.com/certificate-helper/certificate-helper/secret"
	"github.com/certificate-helper/certificate-helper/stage"
	"github.com/certificate-helper/certificate-helper/utils"
)

// Issuer drives Certificates through the cluster's CSR pipeline.
type Issuer struct {
	// Client creates and deletes CSRs and secrets.
	Client client.Client
	// Kube approves CSRs through the approval subresource and watches for
	// their certificate.
	Kube    kubernetes.Interface
	Scheme  *runtime.Scheme
	Tracker *stage.Tracker

	// PollInterval between checks for a signed certificate.
	PollInterval time.Duration
	// ApprovalTimeout bounds the wait for a signed certificate.
	ApprovalTimeout time.Duration
}

// NewIssuer returns an Issuer with the default poll interval and timeout.
func NewIssuer(c client.Client, kube kubernetes.Interface, scheme *runtime.Scheme) *Issuer {
	return &Issuer{
		Client:          c,
		Kube:            kube,
		Scheme:          scheme,
		Tracker:         stage.NewTracker(c),
		PollInterval:    constants.DefaultApprovalPollInterval,
		ApprovalTimeout: constants.DefaultApprovalTimeout,
	}
}

// Issue generates a key, has it signed by the kubelet-serving signer and
// stores the result as a TLS secret in the Certificate's target namespace.
// On success the Certificate records CertificateCreated and owns the
// secret.
func (i *Issuer) Issue(ctx context.Context, cert *certhelperv1.Certificate) error {
	name := secret.Name(cert.GetName())
	log := ctrl.LoggerFrom(ctx).WithValues("csr", name, "namespace", cert.Spec.Namespace)

	kp, err := NewServingKeyPair(cert.Spec.Service, cert.Spec.AltNames)
	if err != nil {
		return err
	}

	csr, err := i.submit(ctx, cert, name, kp)
	if err != nil {
		return err
	}
	log.V(4).Info("Submitted certificate signing request", "dnsNames", kp.DNSNames)

	kp.Cert, err = i.awaitApproval(ctx, csr)
	if err != nil {
		return err
	}

	s := kp.AsSecret(name, cert.Spec.Namespace)
	utils.SetOwnerLabels(cert, s)
	if err := i.materialize(ctx, s); err != nil {
		return err
	}

	if _, err := operation.Perform(ctx, i.csrs(), operation.Delete, csr); client.IgnoreNotFound(err) != nil {
		return err
	}

	if err := i.Tracker.Update(ctx, cert, stage.CertificateCreated(csr.GetName())); err != nil {
		return err
	}

	owner, err := operation.OwnerFor(cert, i.Scheme)
	if err != nil {
		return err
	}
	if _, err := operation.Perform(ctx, i.secrets(), operation.ApplyOwner(owner), s); err != nil {
		return err
	}

	metrics.CertificatesIssued.Inc()
	log.Info("Certificate issued", "secret", s.GetName())
	return nil
}

// Teardown deletes the secret named by the Certificate's status. A secret
// that no longer exists is not an error.
func (i *Issuer) Teardown(ctx context.Context, cert *certhelperv1.Certificate) error {
	if cert.Status.Certificate == "" {
		return nil
	}

	s := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      cert.Status.Certificate,
			Namespace: cert.Spec.Namespace,
		},
	}
	if _, err := operation.Perform(ctx, i.secrets(), operation.Get, s); err != nil {
		return client.IgnoreNotFound(err)
	}
	if _, err := operation.Perform(ctx, i.secrets(), operation.Delete, s); err != nil {
		return client.IgnoreNotFound(err)
	}
	ctrl.LoggerFrom(ctx).Info("Deleted certificate secret", "secret", s.GetName(), "namespace", s.GetNamespace())
	return nil
}

func (i *Issuer) secrets() operation.Namespaced {
	return operation.NewNamespaced(i.Client)
}

func (i *Issuer) csrs() operation.Cluster {
	return operation.NewCluster(i.Client)
}

func newCSR(owner *certhelperv1.Certificate, name string, kp *KeyPair) *certv1.CertificateSigningRequest {
	csr := &certv1.CertificateSigningRequest{
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
		},
		Spec: certv1.CertificateSigningRequestSpec{
			Request:           kp.CSR,
			SignerName:        certv1.KubeletServingSignerName,
			ExpirationSeconds: pointer.Int32Ptr(constants.CSRExpirationSeconds),
			Usages: []certv1.KeyUsage{
				certv1.UsageKeyEncipherment,
				certv1.UsageDigitalSignature,
				certv1.UsageServerAuth,
			},
		},
	}
	utils.SetOwnerLabels(owner, csr)
	return csr
}

// submit creates the CSR. A request left over from an earlier attempt is
// useless without its key, so it is replaced.
func (i *Issuer) submit(ctx context.Context, owner *certhelperv1.Certificate, name string, kp *KeyPair) (*certv1.CertificateSigningRequest, error) {
	csr := newCSR(owner, name, kp)
	_, err := operation.Perform(ctx, i.csrs(), operation.Create, csr)
	if err == nil {
		return csr, nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return nil, err
	}

	ctrl.LoggerFrom(ctx).Info("Replacing stale certificate signing request", "csr", name)
	stale := &certv1.CertificateSigningRequest{ObjectMeta: metav1.ObjectMeta{Name: name}}
	if _, err := operation.Perform(ctx, i.csrs(), operation.Delete, stale); client.IgnoreNotFound(err) != nil {
		return nil, err
	}
	csr = newCSR(owner, name, kp)
	if _, err := operation.Perform(ctx, i.csrs(), operation.Create, csr); err != nil {
		return nil, err
	}
	return csr, nil
}

// awaitApproval approves csr and waits for the signer to attach a
// certificate. The wait ends when ctx is done, after ApprovalTimeout, or
// when the request is denied.
func (i *Issuer) awaitApproval(ctx context.Context, csr *certv1.CertificateSigningRequest) ([]byte, error) {
	log := ctrl.LoggerFrom(ctx).WithValues("csr", csr.GetName())
	csrClient := i.Kube.CertificatesV1().CertificateSigningRequests()

	csr.Status.Conditions = append(csr.Status.Conditions, certv1.CertificateSigningRequestCondition{
		Type:           certv1.CertificateApproved,
		Status:         corev1.ConditionTrue,
		Reason:         constants.CSRApprovalReason,
		Message:        constants.CSRApprovalMessage,
		LastUpdateTime: metav1.Now(),
	})
	if _, err := csrClient.UpdateApproval(ctx, csr.GetName(), csr, metav1.UpdateOptions{}); err != nil {
		return nil, errors.Wrapf(err, "failed to approve certificate signing request %s", csr.GetName())
	}

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, i.approvalTimeout())
	defer cancel()

	var signed []byte
	err := wait.PollImmediateUntil(i.pollInterval(), func() (bool, error) {
		current, err := csrClient.Get(waitCtx, csr.GetName(), metav1.GetOptions{})
		if err != nil {
			if apierrors.IsNotFound(err) {
				return false, errors.Wrapf(err, "certificate signing request %s disappeared", csr.GetName())
			}
			log.V(4).Info("Retrying certificate signing request lookup", "error", err.Error())
			return false, nil
		}
		for _, c := range current.Status.Conditions {
			if c.Type == certv1.CertificateDenied || c.Type == certv1.CertificateFailed {
				return false, errors.Wrapf(ErrCSRDenied, "%s: %s", c.Reason, c.Message)
			}
		}
		if len(current.Status.Certificate) == 0 {
			log.V(4).Info("Waiting for certificate")
			return false, nil
		}
		signed = current.Status.Certificate
		return true, nil
	}, waitCtx.Done())

	if err == wait.ErrWaitTimeout {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(ctx.Err(), "stopped waiting for certificate signing request %s", csr.GetName())
		}
		return nil, errors.Wrapf(ErrApprovalTimeout, "certificate signing request %s", csr.GetName())
	}
	if err != nil {
		return nil, err
	}

	metrics.ApprovalDuration.Observe(time.Since(start).Seconds())
	return signed, nil
}

// materialize creates s, replacing the data of an existing secret with the
// same name.
func (i *Issuer) materialize(ctx context.Context, s *corev1.Secret) error {
	_, err := operation.Perform(ctx, i.secrets(), operation.Create, s)
	if err == nil || !apierrors.IsAlreadyExists(err) {
		return err
	}

	existing := &corev1.Secret{ObjectMeta: metav1.ObjectMeta{Name: s.GetName(), Namespace: s.GetNamespace()}}
	if _, err := operation.Perform(ctx, i.secrets(), operation.Get, existing); err != nil {
		return err
	}
	// The type of a secret is immutable, only the data is replaced.
	existing.Data = s.Data
	if existing.Labels == nil {
		existing.Labels = map[string]string{}
	}
	for k, v := range s.Labels {
		existing.Labels[k] = v
	}
	if _, err := operation.Perform(ctx, i.secrets(), operation.Update, existing); err != nil {
		return err
	}
	existing.DeepCopyInto(s)
	return nil
}

func (i *Issuer) pollInterval() time.Duration {
	if i.PollInterval <= 0 {
		return constants.DefaultApprovalPollInterval
	}
	return i.PollInterval
}

func (i *Issuer) approvalTimeout() time.Duration {
	if i.ApprovalTimeout <= 0 {
		return constants.DefaultApprovalTimeout
	}
	return i.ApprovalTimeout
}
