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

package constants

import "time"

var (
	// CertificateHelperPrefix defines the top level domain for all labels
	// and finalizers
	CertificateHelperPrefix = "certificate-helper.io"

	// Finalizer defines the finalizer that gates deletion of Certificates
	// and WebhookHelpers until the objects they issued are torn down.
	Finalizer = CertificateHelperPrefix

	// LabelManagedBy marks objects created by the operator.
	LabelManagedBy = "app.kubernetes.io/managed-by"

	// LabelOwnerName defines the name of the resource an object was
	// issued for
	LabelOwnerName = CertificateHelperPrefix + "/name"

	// LabelOwnerUID defines the uid of the resource an object was issued
	// for
	LabelOwnerUID = CertificateHelperPrefix + "/uid"

	// ManagerName is the value of LabelManagedBy and the field manager.
	ManagerName = "certificate-helper"
)

const (
	// RootCAConfigMapName is the ConfigMap the cluster publishes its root
	// CA bundle in.
	RootCAConfigMapName = "kube-root-ca.crt"

	// RootCAConfigMapKey is the key of the bundle in RootCAConfigMapName.
	RootCAConfigMapKey = "ca.crt"

	// DefaultRootCANamespace is where RootCAConfigMapName is read from.
	DefaultRootCANamespace = "default"

	// CSRExpirationSeconds is the requested lifetime of issued certificates.
	CSRExpirationSeconds int32 = 86400

	// CSRApprovalReason and CSRApprovalMessage are written on the Approved
	// condition of every CSR the operator approves.
	CSRApprovalReason  = "CertificateHelperApproved"
	CSRApprovalMessage = "Approved by certificate-helper"
)

const (
	// RequeueShort follows a successful create.
	RequeueShort = 5 * time.Second

	// RequeueAPIError follows a failed fetch with an API status.
	RequeueAPIError = 15 * time.Second

	// RequeueUnknownError follows a failed fetch without an API status.
	RequeueUnknownError = 30 * time.Second

	// RequeueErrorPolicy follows any failed workflow.
	RequeueErrorPolicy = 60 * time.Second

	// DefaultApprovalPollInterval is how often a submitted CSR is checked
	// for a signed certificate.
	DefaultApprovalPollInterval = 5 * time.Second

	// DefaultApprovalTimeout bounds the wait for a signed certificate.
	DefaultApprovalTimeout = 5 * time.Minute

	// DefaultMaxConcurrentReconciles is the worker count per controller.
	DefaultMaxConcurrentReconciles = 2
)
