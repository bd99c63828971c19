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

package utils

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/certificate-helper/certificate-helper/constants"
)

// SetOwnerLabels labels object as managed by the operator on behalf of
// owner. Existing labels are kept.
func SetOwnerLabels(owner metav1.Object, object metav1.Object) {
	labels := object.GetLabels()
	if labels == nil {
		labels = map[string]string{}
	}
	labels[constants.LabelManagedBy] = constants.ManagerName
	labels[constants.LabelOwnerName] = owner.GetName()
	labels[constants.LabelOwnerUID] = string(owner.GetUID())
	object.SetLabels(labels)
}
