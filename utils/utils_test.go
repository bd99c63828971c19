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
	"reflect"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/certificate-helper/certificate-helper/constants"
	"github.com/certificate-helper/certificate-helper/testutils"
)

func TestSetOwnerLabels(t *testing.T) {
	cert := testutils.MakeCertificate()

	type args struct {
		owner  metav1.Object
		object metav1.Object
	}
	tests := []struct {
		name           string
		args           args
		expectedLabels map[string]string
	}{
		{
			"TestAddingLabels",
			args{cert, &corev1.Secret{ObjectMeta: ctrl.ObjectMeta{Name: "svc1"}}},
			map[string]string{
				constants.LabelManagedBy: constants.ManagerName,
				constants.LabelOwnerName: cert.GetName(),
				constants.LabelOwnerUID:  string(cert.GetUID()),
			},
		},
		{
			"TestKeepingExistingLabels",
			args{cert, &corev1.Secret{ObjectMeta: ctrl.ObjectMeta{
				Name:   "svc1",
				Labels: map[string]string{"team": "a"},
			}}},
			map[string]string{
				"team":                   "a",
				constants.LabelManagedBy: constants.ManagerName,
				constants.LabelOwnerName: cert.GetName(),
				constants.LabelOwnerUID:  string(cert.GetUID()),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetOwnerLabels(tt.args.owner, tt.args.object)
			labels := tt.args.object.GetLabels()
			if !reflect.DeepEqual(labels, tt.expectedLabels) {
				t.Errorf("SetOwnerLabels labels %+v did not match %+v", labels, tt.expectedLabels)
			}
		})
	}
}
