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

package apis

import (
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"

	certhelperv1 "github.com/certificate-helper/certificate-helper/api/v1"
	// +kubebuilder:scaffold:imports
)

// AddToScheme will register all schemes needed to run certificate-helper,
// the built-in client-go types included.
func AddToScheme(scheme *runtime.Scheme) (err error) {
	if err = clientgoscheme.AddToScheme(scheme); err != nil {
		return err
	}
	if err = certhelperv1.AddToScheme(scheme); err != nil {
		return err
	}
	// +kubebuilder:scaffold:scheme
	return
}
