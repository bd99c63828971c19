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

package operation

import (
	"context"
	"encoding/json"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/utils/pointer"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/apiutil"
)

// OwnerFor builds a non-controller owner reference pointing at owner.
func OwnerFor(owner client.Object, scheme *runtime.Scheme) (metav1.OwnerReference, error) {
	gvk, err := apiutil.GVKForObject(owner, scheme)
	if err != nil {
		return metav1.OwnerReference{}, errors.Wrapf(err, "failed to resolve kind of %T", owner)
	}
	return metav1.OwnerReference{
		APIVersion:         gvk.GroupVersion().String(),
		Kind:               gvk.Kind,
		Name:               owner.GetName(),
		UID:                owner.GetUID(),
		BlockOwnerDeletion: pointer.BoolPtr(false),
	}, nil
}

// applyOwner merge-patches the owner references of obj so they include
// owner. References to other owners already on obj are kept; only
// metadata.ownerReferences is sent.
func applyOwner(ctx context.Context, ops Interface, obj client.Object, owner metav1.OwnerReference) error {
	owner.BlockOwnerDeletion = pointer.BoolPtr(false)

	refs := []metav1.OwnerReference{}
	for _, ref := range obj.GetOwnerReferences() {
		if ref.UID != owner.UID {
			refs = append(refs, ref)
		}
	}
	refs = append(refs, owner)

	before, err := json.Marshal(ownership(obj.GetOwnerReferences()))
	if err != nil {
		return errors.Wrap(err, "failed to encode owner references")
	}
	after, err := json.Marshal(ownership(refs))
	if err != nil {
		return errors.Wrap(err, "failed to encode owner references")
	}
	patch, err := jsonpatch.CreateMergePatch(before, after)
	if err != nil {
		return errors.Wrap(err, "failed to compute owner reference patch")
	}
	return ops.MergePatch(ctx, obj, patch)
}

type ownershipMeta struct {
	OwnerReferences []metav1.OwnerReference `json:"ownerReferences"`
}

// ownership is the slice of an object's document an owner patch touches.
func ownership(refs []metav1.OwnerReference) map[string]ownershipMeta {
	return map[string]ownershipMeta{"metadata": {OwnerReferences: refs}}
}
