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

	"github.com/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Interface is the capability set every scope provides.
type Interface interface {
	Get(ctx context.Context, obj client.Object) error
	Create(ctx context.Context, obj client.Object) error
	Replace(ctx context.Context, obj client.Object) error
	Delete(ctx context.Context, obj client.Object) error
	MergePatch(ctx context.Context, obj client.Object, patch []byte) error
}

// Namespaced operates on namespace scoped kinds. Objects without a
// namespace are placed in "default".
type Namespaced interface {
	Interface
	namespaced()
}

// Cluster operates on cluster scoped kinds. Any namespace set on an
// object is ignored.
type Cluster interface {
	Interface
	cluster()
}

// NewNamespaced returns the namespaced capabilities of c.
func NewNamespaced(c client.Client) Namespaced {
	return &namespacedOps{scoped{client: c, scope: func(obj client.Object) {
		if obj.GetNamespace() == "" {
			obj.SetNamespace(metav1.NamespaceDefault)
		}
	}}}
}

// NewCluster returns the cluster scoped capabilities of c.
func NewCluster(c client.Client) Cluster {
	return &clusterOps{scoped{client: c, scope: func(obj client.Object) {
		obj.SetNamespace("")
	}}}
}

type namespacedOps struct{ scoped }

func (*namespacedOps) namespaced() {}

type clusterOps struct{ scoped }

func (*clusterOps) cluster() {}

type scoped struct {
	client client.Client
	scope  func(client.Object)
}

func (s scoped) Get(ctx context.Context, obj client.Object) error {
	s.scope(obj)
	if err := s.client.Get(ctx, client.ObjectKeyFromObject(obj), obj); err != nil {
		return errors.Wrapf(err, "failed to get %T %s", obj, obj.GetName())
	}
	return nil
}

func (s scoped) Create(ctx context.Context, obj client.Object) error {
	s.scope(obj)
	if err := s.client.Create(ctx, obj); err != nil {
		return errors.Wrapf(err, "failed to create %T %s", obj, obj.GetName())
	}
	return nil
}

func (s scoped) Replace(ctx context.Context, obj client.Object) error {
	s.scope(obj)
	if err := s.client.Update(ctx, obj); err != nil {
		return errors.Wrapf(err, "failed to update %T %s", obj, obj.GetName())
	}
	return nil
}

func (s scoped) Delete(ctx context.Context, obj client.Object) error {
	s.scope(obj)
	if err := s.client.Delete(ctx, obj); err != nil {
		return errors.Wrapf(err, "failed to delete %T %s", obj, obj.GetName())
	}
	return nil
}

func (s scoped) MergePatch(ctx context.Context, obj client.Object, patch []byte) error {
	s.scope(obj)
	if err := s.client.Patch(ctx, obj, client.RawPatch(types.MergePatchType, patch)); err != nil {
		return errors.Wrapf(err, "failed to patch %T %s", obj, obj.GetName())
	}
	return nil
}
