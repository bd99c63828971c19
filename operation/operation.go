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

// Package operation provides a small, uniform set of verbs over namespaced
// and cluster scoped kinds.
package operation

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Verb is the kind of an Operation.
type Verb string

const (
	VerbGet        Verb = "Get"
	VerbCreate     Verb = "Create"
	VerbUpdate     Verb = "Update"
	VerbDelete     Verb = "Delete"
	VerbApplyOwner Verb = "ApplyOwner"
	VerbUnknown    Verb = "Unknown"
)

// Operation is a single request against one object.
type Operation struct {
	Verb Verb

	// Owner is set for VerbApplyOwner.
	Owner metav1.OwnerReference

	// Label is set for VerbUnknown and is returned in its error.
	Label string
}

var (
	// Get fetches the current server state into the object.
	Get = Operation{Verb: VerbGet}

	// Create submits the object and fills it with the server's response.
	Create = Operation{Verb: VerbCreate}

	// Update replaces the object.
	Update = Operation{Verb: VerbUpdate}

	// Delete removes the object and returns the caller's snapshot.
	Delete = Operation{Verb: VerbDelete}
)

// ApplyOwner merge-patches owner onto the object's owner references.
func ApplyOwner(owner metav1.OwnerReference) Operation {
	return Operation{Verb: VerbApplyOwner, Owner: owner}
}

// Unknown is an operation that always fails, carrying label.
func Unknown(label string) Operation {
	return Operation{Verb: VerbUnknown, Label: label}
}

func (o Operation) String() string {
	switch o.Verb {
	case VerbApplyOwner:
		return fmt.Sprintf("%s(%s)", o.Verb, o.Owner.UID)
	case VerbUnknown:
		return fmt.Sprintf("%s(%s)", o.Verb, o.Label)
	}
	return string(o.Verb)
}

// UnknownOperationError is returned for operations no scope supports.
type UnknownOperationError struct {
	Label string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("unknown operation %q", e.Label)
}

// IsUnknownOperation reports whether err is, or wraps, an
// UnknownOperationError.
func IsUnknownOperation(err error) bool {
	var unknown *UnknownOperationError
	return errors.As(err, &unknown)
}

// Perform runs op against obj through ops. Get, Create and Update return
// obj as updated by the server; Delete returns a copy taken before the
// delete was issued.
func Perform(ctx context.Context, ops Interface, op Operation, obj client.Object) (client.Object, error) {
	switch op.Verb {
	case VerbGet:
		if err := ops.Get(ctx, obj); err != nil {
			return nil, err
		}
		return obj, nil
	case VerbCreate:
		if err := ops.Create(ctx, obj); err != nil {
			return nil, err
		}
		return obj, nil
	case VerbUpdate:
		if err := ops.Replace(ctx, obj); err != nil {
			return nil, err
		}
		return obj, nil
	case VerbDelete:
		snapshot, ok := obj.DeepCopyObject().(client.Object)
		if !ok {
			return nil, errors.Errorf("unable to copy %T", obj)
		}
		if err := ops.Delete(ctx, obj); err != nil {
			return nil, err
		}
		return snapshot, nil
	case VerbApplyOwner:
		if err := applyOwner(ctx, ops, obj, op.Owner); err != nil {
			return nil, err
		}
		return obj, nil
	case VerbUnknown:
		return nil, &UnknownOperationError{Label: op.Label}
	default:
		return nil, &UnknownOperationError{Label: string(op.Verb)}
	}
}
