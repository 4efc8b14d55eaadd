// Package atomicupdate implements single-document field mutations
// (increment, push, pull, set, unset, and their batched/"multiple"
// forms) that run under a single exclusive latch instead of the full
// transaction coordinator — a lighter-weight path for the common case
// of "bump a counter" or "append to an array" without a begin/commit
// pair. Grounded on pkg/lockmgr for the per-document latch and on
// pkg/document's path helpers for the nested-path traversal.
package atomicupdate

import (
	"context"

	"github.com/google/uuid"

	"github.com/bobboyms/docengine/internal/engineerr"
	"github.com/bobboyms/docengine/pkg/document"
	"github.com/bobboyms/docengine/pkg/lockmgr"
)

// OpKind names one atomic operation.
type OpKind string

const (
	OpIncrement OpKind = "increment"
	OpPush      OpKind = "push"
	OpPushMany  OpKind = "push_many"
	OpPull      OpKind = "pull"
	OpPullMany  OpKind = "pull_many"
	OpSet       OpKind = "set"
	OpUnset     OpKind = "unset"
)

// Op is one step of an atomic update. Value holds the increment/push/
// pull/set operand; Values holds the push_many/pull_many operand list.
type Op struct {
	Kind   OpKind
	Path   string
	Value  document.Value
	Values []document.Value
}

func Increment(path string, delta document.Value) Op { return Op{Kind: OpIncrement, Path: path, Value: delta} }
func Push(path string, value document.Value) Op       { return Op{Kind: OpPush, Path: path, Value: value} }
func PushMany(path string, values []document.Value) Op {
	return Op{Kind: OpPushMany, Path: path, Values: values}
}
func Pull(path string, value document.Value) Op { return Op{Kind: OpPull, Path: path, Value: value} }
func PullMany(path string, values []document.Value) Op {
	return Op{Kind: OpPullMany, Path: path, Values: values}
}
func Set(path string, value document.Value) Op { return Op{Kind: OpSet, Path: path, Value: value} }
func Unset(path string) Op                     { return Op{Kind: OpUnset, Path: path} }

// Store is the subset of pkg/store.Store the atomic update engine needs.
type Store interface {
	Get(collection, docID string) (*document.Document, error)
	Update(collection, docID string, replacement *document.Document) error
}

// Engine applies Op sequences to stored documents under an exclusive
// per-document latch. One Engine is shared by every caller; each call
// acquires and releases its own latch instance, so unrelated documents
// never contend.
type Engine struct {
	store Store
	locks *lockmgr.Manager
}

func New(store Store, locks *lockmgr.Manager) *Engine {
	return &Engine{store: store, locks: locks}
}

// Apply runs a single Op against collection/docID and persists the
// result. It is equivalent to Multiple with a one-element slice.
func (e *Engine) Apply(ctx context.Context, collection, docID string, op Op) (*document.Document, error) {
	return e.Multiple(ctx, collection, docID, []Op{op})
}

// Multiple applies ops in sequence under a single exclusive latch. If
// any step fails, the document is left completely untouched: every step
// mutates a clone of the document's data, and only a fully successful
// sequence is written back with Store.Update.
func (e *Engine) Multiple(ctx context.Context, collection, docID string, ops []Op) (*document.Document, error) {
	resource := collection + ":" + docID
	lockOwner := "atomic-" + uuid.NewString()

	if _, err := e.locks.Acquire(ctx, lockOwner, resource, lockmgr.Exclusive); err != nil {
		return nil, err
	}
	defer e.locks.Release(lockOwner, resource)

	doc, err := e.store.Get(collection, docID)
	if err != nil {
		return nil, err
	}

	data := doc.Data
	for _, op := range ops {
		data, err = applyOne(data, op)
		if err != nil {
			return nil, err
		}
	}

	updated := doc.Clone()
	updated.ReplaceData(data)

	if err := e.store.Update(collection, docID, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func applyOne(data document.Object, op Op) (document.Object, error) {
	switch op.Kind {
	case OpIncrement:
		return applyIncrement(data, op.Path, op.Value)
	case OpPush:
		return applyPush(data, op.Path, []document.Value{op.Value})
	case OpPushMany:
		return applyPush(data, op.Path, op.Values)
	case OpPull:
		return applyPull(data, op.Path, []document.Value{op.Value})
	case OpPullMany:
		return applyPull(data, op.Path, op.Values)
	case OpSet:
		return applySet(data, op.Path, op.Value)
	case OpUnset:
		return applyUnset(data, op.Path)
	default:
		return nil, &engineerr.AtomicUpdateError{Op: engineerr.AtomicUpdateOp(op.Kind), Path: op.Path, Reason: "unknown operation"}
	}
}

func applyIncrement(data document.Object, path string, delta document.Value) (document.Object, error) {
	current, present := document.GetPath(data, path)
	var sum document.Value
	switch {
	case !present:
		sum = delta
	case current.Kind() == document.KindInt64 && delta.Kind() == document.KindInt64:
		ci, _ := current.Int64()
		di, _ := delta.Int64()
		sum = document.NewInt64(ci + di)
	case isNumericKind(current) && isNumericKind(delta):
		sum = document.NewFloat64(asFloat(current) + asFloat(delta))
	default:
		return nil, &engineerr.AtomicUpdateError{Op: engineerr.AtomicUpdateOp(OpIncrement), Path: path, Reason: "existing value is not numeric"}
	}

	out, err := document.SetPath(data, path, sum)
	if err != nil {
		return nil, &engineerr.AtomicUpdateError{Op: engineerr.AtomicUpdateOp(OpIncrement), Path: path, Reason: err.Error()}
	}
	return out, nil
}

func applyPush(data document.Object, path string, values []document.Value) (document.Object, error) {
	current, present := document.GetPath(data, path)
	var arr []document.Value
	if present {
		existing, ok := current.Array()
		if !ok {
			return nil, &engineerr.AtomicUpdateError{Op: engineerr.AtomicUpdateOp(OpPush), Path: path, Reason: "existing value is not an array"}
		}
		arr = existing
	}
	arr = append(arr, values...)

	out, err := document.SetPath(data, path, document.NewArray(arr...))
	if err != nil {
		return nil, &engineerr.AtomicUpdateError{Op: engineerr.AtomicUpdateOp(OpPush), Path: path, Reason: err.Error()}
	}
	return out, nil
}

func applyPull(data document.Object, path string, values []document.Value) (document.Object, error) {
	current, present := document.GetPath(data, path)
	if !present {
		return data, nil // missing path is a no-op
	}
	existing, ok := current.Array()
	if !ok {
		return nil, &engineerr.AtomicUpdateError{Op: engineerr.AtomicUpdateOp(OpPull), Path: path, Reason: "existing value is not an array"}
	}

	kept := make([]document.Value, 0, len(existing))
	for _, elem := range existing {
		if !containsEqual(values, elem) {
			kept = append(kept, elem)
		}
	}

	out, err := document.SetPath(data, path, document.NewArray(kept...))
	if err != nil {
		return nil, &engineerr.AtomicUpdateError{Op: engineerr.AtomicUpdateOp(OpPull), Path: path, Reason: err.Error()}
	}
	return out, nil
}

func applySet(data document.Object, path string, value document.Value) (document.Object, error) {
	out, err := document.SetPathForce(data, path, value)
	if err != nil {
		return nil, &engineerr.AtomicUpdateError{Op: engineerr.AtomicUpdateOp(OpSet), Path: path, Reason: err.Error()}
	}
	return out, nil
}

func applyUnset(data document.Object, path string) (document.Object, error) {
	out, err := document.UnsetPath(data, path)
	if err != nil {
		return nil, &engineerr.AtomicUpdateError{Op: engineerr.AtomicUpdateOp(OpUnset), Path: path, Reason: err.Error()}
	}
	return out, nil
}

func containsEqual(haystack []document.Value, v document.Value) bool {
	for _, h := range haystack {
		if h.Equal(v) {
			return true
		}
	}
	return false
}

func isNumericKind(v document.Value) bool {
	return v.Kind() == document.KindInt64 || v.Kind() == document.KindFloat64
}

func asFloat(v document.Value) float64 {
	if i, ok := v.Int64(); ok {
		return float64(i)
	}
	f, _ := v.Float64()
	return f
}
