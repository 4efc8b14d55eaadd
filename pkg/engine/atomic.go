package engine

import (
	"context"
	"time"

	"github.com/bobboyms/docengine/internal/audit"
	"github.com/bobboyms/docengine/pkg/atomicupdate"
	"github.com/bobboyms/docengine/pkg/document"
)

// AtomicUpdate applies a single field-level operation (increment, push,
// pull, set, unset) under the atomic-update engine's per-document
// latch, bypassing the full transaction coordinator for the common
// case of a targeted field mutation.
func (e *Engine) AtomicUpdate(ctx context.Context, collection, docID string, op atomicupdate.Op) (*document.Document, error) {
	started := time.Now()
	doc, err := e.atomic.Apply(ctx, collection, docID, op)
	e.observeOp(collection, "atomic_"+string(op.Kind), outcome(err), started)
	if err != nil {
		return nil, err
	}
	e.record(audit.EventDocumentUpdated, "", collection, docID, map[string]any{"op": string(op.Kind), "path": op.Path})
	return doc, nil
}

// AtomicUpdateMultiple applies ops in sequence under a single exclusive
// latch, leaving the document untouched if any step fails.
func (e *Engine) AtomicUpdateMultiple(ctx context.Context, collection, docID string, ops []atomicupdate.Op) (*document.Document, error) {
	started := time.Now()
	doc, err := e.atomic.Multiple(ctx, collection, docID, ops)
	e.observeOp(collection, "atomic_multiple", outcome(err), started)
	if err != nil {
		return nil, err
	}
	e.record(audit.EventDocumentUpdated, "", collection, docID, map[string]any{"ops": len(ops)})
	return doc, nil
}
