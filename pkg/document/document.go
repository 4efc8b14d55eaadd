package document

import (
	"time"

	"github.com/google/uuid"
)

// Document is the envelope stored per collection entry: an identity, the
// ordered field data, bookkeeping timestamps, and a monotonically
// increasing version that starts at 1 and is bumped on every mutation.
type Document struct {
	ID        string
	Data      Object
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   uint64
}

// NewID mints a document identifier. UUIDv7 embeds a millisecond
// timestamp so ids sort roughly by creation order.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// New builds a fresh Document ready for insertion: a new id, version 1,
// and created/updated timestamps set to now.
func New(data Object) *Document {
	now := time.Now().UTC()
	return &Document{
		ID:        NewID(),
		Data:      cloneObject(data),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

// Clone returns a deep copy. The store hands out clones on every read so a
// caller mutating the returned Document can never corrupt the engine's own
// state or another goroutine's in-flight read.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	return &Document{
		ID:        d.ID,
		Data:      cloneObject(d.Data),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		Version:   d.Version,
	}
}

func cloneObject(o Object) Object {
	if o == nil {
		return nil
	}
	cp := make(Object, len(o))
	copy(cp, o)
	return cp
}

// AsValue wraps the document's field data as a plain Object Value so the
// filter engine and path resolver, which only know about Value/Object, can
// operate on it uniformly with array elements and nested sub-documents.
func (d *Document) AsValue() Value {
	return NewObject(d.Data...)
}

// ReplaceData swaps the document's field data and bumps Version/UpdatedAt.
// Used by the update engine once an atomic operation has produced the new
// field set.
func (d *Document) ReplaceData(data Object) {
	d.Data = cloneObject(data)
	d.Version++
	d.UpdatedAt = time.Now().UTC()
}
