// Package types holds the index key representations the B-tree orders on.
// A key is anything implementing Comparable; the scalar key types below
// wrap the document value kinds that can be projected into an index, and
// CompoundKey composes several of them for multi-field indexes.
package types

import (
	"fmt"
	"time"
)

// Comparable is the ordering contract every index key type satisfies.
// Compare returns -1/0/1 the way sort.Interface expects, except it takes
// the other operand directly rather than an index.
type Comparable interface {
	Compare(other Comparable) int
}

// IntKey wraps a 64-bit integer key. Widened from a plain int so document
// versions, timestamps-as-epoch, and large identifiers extract losslessly.
type IntKey int64

// Compare promotes against FloatKey numerically, the same way
// pkg/query/filter.go's compareValues does, since document.FromJSON
// decodes a JSON number as Int64 or Float64 depending on whether it has
// a fractional part — two documents in the same collection can
// therefore produce an IntKey and a FloatKey for the same indexed
// field. Any other concrete type falls back to kindRank so the B-tree
// still gets a total order instead of a panic.
func (k IntKey) Compare(other Comparable) int {
	switch o := other.(type) {
	case IntKey:
		switch {
		case k < o:
			return -1
		case k > o:
			return 1
		default:
			return 0
		}
	case FloatKey:
		return compareFloat(float64(k), float64(o))
	default:
		return crossKindCompare(k, other)
	}
}

// VarcharKey wraps a string key.
type VarcharKey string

func (k VarcharKey) Compare(other Comparable) int {
	o, ok := other.(VarcharKey)
	if !ok {
		return crossKindCompare(k, other)
	}
	switch {
	case k < o:
		return -1
	case k > o:
		return 1
	default:
		return 0
	}
}

// FloatKey wraps a float64 key.
type FloatKey float64

// Compare promotes against IntKey numerically; see IntKey.Compare.
func (k FloatKey) Compare(other Comparable) int {
	switch o := other.(type) {
	case FloatKey:
		return compareFloat(float64(k), float64(o))
	case IntKey:
		return compareFloat(float64(k), float64(o))
	default:
		return crossKindCompare(k, other)
	}
}

// BoolKey wraps a boolean key; false sorts before true.
type BoolKey bool

func (k BoolKey) Compare(other Comparable) int {
	o, ok := other.(BoolKey)
	if !ok {
		return crossKindCompare(k, other)
	}
	if k == o {
		return 0
	}
	if !k && o {
		return -1
	}
	return 1
}

// DateKey wraps a time.Time key.
type DateKey time.Time

func (k DateKey) Compare(other Comparable) int {
	o, ok := other.(DateKey)
	if !ok {
		return crossKindCompare(k, other)
	}
	t := time.Time(k)
	ot := time.Time(o)
	switch {
	case t.Before(ot):
		return -1
	case t.After(ot):
		return 1
	default:
		return 0
	}
}

// compareFloat orders two float64s, the shared tail of IntKey/FloatKey's
// cross-type numeric promotion.
func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// kindRank gives every concrete Comparable a stable position in a total
// order across types. A sparse or schemaless index can hold keys of
// more than one concrete kind for the same field (a numeric field is
// handled by the Int/FloatKey promotion above; a field that holds, say,
// a string in one document and a bool in another is rarer but still
// valid per document.Value's sum type) — kindRank lets the B-tree order
// those without ever panicking, at the cost of the ordering between
// unlike kinds being arbitrary-but-consistent rather than meaningful.
func kindRank(c Comparable) int {
	switch c.(type) {
	case NullKey:
		return 0
	case BoolKey:
		return 1
	case IntKey, FloatKey:
		return 2
	case VarcharKey:
		return 3
	case DateKey:
		return 4
	case CompoundKey:
		return 5
	default:
		return 6
	}
}

// crossKindCompare orders two Comparables of different concrete kinds
// by kindRank, breaking ties (same rank, e.g. two CompoundKeys of
// unequal length compared before length is checked) as equal — callers
// needing a finer tiebreak within a rank implement their own Compare
// case for that pairing first.
func crossKindCompare(a, b Comparable) int {
	ra, rb := kindRank(a), kindRank(b)
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	default:
		return 0
	}
}

func (k DateKey) String() string    { return time.Time(k).Format(time.RFC3339Nano) }
func (k IntKey) String() string     { return fmt.Sprintf("%d", int64(k)) }
func (k VarcharKey) String() string { return string(k) }
func (k FloatKey) String() string   { return fmt.Sprintf("%g", float64(k)) }
func (k BoolKey) String() string    { return fmt.Sprintf("%t", bool(k)) }

// NullKey marks a missing or non-extractable component within a
// CompoundKey. It sorts before every other Comparable, including itself
// equal to itself, the same convention SQL uses for NULLS FIRST.
type NullKey struct{}

func (NullKey) Compare(other Comparable) int {
	if _, ok := other.(NullKey); ok {
		return 0
	}
	return -1
}

func (NullKey) String() string { return "<null>" }

// CompoundKey orders by the lexicographic comparison of its components,
// in order: the first differing component decides. Used for multi-field
// indexes. A NullKey component sorts before any non-null component at the
// same position, matching the single-field NullKey convention.
type CompoundKey []Comparable

func (k CompoundKey) Compare(other Comparable) int {
	o, ok := other.(CompoundKey)
	if !ok {
		return 0
	}
	n := len(k)
	if len(o) < n {
		n = len(o)
	}
	for i := 0; i < n; i++ {
		if c := compareComponent(k[i], o[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(k) < len(o):
		return -1
	case len(k) > len(o):
		return 1
	default:
		return 0
	}
}

func compareComponent(a, b Comparable) int {
	_, aNull := a.(NullKey)
	_, bNull := b.(NullKey)
	if aNull && bNull {
		return 0
	}
	if aNull {
		return -1
	}
	if bNull {
		return 1
	}
	return a.Compare(b)
}

func (k CompoundKey) String() string {
	s := "("
	for i, c := range k {
		if i > 0 {
			s += ", "
		}
		if str, ok := c.(fmt.Stringer); ok {
			s += str.String()
		} else {
			s += fmt.Sprintf("%v", c)
		}
	}
	return s + ")"
}
