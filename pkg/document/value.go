// Package document defines the canonical document value model: a small sum
// type (Value) and the Document envelope (id, data, timestamps, version)
// that every other subsystem — the store, the indexes, the query engine,
// the atomic update engine, the WAL — exchanges.
package document

import (
	"fmt"
)

// Kind discriminates the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindString
	KindBytes
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Field is one key/value pair of an Object. Object is kept as an ordered
// slice of Fields rather than a map so document.data preserves insertion
// order end to end (decode -> mutate -> encode).
type Field struct {
	Key   string
	Value Value
}

// Object is an ordered set of fields. Field order matters for round-trip
// fidelity but never for equality or comparison.
type Object []Field

// Value is the sum type every document field, array element, and atomic
// update operand is expressed in. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	bs   []byte
	arr  []Value
	obj  Object
}

func Null() Value                { return Value{kind: KindNull} }
func NewBool(b bool) Value       { return Value{kind: KindBool, b: b} }
func NewInt64(i int64) Value     { return Value{kind: KindInt64, i: i} }
func NewFloat64(f float64) Value { return Value{kind: KindFloat64, f: f} }
func NewString(s string) Value   { return Value{kind: KindString, s: s} }

func NewBytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBytes, bs: cp}
}

func NewArray(vs ...Value) Value {
	cp := make([]Value, len(vs))
	copy(cp, vs)
	return Value{kind: KindArray, arr: cp}
}

func NewObject(fields ...Field) Value {
	cp := make(Object, len(fields))
	copy(cp, fields)
	return Value{kind: KindObject, obj: cp}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v Value) Int64() (int64, bool)     { return v.i, v.kind == KindInt64 }
func (v Value) Float64() (float64, bool) { return v.f, v.kind == KindFloat64 }
func (v Value) String() string {
	if v.kind == KindString {
		return v.s
	}
	return ""
}
func (v Value) IsString() bool { return v.kind == KindString }

func (v Value) Bytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	cp := make([]byte, len(v.bs))
	copy(cp, v.bs)
	return cp, true
}

// Array returns a defensive copy of the array elements. Never returns a
// slice backed by the Value's own storage: callers must not be able to
// mutate internal state through a returned reference.
func (v Value) Array() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	cp := make([]Value, len(v.arr))
	copy(cp, v.arr)
	return cp, true
}

// Object returns a defensive copy of the object's fields, same rationale
// as Array.
func (v Value) Object() (Object, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	cp := make(Object, len(v.obj))
	copy(cp, v.obj)
	return cp, true
}

// Field looks up a field by key within an Object value. Returns
// (Null, false) for non-Object values and missing keys alike — the filter
// engine and path resolver treat both as "absent".
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindObject {
		return Null(), false
	}
	for _, f := range v.obj {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Null(), false
}

// Equal implements document-value equality: same kind and same payload.
// Numeric equality across Int64/Float64 is intentionally NOT performed
// here (that promotion belongs to the query filter engine, which knows
// when it is comparing two typed operands vs. checking raw equality).
func (a Value) Equal(b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt64:
		return a.i == b.i
	case KindFloat64:
		return a.f == b.f
	case KindString:
		return a.s == b.s
	case KindBytes:
		if len(a.bs) != len(b.bs) {
			return false
		}
		for i := range a.bs {
			if a.bs[i] != b.bs[i] {
				return false
			}
		}
		return true
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !a.arr[i].Equal(b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for _, f := range a.obj {
			other, ok := b.Field(f.Key)
			if !ok || !f.Value.Equal(other) {
				return false
			}
		}
		return true
	}
	return false
}

// GoString renders a Value for debug/error messages only; it is not a
// serialization format.
func (v Value) GoString() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt64:
		return fmt.Sprintf("%d", v.i)
	case KindFloat64:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.bs))
	case KindArray:
		return fmt.Sprintf("array(%d)", len(v.arr))
	case KindObject:
		return fmt.Sprintf("object(%d)", len(v.obj))
	default:
		return "?"
	}
}
