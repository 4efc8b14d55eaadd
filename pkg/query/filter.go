// Package query implements the JSON query parser, the boolean filter
// engine, and the index-or-scan executor. Grounded on
// pkg/query/scan.go's ScanCondition (operator enum + Matches), widened
// from six comparison operators over a single B-tree key into a full
// filter tree over document.Value with boolean combinators, $in/$nin,
// and dotted field paths.
package query

import (
	"github.com/bobboyms/docengine/pkg/document"
)

// Op names one of the leaf comparison operators a field condition may
// use. Boolean combinators ($and/$or/$not) are represented as distinct
// Filter kinds, not as an Op, since they hold child filters rather than
// a literal operand.
type Op string

const (
	OpEq     Op = "$eq"
	OpNe     Op = "$ne"
	OpGt     Op = "$gt"
	OpGte    Op = "$gte"
	OpLt     Op = "$lt"
	OpLte    Op = "$lte"
	OpIn     Op = "$in"
	OpNin    Op = "$nin"
	OpExists Op = "$exists"
)

// Kind discriminates a Filter node.
type Kind uint8

const (
	KindAnd Kind = iota
	KindOr
	KindNot
	KindField
)

// Filter is one node of the parsed filter tree. Exactly the fields
// relevant to Kind are populated.
type Filter struct {
	Kind Kind

	// KindAnd / KindOr
	Children []*Filter

	// KindNot
	Child *Filter

	// KindField
	Field  string
	FOp    Op
	Value  document.Value
	Values []document.Value // OpIn / OpNin
}

// Evaluate runs the filter tree against doc, resolving dotted field
// paths through document.GetPath. An absent intermediate object (or an
// entirely missing leaf field) resolves to document.Null(), which
// compares unequal to every non-null value.
func (f *Filter) Evaluate(doc *document.Document) bool {
	if f == nil {
		return true
	}
	switch f.Kind {
	case KindAnd:
		for _, c := range f.Children {
			if !c.Evaluate(doc) {
				return false
			}
		}
		return true
	case KindOr:
		if len(f.Children) == 0 {
			return false
		}
		for _, c := range f.Children {
			if c.Evaluate(doc) {
				return true
			}
		}
		return false
	case KindNot:
		return !f.Child.Evaluate(doc)
	case KindField:
		return f.evaluateField(doc)
	}
	return false
}

func (f *Filter) evaluateField(doc *document.Document) bool {
	actual, present := document.GetPath(doc.Data, f.Field)
	if !present {
		actual = document.Null()
	}

	switch f.FOp {
	case OpExists:
		want, _ := f.Value.Bool()
		wantExists := f.Value.Kind() == document.KindBool && want
		return present == wantExists
	case OpEq:
		return valuesEqual(actual, f.Value)
	case OpNe:
		return !valuesEqual(actual, f.Value)
	case OpGt:
		cmp, ok := compareValues(actual, f.Value)
		return ok && cmp > 0
	case OpGte:
		cmp, ok := compareValues(actual, f.Value)
		return ok && cmp >= 0
	case OpLt:
		cmp, ok := compareValues(actual, f.Value)
		return ok && cmp < 0
	case OpLte:
		cmp, ok := compareValues(actual, f.Value)
		return ok && cmp <= 0
	case OpIn:
		for _, v := range f.Values {
			if valuesEqual(actual, v) {
				return true
			}
		}
		return false
	case OpNin:
		for _, v := range f.Values {
			if valuesEqual(actual, v) {
				return false
			}
		}
		return true
	}
	return false
}

// valuesEqual compares two document values for equality, applying the
// same int/float promotion compareValues does for ordering, so
// {age: {$eq: 20}} matches a stored Float64(20.0) just as it would
// match an Int64(20).
func valuesEqual(a, b document.Value) bool {
	if isNumeric(a) && isNumeric(b) {
		cmp, _ := compareValues(a, b)
		return cmp == 0
	}
	return a.Equal(b)
}

func isNumeric(v document.Value) bool {
	return v.Kind() == document.KindInt64 || v.Kind() == document.KindFloat64
}

// compareValues orders two values, promoting Int64/Float64 to a common
// Float64 comparison when they differ in numeric kind. Non-numeric,
// non-identical kinds are not ordered (ok=false) — an ordering operator
// against a type mismatch is simply false, never an error, matching the
// filter engine's "missing fields compare as null" permissiveness.
func compareValues(a, b document.Value) (int, bool) {
	if isNumeric(a) && isNumeric(b) {
		af := asFloat(a)
		bf := asFloat(b)
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	if a.Kind() != b.Kind() {
		return 0, false
	}
	switch a.Kind() {
	case document.KindString:
		as, bs := a.String(), b.String()
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	case document.KindBool:
		ab, _ := a.Bool()
		bb, _ := b.Bool()
		if ab == bb {
			return 0, true
		}
		if !ab {
			return -1, true
		}
		return 1, true
	case document.KindNull:
		return 0, true
	default:
		return 0, false
	}
}

func asFloat(v document.Value) float64 {
	if i, ok := v.Int64(); ok {
		return float64(i)
	}
	f, _ := v.Float64()
	return f
}
