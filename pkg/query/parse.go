package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bobboyms/docengine/internal/engineerr"
	"github.com/bobboyms/docengine/pkg/document"
)

// SortField is one entry of a (possibly multi-field) sort order. Fields
// are applied in slice order: the first is the primary sort key.
type SortField struct {
	Path string
	Desc bool
}

// Options carries the non-filter, non-sort parts of a query object.
type Options struct {
	Skip       int
	Limit      int  // 0 means unlimited
	TotalCount bool // compute the pre-pagination match count
}

// Query is a fully parsed query object: {collection, filter?, sort?, options?}.
type Query struct {
	Collection string
	Filter     *Filter // nil matches every document
	Sort       []SortField
	Options    Options
}

type queryJSON struct {
	Collection string          `json:"collection"`
	Filter     json.RawMessage `json:"filter"`
	Sort       json.RawMessage `json:"sort"`
	Options    *struct {
		Skip       int  `json:"skip"`
		Limit      int  `json:"limit"`
		TotalCount bool `json:"total_count"`
	} `json:"options"`
}

// Parse decodes raw into a Query, returning a ParseError (as
// engineerr.ArgumentInvalidError) with a human-readable message on any
// malformed input.
func Parse(raw []byte) (*Query, error) {
	var qj queryJSON
	if err := json.Unmarshal(raw, &qj); err != nil {
		return nil, parseError(fmt.Sprintf("malformed query object: %v", err))
	}
	if qj.Collection == "" {
		return nil, parseError("query object is missing \"collection\"")
	}

	q := &Query{Collection: qj.Collection}

	if len(qj.Filter) > 0 {
		f, err := parseFilter(qj.Filter)
		if err != nil {
			return nil, err
		}
		q.Filter = f
	}

	if len(qj.Sort) > 0 {
		sort, err := parseSort(qj.Sort)
		if err != nil {
			return nil, err
		}
		q.Sort = sort
	}

	if qj.Options != nil {
		q.Options = Options{
			Skip:       qj.Options.Skip,
			Limit:      qj.Options.Limit,
			TotalCount: qj.Options.TotalCount,
		}
	}
	return q, nil
}

// TryParse is Parse without panicking the caller into error-handling
// boilerplate: it never returns a non-nil error alongside a non-nil
// query, and never panics on malformed input.
func TryParse(raw []byte) (ok bool, q *Query, err error) {
	q, err = Parse(raw)
	return err == nil, q, err
}

func parseError(msg string) error {
	return &engineerr.ArgumentInvalidError{Argument: "query", Reason: msg}
}

func parseFilter(raw json.RawMessage) (*Filter, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, parseError(fmt.Sprintf("filter must be a JSON object: %v", err))
	}

	var and []*Filter
	for key, val := range obj {
		switch key {
		case "$and":
			children, err := parseFilterArray(val)
			if err != nil {
				return nil, err
			}
			and = append(and, &Filter{Kind: KindAnd, Children: children})
		case "$or":
			children, err := parseFilterArray(val)
			if err != nil {
				return nil, err
			}
			and = append(and, &Filter{Kind: KindOr, Children: children})
		case "$not":
			child, err := parseFilter(val)
			if err != nil {
				return nil, err
			}
			and = append(and, &Filter{Kind: KindNot, Child: child})
		default:
			conds, err := parseFieldConditions(key, val)
			if err != nil {
				return nil, err
			}
			and = append(and, conds...)
		}
	}

	if len(and) == 1 {
		return and[0], nil
	}
	return &Filter{Kind: KindAnd, Children: and}, nil
}

func parseFilterArray(raw json.RawMessage) ([]*Filter, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, parseError(fmt.Sprintf("expected an array of filters: %v", err))
	}
	out := make([]*Filter, 0, len(items))
	for _, item := range items {
		f, err := parseFilter(item)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// parseFieldConditions parses the value attached to a field key: either
// an operator object ({"$gt": 20, "$lt": 30}, implicitly AND'd) or a
// bare literal, which is shorthand for {"$eq": literal}.
func parseFieldConditions(field string, raw json.RawMessage) ([]*Filter, error) {
	var ops map[string]json.RawMessage
	if err := json.Unmarshal(raw, &ops); err == nil && isOperatorObject(ops) {
		conds := make([]*Filter, 0, len(ops))
		for opName, opVal := range ops {
			f, err := buildFieldFilter(field, Op(opName), opVal)
			if err != nil {
				return nil, err
			}
			conds = append(conds, f)
		}
		return conds, nil
	}

	val, err := document.FromJSON(raw)
	if err != nil {
		return nil, parseError(fmt.Sprintf("field %q: %v", field, err))
	}
	return []*Filter{{Kind: KindField, Field: field, FOp: OpEq, Value: val}}, nil
}

// isOperatorObject reports whether every key of a decoded object is a
// $-prefixed operator name, distinguishing {"$gt": 20} from a literal
// nested document like {"street": "Main St"} used as an equality value.
func isOperatorObject(m map[string]json.RawMessage) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func buildFieldFilter(field string, op Op, raw json.RawMessage) (*Filter, error) {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpExists:
		val, err := document.FromJSON(raw)
		if err != nil {
			return nil, parseError(fmt.Sprintf("field %q operator %q: %v", field, op, err))
		}
		return &Filter{Kind: KindField, Field: field, FOp: op, Value: val}, nil
	case OpIn, OpNin:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, parseError(fmt.Sprintf("field %q operator %q expects an array: %v", field, op, err))
		}
		values := make([]document.Value, 0, len(items))
		for _, item := range items {
			v, err := document.FromJSON(item)
			if err != nil {
				return nil, parseError(fmt.Sprintf("field %q operator %q: %v", field, op, err))
			}
			values = append(values, v)
		}
		return &Filter{Kind: KindField, Field: field, FOp: op, Values: values}, nil
	default:
		return nil, parseError(fmt.Sprintf("field %q: unsupported operator %q", field, op))
	}
}

// parseSort decodes the sort object into an order-preserving slice,
// since multi-field sort priority depends on key order that plain
// encoding/json map decoding would discard. 1 sorts ascending, -1
// (or any negative) sorts descending.
func parseSort(raw json.RawMessage) ([]SortField, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, parseError(fmt.Sprintf("sort must be a JSON object: %v", err))
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, parseError("sort must be a JSON object")
	}

	var fields []SortField
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, parseError(fmt.Sprintf("sort: %v", err))
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, parseError("sort: expected a field name key")
		}

		var order int
		if err := dec.Decode(&order); err != nil {
			return nil, parseError(fmt.Sprintf("sort field %q must map to 1 or -1: %v", key, err))
		}
		fields = append(fields, SortField{Path: key, Desc: order < 0})
	}
	return fields, nil
}
