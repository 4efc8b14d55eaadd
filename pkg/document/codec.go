package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ToJSON renders a Value as standard JSON. Object field order is
// preserved, matching how the value was decoded or constructed.
func (v Value) ToJSON() ([]byte, error) {
	return json.Marshal(toJSONAny(v))
}

func toJSONAny(v Value) any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt64:
		return v.i
	case KindFloat64:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return v.bs // encoding/json base64-encodes []byte natively
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = toJSONAny(e)
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		order := make([]string, 0, len(v.obj))
		for _, f := range v.obj {
			out[f.Key] = toJSONAny(f.Value)
			order = append(order, f.Key)
		}
		return orderedMap{keys: order, values: out}
	default:
		return nil
	}
}

// orderedMap implements json.Marshaler so Object field order survives
// encoding/json, which otherwise sorts map keys alphabetically.
type orderedMap struct {
	keys   []string
	values map[string]any
}

func (m orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range m.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// FromJSON parses standard JSON into a Value. Numbers decode as Int64
// when they have no fractional part and fit in int64, Float64 otherwise
// — the same promotion rule the query filter engine uses when comparing
// a literal against a stored field.
func FromJSON(data []byte) (Value, error) {
	var decoded any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return Null(), fmt.Errorf("document: decode json: %w", err)
	}
	return fromAny(decoded)
}

func fromAny(a any) (Value, error) {
	switch t := a.(type) {
	case nil:
		return Null(), nil
	case bool:
		return NewBool(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return NewInt64(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Null(), fmt.Errorf("document: number %q: %w", t, err)
		}
		return NewFloat64(f), nil
	case string:
		return NewString(t), nil
	case []any:
		vals := make([]Value, len(t))
		for i, e := range t {
			v, err := fromAny(e)
			if err != nil {
				return Null(), err
			}
			vals[i] = v
		}
		return NewArray(vals...), nil
	case map[string]any:
		// encoding/json has already thrown away key order by the time it
		// reaches this switch (map[string]any iteration is unordered).
		// Round-tripping a document through FromJSON therefore preserves
		// its values but not necessarily its original field order.
		fields := make([]Field, 0, len(t))
		for k, v := range t {
			fv, err := fromAny(v)
			if err != nil {
				return Null(), err
			}
			fields = append(fields, Field{Key: k, Value: fv})
		}
		return NewObject(fields...), nil
	default:
		return Null(), fmt.Errorf("document: unsupported json type %T", a)
	}
}

// ToBSON renders a Value as a canonical bson.D tree, the format the WAL
// uses for before/after images and the hybrid store uses to compute
// content hashes. bson.D (not a raw map) preserves field order exactly
// the way mongo-driver's own ExtJSON helpers expect.
func (v Value) ToBSON() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt64:
		return v.i
	case KindFloat64:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return v.bs
	case KindArray:
		out := bson.A{}
		for _, e := range v.arr {
			out = append(out, e.ToBSON())
		}
		return out
	case KindObject:
		out := bson.D{}
		for _, f := range v.obj {
			out = append(out, bson.E{Key: f.Key, Value: f.Value.ToBSON()})
		}
		return out
	default:
		return nil
	}
}

// MarshalDocumentBSON encodes a Document into canonical BSON bytes for WAL
// before/after images.
func MarshalDocumentBSON(d *Document) ([]byte, error) {
	root := bson.D{
		{Key: "_id", Value: d.ID},
		{Key: "_createdAt", Value: d.CreatedAt},
		{Key: "_updatedAt", Value: d.UpdatedAt},
		{Key: "_version", Value: int64(d.Version)},
		{Key: "data", Value: NewObject(d.Data...).ToBSON()},
	}
	return bson.Marshal(root)
}

// UnmarshalDocumentBSON is the inverse of MarshalDocumentBSON, used during
// WAL recovery to rebuild documents from their before/after images.
func UnmarshalDocumentBSON(raw []byte) (*Document, error) {
	var root bson.D
	if err := bson.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("document: unmarshal bson: %w", err)
	}
	d := &Document{}
	for _, e := range root {
		switch e.Key {
		case "_id":
			d.ID, _ = e.Value.(string)
		case "_createdAt":
			d.CreatedAt = toTime(e.Value)
		case "_updatedAt":
			d.UpdatedAt = toTime(e.Value)
		case "_version":
			d.Version = uint64(toInt64(e.Value))
		case "data":
			obj, err := fromBSON(e.Value)
			if err != nil {
				return nil, err
			}
			fields, _ := obj.Object()
			d.Data = fields
		}
	}
	return d, nil
}

func toTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case bson.DateTime:
		return t.Time()
	default:
		return time.Time{}
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func fromBSON(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return NewBool(t), nil
	case int32:
		return NewInt64(int64(t)), nil
	case int64:
		return NewInt64(t), nil
	case int:
		return NewInt64(int64(t)), nil
	case float64:
		return NewFloat64(t), nil
	case string:
		return NewString(t), nil
	case []byte:
		return NewBytes(t), nil
	case bson.A:
		vals := make([]Value, len(t))
		for i, e := range t {
			cv, err := fromBSON(e)
			if err != nil {
				return Null(), err
			}
			vals[i] = cv
		}
		return NewArray(vals...), nil
	case bson.D:
		fields := make([]Field, 0, len(t))
		for _, e := range t {
			cv, err := fromBSON(e.Value)
			if err != nil {
				return Null(), err
			}
			fields = append(fields, Field{Key: e.Key, Value: cv})
		}
		return NewObject(fields...), nil
	default:
		return Null(), fmt.Errorf("document: unsupported bson type %T", v)
	}
}
