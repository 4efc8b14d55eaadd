package types

import "github.com/bobboyms/docengine/pkg/document"

// FromValue projects a document.Value into an index key. Null, missing,
// and structurally non-scalar values (Array, Object, Bytes) all extract
// to NullKey — a sparse index simply skips inserting the posting for
// those documents rather than rejecting the write, since there is no
// total order defined over array/object values.
func FromValue(v document.Value) Comparable {
	switch v.Kind() {
	case document.KindNull:
		return NullKey{}
	case document.KindBool:
		b, _ := v.Bool()
		return BoolKey(b)
	case document.KindInt64:
		i, _ := v.Int64()
		return IntKey(i)
	case document.KindFloat64:
		f, _ := v.Float64()
		return FloatKey(f)
	case document.KindString:
		return VarcharKey(v.String())
	default:
		return NullKey{}
	}
}

// FromPath extracts the key for a single indexed field path out of a
// document's data, returning ok=false when the field is entirely absent
// (as opposed to present-but-null) so sparse indexes can distinguish the
// two.
func FromPath(root document.Object, path string) (Comparable, bool) {
	v, present := document.GetPath(root, path)
	if !present {
		return NullKey{}, false
	}
	return FromValue(v), true
}

// FromPaths extracts a CompoundKey for a compound index made of several
// field paths. ok is true if at least one component was present (so a
// compound index with all-absent components is still treated as fully
// sparse-absent, matching FromPath's single-field semantics).
func FromPaths(root document.Object, paths []string) (CompoundKey, bool) {
	key := make(CompoundKey, len(paths))
	anyPresent := false
	for i, p := range paths {
		c, present := FromPath(root, p)
		key[i] = c
		if present {
			anyPresent = true
		}
	}
	return key, anyPresent
}
