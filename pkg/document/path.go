package document

import "strings"

// SplitPath breaks a dotted field path ("address.city") into segments.
// Array indices are not addressable through dotted paths; the filter
// engine handles array membership through $in/$eq against whole array
// values instead.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// GetPath resolves a dotted path against a root Object, descending
// through nested Object values. Returns (Null, false) if any segment is
// missing or the traversal hits a non-Object value before the path ends.
func GetPath(root Object, path string) (Value, bool) {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return Null(), false
	}
	current := NewObject(root...)
	for i, seg := range segments {
		v, ok := current.Field(seg)
		if !ok {
			return Null(), false
		}
		if i == len(segments)-1 {
			return v, true
		}
		if v.Kind() != KindObject {
			return Null(), false
		}
		current = v
	}
	return Null(), false
}

// SetPath returns a new Object with the value at the dotted path replaced
// (creating intermediate objects as needed). The original Object is left
// untouched — callers apply the result via Document.ReplaceData.
func SetPath(root Object, path string, value Value) (Object, error) {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return nil, &pathError{Path: path, Reason: "empty path"}
	}
	updated, _, err := setRecursive(root, segments, value)
	return updated, err
}

func setRecursive(obj Object, segments []string, value Value) (Object, bool, error) {
	return setRecursiveMode(obj, segments, value, false)
}

// SetPathForce is SetPath's permissive sibling: a non-object value found
// partway down the path is overwritten with a fresh object instead of
// raising an error. Used for the atomic-update "set" operation, which
// always succeeds when the document exists.
func SetPathForce(root Object, path string, value Value) (Object, error) {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return nil, &pathError{Path: path, Reason: "empty path"}
	}
	updated, _, err := setRecursiveMode(root, segments, value, true)
	return updated, err
}

func setRecursiveMode(obj Object, segments []string, value Value, force bool) (Object, bool, error) {
	head, rest := segments[0], segments[1:]
	out := make(Object, 0, len(obj)+1)
	found := false
	for _, f := range obj {
		if f.Key != head {
			out = append(out, f)
			continue
		}
		found = true
		if len(rest) == 0 {
			out = append(out, Field{Key: head, Value: value})
			continue
		}
		childObj, ok := f.Value.Object()
		if !ok {
			if force || f.Value.IsNull() {
				childObj = Object{}
			} else {
				return nil, false, &pathError{Path: head, Reason: "cannot descend into non-object field"}
			}
		}
		nested, _, err := setRecursiveMode(childObj, rest, value, force)
		if err != nil {
			return nil, false, err
		}
		out = append(out, Field{Key: head, Value: NewObject(nested...)})
	}
	if !found {
		if len(rest) == 0 {
			out = append(out, Field{Key: head, Value: value})
		} else {
			nested, _, err := setRecursiveMode(Object{}, rest, value, force)
			if err != nil {
				return nil, false, err
			}
			out = append(out, Field{Key: head, Value: NewObject(nested...)})
		}
	}
	return out, true, nil
}

// UnsetPath returns a new Object with the field at the dotted path
// removed. Missing paths are a no-op: unsetting an absent path still
// succeeds.
func UnsetPath(root Object, path string) (Object, error) {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return nil, &pathError{Path: path, Reason: "empty path"}
	}
	return unsetRecursive(root, segments), nil
}

func unsetRecursive(obj Object, segments []string) Object {
	head, rest := segments[0], segments[1:]
	out := make(Object, 0, len(obj))
	for _, f := range obj {
		if f.Key != head {
			out = append(out, f)
			continue
		}
		if len(rest) == 0 {
			continue // drop this field
		}
		childObj, ok := f.Value.Object()
		if !ok {
			out = append(out, f) // nothing to descend into, leave as-is
			continue
		}
		out = append(out, Field{Key: head, Value: NewObject(unsetRecursive(childObj, rest)...)})
	}
	return out
}

type pathError struct {
	Path   string
	Reason string
}

func (e *pathError) Error() string {
	return "path " + e.Path + ": " + e.Reason
}
