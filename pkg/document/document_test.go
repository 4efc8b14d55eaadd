package document

import "testing"

func TestValueJSONRoundTrip(t *testing.T) {
	v := NewObject(
		Field{Key: "name", Value: NewString("cart-1")},
		Field{Key: "qty", Value: NewInt64(3)},
		Field{Key: "price", Value: NewFloat64(19.99)},
		Field{Key: "active", Value: NewBool(true)},
		Field{Key: "tags", Value: NewArray(NewString("a"), NewString("b"))},
	)

	raw, err := v.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	back, err := FromJSON(raw)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}

	name, _ := back.Field("name")
	if got := name.String(); got != "cart-1" {
		t.Fatalf("name = %q, want cart-1", got)
	}
	qty, _ := back.Field("qty")
	if i, ok := qty.Int64(); !ok || i != 3 {
		t.Fatalf("qty = %v (ok=%v), want 3", i, ok)
	}
}

func TestGetSetUnsetPath(t *testing.T) {
	root := Object{
		{Key: "address", Value: NewObject(Field{Key: "city", Value: NewString("Recife")})},
	}

	got, ok := GetPath(root, "address.city")
	if !ok || got.String() != "Recife" {
		t.Fatalf("GetPath = %v, %v, want Recife, true", got, ok)
	}

	updated, err := SetPath(root, "address.zip", NewString("50000-000"))
	if err != nil {
		t.Fatalf("SetPath: %v", err)
	}
	zip, ok := GetPath(updated, "address.zip")
	if !ok || zip.String() != "50000-000" {
		t.Fatalf("zip after SetPath = %v, %v", zip, ok)
	}

	cleared, err := UnsetPath(updated, "address.city")
	if err != nil {
		t.Fatalf("UnsetPath: %v", err)
	}
	if _, ok := GetPath(cleared, "address.city"); ok {
		t.Fatalf("address.city still present after UnsetPath")
	}
}

func TestDocumentCloneIsIndependent(t *testing.T) {
	d := New(Object{{Key: "n", Value: NewInt64(1)}})
	clone := d.Clone()
	clone.Data[0].Value = NewInt64(2)

	if d.Data[0].Value.GoString() == clone.Data[0].Value.GoString() {
		t.Fatalf("mutating clone affected original")
	}
}

func TestMarshalUnmarshalDocumentBSON(t *testing.T) {
	d := New(Object{{Key: "qty", Value: NewInt64(5)}})
	raw, err := MarshalDocumentBSON(d)
	if err != nil {
		t.Fatalf("MarshalDocumentBSON: %v", err)
	}
	back, err := UnmarshalDocumentBSON(raw)
	if err != nil {
		t.Fatalf("UnmarshalDocumentBSON: %v", err)
	}
	if back.ID != d.ID {
		t.Fatalf("id mismatch: got %s want %s", back.ID, d.ID)
	}
	want, _ := d.AsValue().Field("qty")
	got, _ := back.AsValue().Field("qty")
	if got.GoString() != want.GoString() {
		t.Fatalf("qty mismatch after bson round trip")
	}
}
