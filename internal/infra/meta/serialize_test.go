package meta

import (
	"reflect"
	"testing"
)

type vec2 struct {
	X float32
	Y float32
}

type color int

const (
	colorRed color = iota
	colorGreen
	colorBlue
)

type purposeFields struct {
	A int
	B int
	C int
	D int
	E int
}

type compoundKey struct {
	A int
	B string
}

func registerVec2(reg *Registry) {
	_, err := reg.RegisterType(TypeInfo{
		IDString: "vec2",
		GoType:   reflect.TypeOf(vec2{}),
		Fields: []FieldInfo{
			{ID: "X"},
			{ID: "Y"},
		},
	})
	if err != nil {
		panic(err)
	}
}

func registerColor(reg *Registry) {
	_, err := reg.RegisterType(TypeInfo{
		IDString:       "color",
		GoType:         reflect.TypeOf(color(0)),
		IsEnum:         true,
		EnumUnderlying: reflect.Int,
		EnumEntries: []EnumEntry{
			{Name: "red", Value: int64(colorRed)},
			{Name: "green", Value: int64(colorGreen)},
			{Name: "blue", Value: int64(colorBlue)},
		},
	})
	if err != nil {
		panic(err)
	}
}

func registerPurposeFields(reg *Registry) {
	_, err := reg.RegisterType(TypeInfo{
		IDString: "purposeFields",
		GoType:   reflect.TypeOf(purposeFields{}),
		Fields: []FieldInfo{
			{ID: "A"},
			{ID: "B", Traits: TraitNoSerializeFile},
			{ID: "C", Traits: TraitNoSerializeUndo},
			{ID: "D", Traits: TraitNoSerializeDisplay},
			{ID: "E", Traits: TraitNoSerialize},
		},
	})
	if err != nil {
		panic(err)
	}
}

func registerCompoundKey(reg *Registry) {
	_, err := reg.RegisterType(TypeInfo{
		IDString: "compoundKey",
		GoType:   reflect.TypeOf(compoundKey{}),
		Fields: []FieldInfo{
			{ID: "A"},
			{ID: "B"},
		},
	})
	if err != nil {
		panic(err)
	}
}

func TestSerializeVec2RoundTrip(t *testing.T) {
	reg := NewRegistry()
	registerVec2(reg)

	in := vec2{X: 1.5, Y: -2.5}
	raw, err := Serialize(reg, in, PurposeFile)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		t.Fatalf("expected object, got %T", raw)
	}
	if obj["X"] != float64(1.5) && obj["X"] != float32(1.5) {
		t.Fatalf("unexpected X: %v", obj["X"])
	}

	var out vec2
	if err := Deserialize(reg, raw, reflect.ValueOf(&out).Elem(), nil); err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestSerializeEnumRoundTrip(t *testing.T) {
	reg := NewRegistry()
	registerColor(reg)

	raw, err := Serialize(reg, colorGreen, PurposeFile)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if raw != "green" {
		t.Fatalf("expected \"green\", got %v", raw)
	}

	var out color
	if err := Deserialize(reg, raw, reflect.ValueOf(&out).Elem(), nil); err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if out != colorGreen {
		t.Fatalf("round trip mismatch: got %v, want %v", out, colorGreen)
	}
}

func TestSerializePurposeFiltering(t *testing.T) {
	reg := NewRegistry()
	registerPurposeFields(reg)

	in := purposeFields{A: 1, B: 2, C: 3, D: 4, E: 5}

	cases := []struct {
		purpose Purpose
		want    []string
	}{
		{PurposeGeneric, []string{"A", "B", "C", "D"}},
		{PurposeFile, []string{"A", "C", "D"}},
		{PurposeUndo, []string{"A", "B", "D"}},
		{PurposeDisplay, []string{"A", "B", "C"}},
	}

	for _, tc := range cases {
		raw, err := Serialize(reg, in, tc.purpose)
		if err != nil {
			t.Fatalf("purpose %v: serialize: %v", tc.purpose, err)
		}
		obj := raw.(map[string]any)
		if len(obj) != len(tc.want) {
			t.Fatalf("purpose %v: got %d fields, want %d (%v)", tc.purpose, len(obj), len(tc.want), obj)
		}
		for _, k := range tc.want {
			if _, ok := obj[k]; !ok {
				t.Fatalf("purpose %v: missing field %q in %v", tc.purpose, k, obj)
			}
		}
		if _, ok := obj["E"]; ok {
			t.Fatalf("purpose %v: field E must never serialize, got %v", tc.purpose, obj)
		}
	}
}

func TestSerializeSequenceResize(t *testing.T) {
	reg := NewRegistry()

	in := []int32{1, 2, 3, 4, 5}
	raw, err := Serialize(reg, in, PurposeFile)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	list, ok := raw.([]any)
	if !ok || len(list) != 5 {
		t.Fatalf("expected 5-element array, got %T %v", raw, raw)
	}

	var out []int32
	if err := Deserialize(reg, raw, reflect.ValueOf(&out).Elem(), nil); err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("resize mismatch: got len %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("element %d mismatch: got %d, want %d", i, out[i], in[i])
		}
	}
}

func TestSerializeAssociativeCompoundKey(t *testing.T) {
	reg := NewRegistry()
	registerCompoundKey(reg)

	in := map[compoundKey]int{
		{A: 1, B: "x"}: 10,
		{A: 2, B: "y"}: 20,
	}
	raw, err := Serialize(reg, in, PurposeFile)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	list, ok := raw.([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("expected 2-entry association list, got %T %v", raw, raw)
	}

	var out map[compoundKey]int
	if err := Deserialize(reg, raw, reflect.ValueOf(&out).Elem(), nil); err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("map size mismatch: got %d, want %d", len(out), len(in))
	}
	for k, v := range in {
		got, ok := out[k]
		if !ok || got != v {
			t.Fatalf("key %+v: got (%v, %v), want %v", k, got, ok, v)
		}
	}
}
