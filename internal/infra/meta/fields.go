package meta

import "reflect"

// TraitFlags is the bitset of reflection trait flags from spec.md §6.
type TraitFlags uint32

const (
	TraitNone               TraitFlags = 0
	TraitReadonlyInspection TraitFlags = 1 << 0
	TraitNoInspection       TraitFlags = 1 << 1
	TraitNoSerialize        TraitFlags = 1 << 2
	TraitNoSerializeFile    TraitFlags = 1 << 3
	TraitNoSerializeUndo    TraitFlags = 1 << 4
	TraitNoSerializeDisplay TraitFlags = 1 << 5
)

// Has reports whether all of want is set in f.
func (f TraitFlags) Has(want TraitFlags) bool { return f&want == want }

// Purpose selects which fields a serialize/deserialize pass admits
// (spec.md §4.4).
type Purpose int

const (
	PurposeGeneric Purpose = iota
	PurposeFile
	PurposeUndo
	PurposeDisplay
)

// noSerializeFlagFor maps a purpose to its purpose-specific exclusion flag.
func noSerializeFlagFor(p Purpose) TraitFlags {
	switch p {
	case PurposeFile:
		return TraitNoSerializeFile
	case PurposeUndo:
		return TraitNoSerializeUndo
	case PurposeDisplay:
		return TraitNoSerializeDisplay
	default:
		return TraitNone
	}
}

// Admits reports whether a field with traits f is emitted under purpose p:
// neither no_serialize nor the purpose-specific no_serialize_<p> flag may
// be set (spec.md §4.4 "Purpose filtering").
func (f TraitFlags) Admits(p Purpose) bool {
	if f.Has(TraitNoSerialize) {
		return false
	}
	flag := noSerializeFlagFor(p)
	return flag == TraitNone || !f.Has(flag)
}

// FieldInfo describes one reflected data field. ID is the field's stable
// identifier and, unless Get/Set are supplied, also the Go struct field
// name used for the default reflect-based accessor.
type FieldInfo struct {
	ID          string
	DisplayName string
	Traits      TraitFlags

	// Get/Set override the default FieldByName accessor, for computed or
	// renamed fields. Both are optional; if nil the default is used.
	Get func(owner reflect.Value) reflect.Value
	Set func(owner reflect.Value, val reflect.Value) bool
}

// Name returns the field's display name, falling back to its ID.
func (f FieldInfo) Name() string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return f.ID
}

// FieldValue reads field id off owner using its registered accessor,
// falling back to the default FieldByName lookup.
func (t *TypeInfo) FieldValue(owner reflect.Value, id string) (reflect.Value, bool) {
	f, ok := t.Field(id)
	if !ok {
		return reflect.Value{}, false
	}
	return f.get(owner)
}

// SetFieldValue writes val into field id on owner using its registered
// accessor, falling back to the default FieldByName assignment.
func (t *TypeInfo) SetFieldValue(owner reflect.Value, id string, val reflect.Value) bool {
	f, ok := t.Field(id)
	if !ok {
		return false
	}
	return f.set(owner, val)
}

func (f FieldInfo) get(owner reflect.Value) (reflect.Value, bool) {
	if f.Get != nil {
		return f.Get(owner), true
	}
	v := owner.FieldByName(f.ID)
	return v, v.IsValid()
}

func (f FieldInfo) set(owner reflect.Value, val reflect.Value) bool {
	if f.Set != nil {
		return f.Set(owner, val)
	}
	field := owner.FieldByName(f.ID)
	if !field.IsValid() || !field.CanSet() {
		return false
	}
	if val.Type() != field.Type() {
		if val.Type().ConvertibleTo(field.Type()) {
			val = val.Convert(field.Type())
		} else {
			return false
		}
	}
	field.Set(val)
	return true
}

// EnumEntry is one {name, value} pair of a reflected enum.
type EnumEntry struct {
	Name  string
	Value int64
}
