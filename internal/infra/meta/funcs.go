package meta

import (
	"context"
	"reflect"

	"github.com/cjgribel/eeng-core/internal/domain"
)

// BindContext is threaded through bind/deserialize calls so they can reach
// the collaborators they need (resource manager handle maps, entity
// registry) without every reflected function importing those packages
// directly, which would cycle back into meta.
type BindContext struct {
	ResolveAssetHandle func(typeID domain.TypeId, guid domain.GUID) (domain.MetaHandle, bool)
	ResolveEntity      func(guid domain.GUID) (domain.EntityId, bool)
	Log                func(format string, args ...any)
}

func (c *BindContext) logf(format string, args ...any) {
	if c != nil && c.Log != nil {
		c.Log(format, args...)
	}
}

// Funcs holds the optional named functions a reflected type may register
// (spec.md §3, §6). Each is invoked through a single uniform call site in
// the serializer, resource manager, or batch registry, regardless of which
// concrete type is involved.
type Funcs struct {
	// Serialize is the purpose-aware three-arg form; SerializeLegacy is the
	// two-arg form tried when Serialize is nil (spec.md §4.4 "prefer the
	// three-arg form... fall back to the two-arg form").
	Serialize       func(v any, purpose Purpose) (any, error)
	SerializeLegacy func(v any) (any, error)

	// Deserialize mirrors the signature-fallback order from spec.md §4.4;
	// DeserializeLegacy is tried when Deserialize is nil.
	Deserialize       func(raw any, target reflect.Value, ctx *BindContext) error
	DeserializeLegacy func(raw any, target reflect.Value) error

	Inspect func(v any) any
	Clone   func(v any) any

	AssureStorage func() error

	LoadAsset   func(ctx context.Context, guid domain.GUID) error
	UnloadAsset func(ctx context.Context, guid domain.GUID) error
	BindAsset   func(guid domain.GUID) error
	UnbindAsset func(guid domain.GUID) error

	ValidateAsset          func(guid domain.GUID) error
	ValidateAssetRecursive func(guid domain.GUID) error
	CollectAssetGUIDs      func(v any) []domain.GUID

	BindAssetRefs  func(v any, ctx *BindContext) error
	BindEntityRefs func(v any, ctx *BindContext) error

	PostAssign func(v any, path domain.MetaFieldPath) error

	AssureComponentStorage func(reg domain.EntityRegistry) error
}

// TypeInfo is the immutable per-type reflection record (spec.md §3
// "Reflected type record").
type TypeInfo struct {
	IDString    string
	TypeId      domain.TypeId
	DisplayName string
	Tooltip     string
	Traits      TraitFlags

	// GoType is the underlying Go struct type, used by the default
	// reflect-based field accessors and by New() to mint zero values.
	GoType reflect.Type

	Fields []FieldInfo

	IsEnum         bool
	EnumUnderlying reflect.Kind
	EnumEntries    []EnumEntry

	// Alignment is the forced pool alignment for this type, in bytes
	// (spec.md §4.1). Zero means "use GoType's natural alignment," which
	// is what storage.Assure forwards straight to pool.New — see that
	// function's doc for why a non-zero request can only ever equal, not
	// exceed, the type's natural alignment in Go.
	Alignment uintptr

	Funcs Funcs
}

// New allocates a fresh zero value of the reflected type.
func (t *TypeInfo) New() reflect.Value {
	return reflect.New(t.GoType).Elem()
}

// Field looks up a field by its stable ID.
func (t *TypeInfo) Field(id string) (FieldInfo, bool) {
	for _, f := range t.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// EnumName returns the entry name whose value matches the underlying int64
// value of v.
func (t *TypeInfo) EnumName(v int64) (string, bool) {
	for _, e := range t.EnumEntries {
		if e.Value == v {
			return e.Name, true
		}
	}
	return "", false
}

// EnumValue returns the underlying value for an entry name.
func (t *TypeInfo) EnumValue(name string) (int64, bool) {
	for _, e := range t.EnumEntries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return 0, false
}
