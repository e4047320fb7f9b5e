// Package meta is the runtime reflection layer: a process-wide registry of
// types, fields, enum entries, and named functions, plus the purpose-scoped
// serializer/deserializer built on top of it (spec.md §4.3, §4.4).
//
// Grounded on _examples/original_source/src/meta/TypeIdRegistry.hpp
// (string interning to a stable integer id) and meta/MetaReg.cpp (the
// per-type record of fields + named functions). The original dispatches
// functions by hashed name through entt; Go has no equivalent runtime type
// system in the example pack (none of the retrieved repos carries an
// entt-like reflection library), so function dispatch here uses a typed
// Funcs struct per type instead of a map[string]any — each named slot in
// spec.md §6 becomes one optional struct field, invoked through the same
// uniform call sites (Serialize, Deserialize, CollectAssetGUIDs, ...)
// regardless of which type is in play. This is a deliberate adaptation for
// Go's static typing, not a missing third-party dependency: no example
// repo offers a better primitive for this.
package meta

import (
	"reflect"
	"sync"

	"github.com/cjgribel/eeng-core/internal/domain"
)

// Registry is the process-wide reflection registry. Writers (RegisterType)
// must only run during single-threaded initialization; readers (Resolve,
// TypeOf) are safe for concurrent use afterward.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]domain.TypeId
	byID     map[domain.TypeId]*TypeInfo
	byGoType map[reflect.Type]domain.TypeId
	nextID   domain.TypeId
}

// NewRegistry returns an empty reflection registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:   make(map[string]domain.TypeId),
		byID:     make(map[domain.TypeId]*TypeInfo),
		byGoType: make(map[reflect.Type]domain.TypeId),
	}
}

// TypeOfValue resolves the TypeInfo registered for v's dynamic Go type, if
// any. Used by the serializer to decide whether a value is a reflected
// struct/enum versus a plain container or primitive.
func (r *Registry) TypeOfValue(v reflect.Value) (*TypeInfo, bool) {
	r.mu.RLock()
	id, ok := r.byGoType[v.Type()]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return r.TypeOf(id)
}

// Resolve maps an id-string to its TypeId. O(1).
func (r *Registry) Resolve(name string) (domain.TypeId, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	return id, ok
}

// TypeOf returns the immutable type record for id.
func (r *Registry) TypeOf(id domain.TypeId) (*TypeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byID[id]
	return info, ok
}

// TypeOfName is Resolve+TypeOf combined.
func (r *Registry) TypeOfName(name string) (*TypeInfo, bool) {
	id, ok := r.Resolve(name)
	if !ok {
		return nil, false
	}
	return r.TypeOf(id)
}

// RegisterType inserts a new reflected type and assigns it a TypeId.
// Registering the same name twice with differing content is a hard
// programming error (spec.md §4.3 "collision with a different id for the
// same name is a hard programming error").
func (r *Registry) RegisterType(info TypeInfo) (domain.TypeId, error) {
	if info.IDString == "" {
		return domain.InvalidTypeId, domain.ErrTypeIDEmpty
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[info.IDString]; ok {
		return existing, domain.ErrTypeNameCollision
	}

	id := r.nextID
	r.nextID++

	info.TypeId = id
	stored := info // copy: the record is immutable after registration
	r.byName[info.IDString] = id
	r.byID[id] = &stored
	if info.GoType != nil {
		r.byGoType[info.GoType] = id
	}
	return id, nil
}

// AllTypes returns every registered type record, for inspection/debug use.
func (r *Registry) AllTypes() []*TypeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TypeInfo, 0, len(r.byID))
	for _, info := range r.byID {
		out = append(out, info)
	}
	return out
}
