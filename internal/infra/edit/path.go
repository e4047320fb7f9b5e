// Package edit implements the Edit Command Pipeline (spec.md §4.8, C8):
// path-addressed field assignment plus entity-structural commands, queued
// with redo/undo and reported through the event bus.
//
// Grounded on _examples/original_source/src/editor/MetaFieldAssign.cpp
// (assign_meta_field_recursive) and editor/GuiCommands.cpp (the
// entity-structural command set, stripped of its ImGui/EnTT plumbing).
package edit

import (
	"reflect"

	"github.com/cjgribel/eeng-core/internal/domain"
	"github.com/cjgribel/eeng-core/internal/infra/meta"
)

// AssignField walks path starting at entry idx into obj and assigns leaf at
// the final entry, value-copying and writing back every non-leaf container
// it passes through. obj must be settable at idx's own level (a component
// value obtained from the entity registry, or an asset value obtained
// through storage.ModifyAny, both of which hand back an addressable copy or
// pointer target).
//
// Go reflect.Values reached through a struct field, slice element, or map
// value are frequently unaddressable on their own (map values always are;
// struct fields reached through a plain `any` boundary are not). The
// original's entt::meta_any sidesteps this with reference-counted handles;
// here every non-leaf step takes an addressable scratch copy, recurses into
// it, and writes the result back into its parent container — the same
// "VALUE copy, recurse, write back" discipline as assign_meta_field_recursive.
func AssignField(reg *meta.Registry, obj reflect.Value, path domain.MetaFieldPath, idx int, leaf any) error {
	if idx < 0 || idx >= len(path.Entries) {
		return domain.ErrInvalidFieldPath
	}
	entry := path.Entries[idx]
	isLeaf := idx+1 == len(path.Entries)

	switch entry.Kind {
	case domain.PathData:
		return assignData(reg, obj, entry, path, idx, isLeaf, leaf)
	case domain.PathIndex:
		return assignIndex(reg, obj, entry, path, idx, isLeaf, leaf)
	case domain.PathKey:
		return assignKey(reg, obj, entry, path, idx, isLeaf, leaf)
	default:
		return domain.ErrInvalidFieldPath
	}
}

// ReadField mirrors AssignField's walk but returns the leaf's current value
// instead of assigning it, for capturing prev_value when a command is built.
func ReadField(reg *meta.Registry, obj reflect.Value, path domain.MetaFieldPath, idx int) (any, error) {
	if idx < 0 || idx >= len(path.Entries) {
		return nil, domain.ErrInvalidFieldPath
	}
	entry := path.Entries[idx]
	isLeaf := idx+1 == len(path.Entries)

	switch entry.Kind {
	case domain.PathData:
		fv, _, ok := resolveField(reg, obj, entry.FieldID)
		if !ok {
			return nil, domain.ErrInvalidFieldPath
		}
		if isLeaf {
			return fv.Interface(), nil
		}
		return ReadField(reg, fv, path, idx+1)

	case domain.PathIndex:
		if obj.Kind() != reflect.Slice && obj.Kind() != reflect.Array {
			return nil, domain.ErrInvalidFieldPath
		}
		if entry.Index < 0 || entry.Index >= obj.Len() {
			return nil, domain.ErrInvalidFieldPath
		}
		elem := obj.Index(entry.Index)
		if isLeaf {
			return elem.Interface(), nil
		}
		return ReadField(reg, elem, path, idx+1)

	case domain.PathKey:
		if obj.Kind() != reflect.Map {
			return nil, domain.ErrInvalidFieldPath
		}
		key, err := coerceKey(entry.Key, obj.Type().Key())
		if err != nil {
			return nil, err
		}
		cur := obj.MapIndex(key)
		if !cur.IsValid() {
			return nil, domain.ErrInvalidFieldPath
		}
		if isLeaf {
			return cur.Interface(), nil
		}
		return ReadField(reg, cur, path, idx+1)

	default:
		return nil, domain.ErrInvalidFieldPath
	}
}

func assignData(reg *meta.Registry, obj reflect.Value, entry domain.MetaFieldPathEntry, path domain.MetaFieldPath, idx int, isLeaf bool, leaf any) error {
	fv, setter, ok := resolveField(reg, obj, entry.FieldID)
	if !ok {
		return domain.ErrInvalidFieldPath
	}
	if isLeaf {
		return assignLeaf(reg, fv, setter, leaf)
	}
	sub := settableCopy(fv)
	if err := AssignField(reg, sub, path, idx+1, leaf); err != nil {
		return err
	}
	if !setter(sub) {
		return domain.ErrInvalidFieldPath
	}
	return nil
}

func assignIndex(reg *meta.Registry, obj reflect.Value, entry domain.MetaFieldPathEntry, path domain.MetaFieldPath, idx int, isLeaf bool, leaf any) error {
	if obj.Kind() != reflect.Slice && obj.Kind() != reflect.Array {
		return domain.ErrInvalidFieldPath
	}
	if entry.Index < 0 || entry.Index >= obj.Len() {
		return domain.ErrInvalidFieldPath
	}
	elem := obj.Index(entry.Index)
	setter := func(v reflect.Value) bool {
		if !elem.CanSet() {
			return false
		}
		elem.Set(v)
		return true
	}
	if isLeaf {
		return assignLeaf(reg, elem, setter, leaf)
	}
	sub := settableCopy(elem)
	if err := AssignField(reg, sub, path, idx+1, leaf); err != nil {
		return err
	}
	if !setter(sub) {
		return domain.ErrInvalidFieldPath
	}
	return nil
}

func assignKey(reg *meta.Registry, obj reflect.Value, entry domain.MetaFieldPathEntry, path domain.MetaFieldPath, idx int, isLeaf bool, leaf any) error {
	if obj.Kind() != reflect.Map {
		return domain.ErrInvalidFieldPath
	}
	key, err := coerceKey(entry.Key, obj.Type().Key())
	if err != nil {
		return err
	}
	cur := obj.MapIndex(key)
	if !cur.IsValid() {
		return domain.ErrInvalidFieldPath
	}
	setter := func(v reflect.Value) bool {
		obj.SetMapIndex(key, v)
		return true
	}
	if isLeaf {
		return assignLeaf(reg, cur, setter, leaf)
	}
	sub := settableCopy(cur)
	if err := AssignField(reg, sub, path, idx+1, leaf); err != nil {
		return err
	}
	setter(sub)
	return nil
}

// assignLeaf deserializes leaf into a settable scratch copy of cur's type
// and writes it back through setter, so the same path works whether the
// container gave us a directly settable field or a copy that must be
// written back explicitly.
func assignLeaf(reg *meta.Registry, cur reflect.Value, setter func(reflect.Value) bool, leaf any) error {
	scratch := reflect.New(cur.Type()).Elem()
	scratch.Set(cur)
	if err := meta.Deserialize(reg, leaf, scratch, nil); err != nil {
		return err
	}
	if !setter(scratch) {
		return domain.ErrInvalidFieldPath
	}
	return nil
}

// resolveField returns obj's field id and a setter for it. If obj's
// dynamic type is registered, the field's own Get/Set accessor is used
// (honoring computed or renamed fields); otherwise it falls back to plain
// FieldByName.
func resolveField(reg *meta.Registry, obj reflect.Value, id string) (reflect.Value, func(reflect.Value) bool, bool) {
	if info, ok := reg.TypeOfValue(obj); ok {
		if fv, ok := info.FieldValue(obj, id); ok {
			return fv, func(v reflect.Value) bool { return info.SetFieldValue(obj, id, v) }, true
		}
		return reflect.Value{}, nil, false
	}
	fv := obj.FieldByName(id)
	if !fv.IsValid() {
		return reflect.Value{}, nil, false
	}
	setter := func(v reflect.Value) bool {
		if !fv.CanSet() {
			return false
		}
		if v.Type() != fv.Type() {
			if !v.Type().ConvertibleTo(fv.Type()) {
				return false
			}
			v = v.Convert(fv.Type())
		}
		fv.Set(v)
		return true
	}
	return fv, setter, true
}

func settableCopy(v reflect.Value) reflect.Value {
	cp := reflect.New(v.Type()).Elem()
	cp.Set(v)
	return cp
}

func coerceKey(key any, wantType reflect.Type) (reflect.Value, error) {
	kv := reflect.ValueOf(key)
	if !kv.IsValid() {
		return reflect.Value{}, domain.ErrInvalidFieldPath
	}
	if kv.Type() == wantType {
		return kv, nil
	}
	if kv.Type().ConvertibleTo(wantType) {
		return kv.Convert(wantType), nil
	}
	return reflect.Value{}, domain.ErrInvalidFieldPath
}
