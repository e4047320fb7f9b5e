package meta

import (
	"fmt"
	"reflect"
)

// Serialize traverses v (any Go value; struct, container, or primitive)
// and produces a JSON-tree representation (map[string]any / []any /
// primitives, directly marshalable by encoding/json) filtered by purpose.
// Grounded on _examples/original_source/src/meta/MetaSerialize.cpp
// serialize_any.
func Serialize(reg *Registry, v any, purpose Purpose) (any, error) {
	return serializeValue(reg, reflect.ValueOf(v), purpose)
}

func serializeValue(reg *Registry, v reflect.Value, purpose Purpose) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}

	if info, ok := reg.TypeOfValue(v); ok {
		switch {
		case info.Funcs.Serialize != nil:
			return info.Funcs.Serialize(v.Interface(), purpose)
		case info.Funcs.SerializeLegacy != nil:
			return info.Funcs.SerializeLegacy(v.Interface())
		case info.IsEnum:
			return serializeEnum(info, v)
		default:
			return serializeStruct(reg, info, v, purpose)
		}
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return serializeSequence(reg, v, purpose)
	case reflect.Map:
		return serializeAssociative(reg, v, purpose)
	case reflect.Ptr:
		if v.IsNil() {
			return nil, nil
		}
		return serializeValue(reg, v.Elem(), purpose)
	default:
		return serializePrimitive(v)
	}
}

func serializeEnum(info *TypeInfo, v reflect.Value) (any, error) {
	underlying := v.Convert(int64Type).Int()
	name, ok := info.EnumName(underlying)
	if !ok {
		return nil, fmt.Errorf("serialize enum %s: no entry for value %d", info.IDString, underlying)
	}
	return name, nil
}

func serializeStruct(reg *Registry, info *TypeInfo, v reflect.Value, purpose Purpose) (any, error) {
	out := make(map[string]any, len(info.Fields))
	for _, f := range info.Fields {
		if !f.Traits.Admits(purpose) {
			continue
		}
		fv, ok := f.get(v)
		if !ok {
			continue
		}
		serialized, err := serializeValue(reg, fv, purpose)
		if err != nil {
			return nil, fmt.Errorf("serialize field %s.%s: %w", info.IDString, f.ID, err)
		}
		out[f.Name()] = serialized
	}
	return out, nil
}

func serializeSequence(reg *Registry, v reflect.Value, purpose Purpose) (any, error) {
	out := make([]any, v.Len())
	for i := 0; i < v.Len(); i++ {
		elem, err := serializeValue(reg, v.Index(i), purpose)
		if err != nil {
			return nil, fmt.Errorf("serialize element %d: %w", i, err)
		}
		out[i] = elem
	}
	return out, nil
}

// isSetType reports whether m's value type carries no data, i.e. the map
// is being used as a set (mirrors entt's associative-container-without-
// mapped-type case in the original).
func isSetType(t reflect.Type) bool {
	elem := t.Elem()
	return elem.Kind() == reflect.Struct && elem.NumField() == 0
}

func serializeAssociative(reg *Registry, v reflect.Value, purpose Purpose) (any, error) {
	out := make([]any, 0, v.Len())
	set := isSetType(v.Type())
	iter := v.MapRange()
	for iter.Next() {
		key, err := serializeValue(reg, iter.Key(), purpose)
		if err != nil {
			return nil, fmt.Errorf("serialize map key: %w", err)
		}
		if set {
			out = append(out, key)
			continue
		}
		val, err := serializeValue(reg, iter.Value(), purpose)
		if err != nil {
			return nil, fmt.Errorf("serialize map value: %w", err)
		}
		out = append(out, []any{key, val})
	}
	return out, nil
}

func serializePrimitive(v reflect.Value) (any, error) {
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.String:
		return v.String(), nil
	default:
		return nil, fmt.Errorf("serialize: unsupported kind %s", v.Kind())
	}
}
