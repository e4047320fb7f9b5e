package meta

import (
	"fmt"
	"reflect"
)

var int64Type = reflect.TypeOf(int64(0))

// Deserialize writes a JSON-tree value (as produced by Serialize, or by
// encoding/json.Unmarshal into an any) into target, which must be
// addressable and settable. ctx carries the collaborators asset/entity ref
// resolution needs; it may be nil for self-contained values.
//
// Grounded on _examples/original_source/src/meta/MetaSerialize.cpp
// deserialize_any, mirroring Serialize's dispatch order.
func Deserialize(reg *Registry, raw any, target reflect.Value, ctx *BindContext) error {
	if !target.IsValid() || !target.CanSet() {
		return fmt.Errorf("deserialize: target is not settable")
	}
	if raw == nil {
		return nil
	}

	if info, ok := reg.TypeOfValue(target); ok {
		switch {
		case info.Funcs.Deserialize != nil:
			return info.Funcs.Deserialize(raw, target, ctx)
		case info.Funcs.DeserializeLegacy != nil:
			return info.Funcs.DeserializeLegacy(raw, target)
		case info.IsEnum:
			return deserializeEnum(info, raw, target)
		default:
			return deserializeStruct(reg, info, raw, target, ctx)
		}
	}

	switch target.Kind() {
	case reflect.Slice:
		return deserializeSlice(reg, raw, target, ctx)
	case reflect.Array:
		return deserializeArray(reg, raw, target, ctx)
	case reflect.Map:
		return deserializeMap(reg, raw, target, ctx)
	case reflect.Ptr:
		if target.IsNil() {
			target.Set(reflect.New(target.Type().Elem()))
		}
		return Deserialize(reg, raw, target.Elem(), ctx)
	default:
		return assignPrimitive(raw, target)
	}
}

func deserializeEnum(info *TypeInfo, raw any, target reflect.Value) error {
	name, ok := raw.(string)
	if !ok {
		return fmt.Errorf("deserialize enum %s: expected string, got %T", info.IDString, raw)
	}
	value, ok := info.EnumValue(name)
	if !ok {
		return fmt.Errorf("deserialize enum %s: unknown entry %q", info.IDString, name)
	}
	target.Set(reflect.ValueOf(value).Convert(target.Type()))
	return nil
}

// deserializeStruct tolerates missing keys (spec.md §4.4 "a field absent
// from raw keeps its current, already-defaulted value") and ignores keys
// that name no registered field (forward-compatibility with newer files).
func deserializeStruct(reg *Registry, info *TypeInfo, raw any, target reflect.Value, ctx *BindContext) error {
	obj, ok := raw.(map[string]any)
	if !ok {
		return fmt.Errorf("deserialize struct %s: expected object, got %T", info.IDString, raw)
	}
	for _, f := range info.Fields {
		rv, present := obj[f.Name()]
		if !present {
			continue
		}
		fv, ok := f.get(target)
		if !ok || !fv.CanSet() {
			continue
		}
		if err := Deserialize(reg, rv, fv, ctx); err != nil {
			return fmt.Errorf("deserialize field %s.%s: %w", info.IDString, f.ID, err)
		}
	}
	return nil
}

func deserializeSlice(reg *Registry, raw any, target reflect.Value, ctx *BindContext) error {
	list, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("deserialize slice: expected array, got %T", raw)
	}
	out := reflect.MakeSlice(target.Type(), len(list), len(list))
	for i, elem := range list {
		if err := Deserialize(reg, elem, out.Index(i), ctx); err != nil {
			return fmt.Errorf("deserialize element %d: %w", i, err)
		}
	}
	target.Set(out)
	return nil
}

func deserializeArray(reg *Registry, raw any, target reflect.Value, ctx *BindContext) error {
	list, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("deserialize array: expected array, got %T", raw)
	}
	n := target.Len()
	if len(list) < n {
		n = len(list)
	}
	for i := 0; i < n; i++ {
		if err := Deserialize(reg, list[i], target.Index(i), ctx); err != nil {
			return fmt.Errorf("deserialize element %d: %w", i, err)
		}
	}
	return nil
}

func deserializeMap(reg *Registry, raw any, target reflect.Value, ctx *BindContext) error {
	list, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("deserialize map: expected array, got %T", raw)
	}
	mt := target.Type()
	out := reflect.MakeMapWithSize(mt, len(list))
	set := isSetType(mt)
	for i, entry := range list {
		key := reflect.New(mt.Key()).Elem()
		if set {
			if err := Deserialize(reg, entry, key, ctx); err != nil {
				return fmt.Errorf("deserialize set entry %d: %w", i, err)
			}
			out.SetMapIndex(key, reflect.New(mt.Elem()).Elem())
			continue
		}
		pair, ok := entry.([]any)
		if !ok || len(pair) != 2 {
			return fmt.Errorf("deserialize map entry %d: expected [key, value] pair", i)
		}
		if err := Deserialize(reg, pair[0], key, ctx); err != nil {
			return fmt.Errorf("deserialize map key %d: %w", i, err)
		}
		val := reflect.New(mt.Elem()).Elem()
		if err := Deserialize(reg, pair[1], val, ctx); err != nil {
			return fmt.Errorf("deserialize map value %d: %w", i, err)
		}
		out.SetMapIndex(key, val)
	}
	target.Set(out)
	return nil
}

// assignPrimitive casts raw into target's primitive kind. raw may arrive as
// a native Go primitive (straight from Serialize, in-process) or as the
// float64/string/bool/nil produced by encoding/json.Unmarshal into an any
// (after a round trip through a batch file).
func assignPrimitive(raw any, target reflect.Value) error {
	rv := reflect.ValueOf(raw)
	switch target.Kind() {
	case reflect.Bool:
		b, ok := raw.(bool)
		if !ok {
			return fmt.Errorf("deserialize bool: got %T", raw)
		}
		target.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := asInt64(raw)
		if err != nil {
			return err
		}
		target.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := asInt64(raw)
		if err != nil {
			return err
		}
		target.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		f, err := asFloat64(raw)
		if err != nil {
			return err
		}
		target.SetFloat(f)
	case reflect.String:
		s, ok := raw.(string)
		if !ok {
			return fmt.Errorf("deserialize string: got %T", raw)
		}
		target.SetString(s)
	default:
		if rv.IsValid() && rv.Type().ConvertibleTo(target.Type()) {
			target.Set(rv.Convert(target.Type()))
			return nil
		}
		return fmt.Errorf("deserialize: unsupported target kind %s", target.Kind())
	}
	return nil
}

func asInt64(raw any) (int64, error) {
	switch n := raw.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("deserialize number: got %T", raw)
	}
}

func asFloat64(raw any) (float64, error) {
	switch n := raw.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("deserialize number: got %T", raw)
	}
}
