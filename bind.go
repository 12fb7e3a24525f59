package stencil

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/veyor/stencil/internal/vm"
)

// toValue converts a Go value into a VM value allocated in the render's
// arena. Maps are materialized in sorted key order so renders are
// deterministic regardless of Go's map iteration order.
func toValue(arena *vm.Arena, v any) (vm.Value, error) {
	switch x := v.(type) {
	case nil:
		return vm.NullVal(), nil
	case bool:
		return vm.BoolVal(x), nil
	case int:
		return vm.IntVal(int64(x)), nil
	case int8:
		return vm.IntVal(int64(x)), nil
	case int16:
		return vm.IntVal(int64(x)), nil
	case int32:
		return vm.IntVal(int64(x)), nil
	case int64:
		return vm.IntVal(x), nil
	case uint:
		return vm.IntVal(int64(x)), nil
	case uint8:
		return vm.IntVal(int64(x)), nil
	case uint16:
		return vm.IntVal(int64(x)), nil
	case uint32:
		return vm.IntVal(int64(x)), nil
	case uint64:
		return vm.IntVal(int64(x)), nil
	case float32:
		return vm.FloatVal(float64(x)), nil
	case float64:
		return vm.FloatVal(x), nil
	case string:
		// The byte copy lives on the Go heap for at least the render;
		// charge it to the arena budget like any other string storage.
		b := append(arena.AllocBytes(len(x)), x...)
		return vm.StrVal(b), nil
	case []byte:
		return vm.RefVal(arena.NewBuffer(append(arena.AllocBytes(len(x)), x...))), nil

	case []any:
		elems := make([]vm.Value, len(x))
		for i, e := range x {
			ev, err := toValue(arena, e)
			if err != nil {
				return vm.Value{}, err
			}
			elems[i] = ev
		}
		return vm.RefVal(arena.NewList(elems)), nil

	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := arena.NewMap(len(x))
		for _, k := range keys {
			kv, err := toValue(arena, x[k])
			if err != nil {
				return vm.Value{}, err
			}
			kb := append(arena.AllocBytes(len(k)), k...)
			obj.Map.Set(vm.StrKey(kb), kv)
		}
		return vm.RefVal(obj), nil
	}

	// Reflective fallback for concrete slice and map types
	// ([]string, map[string]int, ...).
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		elems := make([]vm.Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			ev, err := toValue(arena, rv.Index(i).Interface())
			if err != nil {
				return vm.Value{}, err
			}
			elems[i] = ev
		}
		return vm.RefVal(arena.NewList(elems)), nil

	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return vm.Value{}, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		obj := arena.NewMap(rv.Len())
		for _, k := range keys {
			kv, err := toValue(arena, rv.MapIndex(reflect.ValueOf(k)).Interface())
			if err != nil {
				return vm.Value{}, err
			}
			kb := append(arena.AllocBytes(len(k)), k...)
			obj.Map.Set(vm.StrKey(kb), kv)
		}
		return vm.RefVal(obj), nil
	}

	return vm.Value{}, fmt.Errorf("unsupported value type %T", v)
}

// fromValue converts a VM value to a Go value for host-function
// arguments. Containers copy; mutations on the Go side do not feed back
// into the render.
func fromValue(v vm.Value) any {
	switch v.Type {
	case vm.ValNull:
		return nil
	case vm.ValInt:
		return v.AsInt()
	case vm.ValFloat:
		return v.AsFloat()
	case vm.ValBool:
		return v.AsBool()
	case vm.ValStr:
		return string(v.Str)
	case vm.ValRef:
		return fromObject(v.Obj)
	}
	return nil
}

func fromObject(o *vm.Object) any {
	switch o.Type {
	case vm.ObjBuffer:
		return string(o.Buf)
	case vm.ObjList:
		out := make([]any, len(o.List))
		for i, e := range o.List {
			out[i] = fromValue(e)
		}
		return out
	case vm.ObjMap:
		out := make(map[any]any, o.Map.Len())
		o.Map.Range(func(k vm.Key, v vm.Value) bool {
			if k.IsInt {
				out[k.Int] = fromValue(v)
			} else {
				out[string(k.Str)] = fromValue(v)
			}
			return true
		})
		return out
	case vm.ObjMapEntry:
		return []any{fromValue(o.EntryKey.Value()), fromValue(*o.EntryValue)}
	default:
		return nil
	}
}
