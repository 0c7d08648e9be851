package mcache

import (
	"fmt"
	"iter"
	"reflect"
	"sort"
	"strconv"
)

// KeysFrom materializes keys from untyped input: slices, arrays, a map's values
// (in key order), iter.Seq[string] or iter.Seq[any]. Non-collections fail with
// ErrNotIterable and non-string elements with ErrInvalidKey.
func KeysFrom(v any) ([]string, error) {
	var raw []any
	switch x := v.(type) {
	case []string:
		return append([]string(nil), x...), nil
	case iter.Seq[string]:
		return collect(x), nil
	case func(func(string) bool):
		return collect(x), nil
	case iter.Seq[any]:
		raw = collect(x)
	case func(func(any) bool):
		raw = collect(x)
	default:
		vals, err := elements(v)
		if err != nil {
			return nil, err
		}
		raw = make([]any, len(vals))
		for i, e := range vals {
			raw[i] = e.Interface()
		}
	}

	keys := make([]string, len(raw))
	for i, e := range raw {
		s, ok := e.(string)
		if !ok {
			return nil, &KeyError{Key: e, Reason: fmt.Sprintf("expected string, got %T", e)}
		}
		keys[i] = s
	}
	return keys, nil
}

// ValuesFrom materializes key/value pairs from untyped input: maps (keys are
// formatted with fmt.Sprint), slices and arrays (keys "0", "1", ...), or
// iter.Seq2[string, V]. Elements that are not a V fail with ErrInvalidInput.
func ValuesFrom[V any](v any) (map[string]V, error) {
	switch x := v.(type) {
	case map[string]V:
		out := make(map[string]V, len(x))
		for k, e := range x {
			out[k] = e
		}
		return out, nil
	case iter.Seq2[string, V]:
		return collect2(x), nil
	case func(func(string, V) bool):
		return collect2(x), nil
	}

	rv := reflect.ValueOf(v)
	out := make(map[string]V)
	switch rv.Kind() {
	case reflect.Map:
		it := rv.MapRange()
		for it.Next() {
			k := fmt.Sprint(it.Key().Interface())
			e, ok := asValue[V](it.Value())
			if !ok {
				return nil, fmt.Errorf("%w: value for key %q is %T", ErrInvalidInput, k, it.Value().Interface())
			}
			out[k] = e
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			e, ok := asValue[V](rv.Index(i))
			if !ok {
				return nil, fmt.Errorf("%w: element %d is %T", ErrInvalidInput, i, rv.Index(i).Interface())
			}
			out[strconv.Itoa(i)] = e
		}
	default:
		return nil, fmt.Errorf("%w: got %T", ErrNotIterable, v)
	}
	return out, nil
}

func elements(v any) ([]reflect.Value, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]reflect.Value, rv.Len())
		for i := range out {
			out[i] = rv.Index(i)
		}
		return out, nil
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		out := make([]reflect.Value, len(keys))
		for i, k := range keys {
			out[i] = rv.MapIndex(k)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: got %T", ErrNotIterable, v)
}

func asValue[V any](rv reflect.Value) (V, bool) {
	var zero V
	x := rv.Interface()
	if x == nil {
		switch reflect.TypeFor[V]().Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return zero, true
		}
		return zero, false
	}
	e, ok := x.(V)
	return e, ok
}

func collect[T any](seq func(func(T) bool)) []T {
	var out []T
	for e := range seq {
		out = append(out, e)
	}
	return out
}

func collect2[V any](seq func(func(string, V) bool)) map[string]V {
	out := make(map[string]V)
	for k, e := range seq {
		out[k] = e
	}
	return out
}
