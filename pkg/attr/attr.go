// Package attr provides the standard attribute kinds consumed by model
// schemas: scalars, lists and nested entities. Every kind satisfies the
// model.Kind contract; the engine itself is agnostic to the set.
package attr

import (
	"fmt"
	"reflect"

	"modelcore/pkg/model"
)

// String stores string values. Nil stays nil.
type String struct{}

// Coerce accepts strings and fmt.Stringer implementations.
func (String) Coerce(v model.Value) (model.Value, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return t, nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		return nil, fmt.Errorf("expected string, got %T", v)
	}
}

func (String) Equal(a, b model.Value) bool { return a == b }

// Int stores integer values normalized to int64.
type Int struct{}

// Coerce accepts Go integer types and whole float64 values, which is what
// encoding/json produces for numbers.
func (Int) Coerce(v model.Value) (model.Value, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		if t != float64(int64(t)) {
			return nil, fmt.Errorf("expected integer, got %v", t)
		}
		return int64(t), nil
	default:
		return nil, fmt.Errorf("expected integer, got %T", v)
	}
}

func (Int) Equal(a, b model.Value) bool { return a == b }

// Float stores float64 values.
type Float struct{}

// Coerce accepts floats and integers.
func (Float) Coerce(v model.Value) (model.Value, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	default:
		return nil, fmt.Errorf("expected float, got %T", v)
	}
}

func (Float) Equal(a, b model.Value) bool { return a == b }

// Bool stores boolean values.
type Bool struct{}

func (Bool) Coerce(v model.Value) (model.Value, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return t, nil
	default:
		return nil, fmt.Errorf("expected bool, got %T", v)
	}
}

func (Bool) Equal(a, b model.Value) bool { return a == b }

// List stores ordered slices. Values are copied on the way in so callers
// cannot alias the stored sequence.
type List struct{}

func (List) Coerce(v model.Value) (model.Value, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []model.Value:
		out := make([]model.Value, len(t))
		copy(out, t)
		return out, nil
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice {
			return nil, fmt.Errorf("expected slice, got %T", v)
		}
		out := make([]model.Value, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	}
}

func (List) Equal(a, b model.Value) bool { return reflect.DeepEqual(a, b) }
