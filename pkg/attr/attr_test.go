package attr

import (
	"reflect"
	"testing"

	"modelcore/pkg/model"
)

func TestStringCoerce(t *testing.T) {
	var k String
	if v, err := k.Coerce("x"); err != nil || v != "x" {
		t.Fatalf("expected x, got %v (%v)", v, err)
	}
	if v, err := k.Coerce(nil); err != nil || v != nil {
		t.Fatalf("nil must stay nil, got %v (%v)", v, err)
	}
	if _, err := k.Coerce(3); err == nil {
		t.Fatalf("expected rejection of non-string")
	}
	if !k.Equal("a", "a") || k.Equal("a", "b") {
		t.Fatalf("string equality broken")
	}
}

func TestIntCoerce(t *testing.T) {
	var k Int
	cases := []struct {
		in   model.Value
		want model.Value
		ok   bool
	}{
		{3, int64(3), true},
		{int32(4), int64(4), true},
		{int64(5), int64(5), true},
		{float64(6), int64(6), true}, // json numbers arrive as float64
		{6.5, nil, false},
		{"7", nil, false},
		{nil, nil, true},
	}
	for _, tc := range cases {
		got, err := k.Coerce(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("Coerce(%v): got %v (%v), want %v", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("Coerce(%v): expected error", tc.in)
		}
	}
}

func TestFloatCoerce(t *testing.T) {
	var k Float
	if v, err := k.Coerce(3); err != nil || v != float64(3) {
		t.Fatalf("expected 3.0, got %v (%v)", v, err)
	}
	if v, err := k.Coerce(float32(1.5)); err != nil || v != float64(float32(1.5)) {
		t.Fatalf("expected widened float32, got %v (%v)", v, err)
	}
	if _, err := k.Coerce("nope"); err == nil {
		t.Fatalf("expected rejection of string")
	}
}

func TestBoolCoerce(t *testing.T) {
	var k Bool
	if v, err := k.Coerce(true); err != nil || v != true {
		t.Fatalf("expected true, got %v (%v)", v, err)
	}
	if _, err := k.Coerce(1); err == nil {
		t.Fatalf("expected rejection of int")
	}
}

func TestListCoerceCopiesInput(t *testing.T) {
	var k List
	in := []model.Value{1, 2}
	out, err := k.Coerce(in)
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	in[0] = 99
	if got := out.([]model.Value)[0]; got != 1 {
		t.Fatalf("stored list must not alias the input, got %v", got)
	}

	typed, err := k.Coerce([]string{"a", "b"})
	if err != nil {
		t.Fatalf("Coerce typed slice: %v", err)
	}
	if !reflect.DeepEqual(typed, []model.Value{"a", "b"}) {
		t.Fatalf("expected generic slice, got %#v", typed)
	}
	if _, err := k.Coerce(5); err == nil {
		t.Fatalf("expected rejection of non-slice")
	}
	if !k.Equal([]model.Value{1}, []model.Value{1}) {
		t.Fatalf("list equality must compare content")
	}
}
