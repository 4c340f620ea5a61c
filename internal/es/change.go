package es

import (
	"bytes"
	"encoding/json"
)

// Change wraps one field of an update event. A nil *Change means the field
// was not touched; a non-nil one means it was set, possibly to null when T is
// a Nullable.
//
// JSON: an unset field is omitted (use `json:",omitempty"` on the pointer),
// a set field encodes as {"value": ...}.
type Change[T any] struct {
	Value T `json:"value"`
}

// Set returns a Change carrying v.
func Set[T any](v T) *Change[T] {
	return &Change[T]{Value: v}
}

// Nullable is a comparable optional value. The zero value is null.
type Nullable[T comparable] struct {
	Value T
	Valid bool
}

// Some returns a non-null Nullable.
func Some[T comparable](v T) Nullable[T] {
	return Nullable[T]{Value: v, Valid: true}
}

// Null returns the null Nullable for T.
func Null[T comparable]() Nullable[T] {
	return Nullable[T]{}
}

// FromPtr converts a pointer, nil meaning null.
func FromPtr[T comparable](p *T) Nullable[T] {
	if p == nil {
		return Nullable[T]{}
	}
	return Some(*p)
}

// Ptr returns a pointer to a copy of the value, or nil when null.
func (n Nullable[T]) Ptr() *T {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

// MarshalJSON encodes null or the bare value.
func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// UnmarshalJSON accepts null or a value of T.
func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*n = Nullable[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Some(v)
	return nil
}
