package pointers

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Optional is a JSON field that distinguishes an absent field from an explicit
// null and from a value. Use it as a non-pointer struct field; encoding/json
// compatible decoders only call UnmarshalJSON when the field is present.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns an Optional holding v
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Null returns an Optional holding an explicit null
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// UnmarshalJSON implements json.Unmarshaler
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		var zero T
		o.Value = zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

// MarshalJSON implements json.Marshaler. An unset Optional is written as null.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// Ptr returns nil for an unset or null Optional, and a pointer to the value otherwise
func (o Optional[T]) Ptr() *T {
	if !o.Set || o.Null {
		return nil
	}
	return To(o.Value)
}
