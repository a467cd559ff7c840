// Package normalization maps loosely written configuration values (mixed
// case, stray whitespace, aliases) onto typed enums.
package normalization

import (
	"sort"
	"strings"

	ferrors "git.home.luguber.info/inful/devbundle/internal/foundation/errors"
)

// Enum normalizes raw strings into values of T.
type Enum[T comparable] struct {
	name   string
	values map[string]T
	keys   []string
}

// NewEnum builds an Enum named name (used in error messages) from its
// accepted spellings. Keys are matched case-insensitively.
func NewEnum[T comparable](name string, values map[string]T) *Enum[T] {
	e := &Enum[T]{name: name, values: make(map[string]T, len(values))}
	for k, v := range values {
		key := Key(k)
		e.values[key] = v
		e.keys = append(e.keys, key)
	}
	sort.Strings(e.keys)
	return e
}

// Lookup returns the value for raw and whether it is known.
func (e *Enum[T]) Lookup(raw string) (T, bool) {
	v, ok := e.values[Key(raw)]
	return v, ok
}

// Normalize returns the value for raw, or the zero value when unknown.
func (e *Enum[T]) Normalize(raw string) T {
	v, _ := e.Lookup(raw)
	return v
}

// Validate returns the value for raw or a validation error listing the
// accepted spellings.
func (e *Enum[T]) Validate(field, raw string) (T, error) {
	if v, ok := e.Lookup(raw); ok {
		return v, nil
	}
	var zero T
	return zero, ferrors.ValidationError("invalid "+e.name).
		WithContext("field", field).
		WithContext("value", raw).
		WithContext("valid", strings.Join(e.keys, ", ")).
		Build()
}

// Keys returns the accepted spellings, sorted.
func (e *Enum[T]) Keys() []string {
	return append([]string(nil), e.keys...)
}

// Key is the canonical form used for matching.
func Key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
