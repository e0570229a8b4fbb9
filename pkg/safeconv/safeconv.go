// Package safeconv converts between integer types without silent overflow.
package safeconv

import "fmt"

// Integer is any built-in integer type.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Convert returns v as T and whether the value survived unchanged.
func Convert[T, F Integer](v F) (T, bool) {
	out := T(v)

	return out, F(out) == v && (out < 0) == (v < 0)
}

// Must converts v to T and panics when it does not fit. Use only where the
// range is guaranteed by construction.
func Must[T, F Integer](v F) T {
	out, ok := Convert[T](v)
	if !ok {
		panic(fmt.Sprintf("safeconv: %d does not fit in %T", v, out))
	}

	return out
}
