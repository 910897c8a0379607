package tensor

import (
	"fmt"
	"strconv"
	"strings"
)

// Shape is the ordered dimensions of a tensor. A zero-length shape is a
// scalar and holds one element.
type Shape []int64

// NumElements returns the product of the dimensions. Scalars report 1.
func (s Shape) NumElements() int64 {
	n := int64(1)
	for _, d := range s {
		n *= d
	}
	return n
}

// Validate rejects negative dimensions. Zero dimensions are legal (an
// empty batch is a valid tensor).
func (s Shape) Validate() error {
	for i, d := range s {
		if d < 0 {
			return fmt.Errorf("shape %s: dimension %d is negative", s, i)
		}
	}
	return nil
}

// Equal reports whether two shapes have identical dimensions.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy so callers can hold a shape beyond the
// lifetime of the buffer it described.
func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.FormatInt(d, 10)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
