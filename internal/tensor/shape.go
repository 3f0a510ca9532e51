package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
//
// Image batches use NCHW order: [batch, channels, height, width].
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
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

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// Resolve replaces a single -1 dimension with the size implied by n elements.
func (s Shape) Resolve(n int) (Shape, error) {
	out := s.Clone()
	infer := -1
	known := 1
	for i, dim := range out {
		switch {
		case dim == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("shape %v: only one dimension may be -1", s)
			}
			infer = i
		case dim <= 0:
			return nil, fmt.Errorf("shape %v: invalid dimension %d", s, dim)
		default:
			known *= dim
		}
	}
	if infer >= 0 {
		if known == 0 || n%known != 0 {
			return nil, fmt.Errorf("shape %v: cannot infer dimension for %d elements", s, n)
		}
		out[infer] = n / known
	}
	if out.NumElements() != n {
		return nil, fmt.Errorf("shape %v holds %d elements, want %d", out, out.NumElements(), n)
	}
	return out, nil
}

func (s Shape) String() string {
	return fmt.Sprintf("%v", []int(s))
}
