// Package tensor provides the dense float32 tensor used by the CPU backend
// and the neural network modules.
//
// Data is stored contiguously in row-major order. Reshape returns a view
// sharing the same backing slice.
package tensor

import (
	"fmt"
	"strings"
)

// Tensor is a dense row-major float32 array.
type Tensor struct {
	shape Shape
	data  []float32
}

// New allocates a zero-filled tensor of the given shape.
func New(shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	return &Tensor{
		shape: shape.Clone(),
		data:  make([]float32, shape.NumElements()),
	}, nil
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	t, err := New(shape)
	if err != nil {
		return nil, err
	}
	copy(t.data, data)
	return t, nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Data returns the backing slice. Writes are visible to every view.
func (t *Tensor) Data() []float32 {
	return t.data
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return len(t.data)
}

// Dim returns the size of dimension i. Negative indices count from the end.
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.shape)
	}
	return t.shape[i]
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.data))
	copy(data, t.data)
	return &Tensor{shape: t.shape.Clone(), data: data}
}

// Reshape returns a view with a new shape over the same data.
// One dimension may be -1 and is inferred.
func (t *Tensor) Reshape(dims ...int) *Tensor {
	shape, err := Shape(dims).Resolve(len(t.data))
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return &Tensor{shape: shape, data: t.data}
}

// Fill sets every element to v.
func (t *Tensor) Fill(v float32) {
	for i := range t.data {
		t.data[i] = v
	}
}

// CopyFrom copies src into t. Shapes must hold the same number of elements.
func (t *Tensor) CopyFrom(src *Tensor) {
	if len(src.data) != len(t.data) {
		panic(fmt.Sprintf("copy: size mismatch %v vs %v", src.shape, t.shape))
	}
	copy(t.data, src.data)
}

// Row returns the i-th row of a 2D tensor as a slice of the backing data.
func (t *Tensor) Row(i int) []float32 {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("row: expected 2D tensor, got %v", t.shape))
	}
	cols := t.shape[1]
	return t.data[i*cols : (i+1)*cols]
}

// ArgMaxRows returns the index of the largest value in each row of a 2D tensor.
// Ties resolve to the lowest index.
func (t *Tensor) ArgMaxRows() []int32 {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("argmax: expected 2D tensor, got %v", t.shape))
	}
	out := make([]int32, t.shape[0])
	for i := range out {
		row := t.Row(i)
		best := 0
		for j := 1; j < len(row); j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		out[i] = int32(best)
	}
	return out
}

// String returns a short human readable representation.
func (t *Tensor) String() string {
	const maxShown = 8
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tensor%v[", t.shape)
	for i, v := range t.data {
		if i == maxShown {
			sb.WriteString(" ...")
			break
		}
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%.4g", v)
	}
	sb.WriteByte(']')
	return sb.String()
}
