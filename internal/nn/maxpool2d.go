package nn

import (
	"fmt"

	"github.com/born-ml/tumorclf/internal/backend/cpu"
	"github.com/born-ml/tumorclf/internal/tensor"
)

// MaxPool2D is a 2D max pooling layer without padding.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_height, out_width]
//
// MaxPool2D has no learnable parameters.
type MaxPool2D struct {
	kernelSize int
	stride     int

	inputShape tensor.Shape
	indices    []int32
	backend    *cpu.CPUBackend
}

// NewMaxPool2D creates a new MaxPool2D layer.
//
// The usual configuration is kernelSize=2, stride=2, which halves both
// spatial dimensions.
func NewMaxPool2D(kernelSize, stride int, backend *cpu.CPUBackend) *MaxPool2D {
	if kernelSize <= 0 || stride <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid kernel size %d or stride %d", kernelSize, stride))
	}
	return &MaxPool2D{
		kernelSize: kernelSize,
		stride:     stride,
		backend:    backend,
	}
}

// Forward performs max pooling and remembers the selected positions.
func (m *MaxPool2D) Forward(input *tensor.Tensor) *tensor.Tensor {
	out, indices := m.backend.MaxPool2D(input, m.kernelSize, m.stride)
	m.inputShape = input.Shape().Clone()
	m.indices = indices
	return out
}

// Backward routes grad to the positions selected by Forward.
func (m *MaxPool2D) Backward(grad *tensor.Tensor) *tensor.Tensor {
	if m.indices == nil {
		panic("maxpool2d: Backward called before Forward")
	}
	return m.backend.MaxPool2DBackward(grad, m.indices, m.inputShape)
}

// Parameters returns nil; MaxPool2D has no trainable parameters.
func (m *MaxPool2D) Parameters() []*Parameter { return nil }

// ComputeOutputSize computes output spatial dimensions for given input size.
func (m *MaxPool2D) ComputeOutputSize(inputH, inputW int) [2]int {
	return [2]int{(inputH-m.kernelSize)/m.stride + 1, (inputW-m.kernelSize)/m.stride + 1}
}

func (m *MaxPool2D) String() string {
	return fmt.Sprintf("MaxPool2D(kernel_size=%d, stride=%d)", m.kernelSize, m.stride)
}

// Flatten reshapes [batch, ...] to [batch, features].
type Flatten struct {
	inputShape tensor.Shape
}

// NewFlatten creates a Flatten layer.
func NewFlatten() *Flatten {
	return &Flatten{}
}

// Forward returns a [batch, features] view of the input.
func (f *Flatten) Forward(input *tensor.Tensor) *tensor.Tensor {
	f.inputShape = input.Shape().Clone()
	return input.Reshape(f.inputShape[0], -1)
}

// Backward restores the original input shape.
func (f *Flatten) Backward(grad *tensor.Tensor) *tensor.Tensor {
	if f.inputShape == nil {
		panic("flatten: Backward called before Forward")
	}
	return grad.Reshape(f.inputShape...)
}

// Parameters returns nil; Flatten has no trainable parameters.
func (f *Flatten) Parameters() []*Parameter { return nil }

func (f *Flatten) String() string { return "Flatten()" }
