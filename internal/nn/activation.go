package nn

import (
	"github.com/born-ml/tumorclf/internal/backend/cpu"
	"github.com/born-ml/tumorclf/internal/tensor"
)

// ReLU applies max(x, 0) element-wise.
type ReLU struct {
	input   *tensor.Tensor
	backend *cpu.CPUBackend
}

// NewReLU creates a ReLU activation.
func NewReLU(backend *cpu.CPUBackend) *ReLU {
	return &ReLU{backend: backend}
}

// Forward applies the activation.
func (r *ReLU) Forward(input *tensor.Tensor) *tensor.Tensor {
	r.input = input
	return r.backend.ReLU(input)
}

// Backward masks grad where the input was not positive.
func (r *ReLU) Backward(grad *tensor.Tensor) *tensor.Tensor {
	if r.input == nil {
		panic("relu: Backward called before Forward")
	}
	return r.backend.ReLUBackward(r.input, grad)
}

// Parameters returns nil; ReLU has no trainable parameters.
func (r *ReLU) Parameters() []*Parameter { return nil }

func (r *ReLU) String() string { return "ReLU()" }

// Softmax normalises each row of a [batch, features] input into probabilities.
type Softmax struct {
	output  *tensor.Tensor
	backend *cpu.CPUBackend
}

// NewSoftmax creates a row-wise softmax activation.
func NewSoftmax(backend *cpu.CPUBackend) *Softmax {
	return &Softmax{backend: backend}
}

// Forward applies softmax to every row.
func (s *Softmax) Forward(input *tensor.Tensor) *tensor.Tensor {
	s.output = s.backend.Softmax(input)
	return s.output
}

// Backward applies the softmax Jacobian to grad.
func (s *Softmax) Backward(grad *tensor.Tensor) *tensor.Tensor {
	if s.output == nil {
		panic("softmax: Backward called before Forward")
	}
	return s.backend.SoftmaxBackward(s.output, grad)
}

// Parameters returns nil; Softmax has no trainable parameters.
func (s *Softmax) Parameters() []*Parameter { return nil }

func (s *Softmax) String() string { return "Softmax()" }
