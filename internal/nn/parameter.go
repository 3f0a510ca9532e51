package nn

import (
	"fmt"

	"github.com/born-ml/tumorclf/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// The gradient has the same shape as the value and accumulates across
// Backward calls until ZeroGrad is called.
type Parameter struct {
	name   string         // Parameter name (e.g., "weight", "bias")
	tensor *tensor.Tensor // The parameter tensor
	grad   *tensor.Tensor // Accumulated gradient
}

// NewParameter creates a new trainable parameter with a zero gradient.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return &Parameter{
		name:   name,
		tensor: t,
		grad:   tensor.ZerosLike(t),
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.Tensor {
	return p.tensor
}

// Grad returns the accumulated gradient tensor.
func (p *Parameter) Grad() *tensor.Tensor {
	return p.grad
}

// AccumulateGrad adds g to the stored gradient.
func (p *Parameter) AccumulateGrad(g *tensor.Tensor) {
	if g.NumElements() != p.grad.NumElements() {
		panic(fmt.Sprintf("parameter %s: gradient shape %v, want %v", p.name, g.Shape(), p.grad.Shape()))
	}
	dst := p.grad.Data()
	for i, v := range g.Data() {
		dst[i] += v
	}
}

// ZeroGrad clears the gradient tensor.
//
// Called before each training iteration so gradients from the previous
// batch are not accumulated.
func (p *Parameter) ZeroGrad() {
	p.grad.Fill(0)
}
