package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/tumorclf/internal/backend/cpu"
	"github.com/born-ml/tumorclf/internal/tensor"
)

// Linear implements a fully connected (dense) layer.
//
// Performs: output = input @ weight^T + bias
//
// Shape:
//   - Input: [batch_size, in_features]
//   - Weight: [out_features, in_features]
//   - Bias: [out_features]
//   - Output: [batch_size, out_features]
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter
	bias        *Parameter

	input   *tensor.Tensor
	backend *cpu.CPUBackend
}

// NewLinear creates a new Linear layer with Xavier-initialised weights and
// zero bias.
func NewLinear(inFeatures, outFeatures int, backend *cpu.CPUBackend, rng *rand.Rand) *Linear {
	if inFeatures <= 0 || outFeatures <= 0 {
		panic(fmt.Sprintf("linear: invalid features in=%d, out=%d", inFeatures, outFeatures))
	}
	weight := Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, rng)
	return &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("linear.weight", weight),
		bias:        NewParameter("linear.bias", tensor.Zeros(tensor.Shape{outFeatures})),
		backend:     backend,
	}
}

// Forward computes the affine map.
func (l *Linear) Forward(input *tensor.Tensor) *tensor.Tensor {
	shape := input.Shape()
	if len(shape) != 2 || shape[1] != l.inFeatures {
		panic(fmt.Sprintf("linear: expected input [batch, %d], got %v", l.inFeatures, shape))
	}
	l.input = input
	return l.backend.Linear(input, l.weight.Tensor(), l.bias.Tensor())
}

// Backward accumulates weight and bias gradients and returns dL/dInput.
func (l *Linear) Backward(grad *tensor.Tensor) *tensor.Tensor {
	if l.input == nil {
		panic("linear: Backward called before Forward")
	}
	grads := l.backend.LinearBackward(l.input, l.weight.Tensor(), grad)
	l.weight.AccumulateGrad(grads.Weight)
	l.bias.AccumulateGrad(grads.Bias)
	return grads.Input
}

// Parameters returns weight and bias.
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

// Weight returns the weight parameter.
func (l *Linear) Weight() *Parameter { return l.weight }

// Bias returns the bias parameter.
func (l *Linear) Bias() *Parameter { return l.bias }

func (l *Linear) String() string {
	return fmt.Sprintf("Linear(in_features=%d, out_features=%d)", l.inFeatures, l.outFeatures)
}
