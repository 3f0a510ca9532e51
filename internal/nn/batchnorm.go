package nn

import (
	"fmt"

	"github.com/born-ml/tumorclf/internal/backend/cpu"
	"github.com/born-ml/tumorclf/internal/tensor"
)

// Batch normalization defaults.
const (
	DefaultBatchNormMomentum = 0.99
	DefaultBatchNormEpsilon  = 1e-3
)

// BatchNorm2D normalises every channel of an NCHW input.
//
// Formula: Y = gamma * (X - mean) / sqrt(var + eps) + beta
//
// In training mode mean and variance come from the current batch and the
// running statistics are updated as
//
//	running = momentum*running + (1-momentum)*batch
//
// In inference mode the running statistics are used.
type BatchNorm2D struct {
	Gamma    *Parameter // learnable scale [channels]
	Beta     *Parameter // learnable shift [channels]
	Momentum float32
	Epsilon  float32

	runningMean *tensor.Tensor
	runningVar  *tensor.Tensor
	training    bool

	cache   cpu.BatchNormCache
	backend *cpu.CPUBackend
}

// NewBatchNorm2D creates a batch-norm layer with gamma=1, beta=0,
// running mean 0 and running variance 1. The layer starts in training mode.
func NewBatchNorm2D(channels int, momentum, epsilon float32, backend *cpu.CPUBackend) *BatchNorm2D {
	if channels <= 0 {
		panic(fmt.Sprintf("batchnorm2d: invalid channels %d", channels))
	}
	return &BatchNorm2D{
		Gamma:       NewParameter("gamma", tensor.Ones(tensor.Shape{channels})),
		Beta:        NewParameter("beta", tensor.Zeros(tensor.Shape{channels})),
		Momentum:    momentum,
		Epsilon:     epsilon,
		runningMean: tensor.Zeros(tensor.Shape{channels}),
		runningVar:  tensor.Ones(tensor.Shape{channels}),
		training:    true,
		backend:     backend,
	}
}

// Forward applies batch normalisation.
func (b *BatchNorm2D) Forward(x *tensor.Tensor) *tensor.Tensor {
	var out *tensor.Tensor
	if b.training {
		out, b.cache = b.backend.BatchNorm2D(x, b.Gamma.Tensor(), b.Beta.Tensor(), nil, nil, b.Epsilon)
		rm, rv := b.runningMean.Data(), b.runningVar.Data()
		for c := range rm {
			rm[c] = b.Momentum*rm[c] + (1-b.Momentum)*b.cache.Mean[c]
			rv[c] = b.Momentum*rv[c] + (1-b.Momentum)*b.cache.Var[c]
		}
		return out
	}
	out, b.cache = b.backend.BatchNorm2D(x, b.Gamma.Tensor(), b.Beta.Tensor(),
		b.runningMean.Data(), b.runningVar.Data(), b.Epsilon)
	return out
}

// Backward accumulates gamma and beta gradients and returns dL/dInput.
func (b *BatchNorm2D) Backward(grad *tensor.Tensor) *tensor.Tensor {
	if b.cache.XHat == nil {
		panic("batchnorm2d: Backward called before Forward")
	}
	grads := b.backend.BatchNorm2DBackward(grad, b.Gamma.Tensor(), b.cache, b.training)
	b.Gamma.AccumulateGrad(grads.Gamma)
	b.Beta.AccumulateGrad(grads.Beta)
	return grads.Input
}

// Parameters returns gamma and beta.
func (b *BatchNorm2D) Parameters() []*Parameter {
	return []*Parameter{b.Gamma, b.Beta}
}

// SetTraining switches between batch and running statistics.
func (b *BatchNorm2D) SetTraining(training bool) {
	b.training = training
}

// Buffers returns the running statistics for checkpointing.
func (b *BatchNorm2D) Buffers() map[string]*tensor.Tensor {
	return map[string]*tensor.Tensor{
		"running_mean": b.runningMean,
		"running_var":  b.runningVar,
	}
}

// String returns a string representation of the layer.
func (b *BatchNorm2D) String() string {
	return fmt.Sprintf("BatchNorm2D(channels=%d, momentum=%g, eps=%g)",
		b.Gamma.Tensor().NumElements(), b.Momentum, b.Epsilon)
}
