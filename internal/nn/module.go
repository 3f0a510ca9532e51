// Package nn implements the neural network modules used by the tumor classifier.
//
// This package provides building blocks for constructing networks:
//   - Module interface: forward and backward pass over a cached activation
//   - Parameter: trainable tensor with an accumulated gradient
//   - Conv2D, BatchNorm2D, MaxPool2D, Flatten, Linear
//   - Activations: ReLU, Softmax
//   - CrossEntropyLoss over logits
//   - Sequential: container for stacking layers
//   - Checkpoints: save and restore a module's state
//
// Gradients are propagated layer by layer: Forward caches what Backward
// needs, so Backward must follow the matching Forward call.
package nn

import (
	"github.com/born-ml/tumorclf/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Modules can be composed to build complex architectures:
//
//	model := nn.NewSequential(
//	    nn.NewFlatten(),
//	    nn.NewLinear(784, 128, backend, rng),
//	    nn.NewReLU(backend),
//	    nn.NewLinear(128, 10, backend, rng),
//	)
type Module interface {
	// Forward computes the output of the module given an input tensor and
	// caches the values needed by Backward.
	Forward(input *tensor.Tensor) *tensor.Tensor

	// Backward receives dL/dOutput for the most recent Forward call,
	// accumulates parameter gradients and returns dL/dInput.
	Backward(grad *tensor.Tensor) *tensor.Tensor

	// Parameters returns all trainable parameters of this module.
	//
	// Returns an empty slice for modules without trainable parameters
	// (e.g., activation functions).
	Parameters() []*Parameter
}

// Trainer is implemented by modules that behave differently while training,
// such as BatchNorm2D.
type Trainer interface {
	SetTraining(training bool)
}

// BufferHolder is implemented by modules with non-trainable state that must
// be checkpointed, such as batch-norm running statistics.
type BufferHolder interface {
	Buffers() map[string]*tensor.Tensor
}

// SetTraining switches m, and any children, between training and inference mode.
func SetTraining(m Module, training bool) {
	if t, ok := m.(Trainer); ok {
		t.SetTraining(training)
	}
}

// CountParameters returns the number of trainable scalars in m.
func CountParameters(m Module) int {
	total := 0
	for _, p := range m.Parameters() {
		total += p.Tensor().NumElements()
	}
	return total
}
