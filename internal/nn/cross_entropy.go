package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/tumorclf/internal/backend/cpu"
	"github.com/born-ml/tumorclf/internal/tensor"
)

// CrossEntropyLoss computes categorical cross-entropy from logits.
//
// Mathematical Formulation:
//
//	Loss = mean over batch of -log_softmax(logits)[target]
//
// Gradient (Backward):
//
//	dL/dlogits = (softmax(logits) - y_one_hot) / batch_size
//
// Targets are class indices, equivalent to categorical cross entropy on
// one-hot labels.
type CrossEntropyLoss struct {
	probs   *tensor.Tensor
	targets []int32
}

// NewCrossEntropyLoss creates a new cross-entropy loss function.
func NewCrossEntropyLoss() *CrossEntropyLoss {
	return &CrossEntropyLoss{}
}

// Forward returns the mean loss over the batch.
//
// Parameters:
//   - logits: unnormalised scores [batch_size, num_classes]
//   - targets: class indices [batch_size] in [0, num_classes)
func (c *CrossEntropyLoss) Forward(logits *tensor.Tensor, targets []int32) float32 {
	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("cross entropy: logits must be 2D [batch_size, num_classes], got %v", shape))
	}
	batchSize, numClasses := shape[0], shape[1]
	if len(targets) != batchSize {
		panic(fmt.Sprintf("cross entropy: %d targets for batch of %d", len(targets), batchSize))
	}

	c.probs = tensor.ZerosLike(logits)
	c.targets = targets
	logProbs := make([]float32, numClasses)

	var total float64
	for b := 0; b < batchSize; b++ {
		target := int(targets[b])
		if target < 0 || target >= numClasses {
			panic(fmt.Sprintf("cross entropy: target %d out of range [0, %d)", target, numClasses))
		}
		cpu.LogSoftmaxRow(logProbs, logits.Row(b))
		total -= float64(logProbs[target])

		probs := c.probs.Row(b)
		for j, lp := range logProbs {
			probs[j] = float32(math.Exp(float64(lp)))
		}
	}
	return float32(total / float64(batchSize))
}

// Backward returns dL/dlogits for the last Forward call.
func (c *CrossEntropyLoss) Backward() *tensor.Tensor {
	if c.probs == nil {
		panic("cross entropy: Backward called before Forward")
	}
	grad := c.probs.Clone()
	batchSize := float32(len(c.targets))
	for b, target := range c.targets {
		row := grad.Row(b)
		row[target] -= 1
		for j := range row {
			row[j] /= batchSize
		}
	}
	return grad
}

// Accuracy returns the fraction of rows whose argmax equals the target.
func Accuracy(logits *tensor.Tensor, targets []int32) float32 {
	preds := logits.ArgMaxRows()
	if len(preds) != len(targets) {
		panic(fmt.Sprintf("accuracy: %d predictions for %d targets", len(preds), len(targets)))
	}
	if len(preds) == 0 {
		return 0
	}
	correct := 0
	for i, p := range preds {
		if p == targets[i] {
			correct++
		}
	}
	return float32(correct) / float32(len(preds))
}
