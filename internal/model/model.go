// Package model defines the tumor classification CNN.
package model

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/tumorclf/internal/backend/cpu"
	"github.com/born-ml/tumorclf/internal/nn"
)

// NumClasses is the size of the logits layer.
const NumClasses = 3

// block is one convolutional stage: Conv2D(relu), BatchNorm, ReLU and an
// optional 2x2 max pool. Convolutions use valid padding and stride 1.
type block struct {
	filters int
	kernel  int
	pool    bool
}

var blocks = []block{
	{filters: 32, kernel: 3, pool: true},
	{filters: 16, kernel: 2, pool: true},
	{filters: 8, kernel: 1, pool: true},
	{filters: 16, kernel: 1, pool: false},
}

// hiddenUnits is the width of the softmax dense layer.
const hiddenUnits = 5

// New builds the classifier for imageSize x imageSize single-channel
// inputs. The network outputs logits [batch, NumClasses].
//
//	4 x [Conv2D -> ReLU -> BatchNorm -> ReLU (-> MaxPool 2x2)]
//	Flatten -> Dense(5) -> Softmax -> Dense(3)
func New(imageSize int, backend *cpu.CPUBackend, rng *rand.Rand) (*nn.Sequential, error) {
	h, w, err := featureSize(imageSize)
	if err != nil {
		return nil, err
	}

	seq := nn.NewSequential()
	inChannels := 1
	for _, b := range blocks {
		seq.Add(nn.NewConv2D(inChannels, b.filters, b.kernel, 1, 0, true, backend, rng))
		seq.Add(nn.NewReLU(backend))
		seq.Add(nn.NewBatchNorm2D(b.filters, nn.DefaultBatchNormMomentum, nn.DefaultBatchNormEpsilon, backend))
		seq.Add(nn.NewReLU(backend))
		if b.pool {
			seq.Add(nn.NewMaxPool2D(2, 2, backend))
		}
		inChannels = b.filters
	}

	seq.Add(nn.NewFlatten())
	seq.Add(nn.NewLinear(inChannels*h*w, hiddenUnits, backend, rng))
	seq.Add(nn.NewSoftmax(backend))
	seq.Add(nn.NewLinear(hiddenUnits, NumClasses, backend, rng))
	return seq, nil
}

// featureSize returns the spatial size after the last block, or an error if
// imageSize is too small for the network.
func featureSize(imageSize int) (int, int, error) {
	size := imageSize
	for i, b := range blocks {
		size = size - b.kernel + 1
		if b.pool {
			size /= 2
		}
		if size < 1 {
			return 0, 0, fmt.Errorf("image size %d too small: block %d output is empty", imageSize, i)
		}
	}
	return size, size, nil
}

// FeatureSize reports the flattened feature count fed to the dense layers.
func FeatureSize(imageSize int) (int, error) {
	h, w, err := featureSize(imageSize)
	if err != nil {
		return 0, err
	}
	return blocks[len(blocks)-1].filters * h * w, nil
}
