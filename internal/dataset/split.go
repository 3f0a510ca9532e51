package dataset

import (
	"fmt"
	"math"
	"math/rand"
)

// Ratios are the train/validation/test fractions of a split.
type Ratios struct {
	Train      float64
	Validation float64
	Test       float64
}

// DefaultRatios is the 70/15/15 split.
var DefaultRatios = Ratios{Train: 0.70, Validation: 0.15, Test: 0.15}

// Validate checks that all fractions are non-negative and sum to 1.
func (r Ratios) Validate() error {
	if r.Train <= 0 || r.Validation < 0 || r.Test < 0 {
		return fmt.Errorf("%w: %+v", ErrBadRatios, r)
	}
	if sum := r.Train + r.Validation + r.Test; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("%w: fractions sum to %g", ErrBadRatios, sum)
	}
	return nil
}

// Split resizes every sample to imageSize x imageSize, shuffles with seed
// and partitions the data by ratios. The same seed always yields the same
// partitions. Test receives the remainder after rounding.
func Split(data *Data, imageSize int, ratios Ratios, seed int64) (*Splits, error) {
	if err := ratios.Validate(); err != nil {
		return nil, err
	}
	if imageSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSize, imageSize)
	}
	n := data.Len()
	if n == 0 {
		return nil, ErrNoSamples
	}

	resized := &Data{
		Samples: make([]Sample, n),
		Labels:  append([]int32(nil), data.Labels...),
	}
	for i, s := range data.Samples {
		resized.Samples[i] = resizeSample(s, imageSize)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	nTrain := int(math.Round(ratios.Train * float64(n)))
	nVal := int(math.Round(ratios.Validation * float64(n)))
	nTrain = min(nTrain, n)
	nVal = min(nVal, n-nTrain)

	return &Splits{
		Train:      resized.Subset(perm[:nTrain]),
		Validation: resized.Subset(perm[nTrain : nTrain+nVal]),
		Test:       resized.Subset(perm[nTrain+nVal:]),
	}, nil
}
