package dataset

import (
	"fmt"
	"math"
	"math/rand"
)

// Synthetic generates n imageSize x imageSize samples, cycling through the
// classes. Each class draws a bright disc at its own position over low
// noise, so the classes are separable by a small CNN. The same seed always
// yields the same data.
func Synthetic(n, imageSize int, seed int64) (*Data, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: n=%d", ErrNoSamples, n)
	}
	if imageSize < 4 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSize, imageSize)
	}

	rng := rand.New(rand.NewSource(seed))
	size := float64(imageSize)
	centers := [NumClasses][2]float64{
		{0.25 * size, 0.25 * size},
		{0.50 * size, 0.50 * size},
		{0.75 * size, 0.75 * size},
	}
	radius := size / 6

	data := &Data{
		Samples: make([]Sample, 0, n),
		Labels:  make([]int32, 0, n),
	}
	for i := 0; i < n; i++ {
		label := i % NumClasses
		cx := centers[label][0] + rng.NormFloat64()*size/32
		cy := centers[label][1] + rng.NormFloat64()*size/32

		s := Sample{
			Pixels: make([]float32, imageSize*imageSize),
			Width:  imageSize,
			Height: imageSize,
		}
		for y := 0; y < imageSize; y++ {
			for x := 0; x < imageSize; x++ {
				v := 0.1 * rng.Float64()
				if math.Hypot(float64(x)-cx, float64(y)-cy) <= radius {
					v += 0.8
				}
				s.Pixels[y*imageSize+x] = clamp01(float32(v))
			}
		}
		data.Append(s, int32(label))
	}
	return data, nil
}
