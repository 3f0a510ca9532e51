// Package dataset loads brain MRI slices from disk, applies the crop or
// segment preprocessing, downsamples them and splits them into
// train/validation/test partitions.
package dataset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/tumorclf/internal/tensor"
)

// Categories are the display names of the classes, indexed by label.
var Categories = []string{"Glioma", "Meningioma", "Pituitary Tumor"}

// ClassDirs are the class subdirectory names, indexed by label.
var ClassDirs = []string{"glioma", "meningioma", "pituitary"}

// NumClasses is the number of tumor categories.
const NumClasses = 3

// SizeToFactor maps a supported image side length to the downsampling
// factor applied to the 512x512 source slices.
var SizeToFactor = map[int]int{32: 16, 64: 8, 128: 4}

var (
	// ErrUnsupportedSize is returned for an image size without a factor.
	ErrUnsupportedSize = errors.New("unsupported image size")
	// ErrUnknownProcess is returned for an unrecognised process name.
	ErrUnknownProcess = errors.New("unknown process")
	// ErrNoSamples is returned when a directory yields no images.
	ErrNoSamples = errors.New("no samples found")
	// ErrBadRatios is returned when split ratios are invalid.
	ErrBadRatios = errors.New("invalid split ratios")
)

// FactorFor returns the downsampling factor for imageSize.
func FactorFor(imageSize int) (int, error) {
	f, ok := SizeToFactor[imageSize]
	if !ok {
		return 0, fmt.Errorf("%w: %d (want 32, 64 or 128)", ErrUnsupportedSize, imageSize)
	}
	return f, nil
}

// Process selects the preprocessing applied to every slice.
type Process string

// Supported processes.
const (
	Uncrop  Process = "uncrop"  // whole slice
	Crop    Process = "crop"    // bounding box of the tumor mask
	Segment Process = "segment" // zero everything outside the mask
)

// ParseProcess validates a process name.
func ParseProcess(s string) (Process, error) {
	switch p := Process(strings.ToLower(strings.TrimSpace(s))); p {
	case Uncrop, Crop, Segment:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q (want uncrop, crop or segment)", ErrUnknownProcess, s)
	}
}

// Sample is one grayscale image with intensities in [0, 1], row-major.
type Sample struct {
	Pixels []float32
	Width  int
	Height int
}

// Data is a set of labelled samples.
type Data struct {
	Samples []Sample
	Labels  []int32
}

// Len returns the number of samples.
func (d *Data) Len() int {
	return len(d.Samples)
}

// Append adds one labelled sample.
func (d *Data) Append(s Sample, label int32) {
	d.Samples = append(d.Samples, s)
	d.Labels = append(d.Labels, label)
}

// Subset returns the samples at indices, sharing pixel storage.
func (d *Data) Subset(indices []int) *Data {
	out := &Data{
		Samples: make([]Sample, len(indices)),
		Labels:  make([]int32, len(indices)),
	}
	for i, idx := range indices {
		out.Samples[i] = d.Samples[idx]
		out.Labels[i] = d.Labels[idx]
	}
	return out
}

// ClassCounts returns the number of samples per label.
func (d *Data) ClassCounts() []int {
	counts := make([]int, NumClasses)
	for _, l := range d.Labels {
		if int(l) < len(counts) {
			counts[l]++
		}
	}
	return counts
}

// Batch packs the samples at indices into an NCHW tensor
// [len(indices), 1, size, size] with their labels. Every sample must
// already be size x size.
func (d *Data) Batch(indices []int, size int) (*tensor.Tensor, []int32) {
	x := tensor.Zeros(tensor.Shape{len(indices), 1, size, size})
	labels := make([]int32, len(indices))
	data := x.Data()
	plane := size * size
	for i, idx := range indices {
		s := d.Samples[idx]
		if s.Width != size || s.Height != size {
			panic(fmt.Sprintf("dataset: sample %d is %dx%d, want %dx%d", idx, s.Width, s.Height, size, size))
		}
		copy(data[i*plane:(i+1)*plane], s.Pixels)
		labels[i] = d.Labels[idx]
	}
	return x, labels
}

// Splits holds the three partitions used by training.
type Splits struct {
	Train      *Data
	Validation *Data
	Test       *Data
}
