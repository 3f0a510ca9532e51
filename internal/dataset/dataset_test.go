package dataset

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func uniformGray(size int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// squareMask marks [lo, hi) x [lo, hi).
func squareMask(size, lo, hi int) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, size, size))
	for y := lo; y < hi; y++ {
		for x := lo; x < hi; x++ {
			m.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return m
}

func TestFactorFor(t *testing.T) {
	for size, want := range map[int]int{32: 16, 64: 8, 128: 4} {
		got, err := FactorFor(size)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := FactorFor(48)
	assert.ErrorIs(t, err, ErrUnsupportedSize)
}

func TestParseProcess(t *testing.T) {
	p, err := ParseProcess(" Crop ")
	require.NoError(t, err)
	assert.Equal(t, Crop, p)

	_, err = ParseProcess("blur")
	assert.ErrorIs(t, err, ErrUnknownProcess)
}

func TestLoad_ClassesAndDownsampling(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "glioma", "a.png"), uniformGray(32, 200))
	writePNG(t, filepath.Join(dir, "glioma", "b.png"), uniformGray(32, 100))
	writePNG(t, filepath.Join(dir, "pituitary", "c.png"), uniformGray(32, 50))
	writePNG(t, filepath.Join(dir, "pituitary", "c_mask.png"), squareMask(32, 0, 8))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "glioma", "notes.txt"), []byte("x"), 0o644))

	data, err := Load(context.Background(), dir, 4, Uncrop)
	require.NoError(t, err)

	require.Equal(t, 3, data.Len())
	assert.Equal(t, []int32{0, 0, 2}, data.Labels)
	assert.Equal(t, []int{2, 0, 1}, data.ClassCounts())
	for _, s := range data.Samples {
		assert.Equal(t, 8, s.Width)
		assert.Equal(t, 8, s.Height)
	}
	assert.InDelta(t, 200.0/255.0, data.Samples[0].Pixels[27], 0.02)
}

func TestLoad_CropUsesMaskBounds(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "meningioma", "m.png"), uniformGray(32, 255))
	writePNG(t, filepath.Join(dir, "meningioma", "m_mask.png"), squareMask(32, 8, 24))

	data, err := Load(context.Background(), dir, 4, Crop)
	require.NoError(t, err)
	require.Equal(t, 1, data.Len())
	assert.Equal(t, 4, data.Samples[0].Width)
	assert.Equal(t, 4, data.Samples[0].Height)
}

func TestLoad_SegmentZeroesOutsideMask(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "glioma", "g.png"), uniformGray(32, 255))
	writePNG(t, filepath.Join(dir, "glioma", "g_mask.png"), squareMask(32, 0, 16))

	data, err := Load(context.Background(), dir, 1, Segment)
	require.NoError(t, err)
	s := data.Samples[0]
	require.Equal(t, 32, s.Width)
	assert.InDelta(t, 1.0, s.Pixels[0], 1e-6)
	assert.InDelta(t, 0.0, s.Pixels[31*32+31], 1e-6)
}

func TestLoad_CropWithoutMaskKeepsWholeSlice(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "glioma", "g.png"), uniformGray(16, 10))

	data, err := Load(context.Background(), dir, 2, Crop)
	require.NoError(t, err)
	assert.Equal(t, 8, data.Samples[0].Width)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(context.Background(), t.TempDir(), 4, Uncrop)
	assert.ErrorIs(t, err, ErrNoSamples)

	_, err = Load(context.Background(), t.TempDir(), 4, Process("blur"))
	assert.ErrorIs(t, err, ErrUnknownProcess)

	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "glioma", "g.png"), uniformGray(8, 10))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Load(ctx, dir, 1, Uncrop)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMaskBounds(t *testing.T) {
	r, ok := maskBounds(squareMask(16, 3, 9))
	require.True(t, ok)
	assert.Equal(t, image.Rect(3, 3, 9, 9), r)

	_, ok = maskBounds(image.NewGray(image.Rect(0, 0, 4, 4)))
	assert.False(t, ok)
}

func TestSplit_PartitionsAndResizes(t *testing.T) {
	data := &Data{}
	for i := 0; i < 20; i++ {
		data.Append(Sample{Pixels: make([]float32, 6*4), Width: 6, Height: 4}, int32(i%3))
	}

	splits, err := Split(data, 8, DefaultRatios, 1)
	require.NoError(t, err)

	assert.Equal(t, 14, splits.Train.Len())
	assert.Equal(t, 3, splits.Validation.Len())
	assert.Equal(t, 3, splits.Test.Len())
	for _, part := range []*Data{splits.Train, splits.Validation, splits.Test} {
		for _, s := range part.Samples {
			assert.Equal(t, 8, s.Width)
			assert.Equal(t, 8, s.Height)
			assert.Len(t, s.Pixels, 64)
		}
	}

	again, err := Split(data, 8, DefaultRatios, 1)
	require.NoError(t, err)
	assert.Equal(t, splits.Test.Labels, again.Test.Labels)
}

func TestSplit_Errors(t *testing.T) {
	_, err := Split(&Data{}, 8, DefaultRatios, 1)
	assert.ErrorIs(t, err, ErrNoSamples)

	data, err := Synthetic(3, 8, 1)
	require.NoError(t, err)
	_, err = Split(data, 8, Ratios{Train: 0.5, Validation: 0.1, Test: 0.1}, 1)
	assert.ErrorIs(t, err, ErrBadRatios)
}

func TestSynthetic_Deterministic(t *testing.T) {
	a, err := Synthetic(9, 16, 42)
	require.NoError(t, err)
	b, err := Synthetic(9, 16, 42)
	require.NoError(t, err)

	assert.Equal(t, a.Labels, b.Labels)
	assert.Equal(t, a.Samples[4].Pixels, b.Samples[4].Pixels)
	assert.Equal(t, []int{3, 3, 3}, a.ClassCounts())
	for _, v := range a.Samples[0].Pixels {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
}

func TestData_Batch(t *testing.T) {
	data, err := Synthetic(4, 8, 1)
	require.NoError(t, err)

	x, labels := data.Batch([]int{3, 1}, 8)
	assert.Equal(t, []int{2, 1, 8, 8}, []int(x.Shape()))
	assert.Equal(t, []int32{0, 1}, labels)
	assert.Equal(t, data.Samples[3].Pixels, x.Data()[:64])

	assert.Panics(t, func() { data.Batch([]int{0}, 16) })
}
