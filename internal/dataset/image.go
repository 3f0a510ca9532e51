package dataset

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"

	"github.com/nfnt/resize"
)

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// toGray converts any image to an 8-bit grayscale image anchored at (0, 0).
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)))
		}
	}
	return gray
}

// maskBounds returns the bounding box of the non-zero mask pixels and
// whether any were found.
func maskBounds(mask *image.Gray) (image.Rectangle, bool) {
	b := mask.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if mask.GrayAt(x, y).Y == 0 {
				continue
			}
			minX = min(minX, x)
			minY = min(minY, y)
			maxX = max(maxX, x)
			maxY = max(maxY, y)
		}
	}
	if maxX < minX {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

// cropTo copies the r region of img into a new image anchored at (0, 0).
func cropTo(img *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(img.Bounds())
	out := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+r.Dx()],
			img.Pix[(r.Min.Y+y)*img.Stride+r.Min.X:(r.Min.Y+y)*img.Stride+r.Max.X])
	}
	return out
}

// applyMask zeroes every pixel of img where mask is zero. Both images must
// have the same size.
func applyMask(img, mask *image.Gray) *image.Gray {
	out := image.NewGray(img.Bounds())
	copy(out.Pix, img.Pix)
	for i, m := range mask.Pix {
		if m == 0 {
			out.Pix[i] = 0
		}
	}
	return out
}

// downsample shrinks img by factor in both dimensions, keeping at least one
// pixel per side.
func downsample(img image.Image, factor int) image.Image {
	if factor == 1 {
		return img
	}
	b := img.Bounds()
	w := max(1, b.Dx()/factor)
	h := max(1, b.Dy()/factor)
	return resize.Resize(uint(w), uint(h), img, resize.Lanczos3)
}

// resizeSample rescales s to size x size.
func resizeSample(s Sample, size int) Sample {
	if s.Width == size && s.Height == size {
		return s
	}
	img := image.NewGray(image.Rect(0, 0, s.Width, s.Height))
	for i, v := range s.Pixels {
		img.Pix[i] = uint8(clamp01(v)*255 + 0.5)
	}
	return toSample(resize.Resize(uint(size), uint(size), img, resize.Lanczos3))
}

// toSample reads img as grayscale intensities in [0, 1].
func toSample(img image.Image) Sample {
	b := img.Bounds()
	s := Sample{
		Pixels: make([]float32, b.Dx()*b.Dy()),
		Width:  b.Dx(),
		Height: b.Dy(),
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			g := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
			s.Pixels[y*b.Dx()+x] = float32(g.Y) / 65535.0
		}
	}
	return s
}

func clamp01(v float32) float32 {
	return min(max(v, 0), 1)
}
