package dataset

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nfnt/resize"
)

const maskSuffix = "_mask"

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// Load reads dir/<class>/*.{png,jpg,jpeg} for every class in ClassDirs,
// applies process and downsamples each slice by factor.
//
// A file named <name>_mask.png next to <name>.<ext> is the tumor mask of
// that slice; masks are never returned as samples. Crop and Segment fall
// back to the whole slice when no mask exists. A missing class directory
// is skipped; a directory tree without any image is ErrNoSamples.
func Load(ctx context.Context, dir string, factor int, process Process) (*Data, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("%w: factor %d", ErrUnsupportedSize, factor)
	}
	if _, err := ParseProcess(string(process)); err != nil {
		return nil, err
	}

	data := &Data{}
	for label, class := range ClassDirs {
		classDir := filepath.Join(dir, class)
		files, err := listImages(classDir)
		if errors.Is(err, fs.ErrNotExist) {
			slog.WarnContext(ctx, "class directory missing", "dir", classDir)
			continue
		}
		if err != nil {
			return nil, err
		}

		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			s, err := loadSample(path, factor, process)
			if err != nil {
				return nil, err
			}
			data.Append(s, int32(label))
		}
		slog.DebugContext(ctx, "loaded class", "class", class, "samples", len(files))
	}

	if data.Len() == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSamples, dir)
	}
	return data, nil
}

// listImages returns the sorted image files of dir, excluding masks.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read class directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !imageExts[ext] {
			continue
		}
		if strings.HasSuffix(strings.TrimSuffix(name, filepath.Ext(name)), maskSuffix) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

func maskPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + maskSuffix + ".png"
}

func loadSample(path string, factor int, process Process) (Sample, error) {
	img, err := decodeFile(path)
	if err != nil {
		return Sample{}, fmt.Errorf("load %s: %w", path, err)
	}
	gray := toGray(img)

	if process != Uncrop {
		mask, err := loadMask(maskPath(path), gray.Bounds())
		if err != nil {
			return Sample{}, err
		}
		if mask != nil {
			gray = preprocess(gray, mask, process)
		}
	}

	return toSample(downsample(gray, factor)), nil
}

// loadMask reads a mask scaled to bounds, or returns nil without error when
// the mask file does not exist.
func loadMask(path string, bounds image.Rectangle) (*image.Gray, error) {
	img, err := decodeFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load mask %s: %w", path, err)
	}
	mb := img.Bounds()
	if mb.Dx() != bounds.Dx() || mb.Dy() != bounds.Dy() {
		img = resize.Resize(uint(bounds.Dx()), uint(bounds.Dy()), img, resize.NearestNeighbor)
	}
	return toGray(img), nil
}

// preprocess applies Crop or Segment given a mask of the same size.
func preprocess(img, mask *image.Gray, process Process) *image.Gray {
	switch process {
	case Crop:
		r, ok := maskBounds(mask)
		if !ok {
			return img
		}
		return cropTo(img, r)
	case Segment:
		return applyMask(img, mask)
	default:
		return img
	}
}
