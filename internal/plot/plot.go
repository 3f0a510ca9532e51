// Package plot renders the training accuracy curve and the confusion
// matrix heat map as PNG files.
package plot

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/born-ml/tumorclf/internal/metrics"
	"github.com/born-ml/tumorclf/internal/train"
	"gonum.org/v1/gonum/mat"
	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Figure size of every saved plot.
const (
	width  = 8 * vg.Inch
	height = 6 * vg.Inch
)

// ErrNoHistory is returned when there is nothing to plot.
var ErrNoHistory = errors.New("plot: empty training history")

var (
	trainColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	valColor   = color.RGBA{R: 255, G: 127, B: 14, A: 255}
)

// AccuracyCurvePath returns <dir>/<process>/training_accuracy<size>1.png.
func AccuracyCurvePath(dir, process string, imageSize int) string {
	return filepath.Join(dir, process, fmt.Sprintf("training_accuracy%d1.png", imageSize))
}

// ConfusionMatrixPath returns <dir>/<process>/confusion_matrix<size>1.png.
func ConfusionMatrixPath(dir, process string, imageSize int) string {
	return filepath.Join(dir, process, fmt.Sprintf("confusion_matrix%d1.png", imageSize))
}

// AccuracyCurve plots training and validation accuracy against epochs and
// saves it to path, creating parent directories.
func AccuracyCurve(hist *train.History, process, path string) error {
	if hist == nil || hist.Epochs() == 0 {
		return ErrNoHistory
	}
	epochs := hist.Epochs()

	p := gplot.New()
	p.Title.Text = fmt.Sprintf("Accuracy vs Epochs for %s images", process)
	p.X.Label.Text = "Epochs"
	p.Y.Label.Text = "Accuracy"
	p.X.Min, p.X.Max = 0, float64(epochs)
	p.Y.Min, p.Y.Max = 0, 1
	p.X.Tick.Marker = gplot.ConstantTicks(epochTicks(epochs))
	p.Y.Tick.Marker = gplot.ConstantTicks(accuracyTicks())
	p.Legend.Top = true
	p.Legend.Left = true
	p.Add(plotter.NewGrid())

	series := []struct {
		name   string
		values []float64
		color  color.Color
	}{
		{"Training_Accuracy", hist.Accuracy, trainColor},
		{"Validation_Accuracy", hist.ValAccuracy, valColor},
	}
	for _, s := range series {
		if len(s.values) == 0 {
			continue
		}
		line, err := plotter.NewLine(epochXYs(s.values))
		if err != nil {
			return fmt.Errorf("plot %s: %w", s.name, err)
		}
		line.LineStyle.Color = s.color
		line.LineStyle.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	return save(p, path)
}

// epochXYs places value i at epoch i+1.
func epochXYs(values []float64) plotter.XYs {
	xys := make(plotter.XYs, len(values))
	for i, v := range values {
		xys[i].X = float64(i + 1)
		xys[i].Y = v
	}
	return xys
}

// epochTicks labels every 100th epoch, or every ceil(epochs/10)th epoch for
// shorter runs.
func epochTicks(epochs int) []gplot.Tick {
	step := 100
	if epochs < 100 {
		step = max(1, int(math.Ceil(float64(epochs)/10)))
	}
	var ticks []gplot.Tick
	for e := 0; e <= epochs; e += step {
		ticks = append(ticks, gplot.Tick{Value: float64(e), Label: strconv.Itoa(e)})
	}
	return ticks
}

// accuracyTicks labels 0.0 to 1.0 in steps of 0.2.
func accuracyTicks() []gplot.Tick {
	ticks := make([]gplot.Tick, 0, 6)
	for i := 0; i <= 5; i++ {
		v := float64(i) * 0.2
		ticks = append(ticks, gplot.Tick{Value: v, Label: strconv.FormatFloat(v, 'f', 1, 64)})
	}
	return ticks
}

// ConfusionMatrix renders cm as a heat map with the count and the share of
// all samples in every cell, and saves it to path. categories label the
// axes; when nil, class indices are used.
func ConfusionMatrix(cm metrics.ConfusionMatrix, categories []string, title, path string) error {
	if err := cm.Validate(); err != nil {
		return err
	}
	n := cm.NumClasses()
	if categories == nil {
		categories = make([]string, n)
		for i := range categories {
			categories[i] = strconv.Itoa(i)
		}
	}
	if len(categories) != n {
		return fmt.Errorf("plot: %d categories for %d classes", len(categories), n)
	}

	grid := newMatrixGrid(cm)
	p := gplot.New()
	p.Title.Text = title
	p.Y.Label.Text = "True label"
	p.X.Label.Text = fmt.Sprintf("Predicted label\n\nAccuracy=%.3f", metrics.MeanAccuracy(cm))

	heat := plotter.NewHeatMap(grid, palette.Heat(16, 1))
	p.Add(heat)

	labels, err := cellLabels(grid, cm.Total())
	if err != nil {
		return err
	}
	p.Add(labels)

	xTicks := make([]gplot.Tick, n)
	yTicks := make([]gplot.Tick, n)
	for i, name := range categories {
		xTicks[i] = gplot.Tick{Value: float64(i), Label: name}
		// Row 0 is drawn at the top.
		yTicks[i] = gplot.Tick{Value: float64(n - 1 - i), Label: name}
	}
	p.X.Tick.Marker = gplot.ConstantTicks(xTicks)
	p.Y.Tick.Marker = gplot.ConstantTicks(yTicks)

	return save(p, path)
}

// matrixGrid adapts a confusion matrix to plotter.GridXYZ with true classes
// as rows from top to bottom and predicted classes as columns.
type matrixGrid struct {
	m   *mat.Dense
	max float64
}

func newMatrixGrid(cm metrics.ConfusionMatrix) *matrixGrid {
	n := cm.NumClasses()
	m := mat.NewDense(n, n, nil)
	for i, row := range cm {
		for j, v := range row {
			m.Set(i, j, float64(v))
		}
	}
	return &matrixGrid{m: m, max: math.Max(1, mat.Max(m))}
}

func (g *matrixGrid) Dims() (c, r int) {
	r, c = g.m.Dims()
	return c, r
}

func (g *matrixGrid) Z(c, r int) float64 {
	rows, _ := g.m.Dims()
	return g.m.At(rows-1-r, c)
}

func (g *matrixGrid) X(c int) float64 { return float64(c) }
func (g *matrixGrid) Y(r int) float64 { return float64(r) }

// Min and Max pin the colour scale to [0, max count].
func (g *matrixGrid) Min() float64 { return 0 }
func (g *matrixGrid) Max() float64 { return g.max }

func cellLabels(g *matrixGrid, total int) (*plotter.Labels, error) {
	cols, rows := g.Dims()
	data := plotter.XYLabels{
		XYs:    make(plotter.XYs, 0, cols*rows),
		Labels: make([]string, 0, cols*rows),
	}
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			count := g.Z(c, r)
			share := 0.0
			if total > 0 {
				share = 100 * count / float64(total)
			}
			data.XYs = append(data.XYs, plotter.XY{X: g.X(c), Y: g.Y(r)})
			data.Labels = append(data.Labels, fmt.Sprintf("%d\n%.2f%%", int(count), share))
		}
	}

	labels, err := plotter.NewLabels(data)
	if err != nil {
		return nil, fmt.Errorf("plot labels: %w", err)
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].XAlign = draw.XCenter
		labels.TextStyle[i].YAlign = draw.YCenter
	}
	return labels, nil
}

func save(p *gplot.Plot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create plot directory: %w", err)
	}
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}
