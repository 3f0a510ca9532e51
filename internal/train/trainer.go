// Package train runs the fit/evaluate/predict loop for a layer-wise model.
package train

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/born-ml/tumorclf/internal/dataset"
	"github.com/born-ml/tumorclf/internal/nn"
	"github.com/born-ml/tumorclf/internal/optim"
	"github.com/schollz/progressbar/v3"
)

// DefaultBatchSize is the mini-batch size used when Config leaves it zero.
const DefaultBatchSize = 64

// ErrEmptyData is returned when training data has no samples.
var ErrEmptyData = errors.New("train: empty dataset")

// Config controls a training run.
type Config struct {
	Epochs    int
	BatchSize int
	LR        float32
	Optimizer string // "adam" (default) or "sgd"
	ImageSize int
	Seed      int64
}

// History records per-epoch metrics. Validation slices are empty when no
// validation data was given.
type History struct {
	Loss        []float64
	Accuracy    []float64
	ValLoss     []float64
	ValAccuracy []float64
}

// Epochs returns the number of completed epochs.
func (h *History) Epochs() int {
	return len(h.Loss)
}

// Trainer fits a model with cross-entropy loss.
type Trainer struct {
	model     nn.Module
	optimizer optim.Optimizer
	criterion *nn.CrossEntropyLoss
	cfg       Config
	rng       *rand.Rand
	logger    *slog.Logger
	progress  io.Writer
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithLogger sets the logger for per-epoch messages.
func WithLogger(l *slog.Logger) Option {
	return func(t *Trainer) { t.logger = l }
}

// WithProgress renders a batch progress bar on w.
func WithProgress(w io.Writer) Option {
	return func(t *Trainer) { t.progress = w }
}

// New creates a trainer for model.
func New(model nn.Module, cfg Config, opts ...Option) (*Trainer, error) {
	if cfg.Epochs <= 0 {
		return nil, fmt.Errorf("train: epochs must be positive, got %d", cfg.Epochs)
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize < 0 {
		return nil, fmt.Errorf("train: batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.ImageSize <= 0 {
		return nil, fmt.Errorf("train: image size must be positive, got %d", cfg.ImageSize)
	}
	opt, err := optim.New(cfg.Optimizer, model.Parameters(), cfg.LR)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	t := &Trainer{
		model:     model,
		optimizer: opt,
		criterion: nn.NewCrossEntropyLoss(),
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Fit trains for cfg.Epochs passes over train, reshuffling every epoch, and
// evaluates val after each epoch. It stops at the next batch boundary when
// ctx is cancelled and returns the history so far with ctx.Err().
func (t *Trainer) Fit(ctx context.Context, train, val *dataset.Data) (*History, error) {
	if train == nil || train.Len() == 0 {
		return nil, ErrEmptyData
	}

	hist := &History{}
	order := make([]int, train.Len())
	for i := range order {
		order[i] = i
	}
	batches := (train.Len() + t.cfg.BatchSize - 1) / t.cfg.BatchSize
	bar := t.newProgressBar(t.cfg.Epochs * batches)
	defer func() {
		if bar != nil {
			_ = bar.Finish()
		}
	}()

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		start := time.Now()
		t.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		if bar != nil {
			bar.Describe(fmt.Sprintf("epoch %d/%d", epoch, t.cfg.Epochs))
		}

		loss, acc, err := t.trainEpoch(ctx, train, order, bar)
		if err != nil {
			return hist, err
		}
		hist.Loss = append(hist.Loss, loss)
		hist.Accuracy = append(hist.Accuracy, acc)

		attrs := []any{
			"epoch", epoch,
			"loss", loss,
			"accuracy", acc,
		}
		if val != nil && val.Len() > 0 {
			valLoss, valAcc := t.Evaluate(val)
			hist.ValLoss = append(hist.ValLoss, valLoss)
			hist.ValAccuracy = append(hist.ValAccuracy, valAcc)
			attrs = append(attrs, "val_loss", valLoss, "val_accuracy", valAcc)
		}
		attrs = append(attrs, "duration", time.Since(start).Round(time.Millisecond))
		t.logger.InfoContext(ctx, "epoch complete", attrs...)
	}
	return hist, nil
}

func (t *Trainer) trainEpoch(ctx context.Context, data *dataset.Data, order []int, bar *progressbar.ProgressBar) (float64, float64, error) {
	nn.SetTraining(t.model, true)

	var lossSum float64
	correct := 0
	for start := 0; start < len(order); start += t.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		end := min(start+t.cfg.BatchSize, len(order))
		x, labels := data.Batch(order[start:end], t.cfg.ImageSize)

		t.optimizer.ZeroGrad()
		logits := t.model.Forward(x)
		loss := t.criterion.Forward(logits, labels)
		t.model.Backward(t.criterion.Backward())
		t.optimizer.Step()

		lossSum += float64(loss) * float64(end-start)
		correct += countCorrect(logits.ArgMaxRows(), labels)

		if bar != nil {
			if err := bar.Add(1); err != nil {
				t.logger.Warn("failed to update progress bar", "error", err)
			}
		}
	}
	n := float64(len(order))
	return lossSum / n, float64(correct) / n, nil
}

// Evaluate returns the mean loss and accuracy over data in inference mode.
func (t *Trainer) Evaluate(data *dataset.Data) (loss, accuracy float64) {
	if data == nil || data.Len() == 0 {
		return 0, 0
	}
	nn.SetTraining(t.model, false)
	defer nn.SetTraining(t.model, true)

	var lossSum float64
	correct := 0
	t.forEachBatch(data, func(indices []int) {
		x, labels := data.Batch(indices, t.cfg.ImageSize)
		logits := t.model.Forward(x)
		lossSum += float64(t.criterion.Forward(logits, labels)) * float64(len(indices))
		correct += countCorrect(logits.ArgMaxRows(), labels)
	})
	n := float64(data.Len())
	return lossSum / n, float64(correct) / n
}

// Predict returns the argmax class of every sample in inference mode.
func (t *Trainer) Predict(data *dataset.Data) []int32 {
	if data == nil || data.Len() == 0 {
		return nil
	}
	nn.SetTraining(t.model, false)
	defer nn.SetTraining(t.model, true)

	preds := make([]int32, 0, data.Len())
	t.forEachBatch(data, func(indices []int) {
		x, _ := data.Batch(indices, t.cfg.ImageSize)
		preds = append(preds, t.model.Forward(x).ArgMaxRows()...)
	})
	return preds
}

func (t *Trainer) forEachBatch(data *dataset.Data, f func(indices []int)) {
	indices := make([]int, 0, t.cfg.BatchSize)
	for start := 0; start < data.Len(); start += t.cfg.BatchSize {
		end := min(start+t.cfg.BatchSize, data.Len())
		indices = indices[:0]
		for i := start; i < end; i++ {
			indices = append(indices, i)
		}
		f(indices)
	}
}

func (t *Trainer) newProgressBar(total int) *progressbar.ProgressBar {
	if t.progress == nil {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(t.progress),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("training"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(t.progress)
		}),
	)
}

func countCorrect(preds, labels []int32) int {
	correct := 0
	for i, p := range preds {
		if p == labels[i] {
			correct++
		}
	}
	return correct
}
