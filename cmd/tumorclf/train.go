package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/born-ml/tumorclf/internal/backend/cpu"
	"github.com/born-ml/tumorclf/internal/config"
	"github.com/born-ml/tumorclf/internal/dataset"
	"github.com/born-ml/tumorclf/internal/metrics"
	"github.com/born-ml/tumorclf/internal/model"
	"github.com/born-ml/tumorclf/internal/nn"
	"github.com/born-ml/tumorclf/internal/plot"
	"github.com/born-ml/tumorclf/internal/report"
	"github.com/born-ml/tumorclf/internal/storage"
	"github.com/born-ml/tumorclf/internal/train"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func trainCmd() *cobra.Command {
	d := config.Default()
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the classifier and report test-set statistics",
		Long: `Load MRI slices, split them 70/15/15 into training, validation and test
sets, train the network, then write the accuracy curve and confusion
matrix plots and append the per-class statistics to the stats file.

Images are read from <input_dir>/{glioma,meningioma,pituitary}. The crop
and segment processes use a <name>_mask.png tumor mask next to each image.`,
		Args: cobra.NoArgs,
		RunE: runTrain,
	}

	f := cmd.Flags()
	f.Int(config.KeyImageSize, d.ImageSize, "image size in pixels (32, 64 or 128)")
	f.String(config.KeyProcess, d.Process, "image preprocessing (uncrop, crop, segment)")
	f.String(config.KeyInputDir, d.InputDir, "dataset root directory")
	f.Float64(config.KeyLR, d.LR, "learning rate")
	f.Int(config.KeyEpochs, d.Epochs, "number of training epochs")
	f.Int(config.KeyBatchSize, d.BatchSize, "mini-batch size")
	f.Int64(config.KeySeed, d.Seed, "seed for splitting, shuffling and initialization")
	f.String(config.KeyOptimizer, d.Optimizer, "optimizer (adam, sgd)")
	f.String(config.KeyVizDir, d.VizDir, "directory for plots")
	f.String(config.KeyStatsFile, d.StatsFile, "file the statistics line is appended to")
	f.String(config.KeyDB, d.DB, "SQLite run history database (empty disables)")
	f.String(config.KeyCheckpoint, d.Checkpoint, "write trained weights to this file (empty disables)")
	f.Int(config.KeySynthetic, d.Synthetic, "train on n generated samples instead of input_dir")

	config.SetDefaults(viper.GetViper())
	f.VisitAll(func(fl *pflag.Flag) {
		_ = viper.BindPFlag(fl.Name, fl)
	})

	return cmd
}

func runTrain(cmd *cobra.Command, _ []string) error {
	cfg := config.FromViper(viper.GetViper())
	if err := cfg.Validate(); err != nil {
		return err
	}

	_, err := trainAndReport(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	return err
}

// trainResult is what a completed run produced.
type trainResult struct {
	History   *train.History
	Confusion metrics.ConfusionMatrix
	Stats     *metrics.Stats
	RunID     int64
}

func trainAndReport(ctx context.Context, cfg config.Train, out, progress io.Writer) (*trainResult, error) {
	start := time.Now()

	data, err := loadData(ctx, cfg)
	if err != nil {
		return nil, err
	}

	splits, err := dataset.Split(data, cfg.ImageSize, dataset.DefaultRatios, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to split dataset: %w", err)
	}
	slog.InfoContext(ctx, "dataset ready",
		"train", splits.Train.Len(),
		"validation", splits.Validation.Len(),
		"test", splits.Test.Len(),
		"class_counts", data.ClassCounts())

	backend := cpu.New()
	net, err := model.New(cfg.ImageSize, backend, rand.New(rand.NewSource(cfg.Seed)))
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "model built",
		"parameters", nn.CountParameters(net),
		"workers", backend.Workers())

	trainer, err := train.New(net, train.Config{
		Epochs:    cfg.Epochs,
		BatchSize: cfg.BatchSize,
		LR:        float32(cfg.LR),
		Optimizer: cfg.Optimizer,
		ImageSize: cfg.ImageSize,
		Seed:      cfg.Seed,
	}, train.WithLogger(slog.Default()), train.WithProgress(progress))
	if err != nil {
		return nil, err
	}

	hist, err := trainer.Fit(ctx, splits.Train, splits.Validation)
	if err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}

	curvePath := plot.AccuracyCurvePath(cfg.VizDir, cfg.Process, cfg.ImageSize)
	if err := plot.AccuracyCurve(hist, cfg.Process, curvePath); err != nil {
		return nil, fmt.Errorf("failed to plot accuracy: %w", err)
	}

	predictions := trainer.Predict(splits.Test)
	cm, err := metrics.NewConfusionMatrix(splits.Test.Labels, predictions, dataset.NumClasses)
	if err != nil {
		return nil, err
	}
	stats, err := metrics.ComputeStats(cm)
	if err != nil {
		return nil, err
	}

	if err := report.Summary(out, cm, stats); err != nil {
		return nil, err
	}

	cmPath := plot.ConfusionMatrixPath(cfg.VizDir, cfg.Process, cfg.ImageSize)
	if err := plot.ConfusionMatrix(cm, dataset.Categories, "Confusion Matrix", cmPath); err != nil {
		return nil, fmt.Errorf("failed to plot confusion matrix: %w", err)
	}

	if err := report.AppendStats(cfg.StatsFile, cfg.Process, cfg.ImageSize, stats); err != nil {
		return nil, err
	}

	res := &trainResult{History: hist, Confusion: cm, Stats: stats}

	if cfg.Checkpoint != "" {
		meta := map[string]string{
			"process":    cfg.Process,
			"image_size": strconv.Itoa(cfg.ImageSize),
			"epochs":     strconv.Itoa(hist.Epochs()),
			"seed":       strconv.FormatInt(cfg.Seed, 10),
		}
		if err := nn.SaveCheckpoint(cfg.Checkpoint, net, meta); err != nil {
			return nil, fmt.Errorf("failed to save checkpoint: %w", err)
		}
		slog.InfoContext(ctx, "checkpoint saved", "path", cfg.Checkpoint)
	}

	if cfg.DB != "" {
		id, err := recordRun(ctx, cfg, hist, cm, stats)
		if err != nil {
			return nil, err
		}
		res.RunID = id
	}

	slog.InfoContext(ctx, "run complete",
		"process", cfg.Process,
		"image_size", cfg.ImageSize,
		"test_accuracy", metrics.MeanAccuracy(cm),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}

func loadData(ctx context.Context, cfg config.Train) (*dataset.Data, error) {
	if cfg.Synthetic > 0 {
		slog.InfoContext(ctx, "generating synthetic dataset", "samples", cfg.Synthetic)
		return dataset.Synthetic(cfg.Synthetic, cfg.ImageSize, cfg.Seed)
	}

	factor, err := dataset.FactorFor(cfg.ImageSize)
	if err != nil {
		return nil, err
	}
	process, err := dataset.ParseProcess(cfg.Process)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "loading dataset",
		"dir", cfg.InputDir,
		"process", process,
		"factor", factor)
	data, err := dataset.Load(ctx, cfg.InputDir, factor, process)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	return data, nil
}

func recordRun(ctx context.Context, cfg config.Train, hist *train.History, cm metrics.ConfusionMatrix, stats *metrics.Stats) (int64, error) {
	store, err := storage.Open(ctx, cfg.DB)
	if err != nil {
		return 0, fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	run := &storage.Run{
		Process:        cfg.Process,
		ImageSize:      cfg.ImageSize,
		LearningRate:   cfg.LR,
		Epochs:         hist.Epochs(),
		Seed:           cfg.Seed,
		TrainAccuracy:  last(hist.Accuracy),
		ValAccuracy:    last(hist.ValAccuracy),
		Confusion:      cm,
		Stats:          stats,
		CheckpointPath: cfg.Checkpoint,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		return 0, fmt.Errorf("failed to record run: %w", err)
	}
	slog.InfoContext(ctx, "run recorded", "id", run.ID, "db", cfg.DB)
	return run.ID, nil
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}
