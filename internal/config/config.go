// Package config holds the typed configuration of a training run.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/tumorclf/internal/dataset"
	"github.com/born-ml/tumorclf/internal/optim"
	"github.com/spf13/viper"
)

// ErrInvalid is returned by Validate for unusable settings.
var ErrInvalid = errors.New("invalid configuration")

// Viper keys. Flags of the same name bind to them and TUMORCLF_<KEY>
// environment variables override them.
const (
	KeyImageSize  = "image_size"
	KeyProcess    = "process"
	KeyInputDir   = "input_dir"
	KeyLR         = "lr"
	KeyEpochs     = "epochs"
	KeyBatchSize  = "batch_size"
	KeySeed       = "seed"
	KeyOptimizer  = "optimizer"
	KeyVizDir     = "viz_dir"
	KeyStatsFile  = "stats_file"
	KeyDB         = "db"
	KeyCheckpoint = "checkpoint"
	KeySynthetic  = "synthetic"
)

// Defaults.
const (
	DefaultImageSize = 64
	DefaultProcess   = "uncrop"
	DefaultInputDir  = "../data/raw"
	DefaultLR        = 0.001
	DefaultEpochs    = 600
	DefaultBatchSize = 64
	DefaultSeed      = 42
	DefaultOptimizer = "adam"
	DefaultVizDir    = "../visualizations"
	DefaultStatsFile = "../stats/stat.txt"
)

// Train configures the train command.
type Train struct {
	Process    string
	InputDir   string
	Optimizer  string
	VizDir     string
	StatsFile  string
	DB         string
	Checkpoint string
	LR         float64
	ImageSize  int
	Epochs     int
	BatchSize  int
	Synthetic  int
	Seed       int64
}

// Default returns the configuration used when nothing is overridden.
func Default() Train {
	return Train{
		ImageSize: DefaultImageSize,
		Process:   DefaultProcess,
		InputDir:  DefaultInputDir,
		LR:        DefaultLR,
		Epochs:    DefaultEpochs,
		BatchSize: DefaultBatchSize,
		Seed:      DefaultSeed,
		Optimizer: DefaultOptimizer,
		VizDir:    DefaultVizDir,
		StatsFile: DefaultStatsFile,
	}
}

// SetDefaults registers the defaults on v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyImageSize, d.ImageSize)
	v.SetDefault(KeyProcess, d.Process)
	v.SetDefault(KeyInputDir, d.InputDir)
	v.SetDefault(KeyLR, d.LR)
	v.SetDefault(KeyEpochs, d.Epochs)
	v.SetDefault(KeyBatchSize, d.BatchSize)
	v.SetDefault(KeySeed, d.Seed)
	v.SetDefault(KeyOptimizer, d.Optimizer)
	v.SetDefault(KeyVizDir, d.VizDir)
	v.SetDefault(KeyStatsFile, d.StatsFile)
	v.SetDefault(KeyDB, d.DB)
	v.SetDefault(KeyCheckpoint, d.Checkpoint)
	v.SetDefault(KeySynthetic, d.Synthetic)
}

// FromViper reads a Train from v. The result is not validated.
func FromViper(v *viper.Viper) Train {
	return Train{
		ImageSize:  v.GetInt(KeyImageSize),
		Process:    strings.ToLower(strings.TrimSpace(v.GetString(KeyProcess))),
		InputDir:   v.GetString(KeyInputDir),
		LR:         v.GetFloat64(KeyLR),
		Epochs:     v.GetInt(KeyEpochs),
		BatchSize:  v.GetInt(KeyBatchSize),
		Seed:       v.GetInt64(KeySeed),
		Optimizer:  strings.ToLower(strings.TrimSpace(v.GetString(KeyOptimizer))),
		VizDir:     v.GetString(KeyVizDir),
		StatsFile:  v.GetString(KeyStatsFile),
		DB:         v.GetString(KeyDB),
		Checkpoint: v.GetString(KeyCheckpoint),
		Synthetic:  v.GetInt(KeySynthetic),
	}
}

// Validate reports the first unusable setting.
func (c Train) Validate() error {
	if _, err := dataset.FactorFor(c.ImageSize); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	// Any process label is accepted for synthetic runs; it only names outputs.
	if c.Synthetic == 0 {
		if _, err := dataset.ParseProcess(c.Process); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		if c.InputDir == "" {
			return fmt.Errorf("%w: input_dir is empty", ErrInvalid)
		}
	} else if c.Process == "" {
		return fmt.Errorf("%w: process is empty", ErrInvalid)
	}
	switch {
	case c.LR <= 0:
		return fmt.Errorf("%w: lr must be positive, got %g", ErrInvalid, c.LR)
	case c.Epochs <= 0:
		return fmt.Errorf("%w: epochs must be positive, got %d", ErrInvalid, c.Epochs)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalid, c.BatchSize)
	case c.Synthetic < 0:
		return fmt.Errorf("%w: synthetic must not be negative, got %d", ErrInvalid, c.Synthetic)
	case c.VizDir == "":
		return fmt.Errorf("%w: viz_dir is empty", ErrInvalid)
	case c.StatsFile == "":
		return fmt.Errorf("%w: stats_file is empty", ErrInvalid)
	}
	if !optim.Supported(c.Optimizer) {
		return fmt.Errorf("%w: unknown optimizer %q", ErrInvalid, c.Optimizer)
	}
	return nil
}
