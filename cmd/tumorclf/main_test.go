package main

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/born-ml/tumorclf/internal/backend/cpu"
	"github.com/born-ml/tumorclf/internal/config"
	"github.com/born-ml/tumorclf/internal/model"
	"github.com/born-ml/tumorclf/internal/nn"
	"github.com/born-ml/tumorclf/internal/plot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syntheticConfig(t *testing.T) config.Train {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Synthetic = 30
	cfg.Process = "synthetic"
	cfg.ImageSize = 32
	cfg.Epochs = 2
	cfg.BatchSize = 8
	cfg.VizDir = filepath.Join(dir, "viz")
	cfg.StatsFile = filepath.Join(dir, "stats", "stat.txt")
	cfg.DB = filepath.Join(dir, "runs.db")
	cfg.Checkpoint = filepath.Join(dir, "model.ckpt")
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestTrainAndReport_Synthetic(t *testing.T) {
	if testing.Short() {
		t.Skip("trains a CNN")
	}
	cfg := syntheticConfig(t)

	var out bytes.Buffer
	res, err := trainAndReport(context.Background(), cfg, &out, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, 2, res.History.Epochs())
	assert.Len(t, res.History.ValAccuracy, 2)
	assert.Equal(t, 3, res.Confusion.NumClasses())
	assert.Positive(t, res.RunID)
	assert.Contains(t, out.String(), "confusion matrix:\n")
	assert.Contains(t, out.String(), "sensitivity: [")

	assert.FileExists(t, plot.AccuracyCurvePath(cfg.VizDir, cfg.Process, cfg.ImageSize))
	assert.FileExists(t, plot.ConfusionMatrixPath(cfg.VizDir, cfg.Process, cfg.ImageSize))

	line, err := os.ReadFile(cfg.StatsFile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(line), "synthetic 32 || accuracy: ["))
	assert.True(t, strings.HasSuffix(string(line), "]\n"))

	restored, err := model.New(cfg.ImageSize, cpu.New(), rand.New(rand.NewSource(99)))
	require.NoError(t, err)
	header, err := nn.LoadCheckpoint(cfg.Checkpoint, restored)
	require.NoError(t, err)
	assert.Equal(t, "synthetic", header.Metadata["process"])
	assert.Equal(t, "32", header.Metadata["image_size"])

	cmd := runsCmd()
	var listing bytes.Buffer
	cmd.SetOut(&listing)
	cmd.SetArgs([]string{"--db", cfg.DB})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, listing.String(), "synthetic")
}

func TestTrainAndReport_MissingInputDir(t *testing.T) {
	cfg := syntheticConfig(t)
	cfg.Synthetic = 0
	cfg.Process = "uncrop"
	cfg.InputDir = filepath.Join(t.TempDir(), "missing")

	_, err := trainAndReport(context.Background(), cfg, io.Discard, io.Discard)
	assert.Error(t, err)
}

func TestStatsCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cm.txt")
	require.NoError(t, os.WriteFile(path, []byte("5 1 0\n0 4 1\n1 0 3\n"), 0o600))

	cmd := statsCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{path})
	require.NoError(t, cmd.Execute())

	s := out.String()
	assert.Contains(t, s, "confusion matrix:\n[5 1 0]\n[0 4 1]\n[1 0 3]\n")
	assert.Contains(t, s, "precision: [0.83333333 ")
	assert.Contains(t, s, "Glioma")
	assert.Contains(t, s, "Pituitary Tumor")
}

func TestStatsCmd_Stdin(t *testing.T) {
	cmd := statsCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("1,0\n0,1\n"))
	cmd.SetArgs([]string{"-"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "accuracy: [1.00000000 1.00000000]")
}

func TestStatsCmd_Errors(t *testing.T) {
	cmd := statsCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader("1 2\n3\n"))
	cmd.SetArgs([]string{"-"})
	assert.Error(t, cmd.Execute())

	cmd = statsCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "absent.txt")})
	assert.Error(t, cmd.Execute())
}

func TestRunsCmd_Empty(t *testing.T) {
	cmd := runsCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--db", filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "No runs recorded.")
}

func TestVersionCmd(t *testing.T) {
	cmd := versionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "tumorclf dev\n", out.String())
}
