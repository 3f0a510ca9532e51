package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/born-ml/tumorclf/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRun(process string, created time.Time) *Run {
	cm := metrics.ConfusionMatrix{{5, 1, 0}, {0, 4, 1}, {1, 0, 3}}
	stats, _ := metrics.ComputeStats(cm)
	return &Run{
		Process:       process,
		ImageSize:     64,
		LearningRate:  0.001,
		Epochs:        600,
		Seed:          7,
		TrainAccuracy: 0.95,
		ValAccuracy:   0.88,
		Confusion:     cm,
		Stats:         stats,
		CreatedAt:     created,
	}
}

func TestOpen_Migrates(t *testing.T) {
	s := newTestStorage(t)
	version, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	// Migrating again is a no-op.
	require.NoError(t, s.Migrate(context.Background()))
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "runs.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.SaveRun(context.Background(), testRun("crop", time.Time{})))
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Equal(t, path, s.Path())
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSaveRun_RoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	run := testRun("segment", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	run.CheckpointPath = "/tmp/model.ckpt"
	require.NoError(t, s.SaveRun(ctx, run))
	assert.Positive(t, run.ID)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Process, got.Process)
	assert.Equal(t, run.Confusion, got.Confusion)
	assert.Equal(t, run.Stats.Accuracy, got.Stats.Accuracy)
	assert.Equal(t, run.Seed, got.Seed)
	assert.Equal(t, "/tmp/model.ckpt", got.CheckpointPath)
	assert.True(t, run.CreatedAt.Equal(got.CreatedAt))
}

func TestListRuns_NewestFirstWithLimit(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, process := range []string{"uncrop", "crop", "segment"} {
		require.NoError(t, s.SaveRun(ctx, testRun(process, base.Add(time.Duration(i)*time.Hour))))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "segment", runs[0].Process)
	assert.Equal(t, "crop", runs[1].Process)

	all, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSaveRun_Validation(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.SaveRun(ctx, nil), ErrInvalidInput)

	r := testRun("", time.Time{})
	assert.ErrorIs(t, s.SaveRun(ctx, r), ErrInvalidInput)

	r = testRun("crop", time.Time{})
	r.Confusion = metrics.ConfusionMatrix{{1, 2}}
	assert.ErrorIs(t, s.SaveRun(ctx, r), ErrInvalidInput)

	r = testRun("crop", time.Time{})
	r.Stats = nil
	assert.ErrorIs(t, s.SaveRun(ctx, r), ErrInvalidInput)
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.GetRun(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}
