package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/born-ml/tumorclf/internal/metrics"
)

// Run is the record of one train-and-evaluate invocation.
type Run struct {
	CreatedAt      time.Time
	Stats          *metrics.Stats
	Process        string
	CheckpointPath string
	Confusion      metrics.ConfusionMatrix
	ID             int64
	ImageSize      int
	Epochs         int
	Seed           int64
	LearningRate   float64
	TrainAccuracy  float64
	ValAccuracy    float64
}

func validateRun(r *Run) error {
	if r == nil {
		return fmt.Errorf("%w: nil run", ErrInvalidInput)
	}
	if r.Process == "" {
		return fmt.Errorf("%w: empty process", ErrInvalidInput)
	}
	if r.ImageSize <= 0 || r.Epochs < 0 {
		return fmt.Errorf("%w: image size %d, epochs %d", ErrInvalidInput, r.ImageSize, r.Epochs)
	}
	if err := r.Confusion.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if r.Stats == nil {
		return fmt.Errorf("%w: nil stats", ErrInvalidInput)
	}
	return nil
}

// SaveRun inserts r and sets its ID. A zero CreatedAt is set to now.
func (s *SQLiteStorage) SaveRun(ctx context.Context, r *Run) error {
	if err := validateRun(r); err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	confusion, err := json.Marshal(r.Confusion)
	if err != nil {
		return fmt.Errorf("failed to encode confusion matrix: %w", err)
	}
	stats, err := json.Marshal(r.Stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (process, image_size, learning_rate, epochs, seed,
			train_accuracy, val_accuracy, confusion, stats, checkpoint_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Process, r.ImageSize, r.LearningRate, r.Epochs, r.Seed,
		r.TrainAccuracy, r.ValAccuracy, string(confusion), string(stats),
		r.CheckpointPath, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read run id: %w", err)
	}
	r.ID = id
	return nil
}

const selectRun = `
	SELECT id, process, image_size, learning_rate, epochs, seed,
		train_accuracy, val_accuracy, confusion, stats, checkpoint_path, created_at
	FROM runs`

// ListRuns returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := selectRun + ` ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns the run with id.
func (s *SQLiteStorage) GetRun(ctx context.Context, id int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r         Run
		confusion string
		stats     string
	)
	err := sc.Scan(&r.ID, &r.Process, &r.ImageSize, &r.LearningRate, &r.Epochs, &r.Seed,
		&r.TrainAccuracy, &r.ValAccuracy, &confusion, &stats, &r.CheckpointPath, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(confusion), &r.Confusion); err != nil {
		return nil, fmt.Errorf("failed to decode confusion matrix of run %d: %w", r.ID, err)
	}
	r.Stats = &metrics.Stats{}
	if err := json.Unmarshal([]byte(stats), r.Stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats of run %d: %w", r.ID, err)
	}
	return &r, nil
}
