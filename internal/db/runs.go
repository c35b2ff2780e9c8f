package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RunRepository handles training run database operations.
type RunRepository struct {
	q querier
}

const runColumns = `id, started_at, finished_at, train_rows, test_rows, features, genres,
	validation_accuracy, cv_mean_accuracy, epochs, artifact_dir, created_at`

// Create inserts a run. A nil ID is replaced with a new one.
func (r *RunRepository) Create(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO training_runs (id, started_at, finished_at, train_rows, test_rows, features, genres,
			validation_accuracy, cv_mean_accuracy, epochs, artifact_dir, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		RETURNING created_at
	`
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	err := r.q.QueryRow(ctx, query,
		run.ID,
		run.StartedAt,
		run.FinishedAt,
		run.TrainRows,
		run.TestRows,
		run.Features,
		run.Genres,
		run.ValidationAccuracy,
		run.CVMeanAccuracy,
		run.Epochs,
		run.ArtifactDir,
	).Scan(&run.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// Get retrieves a run by ID.
func (r *RunRepository) Get(ctx context.Context, id uuid.UUID) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM training_runs WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

// Latest retrieves the most recently finished run.
func (r *RunRepository) Latest(ctx context.Context) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM training_runs ORDER BY finished_at DESC LIMIT 1`
	return r.scanOne(ctx, query)
}

func (r *RunRepository) scanOne(ctx context.Context, query string, args ...any) (*Run, error) {
	var run Run
	err := r.q.QueryRow(ctx, query, args...).Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.TrainRows,
		&run.TestRows,
		&run.Features,
		&run.Genres,
		&run.ValidationAccuracy,
		&run.CVMeanAccuracy,
		&run.Epochs,
		&run.ArtifactDir,
		&run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return &run, nil
}
