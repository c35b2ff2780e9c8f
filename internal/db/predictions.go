package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// PredictionRepository handles held-out prediction database operations.
type PredictionRepository struct {
	q querier
}

// InsertBatch stores the predictions of one run. Only the first prediction
// per song is kept; rows already recorded under the run are overwritten.
func (r *PredictionRepository) InsertBatch(ctx context.Context, runID uuid.UUID, preds []Prediction) error {
	if len(preds) == 0 {
		return nil
	}
	preds = lo.UniqBy(preds, func(p Prediction) string { return p.SongID })

	query := `
		INSERT INTO run_predictions (run_id, song_id, genre)
		SELECT $1::uuid, * FROM unnest($2::text[], $3::text[])
		ON CONFLICT (run_id, song_id) DO UPDATE SET
			genre = EXCLUDED.genre
	`

	songIDs := make([]string, len(preds))
	genres := make([]string, len(preds))
	for i, p := range preds {
		songIDs[i] = p.SongID
		genres[i] = p.Genre
	}

	if _, err := r.q.Exec(ctx, query, runID, songIDs, genres); err != nil {
		return fmt.Errorf("batch inserting predictions: %w", err)
	}
	return nil
}

// ForRun retrieves the predictions of a run ordered by song ID.
func (r *PredictionRepository) ForRun(ctx context.Context, runID uuid.UUID) ([]Prediction, error) {
	query := `
		SELECT run_id, song_id, genre
		FROM run_predictions
		WHERE run_id = $1
		ORDER BY song_id
	`
	rows, err := r.q.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("querying predictions: %w", err)
	}
	defer rows.Close()

	var preds []Prediction
	for rows.Next() {
		var p Prediction
		if err := rows.Scan(&p.RunID, &p.SongID, &p.Genre); err != nil {
			return nil, fmt.Errorf("scanning prediction: %w", err)
		}
		preds = append(preds, p)
	}
	return preds, rows.Err()
}
