package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDB connects to GENRE_TEST_DATABASE_URL or skips the test.
func testDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("GENRE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("GENRE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.EnsureSchema(ctx))
	return db
}

func TestNew_BadURL(t *testing.T) {
	_, err := New(context.Background(), "://not a url")
	assert.ErrorContains(t, err, "parsing database URL")
}

func TestRecordAndRead(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	cv := 0.75
	now := time.Now().UTC().Truncate(time.Microsecond)
	run := &Run{
		StartedAt:          now.Add(-time.Minute),
		FinishedAt:         now,
		TrainRows:          100,
		TestRows:           3,
		Features:           42,
		Genres:             []string{"Pop", "Rock"},
		ValidationAccuracy: 0.8,
		CVMeanAccuracy:     &cv,
		Epochs:             12,
		ArtifactDir:        "artifacts",
	}
	preds := []Prediction{
		{SongID: "b", Genre: "Rock"},
		{SongID: "a", Genre: "Pop"},
		{SongID: "a", Genre: "Rock"}, // duplicate song: first wins
	}

	require.NoError(t, db.Record(ctx, run, preds))
	require.NotEqual(t, uuid.Nil, run.ID)

	got, err := db.Runs().Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Genres, got.Genres)
	assert.Equal(t, 0.8, got.ValidationAccuracy)
	require.NotNil(t, got.CVMeanAccuracy)
	assert.Equal(t, 0.75, *got.CVMeanAccuracy)

	stored, err := db.Predictions().ForRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, Prediction{RunID: run.ID, SongID: "a", Genre: "Pop"}, stored[0])
	assert.Equal(t, "b", stored[1].SongID)

	_, err = db.Runs().Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLatest(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	future := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Microsecond)
	run := &Run{StartedAt: future, FinishedAt: future, Genres: []string{"Jazz"}, ArtifactDir: "x"}
	require.NoError(t, db.Runs().Create(ctx, run))

	latest, err := db.Runs().Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest.ID)
	assert.Nil(t, latest.CVMeanAccuracy)
}
