package db

import (
	"time"

	"github.com/google/uuid"
)

// Run is one completed training run.
type Run struct {
	ID                 uuid.UUID
	StartedAt          time.Time
	FinishedAt         time.Time
	TrainRows          int
	TestRows           int
	Features           int
	Genres             []string
	ValidationAccuracy float64
	CVMeanAccuracy     *float64 // nullable - cross-validation disabled
	Epochs             int
	ArtifactDir        string
	CreatedAt          time.Time
}

// Prediction is the genre a run assigned to one held-out song.
type Prediction struct {
	RunID  uuid.UUID
	SongID string
	Genre  string
}
