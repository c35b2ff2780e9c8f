package training

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/justestif/go-genre-classifier/internal/artifact"
	"github.com/justestif/go-genre-classifier/internal/classifier"
	"github.com/justestif/go-genre-classifier/internal/dataset"
	"github.com/justestif/go-genre-classifier/internal/db"
	"github.com/justestif/go-genre-classifier/internal/features"
	"github.com/justestif/go-genre-classifier/internal/labels"
	"github.com/justestif/go-genre-classifier/internal/metrics"
	"github.com/justestif/go-genre-classifier/internal/themes"
)

// Result describes a finished run. The fitted components are the ones
// written to Paths.
type Result struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time

	TrainRows int
	TestRows  int
	Features  int
	Genres    []string
	Epochs    int

	ValidationAccuracy float64
	Report             metrics.Report
	CVScores           []float64 // empty when cross-validation is off
	CVMean             float64

	Predictions   []dataset.Prediction
	Themes        []themes.Theme
	ThemeOutliers int

	Paths          artifact.Paths
	SubmissionPath string

	Vectorizer *features.Vectorizer
	Model      *classifier.Model
	Codec      *labels.Codec
}

// Duration returns how long the run took.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// WriteReport writes a human-readable summary of the run to w.
func (r *Result) WriteReport(w io.Writer) {
	fmt.Fprintf(w, "Run %s\n", r.RunID)
	fmt.Fprintf(w, "Training rows: %d, held-out rows: %d, features: %d, epochs: %d\n\n",
		r.TrainRows, r.TestRows, r.Features, r.Epochs)

	fmt.Fprintf(w, "Validation accuracy: %.4f\n\n", r.ValidationAccuracy)
	r.Report.Render(w)

	if len(r.CVScores) > 0 {
		scores := lo.Map(r.CVScores, func(s float64, _ int) string { return fmt.Sprintf("%.4f", s) })
		fmt.Fprintf(w, "\nCross-validation accuracy: %.4f (folds: %s)\n", r.CVMean, strings.Join(scores, ", "))
	}

	if len(r.Themes) > 0 || r.ThemeOutliers > 0 {
		fmt.Fprintf(w, "\n%s", themes.FormatSummary(r.Themes, r.ThemeOutliers))
	}

	if r.SubmissionPath != "" {
		fmt.Fprintf(w, "\nPredictions written to %s\n", r.SubmissionPath)
	}
}

func (r *Result) run(artifactDir string) *db.Run {
	run := &db.Run{
		ID:                 r.RunID,
		StartedAt:          r.StartedAt,
		FinishedAt:         r.FinishedAt,
		TrainRows:          r.TrainRows,
		TestRows:           r.TestRows,
		Features:           r.Features,
		Genres:             r.Genres,
		ValidationAccuracy: r.ValidationAccuracy,
		Epochs:             r.Epochs,
		ArtifactDir:        artifactDir,
	}
	if len(r.CVScores) > 0 {
		mean := r.CVMean
		run.CVMeanAccuracy = &mean
	}
	return run
}

func (r *Result) dbPredictions() []db.Prediction {
	return lo.Map(r.Predictions, func(p dataset.Prediction, _ int) db.Prediction {
		return db.Prediction{RunID: r.RunID, SongID: p.ID, Genre: p.Genre}
	})
}
