package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/justestif/go-genre-classifier/internal/apperrors"
	"github.com/justestif/go-genre-classifier/internal/config"
	"github.com/justestif/go-genre-classifier/internal/db"
)

type runView struct {
	ID                 string         `json:"id"`
	StartedAt          time.Time      `json:"started_at"`
	FinishedAt         time.Time      `json:"finished_at"`
	TrainRows          int            `json:"train_rows"`
	TestRows           int            `json:"test_rows"`
	Features           int            `json:"features"`
	Genres             []string       `json:"genres"`
	Epochs             int            `json:"epochs"`
	ValidationAccuracy float64        `json:"validation_accuracy"`
	CVMeanAccuracy     *float64       `json:"cv_mean_accuracy,omitempty"`
	ArtifactDir        string         `json:"artifact_dir"`
	Predictions        map[string]int `json:"predictions_per_genre,omitempty"`
}

func newRunsCommand() *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded training runs",
	}
	runsCmd.AddCommand(newRunsShowCommand())
	return runsCmd
}

func newRunsShowCommand() *cobra.Command {
	var (
		configPath string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show a recorded run (the latest when no ID is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("%w: no run store configured (set database.url or %s)",
					apperrors.ErrConfiguration, config.DatabaseURLEnv)
			}
			database, err := db.New(cmd.Context(), cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("connecting to run store: %w", err)
			}
			defer database.Close()

			var run *db.Run
			if len(args) == 1 {
				id, perr := uuid.Parse(args[0])
				if perr != nil {
					return fmt.Errorf("%w: run ID %q: %w", apperrors.ErrInputValidation, args[0], perr)
				}
				run, err = database.Runs().Get(cmd.Context(), id)
			} else {
				run, err = database.Runs().Latest(cmd.Context())
			}
			if errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("no recorded run found: %w", err)
			}
			if err != nil {
				return err
			}

			preds, err := database.Predictions().ForRun(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			view := newRunView(run, preds)
			if asJSON {
				return writeJSON(cmd, view)
			}
			printRun(cmd.OutOrStdout(), view)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML configuration file holding database.url")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newRunView(run *db.Run, preds []db.Prediction) runView {
	v := runView{
		ID:                 run.ID.String(),
		StartedAt:          run.StartedAt,
		FinishedAt:         run.FinishedAt,
		TrainRows:          run.TrainRows,
		TestRows:           run.TestRows,
		Features:           run.Features,
		Genres:             run.Genres,
		Epochs:             run.Epochs,
		ValidationAccuracy: run.ValidationAccuracy,
		CVMeanAccuracy:     run.CVMeanAccuracy,
		ArtifactDir:        run.ArtifactDir,
	}
	if len(preds) > 0 {
		v.Predictions = make(map[string]int)
		for _, p := range preds {
			v.Predictions[p.Genre]++
		}
	}
	return v
}

func printRun(w io.Writer, v runView) {
	fmt.Fprintf(w, "Run %s\n", v.ID)
	fmt.Fprintf(w, "Finished: %s (took %s)\n", v.FinishedAt.Format(time.RFC3339), v.FinishedAt.Sub(v.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "Rows: %d training, %d held-out; %d features; %d epochs\n", v.TrainRows, v.TestRows, v.Features, v.Epochs)
	fmt.Fprintf(w, "Genres: %s\n", strings.Join(v.Genres, ", "))
	fmt.Fprintf(w, "Validation accuracy: %.4f\n", v.ValidationAccuracy)
	if v.CVMeanAccuracy != nil {
		fmt.Fprintf(w, "Cross-validation accuracy: %.4f\n", *v.CVMeanAccuracy)
	}
	fmt.Fprintf(w, "Artifacts: %s\n", v.ArtifactDir)
	for _, g := range v.Genres {
		if n, ok := v.Predictions[g]; ok {
			fmt.Fprintf(w, "  %-20s %d held-out song(s)\n", g, n)
		}
	}
}
