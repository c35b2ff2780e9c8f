package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/justestif/go-genre-classifier/internal/config"
	"github.com/justestif/go-genre-classifier/internal/db"
	"github.com/justestif/go-genre-classifier/internal/training"
)

func newTrainCommand(ctx *commandContext) *cobra.Command {
	var (
		configPath  string
		trainPath   string
		testPath    string
		artifactDir string
		outPath     string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the classifier and write its artifacts",
		Long: `Train fits the vocabulary, label codec and classifier on the training
corpus, scores a held-out validation split, predicts the test corpus and
writes the three model artifacts plus a submission CSV.

When database.url (or GENRE_DATABASE_URL) is set the run is also recorded
in PostgreSQL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			overrides := map[*string]string{
				&cfg.Data.TrainPath:        trainPath,
				&cfg.Data.TestPath:         testPath,
				&cfg.Output.ArtifactDir:    artifactDir,
				&cfg.Output.SubmissionPath: outPath,
			}
			for field, v := range overrides {
				if v != "" {
					*field = filepath.Clean(v)
				}
			}

			logger, err := ctx.logger(cmd, cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}

			opts := []training.Option{training.WithLogger(logger)}
			if cfg.Database.URL != "" {
				database, err := db.New(cmd.Context(), cfg.Database.URL)
				if err != nil {
					return fmt.Errorf("connecting to run store: %w", err)
				}
				defer database.Close()
				if err := database.EnsureSchema(cmd.Context()); err != nil {
					return err
				}
				opts = append(opts, training.WithRecorder(database))
				logger.Debug("recording runs", slog.String("store", "postgres"))
			}

			res, err := training.New(*cfg, opts...).Run(cmd.Context())
			if err != nil {
				return err
			}
			res.WriteReport(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML configuration file (defaults apply when empty)")
	cmd.Flags().StringVar(&trainPath, "train", "", "Training CSV (overrides data.train_path)")
	cmd.Flags().StringVar(&testPath, "test", "", "Test CSV (overrides data.test_path)")
	cmd.Flags().StringVar(&artifactDir, "artifacts", "", "Artifact directory (overrides output.artifact_dir)")
	cmd.Flags().StringVar(&outPath, "out", "", "Submission CSV (overrides output.submission_path)")
	return cmd
}
