package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/justestif/go-genre-classifier/internal/genre"
)

func newPredictCommand(ctx *commandContext) *cobra.Command {
	var (
		artifactDir string
		topK        int
		mode        string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "predict [lyrics...]",
		Short: "Predict the genre of some lyrics",
		Long: `Predict classifies the lyrics given as arguments, or read from stdin
when no arguments are given, using the artifacts of a previous training run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lyrics := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				lyrics = string(data)
			}

			m, err := genre.ParseMode(mode)
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd, "warn", "text")
			if err != nil {
				return err
			}

			svc, err := genre.Open(artifactDir,
				genre.WithConfidenceMode(m),
				genre.WithTopK(topK),
				genre.WithLogger(logger))
			if err != nil {
				return err
			}

			res, err := svc.PredictGenre(lyrics)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, res)
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&artifactDir, "artifacts", "a", "artifacts", "Directory holding the trained artifacts")
	cmd.Flags().IntVarP(&topK, "top", "k", genre.DefaultTopK, "Number of ranked genres to show")
	cmd.Flags().StringVar(&mode, "mode", string(genre.ModeProbability), "Confidence mode (probability, margin)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printResult(w io.Writer, res *genre.Result) {
	fmt.Fprintf(w, "Genre: %s (%.1f%% confidence, %s)\n", res.Genre, res.Confidence, res.Mode)
	if res.Language != "" {
		fmt.Fprintf(w, "Language: %s\n", res.Language)
	}
	if len(res.Alternatives) > 1 {
		fmt.Fprintln(w, "Ranking:")
		for i, alt := range res.Alternatives {
			fmt.Fprintf(w, "  %d. %-20s %.4f\n", i+1, alt.Genre, alt.Score)
		}
	}
}
