package main

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/justestif/go-genre-classifier/internal/logging"
)

// commandContext carries the persistent flags shared by every command.
type commandContext struct {
	logLevel  string
	logFormat string
}

// logger builds a logger writing to the command's stderr. Flags win over
// the level and format a command reads from its own configuration.
func (c *commandContext) logger(cmd *cobra.Command, level, format string) (*slog.Logger, error) {
	if v := strings.TrimSpace(c.logLevel); v != "" {
		level = v
	}
	if v := strings.TrimSpace(c.logFormat); v != "" {
		format = v
	}
	return logging.New(logging.Options{
		Level:  level,
		Format: format,
		Output: cmd.ErrOrStderr(),
	})
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "genre-classifier",
		Short:         "Predict music genres from song lyrics",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&ctx.logFormat, "log-format", "", "Log format (text, json)")

	rootCmd.AddCommand(newTrainCommand(ctx))
	rootCmd.AddCommand(newPredictCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newRunsCommand())
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
