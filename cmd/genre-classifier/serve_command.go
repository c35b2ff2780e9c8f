package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/justestif/go-genre-classifier/internal/config"
	"github.com/justestif/go-genre-classifier/internal/genre"
	"github.com/justestif/go-genre-classifier/internal/web"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve predictions over HTTP",
		Long: `Serve loads the trained artifacts once and answers prediction requests.

Configuration comes from the environment (or a .env file):
  GENRE_ADDR               listen address (default 127.0.0.1:8080)
  GENRE_ARTIFACTS          artifact directory (default artifacts)
  GENRE_CONFIDENCE_MODE    probability or margin
  GENRE_TOP_K              ranked genres per result (default 3)
  GENRE_SHUTDOWN_TIMEOUT   graceful shutdown limit (default 10s)
  LOG_LEVEL, LOG_FORMAT    logging`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServe()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd, cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}

			svc, err := genre.Open(cfg.ArtifactDir,
				genre.WithConfidenceMode(genre.Mode(cfg.ConfidenceMode)),
				genre.WithTopK(cfg.TopK),
				genre.WithLogger(logger))
			if err != nil {
				return err
			}
			logger.Info("prediction service ready",
				slog.String("confidence_mode", string(svc.Mode())),
				slog.Int("genres", len(svc.Genres())))

			server, err := web.NewServer(web.ServerConfig{
				Addr:            cfg.Addr,
				Predictor:       svc,
				Logger:          logger,
				ShutdownTimeout: cfg.ShutdownTimeout,
			})
			if err != nil {
				return err
			}
			return server.Run(cmd.Context())
		},
	}
}
