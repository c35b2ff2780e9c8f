package config

import (
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"github.com/justestif/go-genre-classifier/internal/apperrors"
)

// Serve configures the HTTP prediction server. It is read from the
// environment, with a .env file in the working directory filling gaps.
type Serve struct {
	Addr            string        `env:"GENRE_ADDR,default=127.0.0.1:8080" validate:"required"`
	ArtifactDir     string        `env:"GENRE_ARTIFACTS,default=artifacts" validate:"required"`
	ConfidenceMode  string        `env:"GENRE_CONFIDENCE_MODE,default=probability" validate:"oneof=probability margin"`
	TopK            int           `env:"GENRE_TOP_K,default=3" validate:"gte=1,lte=50"`
	ShutdownTimeout time.Duration `env:"GENRE_SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
	LogLevel        string        `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn warning error"`
	LogFormat       string        `env:"LOG_FORMAT,default=text" validate:"oneof=text console json"`
}

// LoadServe reads the serve configuration from the process environment.
// Variables already set win over the .env file.
func LoadServe() (*Serve, error) {
	_ = godotenv.Load()

	var s Serve
	if _, err := env.UnmarshalFromEnviron(&s); err != nil {
		return nil, fmt.Errorf("%w: serve config: %w", apperrors.ErrConfiguration, err)
	}
	return s.validated()
}

// ParseServe reads the serve configuration from an explicit variable set.
func ParseServe(vars map[string]string) (*Serve, error) {
	var s Serve
	if err := env.Unmarshal(env.EnvSet(vars), &s); err != nil {
		return nil, fmt.Errorf("%w: serve config: %w", apperrors.ErrConfiguration, err)
	}
	return s.validated()
}

func (s Serve) validated() (*Serve, error) {
	if err := validate.Struct(s); err != nil {
		return nil, fmt.Errorf("%w: serve config: %w", ErrInvalid, err)
	}
	return &s, nil
}
