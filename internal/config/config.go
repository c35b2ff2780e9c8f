// Package config loads training configuration from TOML and serving
// configuration from the environment.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/justestif/go-genre-classifier/internal/apperrors"
	"github.com/justestif/go-genre-classifier/internal/classifier"
	"github.com/justestif/go-genre-classifier/internal/dataset"
	"github.com/justestif/go-genre-classifier/internal/features"
	"github.com/justestif/go-genre-classifier/internal/themes"
)

//go:embed sample_config.toml
var sampleConfig string

// DatabaseURLEnv overrides an empty database.url.
const DatabaseURLEnv = "GENRE_DATABASE_URL"

// ErrInvalid is returned when a configuration value is out of range.
var ErrInvalid = fmt.Errorf("%w: invalid config", apperrors.ErrConfiguration)

var validate = validator.New()

// Data locates the input corpora.
type Data struct {
	TrainPath   string `toml:"train_path" validate:"required"`
	TestPath    string `toml:"test_path" validate:"required"`
	TextColumn  string `toml:"text_column" validate:"required"`
	LabelColumn string `toml:"label_column" validate:"required"`
	IDColumn    string `toml:"id_column" validate:"required"`
}

// Features configures the TF-IDF vectorizer.
type Features struct {
	MaxFeatures int `toml:"max_features" validate:"gte=1"`
}

// Model configures the SGD classifier.
type Model struct {
	MaxIter       int     `toml:"max_iter" validate:"gte=1"`
	Tol           float64 `toml:"tol"`
	Alpha         float64 `toml:"alpha" validate:"gt=0"`
	Seed          uint64  `toml:"seed"`
	NIterNoChange int     `toml:"n_iter_no_change" validate:"gte=1"`
}

// Split configures validation.
type Split struct {
	TestSize float64 `toml:"test_size" validate:"gt=0,lt=1"`
	Seed     uint64  `toml:"seed"`
	CVFolds  int     `toml:"cv_folds" validate:"eq=0|gte=2"`
}

// Output locates everything a training run writes.
type Output struct {
	ArtifactDir    string `toml:"artifact_dir" validate:"required"`
	SubmissionPath string `toml:"submission_path" validate:"required"`
}

// Themes configures the optional lyric theme report.
type Themes struct {
	Count          int `toml:"count" validate:"gte=0"`
	MinClusterSize int `toml:"min_cluster_size" validate:"gte=1"`
	MaxTerms       int `toml:"max_terms" validate:"gte=1"`
}

// Database configures the optional run store.
type Database struct {
	URL string `toml:"url"`
}

// Logging configures log output.
type Logging struct {
	Level  string `toml:"level" validate:"oneof=debug info warn warning error"`
	Format string `toml:"format" validate:"oneof=text console json"`
}

// Config is the full training configuration.
type Config struct {
	Data     Data     `toml:"data"`
	Features Features `toml:"features"`
	Model    Model    `toml:"model"`
	Split    Split    `toml:"split"`
	Output   Output   `toml:"output"`
	Themes   Themes   `toml:"themes"`
	Database Database `toml:"database"`
	Logging  Logging  `toml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cols := dataset.DefaultColumns()
	clf := classifier.DefaultConfig()
	th := themes.DefaultConfig()
	return Config{
		Data: Data{
			TrainPath:   "data/train.csv",
			TestPath:    "data/test.csv",
			TextColumn:  cols.Text,
			LabelColumn: cols.Label,
			IDColumn:    cols.ID,
		},
		Features: Features{MaxFeatures: features.DefaultMaxFeatures},
		Model: Model{
			MaxIter:       clf.MaxIter,
			Tol:           clf.Tol,
			Alpha:         clf.Alpha,
			Seed:          clf.Seed,
			NIterNoChange: clf.NIterNoChange,
		},
		Split: Split{
			TestSize: 0.2,
			Seed:     42,
			CVFolds:  3,
		},
		Output: Output{
			ArtifactDir:    "artifacts",
			SubmissionPath: "submission.csv",
		},
		Themes: Themes{
			Count:          0,
			MinClusterSize: th.MinClusterSize,
			MaxTerms:       th.MaxTerms,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the TOML file at path over the defaults and validates the
// result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return finish(Default())
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: config file %s does not exist (create one with 'genre-classifier config init')",
				apperrors.ErrConfiguration, path)
		}
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse decodes TOML from r over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	decoder := toml.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %w", apperrors.ErrConfiguration, err)
	}
	return finish(cfg)
}

func finish(cfg Config) (*Config, error) {
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.Database.URL) == "" {
		c.Database.URL = os.Getenv(DatabaseURLEnv)
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	for _, p := range []*string{&c.Data.TrainPath, &c.Data.TestPath, &c.Output.ArtifactDir, &c.Output.SubmissionPath} {
		if *p != "" {
			*p = filepath.Clean(*p)
		}
	}
}

// Validate reports the first out-of-range value.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s fails %q (got %v)", ErrInvalid, fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Columns returns the CSV column names.
func (d Data) Columns() dataset.Columns {
	return dataset.Columns{Text: d.TextColumn, Label: d.LabelColumn, ID: d.IDColumn}
}

// Vectorizer returns the vectorizer configuration.
func (f Features) Vectorizer() features.Config {
	return features.Config{MaxFeatures: f.MaxFeatures}
}

// Classifier returns the classifier configuration.
func (m Model) Classifier() classifier.Config {
	return classifier.Config{
		MaxIter:       m.MaxIter,
		Tol:           m.Tol,
		Alpha:         m.Alpha,
		Seed:          m.Seed,
		NIterNoChange: m.NIterNoChange,
	}
}

// Enabled reports whether the theme report should run.
func (t Themes) Enabled() bool {
	return t.Count > 0
}

// Detector returns the theme clustering configuration.
func (t Themes) Detector() themes.Config {
	return themes.Config{
		NumThemes:      t.Count,
		MinClusterSize: t.MinClusterSize,
		MaxTerms:       t.MaxTerms,
	}
}

// SampleConfig returns the commented sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes the sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
