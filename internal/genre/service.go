// Package genre answers "which genre are these lyrics?" from a trained
// vectorizer, classifier and label codec.
package genre

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/justestif/go-genre-classifier/internal/apperrors"
	"github.com/justestif/go-genre-classifier/internal/artifact"
	"github.com/justestif/go-genre-classifier/internal/classifier"
	"github.com/justestif/go-genre-classifier/internal/features"
	"github.com/justestif/go-genre-classifier/internal/labels"
	"github.com/justestif/go-genre-classifier/internal/logging"
	"github.com/justestif/go-genre-classifier/internal/text"
)

// DefaultTopK is the number of ranked genres returned with each prediction.
const DefaultTopK = 3

var (
	// ErrEmptyInput is returned for empty or whitespace-only lyrics.
	ErrEmptyInput = fmt.Errorf("%w: lyrics are empty", apperrors.ErrInputValidation)

	// ErrIncompatible is returned when the components were not trained together.
	ErrIncompatible = fmt.Errorf("%w: incompatible components", apperrors.ErrArtifactLoad)
)

// Mode names how a confidence value was derived.
type Mode string

const (
	// ModeProbability is the top softmax probability times 100.
	ModeProbability Mode = "probability"
	// ModeMargin is MarginConfidence applied to the top decision score.
	ModeMargin Mode = "margin"
)

// ParseMode maps a mode name to a Mode. Empty means ModeProbability.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeProbability:
		return ModeProbability, nil
	case ModeMargin:
		return ModeMargin, nil
	default:
		return "", fmt.Errorf("%w: unknown confidence mode %q", apperrors.ErrConfiguration, s)
	}
}

// Scorer is the part of a classifier the service needs. Models that also
// implement PredictProba(features.Vector) []float64 get probability
// confidences.
type Scorer interface {
	Classes() []int
	Dim() int
	DecisionFunction(x features.Vector) []float64
}

type probabilistic interface {
	PredictProba(x features.Vector) []float64
}

// Alternative is one ranked genre. Score is a probability in
// ModeProbability and a raw decision score in ModeMargin.
type Alternative struct {
	Genre string  `json:"genre"`
	Score float64 `json:"score"`
}

// Result is the answer to one prediction. Alternatives are ranked best
// first, so Alternatives[0] is always Genre.
type Result struct {
	Genre        string        `json:"genre"`
	Confidence   float64       `json:"confidence"`
	Mode         Mode          `json:"mode"`
	Alternatives []Alternative `json:"alternatives"`
	Language     string        `json:"language,omitempty"`
}

// Service predicts genres. It is immutable after construction and safe for
// concurrent use.
type Service struct {
	vec    *features.Vectorizer
	model  Scorer
	proba  probabilistic
	genres []string // genres[c] is the label of model score column c
	mode   Mode
	topK   int
	log    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithConfidenceMode forces a confidence mode. ModeProbability is ignored
// for models without probability output.
func WithConfidenceMode(m Mode) Option {
	return func(s *Service) {
		s.mode = m
	}
}

// WithTopK sets how many ranked genres each result carries.
func WithTopK(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.topK = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// New builds a service from fitted components. The vectorizer width must
// match the model and every model class must decode.
func New(vec *features.Vectorizer, model Scorer, codec *labels.Codec, opts ...Option) (*Service, error) {
	if vec == nil || !vec.Fitted() {
		return nil, fmt.Errorf("%w: vectorizer is not fitted", ErrIncompatible)
	}
	if model == nil || len(model.Classes()) == 0 {
		return nil, fmt.Errorf("%w: model is not trained", ErrIncompatible)
	}
	if codec == nil {
		return nil, fmt.Errorf("%w: no label codec", ErrIncompatible)
	}
	if vec.Len() != model.Dim() {
		return nil, fmt.Errorf("%w: vectorizer has %d features, model expects %d",
			ErrIncompatible, vec.Len(), model.Dim())
	}

	genres := make([]string, 0, len(model.Classes()))
	for _, code := range model.Classes() {
		g, err := codec.Decode(code)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIncompatible, err)
		}
		genres = append(genres, g)
	}

	s := &Service{
		vec:    vec,
		model:  model,
		genres: genres,
		mode:   ModeProbability,
		topK:   DefaultTopK,
		log:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if p, ok := model.(probabilistic); ok && s.mode == ModeProbability {
		s.proba = p
	} else {
		s.mode = ModeMargin
	}
	return s, nil
}

// Open loads the three artifacts in dir and builds a service from them.
// Any missing or corrupt artifact fails with apperrors.ErrArtifactLoad.
func Open(dir string, opts ...Option) (*Service, error) {
	paths := artifact.PathsIn(dir)

	vec := &features.Vectorizer{}
	if err := artifact.Load(paths.Vectorizer, artifact.KindVectorizer, vec); err != nil {
		return nil, err
	}
	model := &classifier.Model{}
	if err := artifact.Load(paths.Classifier, artifact.KindClassifier, model); err != nil {
		return nil, err
	}
	codec := &labels.Codec{}
	if err := artifact.Load(paths.Labels, artifact.KindLabels, codec); err != nil {
		return nil, err
	}

	s, err := New(vec, model, codec, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dir, err)
	}
	s.log.Info("genre model loaded",
		slog.String("dir", dir),
		slog.Int("features", vec.Len()),
		slog.Int("genres", len(s.genres)),
		slog.String("mode", string(s.mode)))
	return s, nil
}

// PredictGenre classifies raw lyrics. Blank input fails with ErrEmptyInput
// before the model is consulted.
func (s *Service) PredictGenre(raw string) (*Result, error) {
	if text.IsBlank(raw) {
		return nil, ErrEmptyInput
	}

	x := s.vec.Transform(text.Normalize(raw))

	var scores []float64
	if s.mode == ModeProbability {
		scores = s.proba.PredictProba(x)
	} else {
		scores = s.model.DecisionFunction(x)
	}
	if len(scores) != len(s.genres) {
		return nil, errors.New("genre: model returned the wrong number of scores")
	}

	order := rank(scores)
	best := order[0]

	res := &Result{
		Genre:    s.genres[best],
		Mode:     s.mode,
		Language: detectLanguage(raw),
	}
	if s.mode == ModeProbability {
		res.Confidence = ProbabilityConfidence(scores[best])
	} else {
		res.Confidence = MarginConfidence(scores[best])
	}

	k := min(s.topK, len(order))
	res.Alternatives = make([]Alternative, k)
	for i, c := range order[:k] {
		res.Alternatives[i] = Alternative{Genre: s.genres[c], Score: scores[c]}
	}

	s.log.Debug("genre predicted",
		slog.String("genre", res.Genre),
		slog.Float64("confidence", res.Confidence),
		slog.Int("terms", x.NNZ()))
	return res, nil
}

// Genres returns the genres the model can predict, in code order.
func (s *Service) Genres() []string {
	return slices.Clone(s.genres)
}

// Mode returns the confidence mode used for every result.
func (s *Service) Mode() Mode {
	return s.mode
}

// rank returns score columns ordered best first; ties keep column order.
func rank(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case scores[a] > scores[b]:
			return -1
		case scores[a] < scores[b]:
			return 1
		}
		return 0
	})
	return order
}

// ProbabilityConfidence scales a probability to [0, 100].
func ProbabilityConfidence(p float64) float64 {
	return clip(p * 100)
}

// MarginConfidence maps a raw decision score to [0, 100] as (score+2)*25,
// clipped. It is a monotonic heuristic, not a calibrated probability: a score
// of -2 or less reads as 0 and a score of 2 or more as 100.
func MarginConfidence(score float64) float64 {
	return clip((score + 2) * 25)
}

func clip(v float64) float64 {
	if v != v { // NaN
		return 0
	}
	return min(max(v, 0), 100)
}

// detectLanguage returns the ISO 639-1 code of raw when the detector is
// confident, else "".
func detectLanguage(raw string) string {
	info := whatlanggo.Detect(raw)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}
