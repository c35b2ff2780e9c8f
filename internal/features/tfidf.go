// Package features turns normalized lyrics into TF-IDF vectors over a bounded,
// stop-word filtered unigram vocabulary.
package features

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/justestif/go-genre-classifier/internal/apperrors"
	"github.com/justestif/go-genre-classifier/internal/text"
)

// DefaultMaxFeatures caps the vocabulary when no value is configured.
const DefaultMaxFeatures = 8000

var (
	// ErrZeroFeatures is returned when the vocabulary cap is not positive.
	ErrZeroFeatures = fmt.Errorf("%w: max features must be positive", apperrors.ErrConfiguration)

	// ErrEmptyCorpus is returned when Fit receives no documents.
	ErrEmptyCorpus = fmt.Errorf("%w: empty corpus", apperrors.ErrTrainingData)

	// ErrEmptyVocabulary is returned when no term survives stop-word removal.
	ErrEmptyVocabulary = fmt.Errorf("%w: empty vocabulary; documents only contain stop words", apperrors.ErrTrainingData)
)

// Config holds vectorizer parameters.
type Config struct {
	MaxFeatures int // Vocabulary cap (default: 8000)
}

// DefaultConfig returns the recommended default configuration.
func DefaultConfig() Config {
	return Config{MaxFeatures: DefaultMaxFeatures}
}

// Vectorizer is a TF-IDF vectorizer. It is immutable after Fit and safe for
// concurrent Transform calls.
type Vectorizer struct {
	maxFeatures int
	vocab       []string       // column order, lexicographic
	index       map[string]int // term -> column
	idf         []float64      // per column
	df          []int          // per column, training document frequency
	nDocs       int
}

// NewVectorizer creates an unfitted vectorizer.
func NewVectorizer(cfg Config) (*Vectorizer, error) {
	if cfg.MaxFeatures <= 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrZeroFeatures, cfg.MaxFeatures)
	}
	return &Vectorizer{maxFeatures: cfg.MaxFeatures}, nil
}

// termStats accumulates corpus statistics for one candidate term.
type termStats struct {
	term  string
	df    int
	count int
}

// Fit selects the vocabulary and computes IDF weights from normalized documents.
// Terms are ranked by document frequency, then by total count, then
// lexicographically; the top MaxFeatures are kept.
func (v *Vectorizer) Fit(corpus []string) error {
	if len(corpus) == 0 {
		return ErrEmptyCorpus
	}

	stats := make(map[string]*termStats)
	for _, doc := range corpus {
		seen := make(map[string]bool)
		for _, tok := range text.Tokenize(doc) {
			if text.IsStopWord(tok) {
				continue
			}
			st, ok := stats[tok]
			if !ok {
				st = &termStats{term: tok}
				stats[tok] = st
			}
			st.count++
			if !seen[tok] {
				seen[tok] = true
				st.df++
			}
		}
	}

	if len(stats) == 0 {
		return ErrEmptyVocabulary
	}

	ranked := lo.Values(stats)
	slices.SortFunc(ranked, func(a, b *termStats) int {
		if a.df != b.df {
			return b.df - a.df
		}
		if a.count != b.count {
			return b.count - a.count
		}
		return strings.Compare(a.term, b.term)
	})
	if len(ranked) > v.maxFeatures {
		ranked = ranked[:v.maxFeatures]
	}

	slices.SortFunc(ranked, func(a, b *termStats) int {
		return strings.Compare(a.term, b.term)
	})

	n := len(corpus)
	v.nDocs = n
	v.vocab = make([]string, len(ranked))
	v.index = make(map[string]int, len(ranked))
	v.idf = make([]float64, len(ranked))
	v.df = make([]int, len(ranked))
	for i, st := range ranked {
		v.vocab[i] = st.term
		v.index[st.term] = i
		v.df[i] = st.df
		v.idf[i] = smoothIDF(n, st.df)
	}
	return nil
}

// smoothIDF is ln((1+n)/(1+df)) + 1.
func smoothIDF(n, df int) float64 {
	return math.Log(float64(1+n)/float64(1+df)) + 1
}

// Transform maps one normalized document to an L2-normalized TF-IDF vector.
// Terms outside the vocabulary are ignored. The result always has Len()
// dimensions. Transform panics if the vectorizer was never fitted or loaded.
func (v *Vectorizer) Transform(doc string) Vector {
	if !v.Fitted() {
		panic("features: Transform called on an unfitted Vectorizer")
	}

	counts := make(map[int]int)
	for _, tok := range text.Tokenize(doc) {
		if col, ok := v.index[tok]; ok {
			counts[col]++
		}
	}

	vec := Vector{Dim: len(v.vocab)}
	if len(counts) == 0 {
		return vec
	}

	vec.Indices = lo.Keys(counts)
	slices.Sort(vec.Indices)

	vec.Values = make([]float64, len(vec.Indices))
	for i, col := range vec.Indices {
		vec.Values[i] = float64(counts[col]) * v.idf[col]
	}
	norm := vec.Norm()
	for i := range vec.Values {
		vec.Values[i] /= norm
	}
	return vec
}

// TransformAll transforms each document in order.
func (v *Vectorizer) TransformAll(docs []string) []Vector {
	out := make([]Vector, len(docs))
	for i, d := range docs {
		out[i] = v.Transform(d)
	}
	return out
}

// FitTransform fits on corpus and returns its vectors.
func (v *Vectorizer) FitTransform(corpus []string) ([]Vector, error) {
	if err := v.Fit(corpus); err != nil {
		return nil, err
	}
	return v.TransformAll(corpus), nil
}

// Fitted reports whether a vocabulary is available.
func (v *Vectorizer) Fitted() bool {
	return len(v.vocab) > 0
}

// Len returns the vocabulary size, which is the width of every vector.
func (v *Vectorizer) Len() int {
	return len(v.vocab)
}

// Vocabulary returns the terms in column order.
func (v *Vectorizer) Vocabulary() []string {
	return slices.Clone(v.vocab)
}

// IDF returns the weight of term, if it is in the vocabulary.
func (v *Vectorizer) IDF(term string) (float64, bool) {
	col, ok := v.index[term]
	if !ok {
		return 0, false
	}
	return v.idf[col], true
}

// TopColumns returns up to n columns with the highest training document
// frequency, ties broken by column order.
func (v *Vectorizer) TopColumns(n int) []int {
	cols := lo.Range(len(v.vocab))
	slices.SortStableFunc(cols, func(a, b int) int {
		return v.df[b] - v.df[a]
	})
	if n < len(cols) {
		cols = cols[:n]
	}
	return cols
}

// snapshot is the gob-encoded form of a fitted Vectorizer.
type snapshot struct {
	MaxFeatures int
	Vocab       []string
	IDF         []float64
	DF          []int
	NDocs       int
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (v *Vectorizer) MarshalBinary() ([]byte, error) {
	if !v.Fitted() {
		return nil, errors.New("features: cannot marshal an unfitted Vectorizer")
	}
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(snapshot{
		MaxFeatures: v.maxFeatures,
		Vocab:       v.vocab,
		IDF:         v.idf,
		DF:          v.df,
		NDocs:       v.nDocs,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding vectorizer: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (v *Vectorizer) UnmarshalBinary(data []byte) error {
	var s snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return fmt.Errorf("decoding vectorizer: %w", err)
	}
	if len(s.Vocab) == 0 || len(s.IDF) != len(s.Vocab) || len(s.DF) != len(s.Vocab) {
		return errors.New("decoding vectorizer: inconsistent vocabulary")
	}

	v.maxFeatures = s.MaxFeatures
	v.vocab = s.Vocab
	v.idf = s.IDF
	v.df = s.DF
	v.nDocs = s.NDocs
	v.index = make(map[string]int, len(s.Vocab))
	for i, term := range s.Vocab {
		v.index[term] = i
	}
	return nil
}
