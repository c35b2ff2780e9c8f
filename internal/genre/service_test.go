package genre

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-genre-classifier/internal/apperrors"
	"github.com/justestif/go-genre-classifier/internal/artifact"
	"github.com/justestif/go-genre-classifier/internal/classifier"
	"github.com/justestif/go-genre-classifier/internal/features"
	"github.com/justestif/go-genre-classifier/internal/labels"
	"github.com/justestif/go-genre-classifier/internal/text"
)

var corpus = []struct {
	lyrics string
	genre  string
}{
	{"Guitar scream, METAL thunder!", "Rock"},
	{"loud guitar riffs and drums", "Rock"},
	{"metal drums scream all night", "Rock"},
	{"thunder guitar amp distortion", "Rock"},
	{"dance baby dance, party tonight", "Pop"},
	{"baby party lights dance floor", "Pop"},
	{"tonight we dance, baby", "Pop"},
	{"party lights, baby, tonight!", "Pop"},
	{"trumpet swing saxophone smoke", "Jazz"},
	{"saxophone blue smoke club", "Jazz"},
	{"swing trumpet club blue notes", "Jazz"},
	{"blue notes saxophone swing", "Jazz"},
}

type fitted struct {
	vec   *features.Vectorizer
	model *classifier.Model
	codec *labels.Codec
}

func fit(t *testing.T) fitted {
	t.Helper()

	docs := make([]string, len(corpus))
	genres := make([]string, len(corpus))
	for i, row := range corpus {
		docs[i] = text.Normalize(row.lyrics)
		genres[i] = row.genre
	}

	codec, err := labels.Fit(genres)
	require.NoError(t, err)
	y, err := codec.EncodeAll(genres)
	require.NoError(t, err)

	vec, err := features.NewVectorizer(features.DefaultConfig())
	require.NoError(t, err)
	X, err := vec.FitTransform(docs)
	require.NoError(t, err)

	model, err := classifier.New(classifier.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, model.Fit(X, y))

	return fitted{vec: vec, model: model, codec: codec}
}

func newService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	f := fit(t)
	s, err := New(f.vec, f.model, f.codec, opts...)
	require.NoError(t, err)
	return s
}

// countingModel records every scoring call and has no probability output.
type countingModel struct {
	dim     int
	classes []int
	calls   atomic.Int64
}

func (m *countingModel) Classes() []int { return m.classes }
func (m *countingModel) Dim() int       { return m.dim }

func (m *countingModel) DecisionFunction(x features.Vector) []float64 {
	m.calls.Add(1)
	scores := make([]float64, len(m.classes))
	for i := range scores {
		scores[i] = float64(i) - 1 // last class wins
	}
	return scores
}

func TestPredictGenre(t *testing.T) {
	s := newService(t)

	tests := []struct {
		lyrics string
		want   string
	}{
		{lyrics: "SCREAM with the guitar and the drums", want: "Rock"},
		{lyrics: "baby let's dance at the party tonight", want: "Pop"},
		{lyrics: "a saxophone plays swing in the smoke", want: "Jazz"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			res, err := s.PredictGenre(tt.lyrics)
			require.NoError(t, err)

			assert.Equal(t, tt.want, res.Genre)
			assert.Equal(t, ModeProbability, res.Mode)
			require.Len(t, res.Alternatives, DefaultTopK)
			assert.Equal(t, res.Genre, res.Alternatives[0].Genre)
			assert.InDelta(t, res.Alternatives[0].Score*100, res.Confidence, 1e-9)
			for i := 1; i < len(res.Alternatives); i++ {
				assert.GreaterOrEqual(t, res.Alternatives[i-1].Score, res.Alternatives[i].Score)
			}
		})
	}
}

func TestPredictGenre_EmptyInputSkipsModel(t *testing.T) {
	f := fit(t)
	fake := &countingModel{dim: f.vec.Len(), classes: f.model.Classes()}

	s, err := New(f.vec, fake, f.codec)
	require.NoError(t, err)

	for _, in := range []string{"", "   ", "\n\t "} {
		res, err := s.PredictGenre(in)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, ErrEmptyInput)
		assert.ErrorIs(t, err, apperrors.ErrInputValidation)
		assert.NotErrorIs(t, err, apperrors.ErrArtifactLoad)
	}
	assert.Zero(t, fake.calls.Load())

	_, err = s.PredictGenre("guitar")
	require.NoError(t, err)
	assert.EqualValues(t, 1, fake.calls.Load())
}

func TestPredictGenre_MarginMode(t *testing.T) {
	f := fit(t)
	fake := &countingModel{dim: f.vec.Len(), classes: f.model.Classes()}

	s, err := New(f.vec, fake, f.codec)
	require.NoError(t, err)
	assert.Equal(t, ModeMargin, s.Mode(), "models without probabilities fall back to margins")

	res, err := s.PredictGenre("anything at all")
	require.NoError(t, err)
	assert.Equal(t, "Rock", res.Genre) // last code in sorted order
	assert.Equal(t, ModeMargin, res.Mode)
	assert.InDelta(t, MarginConfidence(1), res.Confidence, 1e-12)
	assert.InDelta(t, 75.0, res.Confidence, 1e-12)
}

func TestPredictGenre_ForcedMarginMode(t *testing.T) {
	s := newService(t, WithConfidenceMode(ModeMargin), WithTopK(2))

	res, err := s.PredictGenre("guitar scream")
	require.NoError(t, err)
	assert.Equal(t, ModeMargin, res.Mode)
	require.Len(t, res.Alternatives, 2)
	assert.InDelta(t, MarginConfidence(res.Alternatives[0].Score), res.Confidence, 1e-12)
}

func TestPredictGenre_ConfidenceInRange(t *testing.T) {
	inputs := []string{
		"x",
		"guitar",
		"baby baby baby baby baby baby baby baby",
		"completely unknown vocabulary everywhere",
		"1234 !!! ###",
		"saxophone guitar party",
	}
	for _, mode := range []Mode{ModeProbability, ModeMargin} {
		s := newService(t, WithConfidenceMode(mode))
		for _, in := range inputs {
			res, err := s.PredictGenre(in)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, res.Confidence, 0.0, "%s %q", mode, in)
			assert.LessOrEqual(t, res.Confidence, 100.0, "%s %q", mode, in)
		}
	}
}

func TestPredictGenre_NeverInventsGenres(t *testing.T) {
	s := newService(t)
	known := s.Genres()
	assert.Equal(t, []string{"Jazz", "Pop", "Rock"}, known)

	for _, in := range []string{"reggae dub bass", "country road truck", "guitar"} {
		res, err := s.PredictGenre(in)
		require.NoError(t, err)
		assert.Contains(t, known, res.Genre)
	}
}

func TestPredictGenre_Concurrent(t *testing.T) {
	s := newService(t)
	want, err := s.PredictGenre("saxophone swing")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.PredictGenre("saxophone swing")
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestLanguageHint(t *testing.T) {
	s := newService(t)
	res, err := s.PredictGenre("I walked along the river in the evening and thought about the people I have loved")
	require.NoError(t, err)
	assert.Contains(t, []string{"", "en"}, res.Language)
}

func TestMarginConfidence(t *testing.T) {
	tests := []struct {
		score float64
		want  float64
	}{
		{score: -5, want: 0},
		{score: -2, want: 0},
		{score: -1, want: 25},
		{score: 0, want: 50},
		{score: 1.5, want: 87.5},
		{score: 2, want: 100},
		{score: 40, want: 100},
		{score: math.NaN(), want: 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, MarginConfidence(tt.score), 1e-12, "score %g", tt.score)
	}

	for s := -3.0; s < 3; s += 0.25 {
		assert.LessOrEqual(t, MarginConfidence(s), MarginConfidence(s+0.25), "monotonic at %g", s)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModeProbability},
		{in: "probability", want: ModeProbability},
		{in: " Margin ", want: ModeMargin},
		{in: "softmax", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, apperrors.ErrConfiguration, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNew_Incompatible(t *testing.T) {
	f := fit(t)

	other, err := features.NewVectorizer(features.Config{MaxFeatures: 2})
	require.NoError(t, err)
	require.NoError(t, other.Fit([]string{"guitar drums", "dance party"}))

	narrow, err := labels.Fit([]string{"Pop"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		vec   *features.Vectorizer
		model Scorer
		codec *labels.Codec
	}{
		{name: "unfitted vectorizer", vec: &features.Vectorizer{}, model: f.model, codec: f.codec},
		{name: "width mismatch", vec: other, model: f.model, codec: f.codec},
		{name: "untrained model", vec: f.vec, model: &countingModel{dim: f.vec.Len()}, codec: f.codec},
		{name: "codes outside codec", vec: f.vec, model: f.model, codec: narrow},
		{name: "missing codec", vec: f.vec, model: f.model, codec: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.vec, tt.model, tt.codec)
			assert.ErrorIs(t, err, ErrIncompatible)
		})
	}
}

func saveArtifacts(t *testing.T, dir string, f fitted) {
	t.Helper()
	p := artifact.PathsIn(dir)
	require.NoError(t, artifact.Save(p.Vectorizer, artifact.KindVectorizer, f.vec))
	require.NoError(t, artifact.Save(p.Classifier, artifact.KindClassifier, f.model))
	require.NoError(t, artifact.Save(p.Labels, artifact.KindLabels, f.codec))
}

func TestOpen_RoundTripPreservesPredictions(t *testing.T) {
	f := fit(t)
	before, err := New(f.vec, f.model, f.codec)
	require.NoError(t, err)

	dir := t.TempDir()
	saveArtifacts(t, dir, f)

	after, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, before.Genres(), after.Genres())

	for _, sample := range []string{"loud guitar scream", "baby dance", "blue saxophone", "nothing known"} {
		want, err := before.PredictGenre(sample)
		require.NoError(t, err)
		got, err := after.PredictGenre(sample)
		require.NoError(t, err)

		assert.Equal(t, want.Genre, got.Genre, sample)
		assert.Equal(t, want.Confidence, got.Confidence, sample)
		assert.Equal(t, want.Alternatives, got.Alternatives, sample)
	}
}

func TestOpen_ArtifactErrors(t *testing.T) {
	f := fit(t)

	t.Run("empty directory", func(t *testing.T) {
		_, err := Open(t.TempDir())
		assert.ErrorIs(t, err, apperrors.ErrArtifactLoad)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("missing labels", func(t *testing.T) {
		dir := t.TempDir()
		saveArtifacts(t, dir, f)
		require.NoError(t, os.Remove(filepath.Join(dir, artifact.LabelsFile)))

		s, err := Open(dir)
		assert.Nil(t, s)
		assert.ErrorIs(t, err, apperrors.ErrArtifactLoad)
	})

	t.Run("corrupt model", func(t *testing.T) {
		dir := t.TempDir()
		saveArtifacts(t, dir, f)
		require.NoError(t, os.WriteFile(filepath.Join(dir, artifact.ClassifierFile), []byte("junk"), 0o644))

		_, err := Open(dir)
		assert.ErrorIs(t, err, apperrors.ErrArtifactLoad)
		assert.NotErrorIs(t, err, apperrors.ErrInputValidation)
	})

	t.Run("swapped files", func(t *testing.T) {
		dir := t.TempDir()
		saveArtifacts(t, dir, f)
		p := artifact.PathsIn(dir)
		require.NoError(t, os.Rename(p.Labels, p.Vectorizer+".tmp"))
		require.NoError(t, os.Rename(p.Vectorizer, p.Labels))
		require.NoError(t, os.Rename(p.Vectorizer+".tmp", p.Vectorizer))

		_, err := Open(dir)
		assert.ErrorIs(t, err, apperrors.ErrArtifactLoad)
	})
}
