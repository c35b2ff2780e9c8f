package classifier

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-genre-classifier/internal/apperrors"
	"github.com/justestif/go-genre-classifier/internal/features"
)

// separable builds rows where class c only fires columns 2c and 2c+1.
func separable(perClass, numClasses int) ([]features.Vector, []int) {
	dim := 2 * numClasses
	var X []features.Vector
	var y []int
	for c := 0; c < numClasses; c++ {
		for i := 0; i < perClass; i++ {
			a := 0.5 + 0.4*float64(i%5)/5
			b := math.Sqrt(1 - a*a)
			X = append(X, features.Vector{
				Dim:     dim,
				Indices: []int{2 * c, 2*c + 1},
				Values:  []float64{a, b},
			})
			y = append(y, c*10) // sparse codes exercise the class mapping
		}
	}
	return X, y
}

func trained(t *testing.T) *Model {
	t.Helper()
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	X, y := separable(20, 3)
	require.NoError(t, m.Fit(X, y))
	return m
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "zero iterations", cfg: Config{MaxIter: 0, Alpha: 1e-4, NIterNoChange: 5}},
		{name: "zero alpha", cfg: Config{MaxIter: 10, Alpha: 0, NIterNoChange: 5}},
		{name: "zero patience", cfg: Config{MaxIter: 10, Alpha: 1e-4, NIterNoChange: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorIs(t, err, apperrors.ErrConfiguration)
		})
	}
}

func TestFit_LearnsSeparableClasses(t *testing.T) {
	m := trained(t)
	X, y := separable(20, 3)

	assert.Equal(t, []int{0, 10, 20}, m.Classes())
	assert.Equal(t, 6, m.Dim())
	assert.Positive(t, m.Epochs())
	assert.LessOrEqual(t, m.Epochs(), DefaultConfig().MaxIter)
	assert.Equal(t, y, m.PredictAll(X))
}

func TestFit_TooFewClasses(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)

	X, _ := separable(5, 1)
	y := make([]int, len(X))
	err = m.Fit(X, y)
	assert.ErrorIs(t, err, ErrTooFewClasses)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
	assert.False(t, m.Trained())
}

func TestFit_ShapeMismatch(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)

	X, y := separable(5, 2)
	assert.ErrorIs(t, m.Fit(X, y[:3]), ErrShapeMismatch)
	assert.ErrorIs(t, m.Fit(nil, nil), ErrShapeMismatch)

	X[3].Dim = 99
	assert.ErrorIs(t, m.Fit(X, y), ErrShapeMismatch)
}

func TestPredictProba_WellFormed(t *testing.T) {
	m := trained(t)
	X, _ := separable(20, 3)
	X = append(X, features.Vector{Dim: 6}) // empty row

	for _, probs := range m.PredictProbaAll(X) {
		require.Len(t, probs, 3)
		var sum float64
		for _, p := range probs {
			assert.GreaterOrEqual(t, p, 0.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	}
}

func TestPredict_AgreesWithProbaArgmax(t *testing.T) {
	m := trained(t)
	X, _ := separable(20, 3)

	for _, x := range X {
		probs := m.PredictProba(x)
		best := 0
		for i, p := range probs {
			if p > probs[best] {
				best = i
			}
		}
		assert.Equal(t, m.Classes()[best], m.Predict(x))
	}
}

func TestFit_Deterministic(t *testing.T) {
	a := trained(t)
	b := trained(t)

	x := features.Vector{Dim: 6, Indices: []int{0, 3}, Values: []float64{0.6, 0.8}}
	assert.Equal(t, a.DecisionFunction(x), b.DecisionFunction(x))
	assert.Equal(t, a.Epochs(), b.Epochs())
}

func TestPredict_WrongWidthPanics(t *testing.T) {
	m := trained(t)
	assert.Panics(t, func() { m.Predict(features.Vector{Dim: 3}) })
}

func TestPredict_UntrainedPanics(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.Panics(t, func() { m.PredictProba(features.Vector{Dim: 6}) })
}

func TestMarshalRoundTrip(t *testing.T) {
	m := trained(t)

	data, err := m.MarshalBinary()
	require.NoError(t, err)

	var restored Model
	require.NoError(t, restored.UnmarshalBinary(data))

	X, _ := separable(20, 3)
	for _, x := range X {
		assert.Equal(t, m.PredictProba(x), restored.PredictProba(x))
		assert.Equal(t, m.Predict(x), restored.Predict(x))
	}
	assert.Equal(t, m.Classes(), restored.Classes())
}

func TestMarshal_Untrained(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	_, err = m.MarshalBinary()
	assert.Error(t, err)
}
