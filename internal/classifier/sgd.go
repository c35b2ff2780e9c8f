// Package classifier implements multinomial logistic regression trained by
// stochastic gradient descent on log-loss over sparse TF-IDF rows.
package classifier

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/samber/lo"

	"github.com/justestif/go-genre-classifier/internal/apperrors"
	"github.com/justestif/go-genre-classifier/internal/features"
)

var (
	// ErrTooFewClasses is returned when training data holds fewer than two classes.
	ErrTooFewClasses = fmt.Errorf("%w: at least two distinct classes are required", apperrors.ErrConfiguration)

	// ErrInvalidConfig is returned for non-positive iteration counts or penalties.
	ErrInvalidConfig = fmt.Errorf("%w: classifier", apperrors.ErrConfiguration)

	// ErrShapeMismatch is returned when rows, labels or dimensions disagree.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrDiverged is returned when the training loss stops being finite.
	ErrDiverged = errors.New("training diverged")
)

// minScale is the weight scale below which the scale is folded back into the weights.
const minScale = 1e-9

// Config holds training parameters.
type Config struct {
	MaxIter       int     // Maximum passes over the data (default: 1000)
	Tol           float64 // Required epoch loss improvement; negative disables early stopping (default: 1e-3)
	Alpha         float64 // L2 penalty (default: 1e-4)
	Seed          uint64  // Shuffle seed (default: 42)
	NIterNoChange int     // Epochs without improvement before stopping (default: 5)
}

// DefaultConfig returns the recommended default configuration.
func DefaultConfig() Config {
	return Config{
		MaxIter:       1000,
		Tol:           1e-3,
		Alpha:         1e-4,
		Seed:          42,
		NIterNoChange: 5,
	}
}

func (c Config) validate() error {
	switch {
	case c.MaxIter <= 0:
		return fmt.Errorf("%w: max_iter must be positive (got %d)", ErrInvalidConfig, c.MaxIter)
	case c.Alpha <= 0:
		return fmt.Errorf("%w: alpha must be positive (got %g)", ErrInvalidConfig, c.Alpha)
	case c.NIterNoChange <= 0:
		return fmt.Errorf("%w: n_iter_no_change must be positive (got %d)", ErrInvalidConfig, c.NIterNoChange)
	}
	return nil
}

// Model is a linear multi-class classifier. After Fit it is read-only and
// safe for concurrent prediction.
type Model struct {
	cfg       Config
	classes   []int       // sorted training codes; column k of every score vector
	dim       int         // feature width
	coef      [][]float64 // one weight row per class
	intercept []float64
	epochs    int
}

// New creates an untrained model.
func New(cfg Config) (*Model, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Model{cfg: cfg}, nil
}

// Fit trains the model on X and y, replacing any previous fit.
func (m *Model) Fit(X []features.Vector, y []int) error {
	if len(X) != len(y) {
		return fmt.Errorf("%w: %d rows but %d labels", ErrShapeMismatch, len(X), len(y))
	}
	if len(X) == 0 {
		return fmt.Errorf("%w: no training rows", ErrShapeMismatch)
	}

	dim := X[0].Dim
	for i, x := range X {
		if x.Dim != dim {
			return fmt.Errorf("%w: row %d has width %d, want %d", ErrShapeMismatch, i, x.Dim, dim)
		}
	}

	classes := lo.Uniq(y)
	slices.Sort(classes)
	if len(classes) < 2 {
		return fmt.Errorf("%w (got %d)", ErrTooFewClasses, len(classes))
	}
	col := make(map[int]int, len(classes))
	for k, c := range classes {
		col[c] = k
	}
	target := make([]int, len(y))
	for i, label := range y {
		target[i] = col[label]
	}

	k := len(classes)
	w := make([][]float64, k)
	for i := range w {
		w[i] = make([]float64, dim)
	}
	b := make([]float64, k)

	alpha := m.cfg.Alpha
	// "optimal" schedule: eta = 1/(alpha*(t0+t-1)) with t0 chosen so the
	// first step equals the typical weight magnitude.
	typw := math.Sqrt(1.0 / math.Sqrt(alpha))
	t0 := 1.0 / (typw * alpha)

	rng := rand.New(rand.NewPCG(m.cfg.Seed, m.cfg.Seed))
	order := make([]int, len(X))
	for i := range order {
		order[i] = i
	}

	scale := 1.0
	t := 1.0
	scores := make([]float64, k)
	probs := make([]float64, k)
	bestLoss := math.Inf(1)
	noImprovement := 0
	epochs := 0

	for epoch := 0; epoch < m.cfg.MaxIter; epoch++ {
		epochs++
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var sumLoss float64
		for _, i := range order {
			x := X[i]
			eta := 1.0 / (alpha * (t0 + t - 1))

			for c := range k {
				scores[c] = scale*x.Dot(w[c]) + b[c]
			}
			lse := softmaxInto(probs, scores)
			sumLoss += lse - scores[target[i]]

			scale *= math.Max(0, 1-eta*alpha)
			if scale < minScale {
				foldScale(w, scale)
				scale = 1.0
			}

			for c := range k {
				g := probs[c]
				if c == target[i] {
					g -= 1
				}
				if g == 0 {
					continue
				}
				step := eta * g / scale
				for j, idx := range x.Indices {
					w[c][idx] -= step * x.Values[j]
				}
				b[c] -= eta * g
			}
			t++
		}

		loss := sumLoss / float64(len(X))
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return fmt.Errorf("%w at epoch %d", ErrDiverged, epoch+1)
		}
		if m.cfg.Tol >= 0 {
			if loss > bestLoss-m.cfg.Tol {
				noImprovement++
			} else {
				noImprovement = 0
			}
			if loss < bestLoss {
				bestLoss = loss
			}
			if noImprovement >= m.cfg.NIterNoChange {
				break
			}
		}
	}

	foldScale(w, scale)

	m.classes = classes
	m.dim = dim
	m.coef = w
	m.intercept = b
	m.epochs = epochs
	return nil
}

// foldScale multiplies every weight by scale.
func foldScale(w [][]float64, scale float64) {
	if scale == 1 {
		return
	}
	for _, row := range w {
		for i := range row {
			row[i] *= scale
		}
	}
}

// softmaxInto writes softmax(scores) into dst and returns log-sum-exp(scores).
func softmaxInto(dst, scores []float64) float64 {
	maxScore := slices.Max(scores)
	var sum float64
	for i, s := range scores {
		e := math.Exp(s - maxScore)
		dst[i] = e
		sum += e
	}
	for i := range dst {
		dst[i] /= sum
	}
	return maxScore + math.Log(sum)
}

// Trained reports whether Fit has completed or a fitted model was loaded.
func (m *Model) Trained() bool {
	return len(m.classes) > 0
}

// Classes returns the training label codes in score-column order.
func (m *Model) Classes() []int {
	return slices.Clone(m.classes)
}

// Dim returns the feature width the model was trained on.
func (m *Model) Dim() int {
	return m.dim
}

// Epochs returns the number of passes the last Fit made.
func (m *Model) Epochs() int {
	return m.epochs
}

func (m *Model) mustBeTrained(x features.Vector) {
	if !m.Trained() {
		panic("classifier: prediction on an untrained Model")
	}
	if x.Dim != m.dim {
		panic(fmt.Sprintf("classifier: vector width %d does not match model width %d", x.Dim, m.dim))
	}
}

// DecisionFunction returns the raw linear score of x for each class.
func (m *Model) DecisionFunction(x features.Vector) []float64 {
	m.mustBeTrained(x)
	scores := make([]float64, len(m.classes))
	for c := range m.classes {
		scores[c] = x.Dot(m.coef[c]) + m.intercept[c]
	}
	return scores
}

// PredictProba returns class probabilities for x. Entries are non-negative
// and sum to one.
func (m *Model) PredictProba(x features.Vector) []float64 {
	scores := m.DecisionFunction(x)
	probs := make([]float64, len(scores))
	softmaxInto(probs, scores)
	return probs
}

// Predict returns the most likely class code for x. Ties go to the lower code.
func (m *Model) Predict(x features.Vector) int {
	scores := m.DecisionFunction(x)
	best := 0
	for c := 1; c < len(scores); c++ {
		if scores[c] > scores[best] {
			best = c
		}
	}
	return m.classes[best]
}

// PredictAll predicts every row.
func (m *Model) PredictAll(X []features.Vector) []int {
	out := make([]int, len(X))
	for i, x := range X {
		out[i] = m.Predict(x)
	}
	return out
}

// PredictProbaAll returns probability rows for every input row.
func (m *Model) PredictProbaAll(X []features.Vector) [][]float64 {
	out := make([][]float64, len(X))
	for i, x := range X {
		out[i] = m.PredictProba(x)
	}
	return out
}

// snapshot is the gob-encoded form of a trained Model.
type snapshot struct {
	Config    Config
	Classes   []int
	Dim       int
	Coef      [][]float64
	Intercept []float64
	Epochs    int
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m *Model) MarshalBinary() ([]byte, error) {
	if !m.Trained() {
		return nil, errors.New("classifier: cannot marshal an untrained Model")
	}
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(snapshot{
		Config:    m.cfg,
		Classes:   m.classes,
		Dim:       m.dim,
		Coef:      m.coef,
		Intercept: m.intercept,
		Epochs:    m.epochs,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding model: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *Model) UnmarshalBinary(data []byte) error {
	var s snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return fmt.Errorf("decoding model: %w", err)
	}
	if len(s.Classes) < 2 || len(s.Coef) != len(s.Classes) || len(s.Intercept) != len(s.Classes) {
		return errors.New("decoding model: inconsistent class count")
	}
	for _, row := range s.Coef {
		if len(row) != s.Dim {
			return errors.New("decoding model: inconsistent weight width")
		}
	}

	m.cfg = s.Config
	m.classes = s.Classes
	m.dim = s.Dim
	m.coef = s.Coef
	m.intercept = s.Intercept
	m.epochs = s.Epochs
	return nil
}
