// Package training runs the offline job that fits, evaluates and persists the
// genre classifier.
package training

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/justestif/go-genre-classifier/internal/artifact"
	"github.com/justestif/go-genre-classifier/internal/classifier"
	"github.com/justestif/go-genre-classifier/internal/config"
	"github.com/justestif/go-genre-classifier/internal/dataset"
	"github.com/justestif/go-genre-classifier/internal/db"
	"github.com/justestif/go-genre-classifier/internal/features"
	"github.com/justestif/go-genre-classifier/internal/labels"
	"github.com/justestif/go-genre-classifier/internal/logging"
	"github.com/justestif/go-genre-classifier/internal/metrics"
	"github.com/justestif/go-genre-classifier/internal/text"
	"github.com/justestif/go-genre-classifier/internal/themes"
)

// Recorder stores a finished run. *db.DB implements it.
type Recorder interface {
	Record(ctx context.Context, run *db.Run, predictions []db.Prediction) error
}

// Pipeline trains a classifier from the configured corpora.
type Pipeline struct {
	cfg      config.Config
	log      *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithRecorder stores every successful run with r.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// New creates a pipeline for cfg.
func New(cfg config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg: cfg,
		log: logging.Discard(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// corpus is the normalized input of a run.
type corpus struct {
	trainDocs   []string
	trainLabels []string
	testDocs    []string
	testIDs     []string
}

// Run executes the whole job. Errors name the stage that failed; the
// context is checked between stages and between cross-validation folds.
// Cross-validation only fails when every genre has fewer rows than folds.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:     uuid.New(),
		StartedAt: p.now(),
	}
	log := p.log.With(slog.String("run_id", res.RunID.String()))

	// 1. Load and normalize both corpora.
	c, err := p.load()
	if err != nil {
		return nil, fmt.Errorf("loading data: %w", err)
	}
	res.TrainRows, res.TestRows = len(c.trainDocs), len(c.testDocs)
	log.Info("data loaded", slog.Int("train_rows", res.TrainRows), slog.Int("test_rows", res.TestRows))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 2. Label codec from training labels only.
	codec, err := labels.Fit(c.trainLabels)
	if err != nil {
		return nil, fmt.Errorf("encoding labels: %w", err)
	}
	y, err := codec.EncodeAll(c.trainLabels)
	if err != nil {
		return nil, fmt.Errorf("encoding labels: %w", err)
	}
	res.Genres = codec.Classes()
	res.Codec = codec

	// 3. Vocabulary from training documents only.
	vec, err := features.NewVectorizer(p.cfg.Features.Vectorizer())
	if err != nil {
		return nil, fmt.Errorf("fitting vectorizer: %w", err)
	}
	if err := vec.Fit(c.trainDocs); err != nil {
		return nil, fmt.Errorf("fitting vectorizer: %w", err)
	}
	res.Features = vec.Len()
	res.Vectorizer = vec
	log.Info("vocabulary fitted", slog.Int("features", vec.Len()), slog.Int("genres", codec.Len()))

	// 4. Transform both corpora.
	X := vec.TransformAll(c.trainDocs)
	XTest := vec.TransformAll(c.testDocs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 5. Stratified train/validation split.
	trainIdx, valIdx, err := dataset.StratifiedSplit(y, p.cfg.Split.TestSize, p.cfg.Split.Seed)
	if err != nil {
		return nil, fmt.Errorf("splitting: %w", describeClassError(err, codec))
	}

	// 6. Fit on the train partition.
	model, err := p.fit(gather(X, trainIdx), gather(y, trainIdx))
	if err != nil {
		return nil, fmt.Errorf("training: %w", err)
	}
	res.Model = model
	res.Epochs = model.Epochs()
	log.Info("model trained", slog.Int("rows", len(trainIdx)), slog.Int("epochs", model.Epochs()))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 7. Validation scores.
	yVal := gather(y, valIdx)
	yPred := model.PredictAll(gather(X, valIdx))
	res.ValidationAccuracy = metrics.Accuracy(yVal, yPred)
	res.Report = metrics.NewReport(yVal, yPred, codec.Classes())
	log.Info("validation scored", slog.Float64("accuracy", res.ValidationAccuracy), slog.Int("rows", len(valIdx)))

	// 8. Optional k-fold cross-validation over all training rows.
	if k := p.cfg.Split.CVFolds; k > 0 {
		for _, cse := range dataset.UndersizedClasses(y, k) {
			name, _ := codec.Decode(cse.Class)
			log.Warn("genre has fewer rows than cross-validation folds; some folds will not test it",
				slog.String("genre", name),
				slog.Int("rows", cse.Members),
				slog.Int("folds", k))
		}
		scores, err := p.crossValidate(ctx, X, y, k)
		if err != nil {
			return nil, fmt.Errorf("cross-validating: %w", describeClassError(err, codec))
		}
		res.CVScores = scores
		res.CVMean = lo.Sum(scores) / float64(len(scores))
		log.Info("cross-validation scored", slog.Int("folds", k), slog.Float64("mean_accuracy", res.CVMean))
	}

	// 9. Held-out predictions, decoded to genre names.
	genres, err := codec.DecodeAll(model.PredictAll(XTest))
	if err != nil {
		return nil, fmt.Errorf("predicting held-out rows: %w", err)
	}
	res.Predictions = make([]dataset.Prediction, len(genres))
	for i, g := range genres {
		res.Predictions[i] = dataset.Prediction{ID: c.testIDs[i], Genre: g}
	}

	if p.cfg.Themes.Enabled() {
		found, outliers, err := themes.Detect(X, c.trainLabels, vec, p.cfg.Themes.Detector())
		if err != nil {
			log.Warn("theme detection failed", slog.String("error", err.Error()))
		} else {
			res.Themes, res.ThemeOutliers = found, outliers
			log.Info("themes detected", slog.Int("themes", len(found)), slog.Int("outliers", outliers))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 10. Persist artifacts and the submission file.
	if err := p.persist(res); err != nil {
		return nil, fmt.Errorf("persisting: %w", err)
	}
	res.FinishedAt = p.now()
	log.Info("artifacts written",
		slog.String("dir", p.cfg.Output.ArtifactDir),
		slog.String("submission", res.SubmissionPath))

	if p.recorder != nil {
		if err := p.recorder.Record(ctx, res.run(p.cfg.Output.ArtifactDir), res.dbPredictions()); err != nil {
			return nil, fmt.Errorf("recording run: %w", err)
		}
		log.Info("run recorded")
	}
	return res, nil
}

func (p *Pipeline) load() (*corpus, error) {
	cols := p.cfg.Data.Columns()

	train, err := dataset.LoadTraining(p.cfg.Data.TrainPath, cols)
	if err != nil {
		return nil, err
	}
	test, err := dataset.LoadTesting(p.cfg.Data.TestPath, cols)
	if err != nil {
		return nil, err
	}

	return &corpus{
		trainDocs:   lo.Map(dataset.Texts(train), func(s string, _ int) string { return text.Normalize(s) }),
		trainLabels: dataset.Labels(train),
		testDocs:    lo.Map(dataset.Texts(test), func(s string, _ int) string { return text.Normalize(s) }),
		testIDs:     lo.Map(test, func(r dataset.Record, _ int) string { return r.ID }),
	}, nil
}

func (p *Pipeline) fit(X []features.Vector, y []int) (*classifier.Model, error) {
	model, err := classifier.New(p.cfg.Model.Classifier())
	if err != nil {
		return nil, err
	}
	if err := model.Fit(X, y); err != nil {
		return nil, err
	}
	return model, nil
}

func (p *Pipeline) crossValidate(ctx context.Context, X []features.Vector, y []int, k int) ([]float64, error) {
	folds, err := dataset.StratifiedKFold(y, k)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, 0, k)
	for i, fold := range folds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		model, err := p.fit(gather(X, fold.Train), gather(y, fold.Train))
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", i+1, err)
		}
		acc := metrics.Accuracy(gather(y, fold.Test), model.PredictAll(gather(X, fold.Test)))
		p.log.Debug("fold scored", slog.Int("fold", i+1), slog.Float64("accuracy", acc))
		scores = append(scores, acc)
	}
	return scores, nil
}

func (p *Pipeline) persist(res *Result) (err error) {
	dir := p.cfg.Output.ArtifactDir
	lock, err := artifact.Lock(dir)
	if err != nil {
		return err
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil && err == nil {
			err = fmt.Errorf("unlocking %s: %w", dir, uerr)
		}
	}()

	paths := artifact.PathsIn(dir)
	if err := artifact.Save(paths.Vectorizer, artifact.KindVectorizer, res.Vectorizer); err != nil {
		return err
	}
	if err := artifact.Save(paths.Classifier, artifact.KindClassifier, res.Model); err != nil {
		return err
	}
	if err := artifact.Save(paths.Labels, artifact.KindLabels, res.Codec); err != nil {
		return err
	}
	res.Paths = paths

	if err := dataset.SavePredictions(p.cfg.Output.SubmissionPath, p.cfg.Data.IDColumn, res.Predictions); err != nil {
		return err
	}
	res.SubmissionPath = p.cfg.Output.SubmissionPath
	return nil
}

// describeClassError replaces the label code in a ClassSizeError with its
// genre name.
func describeClassError(err error, codec *labels.Codec) error {
	cse, ok := dataset.AsClassSizeError(err)
	if !ok {
		return err
	}
	name, derr := codec.Decode(cse.Class)
	if derr != nil {
		return err
	}
	return fmt.Errorf("genre %q has %d row(s), need at least %d: %w",
		name, cse.Members, cse.Required, dataset.ErrTooFewMembers)
}

func gather[T any](xs []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = xs[j]
	}
	return out
}
