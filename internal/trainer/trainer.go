package trainer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/phishing-detector/internal/artifact"
	"github.com/mikey/phishing-detector/internal/classifier"
	"github.com/mikey/phishing-detector/internal/vectorizer"
)

// Config controls a training run
type Config struct {
	TestSize        float64
	Seed            int64
	MaxFeatures     int
	Fit             classifier.FitOptions
	PreprocessedDir string
}

// DefaultConfig returns the standard training settings
func DefaultConfig() Config {
	return Config{
		TestSize:    0.2,
		Seed:        42,
		MaxFeatures: vectorizer.DefaultMaxFeatures,
		Fit:         classifier.DefaultFitOptions(),
	}
}

// Trainer fits and evaluates phishing models
type Trainer struct {
	cfg    Config
	logger *zap.Logger
}

// Result is the outcome of a training run
type Result struct {
	Vocabulary *vectorizer.Vocabulary
	Model      *classifier.Model
	Fit        *classifier.FitResult
	Metrics    *Metrics // nil when the test partition is empty
	TrainRows  int
	TestRows   int
	Manifest   *artifact.Manifest
}

// New creates a trainer
func New(cfg Config, logger *zap.Logger) *Trainer {
	if cfg.TestSize <= 0 || cfg.TestSize >= 1 {
		cfg.TestSize = 0.2
	}
	return &Trainer{cfg: cfg, logger: logger}
}

// Train fits the vocabulary on the whole cleaned corpus, splits the vectors
// into stratified train and test partitions, fits the classifier on the
// train partition and evaluates it on the test partition.
func (t *Trainer) Train(ctx context.Context, examples []Example) (*Result, error) {
	if len(examples) == 0 {
		return nil, ErrNoValidRows
	}

	corpus := make([]string, len(examples))
	labels := make([]int, len(examples))
	for i, e := range examples {
		corpus[i] = e.Email.Text()
		labels[i] = e.Label
	}

	vocab, err := vectorizer.Fit(corpus, vectorizer.Options{MaxFeatures: t.cfg.MaxFeatures})
	if err != nil {
		return nil, fmt.Errorf("failed to fit vectorizer: %w", err)
	}
	t.logger.Info("Fitted vocabulary", zap.Int("terms", vocab.Size()), zap.Int("documents", len(corpus)))

	vectors := make([]*vectorizer.FeatureVector, len(examples))
	for i, e := range examples {
		if vectors[i], err = vocab.Transform(e.Email); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	split := StratifiedSplit(labels, t.cfg.TestSize, t.cfg.Seed)
	for _, class := range split.TrainOnly {
		t.logger.Warn("Class too small to stratify, kept in training partition", zap.Int("label", class))
	}
	t.logger.Info("Split dataset",
		zap.Int("train", len(split.Train)),
		zap.Int("test", len(split.Test)),
		zap.Int64("seed", t.cfg.Seed))

	trainX, trainY := pick(vectors, labels, split.Train)
	model, fit, err := classifier.Fit(trainX, trainY, t.cfg.Fit)
	if err != nil {
		return nil, fmt.Errorf("failed to fit classifier: %w", err)
	}
	t.logger.Info("Fitted classifier",
		zap.Int("iterations", fit.Iterations),
		zap.Bool("converged", fit.Converged),
		zap.Float64("loss", fit.Loss))

	res := &Result{
		Vocabulary: vocab,
		Model:      model,
		Fit:        fit,
		TrainRows:  len(split.Train),
		TestRows:   len(split.Test),
	}
	if len(split.Test) == 0 {
		t.logger.Warn("Test partition is empty, skipping evaluation")
		return res, nil
	}

	testX, testY := pick(vectors, labels, split.Test)
	predicted := make([]int, len(testX))
	probs := make([]float64, len(testX))
	for i, v := range testX {
		p, err := model.Predict(v)
		if err != nil {
			return nil, err
		}
		predicted[i] = int(p.Label)
		probs[i] = p.Probability
	}

	metrics, err := Evaluate(testY, predicted, probs)
	switch {
	case errors.Is(err, ErrUndefinedAUC):
		t.logger.Warn("ROC-AUC not available, test partition has a single class")
	case err != nil:
		return nil, err
	}
	res.Metrics = metrics

	fields := []zap.Field{
		zap.Float64("accuracy", metrics.Accuracy),
		zap.Float64("precision", metrics.Precision),
		zap.Float64("recall", metrics.Recall),
		zap.Float64("f1", metrics.F1),
	}
	if metrics.HasAUC {
		fields = append(fields, zap.Float64("roc_auc", metrics.AUC))
	}
	t.logger.Info("Evaluated classifier", fields...)
	return res, nil
}

// Run loads the CSV files, optionally writes the cleaned dataset, trains and
// saves the artifact pair into outDir. Nothing is written to outDir unless
// training succeeds.
func (t *Trainer) Run(ctx context.Context, outDir string, paths ...string) (*Result, error) {
	examples, err := t.LoadCSV(ctx, paths...)
	if err != nil {
		return nil, err
	}

	if t.cfg.PreprocessedDir != "" {
		path, err := WritePreprocessed(t.cfg.PreprocessedDir, examples)
		if err != nil {
			return nil, err
		}
		t.logger.Info("Wrote preprocessed dataset", zap.String("path", path))
	}

	res, err := t.Train(ctx, examples)
	if err != nil {
		return nil, err
	}

	opts := artifact.SaveOptions{TrainedAt: time.Now().UTC()}
	if res.Metrics != nil {
		opts.Metrics = map[string]float64{
			"accuracy":  res.Metrics.Accuracy,
			"precision": res.Metrics.Precision,
			"recall":    res.Metrics.Recall,
			"f1":        res.Metrics.F1,
		}
		if res.Metrics.HasAUC {
			opts.Metrics["roc_auc"] = res.Metrics.AUC
		}
	}
	manifest, err := artifact.Save(outDir, res.Vocabulary, res.Model, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to save artifacts: %w", err)
	}
	res.Manifest = manifest
	t.logger.Info("Saved model artifacts",
		zap.String("dir", outDir),
		zap.String("version", manifest.PairID))
	return res, nil
}

func pick(vectors []*vectorizer.FeatureVector, labels []int, idx []int) ([]*vectorizer.FeatureVector, []int) {
	x := make([]*vectorizer.FeatureVector, len(idx))
	y := make([]int, len(idx))
	for i, j := range idx {
		x[i] = vectors[j]
		y[i] = labels[j]
	}
	return x, y
}
