package di

import (
	"errors"
	"flag"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/phishing-detector/internal/config"
	"github.com/mikey/phishing-detector/internal/logging"
	"github.com/mikey/phishing-detector/internal/trainer"
)

// TrainFlags contains the command line flags of the training CLI
type TrainFlags struct {
	Inputs          []string
	OutDir          string
	TestSize        float64
	Seed            int64
	MaxFeatures     int
	PreprocessedDir string
	Verbose         bool
	JSONLog         bool
	ConfigFile      string
}

// ParseTrainFlags parses the training CLI arguments. Remaining positional
// arguments are the CSV inputs.
func ParseTrainFlags(args []string) (*TrainFlags, error) {
	flags := &TrainFlags{}
	fs := flag.NewFlagSet("phish-train", flag.ContinueOnError)

	fs.StringVar(&flags.OutDir, "out", "./model", "Directory the model artifacts are written to")
	fs.Float64Var(&flags.TestSize, "test-size", 0.2, "Fraction of rows held out for evaluation")
	fs.Int64Var(&flags.Seed, "seed", 42, "Seed for the stratified split")
	fs.IntVar(&flags.MaxFeatures, "max-features", 1000, "Vocabulary size cap")
	fs.StringVar(&flags.PreprocessedDir, "preprocessed-dir", "", "Write the cleaned dataset as CSV into this directory")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	fs.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	flags.Inputs = fs.Args()
	if len(flags.Inputs) == 0 {
		return nil, errors.New("at least one CSV input is required")
	}
	return flags, nil
}

// BuildTrainContainer creates the dependency injection container for the
// training CLI
func BuildTrainContainer(flags *TrainFlags) (*dig.Container, error) {
	container := dig.New()

	if err := container.Provide(func() *TrainFlags { return flags }); err != nil {
		return nil, err
	}

	if err := container.Provide(func(flags *TrainFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(func(flags *TrainFlags) (*config.Config, error) {
		if flags.ConfigFile != "" {
			return config.Load(flags.ConfigFile)
		}
		v := config.NewEmptyViper()
		v.Set("model.dir", flags.OutDir)
		v.Set("training.test_size", flags.TestSize)
		v.Set("training.seed", flags.Seed)
		v.Set("vectorizer.max_features", flags.MaxFeatures)
		v.Set("training.preprocessed_dir", flags.PreprocessedDir)
		return config.NewFromViper(v), nil
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *trainer.Trainer {
		return trainer.New(cfg.GetTraining(), logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
