package di

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/phishing-detector/internal/artifact"
	"github.com/mikey/phishing-detector/internal/config"
	"github.com/mikey/phishing-detector/internal/core"
	"github.com/mikey/phishing-detector/internal/detector"
	"github.com/mikey/phishing-detector/internal/factory"
	"github.com/mikey/phishing-detector/internal/logging"
	"github.com/mikey/phishing-detector/internal/ports"
	"github.com/mikey/phishing-detector/internal/senderlist"
	"github.com/mikey/phishing-detector/internal/utils"
)

// BuildContainer creates the dependency injection container for the filter
// service. An empty configPath searches the standard config locations.
func BuildContainer(configPath string) (*dig.Container, error) {
	container := dig.New()

	if err := container.Provide(func() (*config.Config, error) {
		return config.Load(configPath)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}
	if err := provideDetector(container); err != nil {
		return nil, err
	}

	// Register prediction cache
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.CacheFactory) (factory.Cache, error) {
		return f.CreateCache(context.Background())
	}); err != nil {
		return nil, err
	}

	// Register email filter
	if err := container.Provide(factory.NewFilterFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.FilterFactory) (ports.EmailFilter, error) {
		return f.CreateEmailFilter()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideDetector registers everything between the config and the detector
// service. The container must already provide *config.Config, *zap.Logger
// and factory.Cache.
func provideDetector(container *dig.Container) error {
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return err
	}

	// Register narrator
	if err := container.Provide(factory.NewNarratorFactory); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.NarratorFactory) (core.Narrator, error) {
		return f.CreateNarrator(context.Background())
	}); err != nil {
		return err
	}

	// Register model store
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *artifact.Store {
		return artifact.NewStore(cfg.GetString("model.dir"), logger)
	}); err != nil {
		return err
	}

	// Register sender checker
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *senderlist.Checker {
		entries := cfg.GetStringSlice("highlight.suspicious_senders")
		logger.Debug("Loaded suspicious sender list", zap.Strings("entries", entries))
		return senderlist.NewChecker(entries, logger)
	}); err != nil {
		return err
	}

	// Register detector service
	return container.Provide(func(
		cfg *config.Config,
		store *artifact.Store,
		c factory.Cache,
		narrator core.Narrator,
		senders *senderlist.Checker,
		logger *zap.Logger,
	) (*detector.Service, error) {
		opts, err := cfg.GetDetector()
		if err != nil {
			return nil, err
		}
		var pc core.PredictionCache
		if c != nil {
			pc = c
		} else {
			opts.CacheEnabled = false
		}
		return detector.NewService(store, pc, narrator, senders, logger, opts), nil
	})
}
