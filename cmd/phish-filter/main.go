package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mikey/phishing-detector/internal/artifact"
	"github.com/mikey/phishing-detector/internal/core"
	"github.com/mikey/phishing-detector/internal/di"
	"github.com/mikey/phishing-detector/internal/factory"
	"github.com/mikey/phishing-detector/internal/ports"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	container, err := di.BuildContainer(*configPath)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	emailFilter ports.EmailFilter,
	store *artifact.Store,
	narrator core.Narrator,
	cache factory.Cache,
) error {
	defer logger.Sync()

	// A missing model is not fatal: requests report it until a reload succeeds
	if b, err := store.Reload(context.Background()); err != nil {
		logger.Warn("Model not loaded at startup", zap.String("dir", store.Dir()), zap.Error(err))
	} else {
		logger.Info("Model ready", zap.String("version", b.Version()))
	}

	if err := emailFilter.Start(); err != nil {
		logger.Error("Failed to start filter", zap.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			if b, err := store.Reload(context.Background()); err != nil {
				logger.Error("Model reload failed, keeping current model", zap.Error(err))
			} else {
				logger.Info("Model reloaded", zap.String("version", b.Version()))
			}
			continue
		}
		break
	}
	logger.Info("Shutting down...")

	if err := emailFilter.Stop(); err != nil {
		logger.Error("Failed to stop filter", zap.Error(err))
	}

	if closer, ok := narrator.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close narrator", zap.Error(err))
		}
	}

	if cache != nil {
		if err := cache.Stop(); err != nil {
			logger.Error("Failed to stop cache", zap.Error(err))
		}
	}

	logger.Info("Shutdown complete")
	return nil
}
