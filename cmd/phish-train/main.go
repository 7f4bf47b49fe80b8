package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mikey/phishing-detector/internal/config"
	"github.com/mikey/phishing-detector/internal/di"
	"github.com/mikey/phishing-detector/internal/trainer"
)

func main() {
	flags, err := di.ParseTrainFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "usage: phish-train [flags] data.csv [more.csv ...]: %v\n", err)
		os.Exit(2)
	}

	container, err := di.BuildTrainContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Printf("Training failed: %v\n", err)
		os.Exit(1)
	}
}

func run(flags *di.TrainFlags, cfg *config.Config, logger *zap.Logger, t *trainer.Trainer) error {
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outDir := cfg.GetString("model.dir")
	result, err := t.Run(ctx, outDir, flags.Inputs...)
	if err != nil {
		return err
	}

	fmt.Printf("\n=== Training ===\n")
	fmt.Printf("Train rows: %d\n", result.TrainRows)
	fmt.Printf("Test rows: %d\n", result.TestRows)
	fmt.Printf("Vocabulary size: %d\n", result.Vocabulary.Size())
	fmt.Printf("Optimizer: %d iterations, converged=%t, loss=%.6f\n",
		result.Fit.Iterations, result.Fit.Converged, result.Fit.Loss)

	if result.Metrics != nil {
		fmt.Printf("\n=== Evaluation ===\n")
		fmt.Print(result.Metrics.String())
	} else {
		fmt.Printf("\nNo test partition, evaluation skipped\n")
	}

	fmt.Printf("\n=== Artifacts ===\n")
	fmt.Printf("Directory: %s\n", outDir)
	fmt.Printf("Model version: %s\n", result.Manifest.PairID)
	return nil
}
