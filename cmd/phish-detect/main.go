package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/mikey/phishing-detector/internal/adapters/filter"
	"github.com/mikey/phishing-detector/internal/core"
	"github.com/mikey/phishing-detector/internal/di"
	"github.com/mikey/phishing-detector/internal/ports"
)

func main() {
	flags, err := di.ParseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(flags *di.CLIFlags, logger *zap.Logger, emailFilter ports.EmailFilter, narrator core.Narrator) error {
	defer logger.Sync()

	var in io.Reader = os.Stdin
	if flags.InputFile != "" {
		file, err := os.Open(flags.InputFile)
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		defer file.Close()
		in = file
		logger.Info("Reading email from file", zap.String("file", flags.InputFile))
	} else {
		logger.Info("Reading email from stdin")
	}

	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read email: %w", err)
	}

	_, err = emailFilter.ProcessEmail(context.Background(), filter.PlainText(raw))

	if closer, ok := narrator.(interface{ Close() error }); ok {
		if cerr := closer.Close(); cerr != nil {
			logger.Error("Failed to close narrator", zap.Error(cerr))
		}
	}
	return err
}
