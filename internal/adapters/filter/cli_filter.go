package filter

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/phishing-detector/internal/core"
	"github.com/mikey/phishing-detector/internal/ports"
)

// CliFilter classifies one email and prints a report
type CliFilter struct {
	detector ports.Detector
	logger   *zap.Logger
	out      io.Writer
	verbose  bool
}

// NewCliFilter creates a new CLI filter writing its report to out
func NewCliFilter(detector ports.Detector, logger *zap.Logger, out io.Writer, verbose bool) *CliFilter {
	return &CliFilter{
		detector: detector,
		logger:   logger,
		out:      out,
		verbose:  verbose,
	}
}

// ProcessEmail classifies raw email text and prints the results
func (f *CliFilter) ProcessEmail(ctx context.Context, raw string) (*core.PredictionResult, error) {
	f.logger.Debug("Processing email", zap.Int("bytes", len(raw)))

	start := time.Now()
	result, err := f.detector.PredictEmail(ctx, raw)
	if err != nil {
		f.logger.Error("Failed to analyze email", zap.Error(err))
		fmt.Fprintf(f.out, "Error: %v\n", err)
		return nil, err
	}
	f.Render(result, time.Since(start))
	return result, nil
}

// Render writes the report for a prediction
func (f *CliFilter) Render(result *core.PredictionResult, took time.Duration) {
	w := f.out
	fmt.Fprintf(w, "\n=== Results ===\n")
	fmt.Fprintf(w, "Label: %s\n", result.LabelName)
	fmt.Fprintf(w, "Confidence: %d%%\n", result.Confidence)
	fmt.Fprintf(w, "Phishing probability: %.4f\n", result.Probability)

	sender := result.Sender
	if result.SenderSuspicious {
		sender += " (suspicious)"
	}
	fmt.Fprintf(w, "Sender: %s\n", sender)

	fmt.Fprintf(w, "\n=== Top features ===\n")
	if len(result.TopFeatures) == 0 {
		fmt.Fprintf(w, "(no known terms)\n")
	}
	for _, c := range result.TopFeatures {
		direction := "phishing"
		if c.Weight < 0 {
			direction = "legitimate"
		}
		fmt.Fprintf(w, "  %-20s %+.4f  %s\n", c.Term, c.Weight, direction)
	}

	if len(result.GlobalTerms) > 0 {
		fmt.Fprintf(w, "\nStrongest phishing terms: %s\n", strings.Join(result.GlobalTerms, ", "))
	}
	if result.Explanation != "" {
		fmt.Fprintf(w, "\nExplanation: %s\n", result.Explanation)
	}
	if f.verbose {
		fmt.Fprintf(w, "\n=== Highlighted ===\n%s\n", result.HighlightedText)
	}

	fmt.Fprintf(w, "\nModel: %s\n", result.ModelVersion)
	if result.FromCache {
		fmt.Fprintf(w, "Served from cache\n")
	}
	fmt.Fprintf(w, "Processing time: %v\n", took)
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}
