package ports

import (
	"context"

	"github.com/mikey/phishing-detector/internal/core"
)

// EmailFilter defines the interface for email filtering front ends
type EmailFilter interface {
	// ProcessEmail classifies a raw email and returns the prediction
	ProcessEmail(ctx context.Context, raw string) (*core.PredictionResult, error)

	// Start starts the email filter service
	Start() error

	// Stop stops the email filter service
	Stop() error
}

// Detector is the inference service the filters delegate to
type Detector interface {
	PredictEmail(ctx context.Context, raw string) (*core.PredictionResult, error)
	GlobalTerms(ctx context.Context, topn int) ([]core.Contribution, error)
	Reload(ctx context.Context) (string, error)
}
