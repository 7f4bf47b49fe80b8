package detector

import (
	"context"

	"github.com/mikey/phishing-detector/internal/core"
)

// NoopNarrator leaves predictions without a narrative
type NoopNarrator struct{}

// Narrate returns an empty explanation
func (NoopNarrator) Narrate(context.Context, *core.ParsedEmail, *core.PredictionResult) (string, error) {
	return "", nil
}
