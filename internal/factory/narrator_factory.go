package factory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/phishing-detector/internal/config"
	"github.com/mikey/phishing-detector/internal/core"
	"github.com/mikey/phishing-detector/internal/detector"
	"github.com/mikey/phishing-detector/internal/utils"
)

// NarratorFactory creates the LLM narrator selected by narrator.provider
type NarratorFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewNarratorFactory creates a new narrator factory
func NewNarratorFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *NarratorFactory {
	return &NarratorFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateNarrator returns the configured narrator. Provider "none" or an empty
// provider yields a narrator that adds no explanation.
func (f *NarratorFactory) CreateNarrator(ctx context.Context) (core.Narrator, error) {
	provider := f.cfg.GetNarrator().Provider

	switch provider {
	case "", "none":
		return detector.NoopNarrator{}, nil
	case "bedrock":
		return NewBedrockFactory(f.cfg, f.logger, f.textProcessor).CreateNarrator(ctx)
	case "gemini":
		return NewGeminiFactory(f.cfg, f.logger, f.textProcessor).CreateNarrator(ctx)
	case "openai":
		return NewOpenAIFactory(f.cfg, f.logger, f.textProcessor).CreateNarrator()
	default:
		return nil, fmt.Errorf("unsupported narrator provider: %s", provider)
	}
}
