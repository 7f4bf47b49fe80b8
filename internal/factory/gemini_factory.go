package factory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/phishing-detector/internal/adapters/gemini"
	"github.com/mikey/phishing-detector/internal/config"
	"github.com/mikey/phishing-detector/internal/core"
	"github.com/mikey/phishing-detector/internal/utils"
)

// GeminiFactory creates Gemini narrators
type GeminiFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewGeminiFactory creates a new Gemini factory
func NewGeminiFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *GeminiFactory {
	return &GeminiFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateNarrator creates a Gemini narrator
func (f *GeminiFactory) CreateNarrator(ctx context.Context) (core.Narrator, error) {
	geminiCfg := f.cfg.GetGemini()
	if geminiCfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	f.logger.Info("Using Gemini narrator", zap.String("model", geminiCfg.ModelName))
	narrator, err := gemini.NewNarrator(ctx, geminiCfg, f.logger, f.textProcessor)
	if err != nil {
		return nil, err
	}
	return narrator, nil
}
