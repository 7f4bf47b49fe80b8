package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/mikey/phishing-detector/internal/config"
	"github.com/mikey/phishing-detector/internal/core"
	"github.com/mikey/phishing-detector/internal/utils"
)

// ContentGenerator is the part of a Gemini model used here
type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Narrator explains predictions with Google Gemini
type Narrator struct {
	client        *genai.Client
	model         ContentGenerator
	cfg           config.GeminiConfig
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewNarrator connects to Gemini with the configured API key
func NewNarrator(ctx context.Context, cfg config.GeminiConfig, logger *zap.Logger, textProcessor *utils.TextProcessor) (*Narrator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.ModelName)
	model.SetTemperature(cfg.Temperature)
	model.SetTopP(cfg.TopP)
	model.SetMaxOutputTokens(int32(cfg.MaxTokens))

	n := NewNarratorWithModel(model, cfg, logger, textProcessor)
	n.client = client
	return n, nil
}

// NewNarratorWithModel creates a narrator around an existing model
func NewNarratorWithModel(model ContentGenerator, cfg config.GeminiConfig, logger *zap.Logger, textProcessor *utils.TextProcessor) *Narrator {
	return &Narrator{
		model:         model,
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// Close releases the underlying client
func (n *Narrator) Close() error {
	if n.client != nil {
		return n.client.Close()
	}
	return nil
}

// Narrate asks the model to explain the prediction
func (n *Narrator) Narrate(ctx context.Context, email *core.ParsedEmail, result *core.PredictionResult) (string, error) {
	prompt := n.textProcessor.NarrationPrompt(email, result, n.cfg.MaxBodySize)

	resp, err := n.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content with Gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("empty response from Gemini")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", errors.New("no text in Gemini response")
	}

	n.logger.Debug("Gemini narration received",
		zap.String("model", n.cfg.ModelName),
		zap.Int("length", b.Len()))
	return strings.TrimSpace(b.String()), nil
}
