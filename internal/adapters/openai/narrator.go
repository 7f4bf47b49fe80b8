package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mikey/phishing-detector/internal/config"
	"github.com/mikey/phishing-detector/internal/core"
	"github.com/mikey/phishing-detector/internal/utils"
)

const systemPrompt = "You explain the decisions of an email phishing classifier to end users. Answer in plain text."

// ChatCompleter is the part of the OpenAI client used here
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Narrator explains predictions with an OpenAI chat model
type Narrator struct {
	client        ChatCompleter
	cfg           config.OpenAIConfig
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewNarrator creates an OpenAI narrator
func NewNarrator(client ChatCompleter, cfg config.OpenAIConfig, logger *zap.Logger, textProcessor *utils.TextProcessor) *Narrator {
	return &Narrator{
		client:        client,
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// Narrate asks the model to explain the prediction
func (n *Narrator) Narrate(ctx context.Context, email *core.ParsedEmail, result *core.PredictionResult) (string, error) {
	prompt := n.textProcessor.NarrationPrompt(email, result, n.cfg.MaxBodySize)

	resp, err := n.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: n.cfg.ModelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   n.cfg.MaxTokens,
		Temperature: n.cfg.Temperature,
		TopP:        n.cfg.TopP,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response from OpenAI")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	n.logger.Debug("OpenAI narration received",
		zap.String("model", n.cfg.ModelName),
		zap.Int("total_tokens", resp.Usage.TotalTokens))
	return text, nil
}
