package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/mikey/phishing-detector/internal/config"
	"github.com/mikey/phishing-detector/internal/core"
	"github.com/mikey/phishing-detector/internal/utils"
)

// ModelInvoker is the part of the Bedrock runtime client used here
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Narrator explains predictions with a model hosted on Amazon Bedrock
type Narrator struct {
	client        ModelInvoker
	cfg           config.BedrockConfig
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewNarrator creates a Bedrock narrator
func NewNarrator(client ModelInvoker, cfg config.BedrockConfig, logger *zap.Logger, textProcessor *utils.TextProcessor) *Narrator {
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

	payload, err := n.payload(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := n.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(n.cfg.ModelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	text, err := n.completion(resp.Body)
	if err != nil {
		return "", err
	}
	n.logger.Debug("Bedrock narration received",
		zap.String("model", n.cfg.ModelID),
		zap.Int("length", len(text)))
	return strings.TrimSpace(text), nil
}

func (n *Narrator) payload(prompt string) ([]byte, error) {
	switch {
	case n.isAnthropicModel():
		return json.Marshal(map[string]any{
			"prompt":               "\n\nHuman: " + prompt + "\n\nAssistant:",
			"max_tokens_to_sample": n.cfg.MaxTokens,
			"temperature":          n.cfg.Temperature,
			"top_p":                n.cfg.TopP,
		})
	case n.isAmazonTitanModel():
		return json.Marshal(map[string]any{
			"inputText": prompt,
			"textGenerationConfig": map[string]any{
				"maxTokenCount": n.cfg.MaxTokens,
				"temperature":   n.cfg.Temperature,
				"topP":          n.cfg.TopP,
			},
		})
	default:
		return json.Marshal(map[string]any{
			"prompt":      prompt,
			"max_tokens":  n.cfg.MaxTokens,
			"temperature": n.cfg.Temperature,
			"top_p":       n.cfg.TopP,
		})
	}
}

func (n *Narrator) completion(body []byte) (string, error) {
	switch {
	case n.isAnthropicModel():
		var resp struct {
			Completion string `json:"completion"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		return resp.Completion, nil
	case n.isAmazonTitanModel():
		var resp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(resp.Results) == 0 {
			return "", errors.New("empty response from Titan model")
		}
		return resp.Results[0].OutputText, nil
	default:
		var resp struct {
			Output   string `json:"output"`
			Text     string `json:"text"`
			Response string `json:"response"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal response: %w", err)
		}
		for _, s := range []string{resp.Output, resp.Text, resp.Response} {
			if s != "" {
				return s, nil
			}
		}
		return string(body), nil
	}
}

func (n *Narrator) isAnthropicModel() bool {
	return strings.HasPrefix(n.cfg.ModelID, "anthropic.claude")
}

func (n *Narrator) isAmazonTitanModel() bool {
	return strings.HasPrefix(n.cfg.ModelID, "amazon.titan")
}
