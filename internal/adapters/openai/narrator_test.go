package openai_test

import (
	"context"
	"strings"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap/zaptest"

	"github.com/mikey/phishing-detector/internal/adapters/openai"
	"github.com/mikey/phishing-detector/internal/config"
	"github.com/mikey/phishing-detector/internal/core"
	"github.com/mikey/phishing-detector/internal/utils"
)

type fakeChat struct {
	req  goopenai.ChatCompletionRequest
	resp goopenai.ChatCompletionResponse
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, nil
}

func TestNarrate(t *testing.T) {
	fake := &fakeChat{resp: goopenai.ChatCompletionResponse{
		Choices: []goopenai.ChatCompletionChoice{{Message: goopenai.ChatCompletionMessage{Content: " Urgent tone. "}}},
	}}
	n := openai.NewNarrator(fake, config.OpenAIConfig{ModelName: "gpt-4", MaxTokens: 100},
		zaptest.NewLogger(t), utils.NewTextProcessor(zaptest.NewLogger(t)))

	email := &core.ParsedEmail{Sender: "a@x.ru", Subject: "urgent", Body: "verify now"}
	result := &core.PredictionResult{Label: core.LabelPhishing, Confidence: 80}

	got, err := n.Narrate(context.Background(), email, result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Urgent tone." {
		t.Errorf("unexpected narration %q", got)
	}
	if fake.req.Model != "gpt-4" || len(fake.req.Messages) != 2 {
		t.Errorf("unexpected request %+v", fake.req)
	}
	if !strings.Contains(fake.req.Messages[1].Content, "verify now") {
		t.Error("prompt should contain the email body")
	}
}

func TestNarrate_NoChoices(t *testing.T) {
	n := openai.NewNarrator(&fakeChat{}, config.OpenAIConfig{},
		zaptest.NewLogger(t), utils.NewTextProcessor(zaptest.NewLogger(t)))
	if _, err := n.Narrate(context.Background(), &core.ParsedEmail{}, &core.PredictionResult{}); err == nil {
		t.Error("expected error")
	}
}
