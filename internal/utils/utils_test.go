package utils_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap/zaptest"

	"github.com/mikey/phishing-detector/internal/core"
	"github.com/mikey/phishing-detector/internal/utils"
)

func TestTruncateText_KeepsRunesWhole(t *testing.T) {
	tp := utils.NewTextProcessor(zaptest.NewLogger(t))
	out := tp.TruncateText("héllo wörld", 2)
	prefix, _, _ := strings.Cut(out, "\n")
	if prefix != "h" {
		t.Errorf("expected cut before the two-byte rune, got %q", prefix)
	}
	if !utf8.ValidString(out) {
		t.Error("output must be valid UTF-8")
	}
	if got := tp.TruncateText("short", 0); got != "short" {
		t.Errorf("zero limit should disable truncation, got %q", got)
	}
}

func TestSanitizeUTF8(t *testing.T) {
	tp := utils.NewTextProcessor(zaptest.NewLogger(t))
	if got := tp.SanitizeUTF8("ok\xffok"); got != "okok" {
		t.Errorf("expected invalid byte dropped, got %q", got)
	}
}

func TestNarrationPrompt(t *testing.T) {
	tp := utils.NewTextProcessor(zaptest.NewLogger(t))
	email := &core.ParsedEmail{Sender: "a@x.ru", Subject: "urgent", Body: strings.Repeat("verify ", 100)}
	result := &core.PredictionResult{
		Label:            core.LabelPhishing,
		Confidence:       91,
		SenderSuspicious: true,
		TopFeatures:      []core.Contribution{{Term: "verify", Weight: 2.5}, {Term: "meeting", Weight: -1}},
	}

	prompt := tp.NarrationPrompt(email, result, 50)
	for _, want := range []string{"phishing with 91% confidence", "verify (phishing, 2.500)", "meeting (legitimate, -1.000)", "low-trust", "content truncated"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("expected %q in prompt", want)
		}
	}
}
