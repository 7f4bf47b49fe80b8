package vectorizer_test

import (
	"errors"
	"math"
	"testing"

	"github.com/mikey/phishing-detector/internal/core"
	"github.com/mikey/phishing-detector/internal/parser"
	"github.com/mikey/phishing-detector/internal/vectorizer"
)

var corpus = []string{
	"urgent verify your account now",
	"verify account password reset",
	"lunch meeting tomorrow",
	"meeting notes attached",
}

// ─── Tokenizer ────────────────────────────────────────────────────────────────

func TestTokenize_DropsStopWordsAndShortTokens(t *testing.T) {
	got := vectorizer.Tokenize("Please VERIFY the account, a x!")
	want := []string{"verify", "account"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

// ─── Fit ──────────────────────────────────────────────────────────────────────

func TestFit_VocabularyIsSortedAndStopWordFree(t *testing.T) {
	v, err := vectorizer.Fit(corpus, vectorizer.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(v.Terms); i++ {
		if v.Terms[i-1] >= v.Terms[i] {
			t.Errorf("terms not sorted: %q before %q", v.Terms[i-1], v.Terms[i])
		}
	}
	if _, ok := v.Lookup("your"); ok {
		t.Error("stop word 'your' must not be in vocabulary")
	}
	if _, ok := v.Lookup("verify"); !ok {
		t.Error("expected 'verify' in vocabulary")
	}
}

func TestFit_MaxFeaturesKeepsMostFrequent(t *testing.T) {
	v, err := vectorizer.Fit(corpus, vectorizer.Options{MaxFeatures: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Size() != 3 {
		t.Fatalf("expected 3 terms, got %d", v.Size())
	}
	for _, term := range []string{"account", "meeting", "verify"} {
		if _, ok := v.Lookup(term); !ok {
			t.Errorf("expected frequent term %q in vocabulary %v", term, v.Terms)
		}
	}
}

func TestFit_SmoothedIDF(t *testing.T) {
	v, _ := vectorizer.Fit(corpus, vectorizer.Options{})
	i, _ := v.Lookup("verify")
	want := math.Log(5.0/3.0) + 1
	if math.Abs(v.IDF[i]-want) > 1e-12 {
		t.Errorf("expected idf %f, got %f", want, v.IDF[i])
	}
}

func TestFit_EmptyCorpus(t *testing.T) {
	if _, err := vectorizer.Fit(nil, vectorizer.Options{}); !errors.Is(err, vectorizer.ErrEmptyCorpus) {
		t.Errorf("expected ErrEmptyCorpus, got %v", err)
	}
}

// ─── Transform ────────────────────────────────────────────────────────────────

func TestTransform_DimensionIsVocabPlusTwo(t *testing.T) {
	v, _ := vectorizer.Fit(corpus, vectorizer.Options{})
	for _, raw := range []string{"", "Subject: hi\nverify http://x.example", "nothing known here"} {
		fv, err := v.Transform(parser.Parse(raw))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fv.Dim() != v.Size()+2 {
			t.Errorf("expected dim %d, got %d", v.Size()+2, fv.Dim())
		}
	}
}

func TestTransform_ExtrasInFixedOrder(t *testing.T) {
	v, _ := vectorizer.Fit(corpus, vectorizer.Options{})
	fv, _ := v.Transform(&core.ParsedEmail{Subject: "abc", Body: "x", URLCount: 3, SubjectLength: 3})
	if fv.Extras[0] != 3 || fv.Extras[1] != 3 {
		t.Errorf("unexpected extras %v", fv.Extras)
	}
	fv, _ = v.Transform(&core.ParsedEmail{URLCount: 2, SubjectLength: 9})
	if fv.Extras[0] != 2 || fv.Extras[1] != 9 {
		t.Errorf("expected [url_count subject_length], got %v", fv.Extras)
	}
}

func TestTransform_L2Normalized(t *testing.T) {
	v, _ := vectorizer.Fit(corpus, vectorizer.Options{})
	entries, err := v.TransformText("verify verify account meeting unknownword")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 known terms, got %d", len(entries))
	}
	norm := 0.0
	for _, e := range entries {
		norm += e.Weight * e.Weight
	}
	if math.Abs(norm-1) > 1e-9 {
		t.Errorf("expected unit norm, got %f", norm)
	}
}

func TestTransform_UnfittedVocabulary(t *testing.T) {
	var v vectorizer.Vocabulary
	if _, err := v.TransformText("verify"); !errors.Is(err, vectorizer.ErrNotFitted) {
		t.Errorf("expected ErrNotFitted, got %v", err)
	}
}

// ─── Hash ─────────────────────────────────────────────────────────────────────

func TestHash_ChangesWithVocabulary(t *testing.T) {
	a, _ := vectorizer.Fit(corpus, vectorizer.Options{})
	b, _ := vectorizer.Fit(corpus[:2], vectorizer.Options{})
	again, _ := vectorizer.Fit(corpus, vectorizer.Options{})
	if a.Hash() == b.Hash() {
		t.Error("different vocabularies must hash differently")
	}
	if a.Hash() != again.Hash() {
		t.Error("fitting is deterministic, hashes must match")
	}
}
