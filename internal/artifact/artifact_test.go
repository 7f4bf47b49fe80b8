package artifact_test

import (
	"context"
	"encoding/gob"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/mikey/phishing-detector/internal/artifact"
	"github.com/mikey/phishing-detector/internal/classifier"
	"github.com/mikey/phishing-detector/internal/vectorizer"
)

func fixture(t *testing.T) (*vectorizer.Vocabulary, *classifier.Model) {
	t.Helper()
	vocab, err := vectorizer.Fit([]string{
		"verify your account password",
		"lunch meeting tomorrow",
	}, vectorizer.Options{})
	if err != nil {
		t.Fatalf("failed to fit vocabulary: %v", err)
	}
	coef := make([]float64, vocab.Dim())
	for i := range coef {
		coef[i] = float64(i) - 2
	}
	return vocab, classifier.NewModel(coef, 0.25)
}

// ─── Save / Load ──────────────────────────────────────────────────────────────

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	vocab, model := fixture(t)

	m, err := artifact.Save(dir, vocab, model, artifact.SaveOptions{Metrics: map[string]float64{"accuracy": 0.9}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b, err := artifact.Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Version() != m.PairID {
		t.Errorf("expected pair %s, got %s", m.PairID, b.Version())
	}
	if b.Vocabulary.Hash() != vocab.Hash() {
		t.Error("vocabulary changed across save and load")
	}
	if b.Model.Intercept != 0.25 || len(b.Model.Coefficients) != vocab.Dim() {
		t.Errorf("unexpected model %+v", b.Model)
	}
	if i, ok := b.Vocabulary.Lookup("verify"); !ok || b.Vocabulary.Terms[i] != "verify" {
		t.Error("loaded vocabulary lookup is broken")
	}
	if b.Manifest.Metrics["accuracy"] != 0.9 {
		t.Errorf("expected metrics in manifest, got %v", b.Manifest.Metrics)
	}
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	vocab, model := fixture(t)
	if _, err := artifact.Save(dir, vocab, model, artifact.SaveOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if len(names) != 3 {
		t.Errorf("expected exactly 3 files, got %v", names)
	}
	for _, n := range names {
		if strings.HasSuffix(n, ".tmp") {
			t.Errorf("leftover temp file %s", n)
		}
	}
}

func TestSave_RejectsDimensionMismatch(t *testing.T) {
	vocab, _ := fixture(t)
	_, err := artifact.Save(t.TempDir(), vocab, classifier.NewModel([]float64{1}, 0), artifact.SaveOptions{})
	var mismatch *artifact.MismatchError
	if !errors.As(err, &mismatch) {
		t.Errorf("expected MismatchError, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := artifact.Load(dir); !errors.Is(err, artifact.ErrArtifactMissing) {
		t.Errorf("expected ErrArtifactMissing for empty dir, got %v", err)
	}

	vocab, model := fixture(t)
	artifact.Save(dir, vocab, model, artifact.SaveOptions{})
	os.Remove(filepath.Join(dir, artifact.ModelFile))
	if _, err := artifact.Load(dir); !errors.Is(err, artifact.ErrArtifactMissing) {
		t.Errorf("expected ErrArtifactMissing for missing model, got %v", err)
	}
}

func TestLoad_DetectsMismatchedPair(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	vocab, model := fixture(t)
	artifact.Save(a, vocab, model, artifact.SaveOptions{})
	artifact.Save(b, vocab, model, artifact.SaveOptions{})

	// Same shapes, different training runs
	data, _ := os.ReadFile(filepath.Join(b, artifact.ModelFile))
	os.WriteFile(filepath.Join(a, artifact.ModelFile), data, 0o644)

	_, err := artifact.Load(a)
	var mismatch *artifact.MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected MismatchError, got %v", err)
	}
	if !strings.Contains(mismatch.Field, "pair_id") {
		t.Errorf("expected pair_id mismatch, got %s", mismatch.Field)
	}
}

func TestLoad_DetectsVocabularyTampering(t *testing.T) {
	dir := t.TempDir()
	vocab, model := fixture(t)
	artifact.Save(dir, vocab, model, artifact.SaveOptions{})

	// Rewrite the vectorizer blob keeping its header but changing a weight
	path := filepath.Join(dir, artifact.VectorizerFile)
	f, _ := os.Open(path)
	var blob struct {
		Header struct {
			Kind          string
			FormatVersion int
			PairID        string
			VocabHash     string
		}
		Terms []string
		IDF   []float64
	}
	if err := gob.NewDecoder(f).Decode(&blob); err != nil {
		t.Fatalf("failed to decode blob: %v", err)
	}
	f.Close()
	blob.IDF[0] += 1

	out, _ := os.Create(path)
	gob.NewEncoder(out).Encode(blob)
	out.Close()

	_, err := artifact.Load(dir)
	var mismatch *artifact.MismatchError
	if !errors.As(err, &mismatch) || mismatch.Field != "vocab_hash" {
		t.Errorf("expected vocab_hash mismatch, got %v", err)
	}
}

// ─── Store ────────────────────────────────────────────────────────────────────

func TestStore_LoadsOnceAndReloads(t *testing.T) {
	dir := t.TempDir()
	vocab, model := fixture(t)
	first, _ := artifact.Save(dir, vocab, model, artifact.SaveOptions{})

	s := artifact.NewStore(dir, zaptest.NewLogger(t))

	var wg sync.WaitGroup
	bundles := make([]*artifact.Bundle, 8)
	for i := range bundles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bundles[i], _ = s.Get(context.Background())
		}(i)
	}
	wg.Wait()
	for i, b := range bundles {
		if b == nil || b != bundles[0] {
			t.Fatalf("caller %d got a different bundle", i)
		}
	}
	if bundles[0].Version() != first.PairID {
		t.Errorf("expected version %s", first.PairID)
	}

	second, _ := artifact.Save(dir, vocab, model, artifact.SaveOptions{})
	if b, _ := s.Get(context.Background()); b.Version() != first.PairID {
		t.Error("Get must keep serving the cached bundle")
	}
	b, err := s.Reload(context.Background())
	if err != nil {
		t.Fatalf("unexpected reload error: %v", err)
	}
	if b.Version() != second.PairID {
		t.Errorf("expected reloaded version %s, got %s", second.PairID, b.Version())
	}
}

func TestStore_ErrorsAreNotCached(t *testing.T) {
	dir := t.TempDir()
	s := artifact.NewStore(dir, zaptest.NewLogger(t))

	if _, err := s.Get(context.Background()); !errors.Is(err, artifact.ErrArtifactMissing) {
		t.Fatalf("expected ErrArtifactMissing, got %v", err)
	}

	vocab, model := fixture(t)
	artifact.Save(dir, vocab, model, artifact.SaveOptions{})
	if _, err := s.Get(context.Background()); err != nil {
		t.Errorf("expected load to succeed once artifacts exist, got %v", err)
	}
}

func TestStore_FailedReloadKeepsBundle(t *testing.T) {
	dir := t.TempDir()
	vocab, model := fixture(t)
	artifact.Save(dir, vocab, model, artifact.SaveOptions{})

	s := artifact.NewStore(dir, zaptest.NewLogger(t))
	before, _ := s.Get(context.Background())

	os.Remove(filepath.Join(dir, artifact.ManifestFile))
	if _, err := s.Reload(context.Background()); err == nil {
		t.Fatal("expected reload to fail")
	}
	if after, _ := s.Get(context.Background()); after != before {
		t.Error("failed reload must keep the previous bundle")
	}
}
