package trainer_test

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mikey/phishing-detector/internal/artifact"
	"github.com/mikey/phishing-detector/internal/trainer"
)

var header = []string{"sender", "receiver", "date", "subject", "body", "urls", "label"}

// writeDataset writes a CSV with valid rows alternating between phishing and
// legitimate mail, followed by rows carrying the given invalid labels
func writeDataset(t *testing.T, valid int, invalid []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "emails.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create csv: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write(header)
	for i := 0; i < valid; i++ {
		if i%2 == 0 {
			w.Write([]string{
				fmt.Sprintf("Support%d@Secure-Bank.ru", i), "victim@example.com", "2024-01-01",
				"URGENT: verify your account",
				"Your account is suspended. Verify password now http://evil.example/login",
				"http://evil.example/login", "1",
			})
		} else {
			w.Write([]string{
				fmt.Sprintf("colleague%d@example.com", i), "me@example.com", "",
				"Team meeting notes",
				"Agenda for lunch meeting tomorrow, notes attached",
				"", "0",
			})
		}
	}
	for _, label := range invalid {
		w.Write([]string{"x@example.com", "y@example.com", "", "hello", "body text", "", label})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatalf("failed to write csv: %v", err)
	}
	return path
}

var invalidLabels = []string{"2", "", "abc", "-1", "0.5", "yes", " ", "3", "NaN", "1.5"}

// ─── Loading & cleaning ───────────────────────────────────────────────────────

func TestLoadCSV_DropsInvalidLabelsAndLogsCount(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	tr := trainer.New(trainer.DefaultConfig(), zap.New(core))

	path := writeDataset(t, 90, invalidLabels)
	examples, err := tr.LoadCSV(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(examples) != 90 {
		t.Fatalf("expected 90 examples, got %d", len(examples))
	}

	entries := logs.FilterMessage("Dropped rows with missing or invalid labels").All()
	if len(entries) != 1 {
		t.Fatalf("expected one dropped-rows log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["dropped"]; got != int64(10) {
		t.Errorf("expected dropped=10, got %v", got)
	}
}

func TestLoadCSV_CleansFields(t *testing.T) {
	tr := trainer.New(trainer.DefaultConfig(), zaptest.NewLogger(t))
	examples, err := tr.LoadCSV(context.Background(), writeDataset(t, 2, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	phish := examples[0]
	if phish.Email.Sender != "support0@secure-bank.ru" {
		t.Errorf("expected lowercased sender, got %q", phish.Email.Sender)
	}
	if phish.Email.URLCount != 1 {
		t.Errorf("expected url_count 1, got %d", phish.Email.URLCount)
	}
	if phish.Email.Subject != "urgent: verify your account" {
		t.Errorf("expected lowercased subject, got %q", phish.Email.Subject)
	}

	legit := examples[1]
	if legit.Date != "unknown" || legit.URLs != "none" {
		t.Errorf("expected default fills, got date=%q urls=%q", legit.Date, legit.URLs)
	}
}

func TestLoadCSV_MissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	os.WriteFile(path, []byte("sender,receiver,date,subject,body\na,b,c,d,e\n"), 0o644)

	tr := trainer.New(trainer.DefaultConfig(), zaptest.NewLogger(t))
	_, err := tr.LoadCSV(context.Background(), path)

	var schemaErr *trainer.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if strings.Join(schemaErr.Missing, ",") != "urls,label" {
		t.Errorf("expected missing urls,label, got %v", schemaErr.Missing)
	}
	if schemaErr.File != "bad.csv" {
		t.Errorf("expected file bad.csv, got %q", schemaErr.File)
	}
}

func TestLoadCSV_AllLabelsInvalid(t *testing.T) {
	tr := trainer.New(trainer.DefaultConfig(), zaptest.NewLogger(t))
	_, err := tr.LoadCSV(context.Background(), writeDataset(t, 0, invalidLabels))
	if !errors.Is(err, trainer.ErrNoValidRows) {
		t.Errorf("expected ErrNoValidRows, got %v", err)
	}
}

func TestLoadCSV_MultipleFilesConcatenated(t *testing.T) {
	tr := trainer.New(trainer.DefaultConfig(), zaptest.NewLogger(t))
	examples, err := tr.LoadCSV(context.Background(), writeDataset(t, 4, nil), writeDataset(t, 6, []string{"x"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(examples) != 10 {
		t.Errorf("expected 10 examples, got %d", len(examples))
	}
}

func TestWritePreprocessed(t *testing.T) {
	tr := trainer.New(trainer.DefaultConfig(), zaptest.NewLogger(t))
	examples, _ := tr.LoadCSV(context.Background(), writeDataset(t, 4, nil))

	dir := t.TempDir()
	path, err := trainer.WritePreprocessed(dir, examples)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	name := filepath.Base(path)
	if !strings.HasSuffix(name, "_preprocessed.csv") || len(name) != len("12345678_preprocessed.csv") {
		t.Errorf("unexpected file name %q", name)
	}

	f, _ := os.Open(path)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to read back: %v", err)
	}
	if len(rows) != 5 {
		t.Errorf("expected header plus 4 rows, got %d", len(rows))
	}
	if rows[0][len(rows[0])-1] != "subject_length" {
		t.Errorf("unexpected header %v", rows[0])
	}
}

// ─── Training ─────────────────────────────────────────────────────────────────

func TestRun_TrainsEvaluatesAndSaves(t *testing.T) {
	out := t.TempDir()
	tr := trainer.New(trainer.DefaultConfig(), zaptest.NewLogger(t))

	res, err := tr.Run(context.Background(), out, writeDataset(t, 90, invalidLabels))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TrainRows+res.TestRows != 90 {
		t.Errorf("expected 90 rows across partitions, got %d", res.TrainRows+res.TestRows)
	}
	if res.TestRows != 18 {
		t.Errorf("expected 18 test rows, got %d", res.TestRows)
	}
	if res.Metrics == nil || res.Metrics.Accuracy < 0.9 {
		t.Fatalf("expected a well separated dataset, got %+v", res.Metrics)
	}
	if !res.Metrics.HasAUC {
		t.Error("expected ROC-AUC for a two-class test partition")
	}

	b, err := artifact.Load(out)
	if err != nil {
		t.Fatalf("failed to load saved artifacts: %v", err)
	}
	if b.Version() != res.Manifest.PairID {
		t.Errorf("expected version %s, got %s", res.Manifest.PairID, b.Version())
	}
	if b.Model.Dim() != res.Vocabulary.Size()+2 {
		t.Errorf("expected %d coefficients, got %d", res.Vocabulary.Size()+2, b.Model.Dim())
	}
	if math.Abs(b.Manifest.Metrics["accuracy"]-res.Metrics.Accuracy) > 1e-12 {
		t.Error("manifest should record the accuracy")
	}
}

func TestRun_SchemaErrorWritesNothing(t *testing.T) {
	in := filepath.Join(t.TempDir(), "bad.csv")
	os.WriteFile(in, []byte("subject,body\nhi,there\n"), 0o644)
	out := filepath.Join(t.TempDir(), "model")

	tr := trainer.New(trainer.DefaultConfig(), zaptest.NewLogger(t))
	if _, err := tr.Run(context.Background(), out, in); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("expected no artifact directory, stat returned %v", err)
	}
}

func TestTrain_SingleClassTestPartitionSkipsAUC(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	tr := trainer.New(trainer.DefaultConfig(), zap.New(core))

	// One phishing row can never reach the test partition
	examples, err := tr.Clean([]trainer.Record{
		{Subject: "verify", Body: "verify account http://x", Label: "1"},
		{Subject: "lunch", Body: "lunch meeting", Label: "0"},
		{Subject: "notes", Body: "meeting notes", Label: "0"},
		{Subject: "agenda", Body: "agenda meeting", Label: "0"},
		{Subject: "team", Body: "team lunch", Label: "0"},
		{Subject: "plan", Body: "project plan", Label: "0"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := tr.Train(context.Background(), examples)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Metrics == nil || res.Metrics.HasAUC {
		t.Fatalf("expected metrics without ROC-AUC, got %+v", res.Metrics)
	}
	if logs.FilterMessage("ROC-AUC not available, test partition has a single class").Len() != 1 {
		t.Error("expected a ROC-AUC warning")
	}
	if logs.FilterMessage("Class too small to stratify, kept in training partition").Len() != 1 {
		t.Error("expected a stratification warning")
	}
}
