// Package artifact persists a fitted vocabulary and classifier as a paired
// set of files described by a manifest, and loads them back with pairing
// checks.
package artifact

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/mikey/phishing-detector/internal/classifier"
	"github.com/mikey/phishing-detector/internal/vectorizer"
)

// File names inside an artifact directory
const (
	ModelFile      = "model.gob"
	VectorizerFile = "vectorizer.gob"
	ManifestFile   = "manifest.yaml"
)

// FormatVersion is bumped whenever the blob layout changes
const FormatVersion = 1

const (
	kindModel      = "classifier"
	kindVectorizer = "vectorizer"
)

// ErrArtifactMissing is returned when an artifact file does not exist
var ErrArtifactMissing = errors.New("artifact file missing")

// MismatchError reports a model and vectorizer that do not belong together
type MismatchError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("artifact mismatch on %s: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

// Manifest describes an artifact pair
type Manifest struct {
	FormatVersion  int                `yaml:"format_version"`
	PairID         string             `yaml:"pair_id"`
	VocabHash      string             `yaml:"vocab_hash"`
	VocabSize      int                `yaml:"vocab_size"`
	Dim            int                `yaml:"dim"`
	TrainedAt      time.Time          `yaml:"trained_at"`
	ModelFile      string             `yaml:"model_file"`
	VectorizerFile string             `yaml:"vectorizer_file"`
	Metrics        map[string]float64 `yaml:"metrics,omitempty"`
}

// header is stored at the start of each blob so a blob can be checked
// against its partner without trusting the manifest alone
type header struct {
	Kind          string
	FormatVersion int
	PairID        string
	VocabHash     string
	TrainedAt     time.Time
}

type modelBlob struct {
	Header       header
	Coefficients []float64
	Intercept    float64
}

type vectorizerBlob struct {
	Header header
	Terms  []string
	IDF    []float64
}

// Bundle is a loaded, validated artifact pair
type Bundle struct {
	Manifest   *Manifest
	Vocabulary *vectorizer.Vocabulary
	Model      *classifier.Model
}

// Version identifies the pair, used to scope cached predictions
func (b *Bundle) Version() string {
	return b.Manifest.PairID
}

// SaveOptions carries metadata recorded in the manifest
type SaveOptions struct {
	TrainedAt time.Time
	Metrics   map[string]float64
}

// Save writes the vectorizer, the model and finally the manifest into dir.
// Each file is written to a temporary name and renamed into place, so a
// failed save never leaves a partial file under the final name.
func Save(dir string, vocab *vectorizer.Vocabulary, model *classifier.Model, opts SaveOptions) (*Manifest, error) {
	if vocab == nil || model == nil {
		return nil, errors.New("vocabulary and model are required")
	}
	if model.Dim() != vocab.Dim() {
		return nil, &MismatchError{
			Field:    "dimension",
			Expected: fmt.Sprint(vocab.Dim()),
			Actual:   fmt.Sprint(model.Dim()),
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	trainedAt := opts.TrainedAt
	if trainedAt.IsZero() {
		trainedAt = time.Now().UTC()
	}
	h := header{
		FormatVersion: FormatVersion,
		PairID:        uuid.NewString(),
		VocabHash:     vocab.Hash(),
		TrainedAt:     trainedAt,
	}

	vh := h
	vh.Kind = kindVectorizer
	if err := writeAtomic(dir, VectorizerFile, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(vectorizerBlob{Header: vh, Terms: vocab.Terms, IDF: vocab.IDF})
	}); err != nil {
		return nil, err
	}

	mh := h
	mh.Kind = kindModel
	if err := writeAtomic(dir, ModelFile, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(modelBlob{Header: mh, Coefficients: model.Coefficients, Intercept: model.Intercept})
	}); err != nil {
		return nil, err
	}

	m := &Manifest{
		FormatVersion:  FormatVersion,
		PairID:         h.PairID,
		VocabHash:      h.VocabHash,
		VocabSize:      vocab.Size(),
		Dim:            vocab.Dim(),
		TrainedAt:      trainedAt,
		ModelFile:      ModelFile,
		VectorizerFile: VectorizerFile,
		Metrics:        opts.Metrics,
	}
	if err := writeAtomic(dir, ManifestFile, func(f *os.File) error {
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return err
		}
		return enc.Close()
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// Load reads and cross-checks the artifact pair in dir
func Load(dir string) (*Bundle, error) {
	m, err := readManifest(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	if m.FormatVersion != FormatVersion {
		return nil, &MismatchError{Field: "format_version", Expected: fmt.Sprint(FormatVersion), Actual: fmt.Sprint(m.FormatVersion)}
	}

	var vb vectorizerBlob
	if err := readBlob(filepath.Join(dir, nonEmpty(m.VectorizerFile, VectorizerFile)), &vb); err != nil {
		return nil, err
	}
	var mb modelBlob
	if err := readBlob(filepath.Join(dir, nonEmpty(m.ModelFile, ModelFile)), &mb); err != nil {
		return nil, err
	}

	if err := checkHeader(m, vb.Header, kindVectorizer); err != nil {
		return nil, err
	}
	if err := checkHeader(m, mb.Header, kindModel); err != nil {
		return nil, err
	}

	vocab, err := vectorizer.NewVocabulary(vb.Terms, vb.IDF)
	if err != nil {
		return nil, fmt.Errorf("invalid vectorizer artifact: %w", err)
	}
	if hash := vocab.Hash(); hash != m.VocabHash {
		return nil, &MismatchError{Field: "vocab_hash", Expected: m.VocabHash, Actual: hash}
	}
	if len(mb.Coefficients) != vocab.Dim() {
		return nil, &MismatchError{
			Field:    "dimension",
			Expected: fmt.Sprint(vocab.Dim()),
			Actual:   fmt.Sprint(len(mb.Coefficients)),
		}
	}

	return &Bundle{
		Manifest:   m,
		Vocabulary: vocab,
		Model:      classifier.NewModel(mb.Coefficients, mb.Intercept),
	}, nil
}

func checkHeader(m *Manifest, h header, kind string) error {
	if h.Kind != kind {
		return &MismatchError{Field: "kind", Expected: kind, Actual: h.Kind}
	}
	if h.PairID != m.PairID {
		return &MismatchError{Field: kind + " pair_id", Expected: m.PairID, Actual: h.PairID}
	}
	if h.VocabHash != m.VocabHash {
		return &MismatchError{Field: kind + " vocab_hash", Expected: m.VocabHash, Actual: h.VocabHash}
	}
	return nil
}

func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

func readBlob(path string, v any) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrArtifactMissing, path)
	}
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeAtomic(dir, name string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	return nil
}

func nonEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
