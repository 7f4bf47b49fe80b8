// Package trainer fits a vocabulary and classifier from labeled CSV data and
// evaluates the result on a held-out partition.
package trainer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mikey/phishing-detector/internal/core"
	"github.com/mikey/phishing-detector/internal/parser"
)

// RequiredColumns lists the columns every training CSV must carry
var RequiredColumns = []string{"sender", "receiver", "date", "subject", "body", "urls", "label"}

// ErrNoValidRows is returned when no record has a 0/1 label
var ErrNoValidRows = errors.New("no rows with a valid label (0 or 1)")

// SchemaError reports required columns missing from an input file
type SchemaError struct {
	File    string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: missing required columns: %s", e.File, strings.Join(e.Missing, ", "))
}

// Record is one raw row of a training CSV
type Record struct {
	Sender   string
	Receiver string
	Date     string
	Subject  string
	Body     string
	URLs     string
	Label    string
}

// Example is a cleaned, labeled training record
type Example struct {
	Email *core.ParsedEmail
	Date  string
	URLs  string
	Label int
}

// ReadCSV reads the records of a single CSV source. The header must contain
// every required column; extra columns are ignored.
func ReadCSV(name string, r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &SchemaError{File: name, Missing: RequiredColumns}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read header: %w", name, err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		cols[strings.TrimSpace(h)] = i
	}
	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{File: name, Missing: missing}
	}

	var records []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		records = append(records, Record{
			Sender:   row[cols["sender"]],
			Receiver: row[cols["receiver"]],
			Date:     row[cols["date"]],
			Subject:  row[cols["subject"]],
			Body:     row[cols["body"]],
			URLs:     row[cols["urls"]],
			Label:    row[cols["label"]],
		})
	}
	return records, nil
}

// LoadCSV reads every path concurrently, logs the raw label distribution of
// each file, then drops rows with invalid labels and cleans the rest. Any
// schema or parse error aborts the whole load.
func (t *Trainer) LoadCSV(ctx context.Context, paths ...string) ([]Example, error) {
	if len(paths) == 0 {
		return nil, errors.New("no input files")
	}

	perFile := make([][]Record, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			defer f.Close()

			records, err := ReadCSV(filepath.Base(path), f)
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			perFile[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Record
	for i, records := range perFile {
		t.logger.Info("Loaded training file",
			zap.String("file", paths[i]),
			zap.Int("rows", len(records)),
			zap.Any("label_distribution", rawDistribution(records)))
		all = append(all, records...)
	}
	t.logger.Info("Combined training rows", zap.Int("rows", len(all)))

	return t.Clean(all)
}

// Clean drops records whose label is not 0 or 1, logging how many were
// removed, and normalizes the remaining fields.
func (t *Trainer) Clean(records []Record) ([]Example, error) {
	examples := make([]Example, 0, len(records))
	for _, r := range records {
		label, ok := parseLabel(r.Label)
		if !ok {
			continue
		}
		examples = append(examples, Example{
			Email: parser.Normalize(r.Sender, r.Receiver, r.Subject, r.Body),
			Date:  fillDefault(r.Date, "unknown"),
			URLs:  fillDefault(r.URLs, "none"),
			Label: label,
		})
	}

	dropped := len(records) - len(examples)
	t.logger.Warn("Dropped rows with missing or invalid labels",
		zap.Int("dropped", dropped),
		zap.Int("kept", len(examples)))

	if len(examples) == 0 {
		return nil, ErrNoValidRows
	}

	var dist [2]int
	for _, e := range examples {
		dist[e.Label]++
	}
	t.logger.Info("Label distribution after cleaning",
		zap.Int("legitimate", dist[core.LabelLegitimate]),
		zap.Int("phishing", dist[core.LabelPhishing]))

	return examples, nil
}

// WritePreprocessed writes the cleaned dataset to dir under a random run
// prefix and returns the file path
func WritePreprocessed(dir string, examples []Example) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, uuid.NewString()[:8]+"_preprocessed.csv")

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create preprocessed file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append(append([]string{}, RequiredColumns...), "url_count", "subject_length")
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, e := range examples {
		row := []string{
			e.Email.Sender,
			e.Email.Receiver,
			e.Date,
			e.Email.Subject,
			e.Email.Body,
			e.URLs,
			strconv.Itoa(e.Label),
			strconv.Itoa(e.Email.URLCount),
			strconv.Itoa(e.Email.SubjectLength),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to write preprocessed file: %w", err)
	}
	return path, nil
}

func parseLabel(s string) (int, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	switch f {
	case 0:
		return 0, true
	case 1:
		return 1, true
	}
	return 0, false
}

func fillDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func rawDistribution(records []Record) map[string]int {
	dist := make(map[string]int)
	for _, r := range records {
		key := strings.TrimSpace(r.Label)
		if key == "" {
			key = "<missing>"
		}
		dist[key]++
	}
	return dist
}

func sortedKeys(m map[int][]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
