// Package vectorizer converts email text into TF-IDF weighted feature
// vectors over a vocabulary frozen at training time.
package vectorizer

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/mikey/phishing-detector/internal/core"
)

// DefaultMaxFeatures is the vocabulary size cap used when none is configured
const DefaultMaxFeatures = 1000

// ExtraFeatures lists the dense columns appended after the vocabulary, in order
var ExtraFeatures = []string{"url_count", "subject_length"}

var (
	// ErrNotFitted is returned when transforming with an unfitted vocabulary
	ErrNotFitted = errors.New("vocabulary has not been fitted")
	// ErrEmptyCorpus is returned when fitting on no documents
	ErrEmptyCorpus = errors.New("cannot fit vocabulary on an empty corpus")
)

// Vocabulary is the frozen term-to-index mapping and its IDF weights
type Vocabulary struct {
	Terms []string
	IDF   []float64

	index map[string]int
}

// Entry is one non-zero weighted term of a sparse vector
type Entry struct {
	Index  int
	Weight float64
}

// FeatureVector is a sparse TF-IDF block followed by the dense extra columns
type FeatureVector struct {
	Terms     []Entry
	Extras    []float64
	vocabSize int
}

// NewFeatureVector assembles a vector from a sparse term block of width
// vocabSize and the dense extra columns
func NewFeatureVector(vocabSize int, terms []Entry, extras []float64) *FeatureVector {
	return &FeatureVector{Terms: terms, Extras: extras, vocabSize: vocabSize}
}

// Dim returns the full dimensionality of the vector (V+2)
func (v *FeatureVector) Dim() int {
	return v.vocabSize + len(v.Extras)
}

// VocabSize returns the size of the sparse term block
func (v *FeatureVector) VocabSize() int {
	return v.vocabSize
}

// Dot returns the inner product of the vector with dense weights of length Dim
func (v *FeatureVector) Dot(weights []float64) float64 {
	sum := 0.0
	for _, e := range v.Terms {
		sum += e.Weight * weights[e.Index]
	}
	for i, x := range v.Extras {
		sum += x * weights[v.vocabSize+i]
	}
	return sum
}

// Options controls vocabulary fitting
type Options struct {
	MaxFeatures int
}

// Fit learns a vocabulary from a corpus of documents. The vocabulary keeps
// the MaxFeatures most frequent terms across the corpus, ordered
// alphabetically, with smoothed IDF weights.
func Fit(corpus []string, opts Options) (*Vocabulary, error) {
	if len(corpus) == 0 {
		return nil, ErrEmptyCorpus
	}
	maxFeatures := opts.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = DefaultMaxFeatures
	}

	termCount := make(map[string]int)
	docFreq := make(map[string]int)
	for _, doc := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range Tokenize(doc) {
			termCount[tok]++
			if _, ok := seen[tok]; !ok {
				seen[tok] = struct{}{}
				docFreq[tok]++
			}
		}
	}

	terms := make([]string, 0, len(termCount))
	for term := range termCount {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if termCount[terms[i]] != termCount[terms[j]] {
			return termCount[terms[i]] > termCount[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > maxFeatures {
		terms = terms[:maxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(corpus))
	idf := make([]float64, len(terms))
	for i, term := range terms {
		idf[i] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}

	return NewVocabulary(terms, idf)
}

// NewVocabulary builds a vocabulary from an explicit term list and IDF weights
func NewVocabulary(terms []string, idf []float64) (*Vocabulary, error) {
	if len(terms) != len(idf) {
		return nil, fmt.Errorf("vocabulary has %d terms but %d idf weights", len(terms), len(idf))
	}
	v := &Vocabulary{Terms: terms, IDF: idf}
	if err := v.buildIndex(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Vocabulary) buildIndex() error {
	v.index = make(map[string]int, len(v.Terms))
	for i, term := range v.Terms {
		if _, dup := v.index[term]; dup {
			return fmt.Errorf("duplicate vocabulary term %q", term)
		}
		v.index[term] = i
	}
	return nil
}

// Restore rebuilds lookup structures after the vocabulary has been decoded
func (v *Vocabulary) Restore() error {
	if len(v.Terms) != len(v.IDF) {
		return fmt.Errorf("vocabulary has %d terms but %d idf weights", len(v.Terms), len(v.IDF))
	}
	return v.buildIndex()
}

// Size returns the number of terms V
func (v *Vocabulary) Size() int {
	return len(v.Terms)
}

// Dim returns the full feature dimensionality V+2
func (v *Vocabulary) Dim() int {
	return len(v.Terms) + len(ExtraFeatures)
}

// Lookup returns the index of term
func (v *Vocabulary) Lookup(term string) (int, bool) {
	i, ok := v.index[term]
	return i, ok
}

// Hash returns a digest of the ordered terms and IDF weights. It identifies
// the vocabulary a classifier was trained against.
func (v *Vocabulary) Hash() string {
	h := sha256.New()
	var buf [8]byte
	for i, term := range v.Terms {
		h.Write([]byte(term))
		h.Write([]byte{0})
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v.IDF[i]))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TransformText returns the L2-normalized TF-IDF weights of text
func (v *Vocabulary) TransformText(text string) ([]Entry, error) {
	if v == nil || v.index == nil {
		return nil, ErrNotFitted
	}

	counts := make(map[int]int)
	for _, tok := range Tokenize(text) {
		if i, ok := v.index[tok]; ok {
			counts[i]++
		}
	}

	entries := make([]Entry, 0, len(counts))
	norm := 0.0
	for i, c := range counts {
		w := float64(c) * v.IDF[i]
		entries = append(entries, Entry{Index: i, Weight: w})
		norm += w * w
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].Index < entries[b].Index })

	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range entries {
			entries[i].Weight /= norm
		}
	}
	return entries, nil
}

// Transform builds the full feature vector for a parsed email: the TF-IDF
// block over subject+" "+body followed by url_count and subject_length
func (v *Vocabulary) Transform(email *core.ParsedEmail) (*FeatureVector, error) {
	terms, err := v.TransformText(email.Text())
	if err != nil {
		return nil, err
	}
	return &FeatureVector{
		Terms:     terms,
		Extras:    []float64{float64(email.URLCount), float64(email.SubjectLength)},
		vocabSize: len(v.Terms),
	}, nil
}
