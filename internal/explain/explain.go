// Package explain attributes classifier decisions to vocabulary terms.
package explain

import (
	"math"
	"sort"
	"sync"

	"github.com/mikey/phishing-detector/internal/classifier"
	"github.com/mikey/phishing-detector/internal/core"
	"github.com/mikey/phishing-detector/internal/vectorizer"
)

// Default list sizes
const (
	DefaultTopContributions = 6
	DefaultGlobalTerms      = 12
)

// Explainer ranks the terms of a vocabulary by the weight the model gives
// them. It is safe for concurrent use.
type Explainer struct {
	vocab *vectorizer.Vocabulary
	model *classifier.Model

	once    sync.Once
	ranking []int
}

// New creates an explainer for a loaded vocabulary and model pair
func New(vocab *vectorizer.Vocabulary, model *classifier.Model) *Explainer {
	return &Explainer{vocab: vocab, model: model}
}

// TopContributions returns up to topn terms present in text, paired with
// their coefficients and ordered by descending absolute coefficient. Terms
// absent from text are never listed.
func (e *Explainer) TopContributions(text string, topn int) ([]core.Contribution, error) {
	entries, err := e.vocab.TransformText(text)
	if err != nil {
		return nil, err
	}

	out := make([]core.Contribution, 0, len(entries))
	for _, entry := range entries {
		if entry.Weight == 0 {
			continue
		}
		out = append(out, core.Contribution{
			Term:   e.vocab.Terms[entry.Index],
			Weight: e.model.Coefficients[entry.Index],
		})
	}
	// entries are in index order, so a stable sort breaks ties alphabetically
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Weight) > math.Abs(out[j].Weight)
	})
	if topn >= 0 && len(out) > topn {
		out = out[:topn]
	}
	return out, nil
}

// GlobalTopTerms returns the topn vocabulary terms with the largest signed
// coefficients, independent of any email. The ranking is computed once.
func (e *Explainer) GlobalTopTerms(topn int) []core.Contribution {
	e.once.Do(func() {
		n := e.vocab.Size()
		e.ranking = make([]int, n)
		for i := range e.ranking {
			e.ranking[i] = i
		}
		sort.SliceStable(e.ranking, func(a, b int) bool {
			return e.model.Coefficients[e.ranking[a]] > e.model.Coefficients[e.ranking[b]]
		})
	})

	if topn < 0 || topn > len(e.ranking) {
		topn = len(e.ranking)
	}
	out := make([]core.Contribution, topn)
	for i, idx := range e.ranking[:topn] {
		out[i] = core.Contribution{Term: e.vocab.Terms[idx], Weight: e.model.Coefficients[idx]}
	}
	return out
}
