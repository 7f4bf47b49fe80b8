package trainer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUndefinedAUC is returned when ROC-AUC is requested for a single class
var ErrUndefinedAUC = errors.New("ROC-AUC is undefined when only one class is present")

// ClassReport holds per-class scores
type ClassReport struct {
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Metrics is the evaluation of a classifier on the test partition. Precision,
// recall and F1 refer to the phishing class.
type Metrics struct {
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
	AUC       float64
	HasAUC    bool
	// Confusion is [[tn fp] [fn tp]]
	Confusion [2][2]int
	Classes   [2]ClassReport
	Support   int
}

// Evaluate scores predictions against ground truth. probs holds the phishing
// probability of each row. ErrUndefinedAUC is returned alongside otherwise
// valid metrics when the truth holds a single class.
func Evaluate(truth, predicted []int, probs []float64) (*Metrics, error) {
	if len(truth) != len(predicted) || len(truth) != len(probs) {
		return nil, fmt.Errorf("length mismatch: %d truth, %d predicted, %d probabilities",
			len(truth), len(predicted), len(probs))
	}

	m := &Metrics{Support: len(truth)}
	for i := range truth {
		m.Confusion[truth[i]][predicted[i]]++
	}
	tn, fp := m.Confusion[0][0], m.Confusion[0][1]
	fn, tp := m.Confusion[1][0], m.Confusion[1][1]

	if m.Support > 0 {
		m.Accuracy = float64(tp+tn) / float64(m.Support)
	}
	m.Classes[1] = classReport(tp, fp, fn)
	m.Classes[0] = classReport(tn, fn, fp)
	m.Precision = m.Classes[1].Precision
	m.Recall = m.Classes[1].Recall
	m.F1 = m.Classes[1].F1

	auc, err := ROCAUC(truth, probs)
	if err != nil {
		return m, err
	}
	m.AUC = auc
	m.HasAUC = true
	return m, nil
}

func classReport(tp, fp, fn int) ClassReport {
	r := ClassReport{
		Precision: ratio(tp, tp+fp),
		Recall:    ratio(tp, tp+fn),
		Support:   tp + fn,
	}
	if r.Precision+r.Recall > 0 {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}
	return r
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// ROCAUC computes the area under the ROC curve from the rank-sum statistic.
// Tied scores receive their average rank.
func ROCAUC(truth []int, scores []float64) (float64, error) {
	var nPos, nNeg int
	for _, y := range truth {
		if y == 1 {
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0, ErrUndefinedAUC
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] < scores[order[b]] })

	rankSum := 0.0
	for i := 0; i < len(order); {
		j := i
		for j+1 < len(order) && scores[order[j+1]] == scores[order[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if truth[order[k]] == 1 {
				rankSum += avg
			}
		}
		i = j + 1
	}

	u := rankSum - float64(nPos*(nPos+1))/2
	return u / float64(nPos*nNeg), nil
}

// String renders the metrics as a classification report
func (m *Metrics) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%12s %10s %10s %10s %10s\n", "", "precision", "recall", "f1-score", "support")
	names := [2]string{"legitimate", "phishing"}
	var macro, weighted ClassReport
	for i, c := range m.Classes {
		fmt.Fprintf(&b, "%12s %10.4f %10.4f %10.4f %10d\n", names[i], c.Precision, c.Recall, c.F1, c.Support)
		macro.Precision += c.Precision / 2
		macro.Recall += c.Recall / 2
		macro.F1 += c.F1 / 2
		if m.Support > 0 {
			w := float64(c.Support) / float64(m.Support)
			weighted.Precision += c.Precision * w
			weighted.Recall += c.Recall * w
			weighted.F1 += c.F1 * w
		}
	}
	fmt.Fprintf(&b, "\n%12s %10s %10s %10.4f %10d\n", "accuracy", "", "", m.Accuracy, m.Support)
	fmt.Fprintf(&b, "%12s %10.4f %10.4f %10.4f %10d\n", "macro avg", macro.Precision, macro.Recall, macro.F1, m.Support)
	fmt.Fprintf(&b, "%12s %10.4f %10.4f %10.4f %10d\n\n", "weighted avg", weighted.Precision, weighted.Recall, weighted.F1, m.Support)

	fmt.Fprintf(&b, "Accuracy:  %.4f\n", m.Accuracy)
	fmt.Fprintf(&b, "Precision: %.4f\n", m.Precision)
	fmt.Fprintf(&b, "Recall:    %.4f\n", m.Recall)
	fmt.Fprintf(&b, "F1-score:  %.4f\n", m.F1)
	if m.HasAUC {
		fmt.Fprintf(&b, "ROC-AUC:   %.4f\n", m.AUC)
	} else {
		b.WriteString("ROC-AUC:   n/a (one class only in test set)\n")
	}
	fmt.Fprintf(&b, "Confusion matrix:\n[[%d %d]\n [%d %d]]\n",
		m.Confusion[0][0], m.Confusion[0][1], m.Confusion[1][0], m.Confusion[1][1])
	return b.String()
}
