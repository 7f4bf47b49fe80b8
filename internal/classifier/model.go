// Package classifier implements the binary logistic regression model that
// scores feature vectors.
package classifier

import (
	"errors"
	"fmt"
	"math"

	"github.com/mikey/phishing-detector/internal/core"
	"github.com/mikey/phishing-detector/internal/vectorizer"
)

// ErrDimensionMismatch is returned when a vector does not match the model
var ErrDimensionMismatch = errors.New("feature vector dimension does not match model")

// Model is a fitted logistic regression model. It is read-only after
// training or loading and safe for concurrent use.
type Model struct {
	Coefficients []float64
	Intercept    float64
}

// Prediction is the classifier output for one vector
type Prediction struct {
	Label       core.Label
	Probability float64 // probability of the phishing class
	Confidence  int     // probability of the predicted class, percent, floored
}

// NewModel creates a model from explicit weights
func NewModel(coefficients []float64, intercept float64) *Model {
	return &Model{Coefficients: coefficients, Intercept: intercept}
}

// Dim returns the number of features the model expects
func (m *Model) Dim() int {
	return len(m.Coefficients)
}

// Score returns the linear combination coefficients·vector + intercept
func (m *Model) Score(v *vectorizer.FeatureVector) (float64, error) {
	if v.Dim() != len(m.Coefficients) {
		return 0, fmt.Errorf("%w: vector has %d features, model expects %d",
			ErrDimensionMismatch, v.Dim(), len(m.Coefficients))
	}
	return v.Dot(m.Coefficients) + m.Intercept, nil
}

// Predict classifies a vector. The label is phishing when the phishing
// probability is at least 0.5.
func (m *Model) Predict(v *vectorizer.FeatureVector) (*Prediction, error) {
	z, err := m.Score(v)
	if err != nil {
		return nil, err
	}
	p := sigmoid(z)

	label := core.LabelLegitimate
	if p >= 0.5 {
		label = core.LabelPhishing
	}
	return &Prediction{
		Label:       label,
		Probability: p,
		Confidence:  int(math.Floor(math.Max(p, 1-p) * 100)),
	}, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
