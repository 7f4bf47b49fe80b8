package classifier

import (
	"errors"
	"fmt"
	"math"

	"github.com/mikey/phishing-detector/internal/vectorizer"
)

// FitOptions controls the optimizer
type FitOptions struct {
	MaxIter      int
	LearningRate float64
	C            float64 // inverse L2 regularization strength
	Tolerance    float64
}

// DefaultFitOptions returns the optimizer settings used for training
func DefaultFitOptions() FitOptions {
	return FitOptions{
		MaxIter:      500,
		LearningRate: 0.05,
		C:            1.0,
		Tolerance:    1e-5,
	}
}

// FitResult reports how the optimizer finished
type FitResult struct {
	Iterations int
	Converged  bool
	Loss       float64
}

// Fit minimizes the L2-regularized mean logistic loss over the vectors with
// full-batch Adam updates. The run is deterministic for the same inputs.
func Fit(vectors []*vectorizer.FeatureVector, labels []int, opts FitOptions) (*Model, *FitResult, error) {
	if len(vectors) == 0 {
		return nil, nil, errors.New("no training vectors")
	}
	if len(vectors) != len(labels) {
		return nil, nil, fmt.Errorf("%d vectors but %d labels", len(vectors), len(labels))
	}
	def := DefaultFitOptions()
	if opts.MaxIter <= 0 {
		opts.MaxIter = def.MaxIter
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = def.LearningRate
	}
	if opts.C <= 0 {
		opts.C = def.C
	}

	dim := vectors[0].Dim()
	for i, v := range vectors {
		if v.Dim() != dim {
			return nil, nil, fmt.Errorf("%w: vector %d has %d features, expected %d",
				ErrDimensionMismatch, i, v.Dim(), dim)
		}
	}

	const (
		beta1 = 0.9
		beta2 = 0.999
		eps   = 1e-8
	)

	n := float64(len(vectors))
	lambda := 1 / (opts.C * n)

	// The last slot holds the intercept.
	w := make([]float64, dim+1)
	grad := make([]float64, dim+1)
	m1 := make([]float64, dim+1)
	m2 := make([]float64, dim+1)

	model := &Model{Coefficients: w[:dim]}
	result := &FitResult{}

	for iter := 1; iter <= opts.MaxIter; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		model.Intercept = w[dim]

		for i, v := range vectors {
			z := v.Dot(model.Coefficients) + model.Intercept
			r := (sigmoid(z) - float64(labels[i])) / n
			for _, e := range v.Terms {
				grad[e.Index] += r * e.Weight
			}
			for k, x := range v.Extras {
				grad[v.VocabSize()+k] += r * x
			}
			grad[dim] += r
		}

		maxGrad := 0.0
		for j := 0; j < dim; j++ {
			grad[j] += lambda * w[j]
		}
		for _, g := range grad {
			maxGrad = math.Max(maxGrad, math.Abs(g))
		}

		result.Iterations = iter
		if maxGrad < opts.Tolerance {
			result.Converged = true
			break
		}

		c1 := 1 - math.Pow(beta1, float64(iter))
		c2 := 1 - math.Pow(beta2, float64(iter))
		for j, g := range grad {
			m1[j] = beta1*m1[j] + (1-beta1)*g
			m2[j] = beta2*m2[j] + (1-beta2)*g*g
			w[j] -= opts.LearningRate * (m1[j] / c1) / (math.Sqrt(m2[j]/c2) + eps)
		}
	}

	model.Intercept = w[dim]
	result.Loss = meanLogLoss(model, vectors, labels)
	return model, result, nil
}

func meanLogLoss(m *Model, vectors []*vectorizer.FeatureVector, labels []int) float64 {
	const eps = 1e-15
	loss := 0.0
	for i, v := range vectors {
		p := sigmoid(v.Dot(m.Coefficients) + m.Intercept)
		p = math.Min(math.Max(p, eps), 1-eps)
		if labels[i] == 1 {
			loss -= math.Log(p)
		} else {
			loss -= math.Log(1 - p)
		}
	}
	return loss / float64(len(vectors))
}

// ProbabilityOf returns the phishing probability of a vector, used for
// evaluation curves
func (m *Model) ProbabilityOf(v *vectorizer.FeatureVector) (float64, error) {
	z, err := m.Score(v)
	if err != nil {
		return 0, err
	}
	return sigmoid(z), nil
}
