package core

import (
	"time"
)

// Label is the class assigned to an email by the classifier
type Label int

const (
	// LabelLegitimate marks an email as legitimate
	LabelLegitimate Label = 0
	// LabelPhishing marks an email as phishing
	LabelPhishing Label = 1
)

// String returns the user-facing name of the label
func (l Label) String() string {
	if l == LabelPhishing {
		return "phishing"
	}
	return "legitimate"
}

// ParsedEmail is the structured form of a raw email
type ParsedEmail struct {
	Sender        string
	Receiver      string
	Subject       string
	Body          string
	URLCount      int
	SubjectLength int
}

// Text returns the subject and body joined the way they are vectorized
func (e *ParsedEmail) Text() string {
	return e.Subject + " " + e.Body
}

// Contribution is a vocabulary term together with its learned coefficient
type Contribution struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

// PredictionResult is the outcome of classifying and explaining one email
type PredictionResult struct {
	Label            Label          `json:"-"`
	LabelName        string         `json:"label"`
	Confidence       int            `json:"confidence"`
	Probability      float64        `json:"probability"`
	TopFeatures      []Contribution `json:"top_features"`
	Sender           string         `json:"sender"`
	SenderSuspicious bool           `json:"sender_suspicious"`
	HighlightedText  string         `json:"highlighted_text"`
	GlobalTerms      []string       `json:"global_terms"`
	Explanation      string         `json:"explanation,omitempty"`
	ModelVersion     string         `json:"model_version"`
	AnalyzedAt       time.Time      `json:"analyzed_at"`
	FromCache        bool           `json:"from_cache"`
}

// IsPhishing reports whether the email was classified as phishing
func (r *PredictionResult) IsPhishing() bool {
	return r.Label == LabelPhishing
}

// CacheEntry is a cached classification for a specific email body and model version
type CacheEntry struct {
	Key          string
	ModelVersion string
	Label        Label
	Confidence   int
	Probability  float64
	Explanation  string
	LastSeen     time.Time
	ExpiresAt    time.Time
}
