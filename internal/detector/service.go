// Package detector classifies raw emails with the loaded model and explains
// each decision.
package detector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/phishing-detector/internal/artifact"
	"github.com/mikey/phishing-detector/internal/core"
	"github.com/mikey/phishing-detector/internal/explain"
	"github.com/mikey/phishing-detector/internal/highlight"
	"github.com/mikey/phishing-detector/internal/parser"
	"github.com/mikey/phishing-detector/internal/senderlist"
)

// ErrModelUnavailable is returned when the artifacts cannot be loaded or do
// not fit together. The process keeps running; callers report the condition.
var ErrModelUnavailable = errors.New("model unavailable")

// ModelSource provides the current artifact bundle
type ModelSource interface {
	Get(ctx context.Context) (*artifact.Bundle, error)
	Reload(ctx context.Context) (*artifact.Bundle, error)
}

// Options tunes the service
type Options struct {
	TopFeatures  int
	GlobalTerms  int
	CacheEnabled bool
	CacheTTL     time.Duration
	// NarratorTimeout bounds each narration call; zero means no bound
	NarratorTimeout time.Duration
}

// Service is the inference entry point
type Service struct {
	models      ModelSource
	cache       core.PredictionCache
	narrator    core.Narrator
	senders     *senderlist.Checker
	highlighter *highlight.Highlighter
	logger      *zap.Logger
	opts        Options

	mu        sync.Mutex
	explainer *explain.Explainer
	version   string
}

// NewService creates a detector service. cache may be nil when caching is
// disabled.
func NewService(
	models ModelSource,
	cache core.PredictionCache,
	narrator core.Narrator,
	senders *senderlist.Checker,
	logger *zap.Logger,
	opts Options,
) *Service {
	if opts.TopFeatures <= 0 {
		opts.TopFeatures = explain.DefaultTopContributions
	}
	if opts.GlobalTerms <= 0 {
		opts.GlobalTerms = explain.DefaultGlobalTerms
	}
	if narrator == nil {
		narrator = NoopNarrator{}
	}
	return &Service{
		models:      models,
		cache:       cache,
		narrator:    narrator,
		senders:     senders,
		highlighter: highlight.New(senders),
		logger:      logger,
		opts:        opts,
	}
}

// PredictEmail parses, classifies and explains a raw email. Empty input is
// valid and yields a prediction from default fields.
func (s *Service) PredictEmail(ctx context.Context, raw string) (*core.PredictionResult, error) {
	bundle, err := s.models.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	exp := s.explainerFor(bundle)

	email := parser.Parse(raw)
	result := &core.PredictionResult{
		Sender:       email.Sender,
		ModelVersion: bundle.Version(),
		AnalyzedAt:   time.Now(),
	}

	key := CacheKey(bundle.Version(), raw)
	if entry := s.cached(ctx, key); entry != nil {
		result.Label = entry.Label
		result.Confidence = entry.Confidence
		result.Probability = entry.Probability
		result.Explanation = entry.Explanation
		result.FromCache = true
	} else {
		vec, err := bundle.Vocabulary.Transform(email)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		}
		pred, err := bundle.Model.Predict(vec)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		}
		result.Label = pred.Label
		result.Confidence = pred.Confidence
		result.Probability = pred.Probability
	}
	result.LabelName = result.Label.String()

	result.TopFeatures, err = exp.TopContributions(email.Text(), s.opts.TopFeatures)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	for _, t := range exp.GlobalTopTerms(s.opts.GlobalTerms) {
		result.GlobalTerms = append(result.GlobalTerms, t.Term)
	}
	if s.senders != nil {
		_, result.SenderSuspicious = s.senders.IsSuspicious(email.Sender)
	}
	result.HighlightedText = s.highlighter.Highlight(raw, result.TopFeatures, email.Sender)

	if !result.FromCache {
		s.narrate(ctx, email, result)
		s.store(ctx, key, result)
	}

	s.logger.Info("Email classified",
		zap.String("label", result.LabelName),
		zap.Int("confidence", result.Confidence),
		zap.String("sender", result.Sender),
		zap.Bool("sender_suspicious", result.SenderSuspicious),
		zap.Bool("from_cache", result.FromCache),
		zap.String("model_version", result.ModelVersion))
	return result, nil
}

// GlobalTerms returns the model-wide most phishing-indicative terms
func (s *Service) GlobalTerms(ctx context.Context, topn int) ([]core.Contribution, error) {
	bundle, err := s.models.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	if topn <= 0 {
		topn = s.opts.GlobalTerms
	}
	return s.explainerFor(bundle).GlobalTopTerms(topn), nil
}

// Reload re-reads the artifacts and returns the new model version
func (s *Service) Reload(ctx context.Context) (string, error) {
	bundle, err := s.models.Reload(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	s.explainerFor(bundle)
	return bundle.Version(), nil
}

// CacheKey scopes a cached prediction to a model version and email content
func CacheKey(version, raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return version + ":" + hex.EncodeToString(sum[:])
}

func (s *Service) explainerFor(b *artifact.Bundle) *explain.Explainer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.explainer == nil || s.version != b.Version() {
		s.explainer = explain.New(b.Vocabulary, b.Model)
		s.version = b.Version()
	}
	return s.explainer
}

func (s *Service) cached(ctx context.Context, key string) *core.CacheEntry {
	if !s.opts.CacheEnabled || s.cache == nil {
		return nil
	}
	entry, err := s.cache.Get(ctx, key)
	if err != nil || entry == nil {
		return nil
	}
	s.logger.Debug("Prediction cache hit", zap.String("key", key))
	return entry
}

func (s *Service) store(ctx context.Context, key string, r *core.PredictionResult) {
	if !s.opts.CacheEnabled || s.cache == nil {
		return
	}
	now := time.Now()
	entry := &core.CacheEntry{
		Key:          key,
		ModelVersion: r.ModelVersion,
		Label:        r.Label,
		Confidence:   r.Confidence,
		Probability:  r.Probability,
		Explanation:  r.Explanation,
		LastSeen:     now,
		ExpiresAt:    now.Add(s.opts.CacheTTL),
	}
	if err := s.cache.Set(ctx, entry); err != nil {
		s.logger.Error("Failed to update cache", zap.Error(err))
	}
}

func (s *Service) narrate(ctx context.Context, email *core.ParsedEmail, r *core.PredictionResult) {
	if s.opts.NarratorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.NarratorTimeout)
		defer cancel()
	}
	text, err := s.narrator.Narrate(ctx, email, r)
	if err != nil {
		s.logger.Warn("Failed to narrate prediction", zap.Error(err))
		return
	}
	r.Explanation = text
}
