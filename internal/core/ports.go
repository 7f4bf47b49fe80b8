package core

import (
	"context"
)

// Narrator turns a prediction into a short natural-language explanation
type Narrator interface {
	// Narrate describes why the email received its label
	Narrate(ctx context.Context, email *ParsedEmail, result *PredictionResult) (string, error)
}

// PredictionCache defines the interface for caching classification results
type PredictionCache interface {
	// Get retrieves a cached entry by key
	Get(ctx context.Context, key string) (*CacheEntry, error)

	// Set stores a cache entry
	Set(ctx context.Context, entry *CacheEntry) error

	// Delete removes a cache entry
	Delete(ctx context.Context, key string) error

	// Cleanup removes expired entries
	Cleanup(ctx context.Context) error
}
