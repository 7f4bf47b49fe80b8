package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/mikey/phishing-detector/internal/adapters/cache"
	"github.com/mikey/phishing-detector/internal/core"
)

func entry(key string, ttl time.Duration) *core.CacheEntry {
	now := time.Now()
	return &core.CacheEntry{
		Key:          key,
		ModelVersion: "v1",
		Label:        core.LabelPhishing,
		Confidence:   87,
		Probability:  0.87,
		Explanation:  "urgent wording",
		LastSeen:     now,
		ExpiresAt:    now.Add(ttl),
	}
}

func TestMemoryCache_SetGetDelete(t *testing.T) {
	c := cache.NewMemoryCache(zaptest.NewLogger(t), 0)
	defer c.Stop()
	ctx := context.Background()

	if _, err := c.Get(ctx, "k"); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := c.Set(ctx, entry("k", time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Label != core.LabelPhishing || got.Confidence != 87 || got.Explanation != "urgent wording" {
		t.Errorf("unexpected entry %+v", got)
	}

	c.Delete(ctx, "k")
	if _, err := c.Get(ctx, "k"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryCache_ExpiryAndCleanup(t *testing.T) {
	c := cache.NewMemoryCache(zaptest.NewLogger(t), 0)
	defer c.Stop()
	ctx := context.Background()

	c.Set(ctx, entry("old", -time.Minute))
	c.Set(ctx, entry("fresh", time.Hour))

	if _, err := c.Get(ctx, "old"); !errors.Is(err, cache.ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
	if err := c.Cleanup(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry after cleanup, got %d", c.Len())
	}
}

func TestMemoryCache_StopIsIdempotent(t *testing.T) {
	c := cache.NewMemoryCache(zaptest.NewLogger(t), time.Hour)
	c.Stop()
	c.Stop()
}
