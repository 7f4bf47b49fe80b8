package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikey/phishing-detector/internal/config"
)

func TestDefaults(t *testing.T) {
	cfg := config.NewFromViper(config.NewEmptyViper())

	tr := cfg.GetTraining()
	if tr.TestSize != 0.2 || tr.Seed != 42 || tr.MaxFeatures != 1000 || tr.Fit.MaxIter != 500 {
		t.Errorf("unexpected training defaults %+v", tr)
	}
	d, err := cfg.GetDetector()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.TopFeatures != 6 || d.GlobalTerms != 12 || d.CacheTTL != 24*time.Hour {
		t.Errorf("unexpected detector defaults %+v", d)
	}
	if got := cfg.GetStringSlice("highlight.suspicious_senders"); len(got) != 7 {
		t.Errorf("expected 7 default senders, got %v", got)
	}
	if cfg.GetNarrator().Provider != "none" {
		t.Error("narration should be off by default")
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("model:\n  dir: /srv/model\ncache:\n  type: redis\n"), 0o644)
	t.Setenv("PHISH_DETECTOR_MODEL_TOP_FEATURES", "3")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GetString("model.dir") != "/srv/model" {
		t.Errorf("expected file value, got %q", cfg.GetString("model.dir"))
	}
	if cfg.GetInt("model.top_features") != 3 {
		t.Errorf("expected env override, got %d", cfg.GetInt("model.top_features"))
	}
	c, _ := cfg.GetCache()
	if c.Type != "redis" {
		t.Errorf("expected redis cache, got %q", c.Type)
	}
}

func TestGetCache_InvalidDuration(t *testing.T) {
	cfg := config.NewFromViper(config.NewEmptyViper())
	cfg.Set("cache.ttl", "forever")
	if _, err := cfg.GetCache(); err == nil {
		t.Error("expected error for invalid ttl")
	}
}
