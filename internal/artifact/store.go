package artifact

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Store loads the artifact pair from a directory once and serves it to
// concurrent callers. Failed loads are not cached.
type Store struct {
	dir    string
	logger *zap.Logger

	mu     sync.RWMutex
	bundle *Bundle
	group  singleflight.Group
}

// NewStore creates a store for dir. Nothing is read until the first Get.
func NewStore(dir string, logger *zap.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

// Dir returns the artifact directory
func (s *Store) Dir() string {
	return s.dir
}

// Get returns the loaded bundle, loading it on first use
func (s *Store) Get(ctx context.Context) (*Bundle, error) {
	s.mu.RLock()
	b := s.bundle
	s.mu.RUnlock()
	if b != nil {
		return b, nil
	}
	return s.load(ctx, false)
}

// Reload re-reads the artifacts from disk and swaps them in on success. The
// previous bundle stays in service if the reload fails.
func (s *Store) Reload(ctx context.Context) (*Bundle, error) {
	return s.load(ctx, true)
}

func (s *Store) load(ctx context.Context, force bool) (*Bundle, error) {
	key := "get"
	if force {
		key = "reload"
	}
	ch := s.group.DoChan(key, func() (any, error) {
		if !force {
			s.mu.RLock()
			b := s.bundle
			s.mu.RUnlock()
			if b != nil {
				return b, nil
			}
		}

		b, err := Load(s.dir)
		if err != nil {
			s.logger.Error("Failed to load model artifacts", zap.String("dir", s.dir), zap.Error(err))
			return nil, err
		}

		s.mu.Lock()
		s.bundle = b
		s.mu.Unlock()

		s.logger.Info("Loaded model artifacts",
			zap.String("dir", s.dir),
			zap.String("version", b.Version()),
			zap.Int("vocab_size", b.Vocabulary.Size()),
			zap.Time("trained_at", b.Manifest.TrainedAt))
		return b, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Bundle), nil
	}
}
