package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/phishing-detector/internal/core"
)

// sqlDialect holds the statements that differ between SQL backends
type sqlDialect struct {
	name   string
	schema []string
	upsert string
}

// sqlCache stores predictions in a SQL table. Timestamps are unix seconds so
// expiry comparisons behave the same on every backend.
type sqlCache struct {
	db       *sql.DB
	dialect  sqlDialect
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newSQLCache(db *sql.DB, dialect sqlDialect, logger *zap.Logger, cleanupFreq time.Duration) (*sqlCache, error) {
	for _, stmt := range dialect.schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create %s schema: %w", dialect.name, err)
		}
	}

	c := &sqlCache{
		db:      db,
		dialect: dialect,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
	if cleanupFreq > 0 {
		go runCleanup(c, cleanupFreq, c.stopCh, logger)
	}
	return c, nil
}

// Get retrieves a cached entry that has not expired
func (c *sqlCache) Get(ctx context.Context, key string) (*core.CacheEntry, error) {
	var entry core.CacheEntry
	var label int
	var lastSeen, expiresAt int64

	err := c.db.QueryRowContext(ctx, `
		SELECT cache_key, model_version, label, confidence, probability, explanation, last_seen, expires_at
		FROM prediction_cache
		WHERE cache_key = ? AND expires_at > ?
	`, key, time.Now().Unix()).Scan(
		&entry.Key, &entry.ModelVersion, &label, &entry.Confidence,
		&entry.Probability, &entry.Explanation, &lastSeen, &expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}

	entry.Label = core.Label(label)
	entry.LastSeen = time.Unix(lastSeen, 0)
	entry.ExpiresAt = time.Unix(expiresAt, 0)
	return &entry, nil
}

// Set stores or replaces a cache entry
func (c *sqlCache) Set(ctx context.Context, entry *core.CacheEntry) error {
	_, err := c.db.ExecContext(ctx, c.dialect.upsert,
		entry.Key, entry.ModelVersion, int(entry.Label), entry.Confidence,
		entry.Probability, entry.Explanation, entry.LastSeen.Unix(), entry.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Delete removes a cache entry
func (c *sqlCache) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM prediction_cache WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Cleanup removes expired entries
func (c *sqlCache) Cleanup(ctx context.Context) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM prediction_cache WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to clean up expired entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		c.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		c.logger.Debug("Cleaned up expired cache entries",
			zap.String("backend", c.dialect.name),
			zap.Int64("expired_count", rowsAffected))
	}
	return nil
}

// Stop stops the background cleanup task and closes the database
func (c *sqlCache) Stop() error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stopCh)
		err = c.db.Close()
	})
	return err
}
