package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteDialect = sqlDialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS prediction_cache (
			cache_key TEXT PRIMARY KEY,
			model_version TEXT NOT NULL,
			label INTEGER NOT NULL,
			confidence INTEGER NOT NULL,
			probability REAL NOT NULL,
			explanation TEXT NOT NULL DEFAULT '',
			last_seen INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prediction_cache_expires_at ON prediction_cache(expires_at)`,
	},
	upsert: `INSERT OR REPLACE INTO prediction_cache
		(cache_key, model_version, label, confidence, probability, explanation, last_seen, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
}

// SQLiteCache is a SQLite implementation of core.PredictionCache
type SQLiteCache struct {
	*sqlCache
}

// NewSQLiteCache opens or creates the cache database at dbPath
func NewSQLiteCache(dbPath string, logger *zap.Logger, cleanupFreq time.Duration) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// SQLite serializes writers
	db.SetMaxOpenConns(1)

	c, err := newSQLCache(db, sqliteDialect, logger, cleanupFreq)
	if err != nil {
		return nil, err
	}
	return &SQLiteCache{c}, nil
}
