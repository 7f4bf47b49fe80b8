package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlDialect = sqlDialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS prediction_cache (
			cache_key VARCHAR(128) PRIMARY KEY,
			model_version VARCHAR(64) NOT NULL,
			label TINYINT NOT NULL,
			confidence INT NOT NULL,
			probability DOUBLE NOT NULL,
			explanation TEXT NOT NULL,
			last_seen BIGINT NOT NULL,
			expires_at BIGINT NOT NULL,
			INDEX idx_prediction_cache_expires_at (expires_at)
		)`,
	},
	upsert: `INSERT INTO prediction_cache
		(cache_key, model_version, label, confidence, probability, explanation, last_seen, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			model_version = VALUES(model_version),
			label = VALUES(label),
			confidence = VALUES(confidence),
			probability = VALUES(probability),
			explanation = VALUES(explanation),
			last_seen = VALUES(last_seen),
			expires_at = VALUES(expires_at)`,
}

// MySQLCache is a MySQL implementation of core.PredictionCache
type MySQLCache struct {
	*sqlCache
}

// NewMySQLCache connects to MySQL and creates the cache table if needed
func NewMySQLCache(dsn string, logger *zap.Logger, cleanupFreq time.Duration) (*MySQLCache, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	c, err := newSQLCache(db, mysqlDialect, logger, cleanupFreq)
	if err != nil {
		return nil, err
	}
	return &MySQLCache{c}, nil
}
