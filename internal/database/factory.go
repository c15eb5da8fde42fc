package database

import (
	"fmt"
	"os"
	"path/filepath"

	"photo-ingest/internal/config"
)

// DatabaseFile is the store file name inside the configured data directory.
const DatabaseFile = "ingest.db"

// NewStoreFromConfig opens the fingerprint store described by cfg.
func NewStoreFromConfig(cfg config.DatabaseConfig) (*SQLiteStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		return NewSQLiteStore(filepath.Join(cfg.DataDir, DatabaseFile))
	case "memory":
		return NewSQLiteStore(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
