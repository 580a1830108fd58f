package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gbtim/internal/config"
)

// NewDatabaseFromConfig creates a database based on the provided
// configuration. Type "memory" gives an in-memory index for tests and dry
// runs; "sqlite" opens (creating if needed) the index file under DataDir.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "memory":
		db, err := NewSQLiteDatabase(":memory:", nil, nil)
		if err != nil {
			return nil, err
		}
		if err := db.MigrateUp(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating in-memory database: %w", err)
		}
		return db, nil
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("sqlite database requires data_dir")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, "gbtim.db"), nil, nil)
	default:
		return nil, fmt.Errorf("unknown database type: %q", cfg.Type)
	}
}
