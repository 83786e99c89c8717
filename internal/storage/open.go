package storage

import (
	"fmt"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendBadger   = "badger"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config selects and locates a backend.
type Config struct {
	Backend string `koanf:"backend"`
	// Path is the directory for file and badger, or the database file for sqlite.
	Path string `koanf:"path"`
	// DSN is the postgres connection string.
	DSN string `koanf:"dsn"`
}

// Open builds the configured Store.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile, "":
		return NewFileStore(cfg.Path)
	case BackendBadger:
		return NewBadgerStore(cfg.Path)
	case BackendSQLite:
		path := cfg.Path
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "newspulse.db")
		}
		return NewSQLiteStore(path)
	case BackendPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("storage: postgres backend needs a dsn")
		}
		return NewPostgresStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}
