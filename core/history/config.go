package history

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendJSONL    = "jsonl"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config selects and configures a Store.
type Config struct {
	Backend string `json:"backend"`
	// Path is the file for jsonl and sqlite.
	Path string `json:"path"`
	// DSN is the connection string for postgres and redis.
	DSN    string `json:"dsn"`
	Stream string `json:"stream"`
	// Rotation applies to jsonl when MaxSizeMB is set.
	MaxSizeMB  int `json:"max_size_mb"`
	MaxBackups int `json:"max_backups"`
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.Backend == BackendJSONL && c.Path == "" {
		c.Path = "history.jsonl"
	}
	if c.Backend == BackendSQLite && c.Path == "" {
		c.Path = "history.db"
	}
	if c.Backend == BackendRedis && c.Stream == "" {
		c.Stream = DefaultStream
	}
}

// Validate checks the backend and its required settings.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendJSONL, BackendSQLite:
		return nil
	case BackendPostgres, BackendRedis:
		if c.DSN == "" {
			return fmt.Errorf("history: %s backend requires dsn", c.Backend)
		}
		return nil
	default:
		return fmt.Errorf("history: unknown backend %q", c.Backend)
	}
}

// Open creates the Store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendJSONL:
		if cfg.MaxSizeMB > 0 {
			return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
		}
		return NewJSONLStore(cfg.Path)
	case BackendSQLite:
		return NewSQLiteStore(cfg.Path)
	case BackendPostgres:
		return NewPostgresStore(cfg.DSN)
	case BackendRedis:
		return NewRedisStore(ctx, cfg.DSN, cfg.Stream)
	default:
		return NewMemoryStore(), nil
	}
}
