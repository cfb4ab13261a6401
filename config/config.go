// Package config loads service settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage backends selectable with BACKEND.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendTables = "tables"
	BackendMemory = "memory"
)

// Config holds every setting of the service binary and storage-init.
type Config struct {
	Backend                 string        `env:"BACKEND" envDefault:"sqlite"`
	SQLitePath              string        `env:"SQLITE_PATH" envDefault:"chip-todo.db"`
	RedisConnectionString   string        `env:"REDIS_CONNECTION_STRING"`
	StorageConnectionString string        `env:"STORAGE_CONNECTION_STRING"`
	DocumentsTable          string        `env:"DOCUMENTS_TABLE" envDefault:"ChipTodoDocuments"`
	ArchiveQueue            string        `env:"ARCHIVE_QUEUE"`
	ArchiveChannel          string        `env:"ARCHIVE_CHANNEL"`
	StorePrefix             string        `env:"STORE_PREFIX"`
	CacheTTL                time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	AllowedOrigins          []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	Port                    string        `env:"PORT" envDefault:"8080"`
	// FunctionsPort is set when running as an Azure Functions custom handler
	// and takes precedence over Port.
	FunctionsPort string `env:"FUNCTIONS_CUSTOMHANDLER_PORT"`
	Debug         bool   `env:"DEBUG"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.Backend == "" {
		cfg.Backend = BackendSQLite
	}
	if strings.TrimSpace(cfg.SQLitePath) == "" {
		cfg.SQLitePath = "chip-todo.db"
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite backend"))
		}
	case BackendRedis:
		if c.RedisConnectionString == "" {
			errs = append(errs, errors.New("REDIS_CONNECTION_STRING is required for the redis backend"))
		}
	case BackendTables:
		if c.StorageConnectionString == "" {
			errs = append(errs, errors.New("STORAGE_CONNECTION_STRING is required for the tables backend"))
		}
		if c.DocumentsTable == "" {
			errs = append(errs, errors.New("DOCUMENTS_TABLE is required for the tables backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown BACKEND %q", c.Backend))
	}
	if c.ArchiveQueue != "" && c.StorageConnectionString == "" {
		errs = append(errs, errors.New("ARCHIVE_QUEUE needs STORAGE_CONNECTION_STRING"))
	}
	if c.ArchiveChannel != "" && c.RedisConnectionString == "" {
		errs = append(errs, errors.New("ARCHIVE_CHANNEL needs REDIS_CONNECTION_STRING"))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, errors.New("CACHE_TTL must not be negative"))
	}
	return errors.Join(errs...)
}

// ListenAddr returns the address the HTTP server binds to.
func (c Config) ListenAddr() string {
	if c.FunctionsPort != "" {
		return ":" + c.FunctionsPort
	}
	return ":" + c.Port
}
