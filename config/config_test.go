package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BACKEND", "")
	t.Setenv("SQLITE_PATH", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != BackendSQLite || cfg.SQLitePath != "chip-todo.db" {
		t.Fatalf("unexpected storage defaults: %+v", cfg)
	}
	if cfg.CacheTTL != 5*time.Minute || cfg.ListenAddr() != ":8080" {
		t.Fatalf("unexpected defaults: ttl=%v addr=%s", cfg.CacheTTL, cfg.ListenAddr())
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestLoadTablesBackend(t *testing.T) {
	t.Setenv("BACKEND", " Tables ")
	t.Setenv("STORAGE_CONNECTION_STRING", "UseDevelopmentStorage=true")
	t.Setenv("REDIS_CONNECTION_STRING", "localhost:6379")
	t.Setenv("ARCHIVE_QUEUE", "archives")
	t.Setenv("ARCHIVE_CHANNEL", "archives")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("FUNCTIONS_CUSTOMHANDLER_PORT", "7071")
	t.Setenv("DEBUG", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != BackendTables || cfg.CacheTTL != 30*time.Second || !cfg.Debug {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.ListenAddr() != ":7071" {
		t.Fatalf("functions port should win, got %s", cfg.ListenAddr())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"unknown backend", Config{Backend: "mongo"}, "unknown BACKEND"},
		{"redis without conn", Config{Backend: BackendRedis}, "REDIS_CONNECTION_STRING"},
		{"tables without conn", Config{Backend: BackendTables, DocumentsTable: "t"}, "STORAGE_CONNECTION_STRING"},
		{"queue without conn", Config{Backend: BackendMemory, ArchiveQueue: "q"}, "ARCHIVE_QUEUE"},
		{"channel without redis", Config{Backend: BackendMemory, ArchiveChannel: "c"}, "ARCHIVE_CHANNEL"},
		{"negative ttl", Config{Backend: BackendMemory, CacheTTL: -time.Second}, "CACHE_TTL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
	if err := (Config{Backend: BackendMemory}).Validate(); err != nil {
		t.Fatalf("memory backend should validate: %v", err)
	}
}
