package main

import (
	"context"

	log "github.com/sirupsen/logrus"

	"chip-todo/config"
	"chip-todo/storage"
)

// storage-init provisions whatever the configured backend needs before the
// service starts: the SQLite documents table, the Azure documents table and
// the archive queue.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.WithField("backend", cfg.Backend).Info("storage init starting")

	ctx := context.Background()

	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("sqlite: %v", err)
		}
		if err := db.Close(); err != nil {
			log.Fatalf("close sqlite: %v", err)
		}
		log.WithField("path", cfg.SQLitePath).Info("sqlite schema ready")
	case config.BackendTables:
		ts, err := storage.NewTableStore(cfg.StorageConnectionString, cfg.DocumentsTable, cfg.StorePrefix)
		if err != nil {
			log.Fatalf("tables: %v", err)
		}
		if err := ts.CreateTable(ctx); err != nil {
			log.Fatalf("create table: %v", err)
		}
		log.WithField("table", cfg.DocumentsTable).Info("documents table ready")
	default:
		log.Debug("backend needs no provisioning")
	}

	if cfg.ArchiveQueue != "" {
		qn, err := storage.NewQueueNotifier(cfg.StorageConnectionString, cfg.ArchiveQueue)
		if err != nil {
			log.Fatalf("queue: %v", err)
		}
		if err := qn.CreateQueue(ctx); err != nil {
			log.Fatalf("create queue: %v", err)
		}
		log.WithField("queue", cfg.ArchiveQueue).Info("archive queue ready")
	}

	log.Info("storage init complete")
}
