package main

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"chip-todo/api"
	"chip-todo/config"
	"chip-todo/storage"
	"chip-todo/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	ctx := context.Background()

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.WithError(err).Warn("shutdown tracer provider")
		}
	}()

	var rc *redis.Client
	if cfg.RedisConnectionString != "" {
		opts, err := storage.ParseRedisOptions(cfg.RedisConnectionString)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rc = redis.NewClient(opts)
	}

	backend, err := openBackend(ctx, cfg, rc)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer backend.Close()

	notifier, err := openNotifier(cfg, rc)
	if err != nil {
		log.Fatalf("notifier: %v", err)
	}

	store, err := tracker.Open(ctx, backend, tracker.Options{})
	if err != nil {
		log.Fatalf("open tracker: %v", err)
	}
	if err := store.EnsureCurrentWeek(ctx, time.Now()); err != nil {
		log.Fatalf("current week: %v", err)
	}
	codec, err := tracker.NewCodec(store)
	if err != nil {
		log.Fatalf("codec: %v", err)
	}

	logger := log.New()
	logger.SetLevel(log.GetLevel())

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderContentEncoding},
	}))
	e.Use(api.DecompressRequests(16 << 20))
	e.Use(api.RequestMetrics(logger))

	api.Register(e, api.Services{
		Board:    store,
		Meetings: tracker.NewLedger(store),
		Archive:  tracker.NewArchiver(store, notifier),
		Backups:  codec,
		Health:   healthCheck(backend, rc),
	}, logger)

	log.WithFields(log.Fields{
		"backend": cfg.Backend,
		"week":    store.CurrentWeek().Key(),
		"addr":    cfg.ListenAddr(),
	}).Info("chip-todo starting")
	e.Logger.Fatal(e.Start(cfg.ListenAddr()))
}

func openBackend(ctx context.Context, cfg config.Config, rc *redis.Client) (storage.Backend, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return storage.OpenSQLite(cfg.SQLitePath)
	case config.BackendRedis:
		return storage.NewRedisStore(rc, cfg.StorePrefix), nil
	case config.BackendTables:
		ts, err := storage.NewTableStore(cfg.StorageConnectionString, cfg.DocumentsTable, cfg.StorePrefix)
		if err != nil {
			return nil, err
		}
		if err := ts.CreateTable(ctx); err != nil {
			return nil, err
		}
		if rc != nil && cfg.CacheTTL > 0 {
			return storage.NewCache(ts, rc, cfg.CacheTTL, cfg.StorePrefix), nil
		}
		return ts, nil
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil
	}
	return nil, errors.New("unknown backend " + cfg.Backend)
}

// openNotifier returns nil when no archive fan-out is configured.
func openNotifier(cfg config.Config, rc *redis.Client) (tracker.Notifier, error) {
	var ns storage.Notifiers
	if cfg.ArchiveChannel != "" {
		ns = append(ns, storage.NewRedisNotifier(rc, cfg.ArchiveChannel))
	}
	if cfg.ArchiveQueue != "" {
		qn, err := storage.NewQueueNotifier(cfg.StorageConnectionString, cfg.ArchiveQueue)
		if err != nil {
			return nil, err
		}
		ns = append(ns, qn)
	}
	if len(ns) == 0 {
		return nil, nil
	}
	return ns, nil
}

// healthCheck pings the backend when it can be pinged, falling back to the
// shared Redis client used by the cache and notifier.
func healthCheck(backend storage.Backend, rc *redis.Client) func(context.Context) error {
	if p, ok := backend.(interface{ Ping(context.Context) error }); ok {
		return p.Ping
	}
	if rc == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return rc.Ping(ctx).Err()
	}
}
