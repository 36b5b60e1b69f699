package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"github.com/roofmanager/fieldsync/internal/config"
	"github.com/roofmanager/fieldsync/internal/db"
	"github.com/roofmanager/fieldsync/internal/logging"
	"github.com/roofmanager/fieldsync/internal/offline"
	"github.com/roofmanager/fieldsync/internal/photostore/local"
	"github.com/roofmanager/fieldsync/internal/service"
	"github.com/roofmanager/fieldsync/internal/store"
	"github.com/roofmanager/fieldsync/internal/syncer"
	"github.com/roofmanager/fieldsync/internal/upstream"
)

var errSyncDisabled = errors.New("UPSTREAM_URL is not set; sync is disabled")

// app is the wired process: storage, cache, service and, when a backend is
// configured, the upstream client and syncer.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *sql.DB
	cache   *offline.Cache
	photos  *local.LocalPhotoStore
	runs    *store.SyncRunStore
	service *service.FieldService
	client  *upstream.Client
	syncer  *syncer.Syncer
	closers []func()
}

func newApp(ctx context.Context) (a *app, err error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a = &app{cfg: cfg, logger: logger, closers: []func(){cleanup}}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.db, err = db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := a.db.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	})
	a.runs = store.NewSyncRunStore(a.db)

	slots, err := a.newPersister(ctx)
	if err != nil {
		return nil, err
	}

	a.cache, err = offline.Open(ctx, slots, offline.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	a.photos, err = local.NewLocalPhotoStore(cfg.PhotoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize photo store: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a.service = service.NewFieldService(a.cache, a.photos, logger, service.WithLocation(loc))

	if cfg.SyncEnabled() {
		a.client = upstream.NewClient(upstream.Options{
			BaseURL:    cfg.UpstreamURL,
			Timeout:    cfg.UpstreamTimeout,
			RetryCount: cfg.UpstreamRetries,
		}, upstream.NewTokenHolder(cfg.UpstreamToken), logger)
		a.syncer = syncer.New(a.client, a.cache, a.photos, a.runs,
			syncer.Options{PruneSyncedPhotos: cfg.PruneSyncedPhotos}, logger)
		logger.Info("sync enabled", "upstream", cfg.UpstreamURL)
	} else {
		logger.Info("sync disabled, running cache only")
	}
	return a, nil
}

func (a *app) newPersister(ctx context.Context) (offline.Persister, error) {
	switch a.cfg.SlotBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.Error("failed to close redis client", "error", err)
			}
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to reach redis at %s: %w", a.cfg.RedisAddr, err)
		}
		a.logger.Info("offline state stored in redis", "addr", a.cfg.RedisAddr, "namespace", a.cfg.RedisNamespace)
		return store.NewRedisSlotStore(client, a.cfg.RedisNamespace), nil
	default:
		return store.NewSlotStore(a.db), nil
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
