// Package app assembles an engine from a workspace: store, cache, identity,
// notifications and error reporting.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"teaminova/internal/cache"
	"teaminova/internal/config"
	"teaminova/internal/db"
	"teaminova/internal/engine"
	"teaminova/internal/identity"
	"teaminova/internal/migrate"
	"teaminova/internal/notify"
	"teaminova/internal/report"
)

type Options struct {
	Workspace string
	// DSN overrides the store DSN from teaminova.yml.
	DSN    string
	Logger *logrus.Logger
}

// Runtime owns the resources behind an engine. Close releases them.
type Runtime struct {
	Engine   engine.Engine
	Config   *config.Config
	DB       *db.DB
	Verifier identity.TokenVerifier
	Logger   *logrus.Logger

	redis    *redis.Client
	webhooks *notify.WebhookNotifier
}

// Open loads the workspace config, opens and migrates the store and wires
// the engine's collaborators.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	dsn := cfg.Store.DSN
	if opts.DSN != "" {
		dsn = opts.DSN
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace, DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	rt := &Runtime{Config: cfg, DB: conn, Logger: logger}
	eng := engine.New(conn, cfg)
	eng.Reporter = report.NewLogrusReporter(logger)

	notifiers := notify.Multi{notify.LogNotifier{Logger: logger}}
	if len(cfg.Webhooks) > 0 {
		rt.webhooks = notify.NewWebhookNotifier(cfg.Webhooks, logger)
		notifiers = append(notifiers, rt.webhooks)
	}
	eng.Notifier = notifiers

	if cfg.Cache.RedisAddr != "" {
		rt.redis = redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		eng.Directory = cache.NewDirectory(rt.redis, cfg.CacheTTL())
	}

	fb, err := identity.NewFirebase(ctx, cfg.Identity.FirebaseCredentials)
	switch {
	case err == nil:
		eng.Identity = fb
		rt.Verifier = fb
	case errors.Is(err, identity.ErrNotConfigured):
		eng.Identity = identity.NewLocal()
	default:
		rt.Close()
		return nil, fmt.Errorf("identity: %w", err)
	}

	rt.Engine = eng
	return rt, nil
}

func (rt *Runtime) Close() error {
	if rt.webhooks != nil {
		rt.webhooks.Close()
	}
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
	return rt.DB.Close()
}
