package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/uimp/portalguard"
	"github.com/uimp/portalguard/internal/portal"
	"github.com/uimp/portalguard/internal/settings"
	otelexport "github.com/uimp/portalguard/metrics/export/otel"
	"github.com/uimp/portalguard/metrics/export/prometheus"
	"github.com/uimp/portalguard/route"
	"github.com/uimp/portalguard/userstore"
)

const meterName = "github.com/uimp/portalguard"

// app owns everything the server needs. Close releases it in reverse order.
type app struct {
	handler http.Handler
	engine  *portalguard.Engine
	meters  *sdkmetric.MeterProvider
	closers []func() error
}

func newApp(ctx context.Context, s settings.Settings, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	rdb, err := a.openRedis(ctx, s.Redis, logger)
	if err != nil {
		return nil, err
	}

	users, checks, err := a.openUsers(s.Users, logger)
	if err != nil {
		return nil, err
	}

	routes := route.Default()
	if s.RoutesFile != "" {
		if routes, err = route.LoadFile(s.RoutesFile); err != nil {
			return nil, err
		}
	}

	cfg, ephemeral, err := s.EngineConfig()
	if err != nil {
		return nil, err
	}
	if ephemeral {
		logger.Warn("no signing key configured; using an ephemeral ed25519 key, sessions end on restart")
	}

	b := portalguard.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithRoutes(routes).
		WithUserProvider(users).
		WithLogger(logger)
	if s.Auth.AuditLog {
		b = b.WithAuditSink(portalguard.NewSlogSink(logger.With("component", "audit")))
	}
	if a.engine, err = b.Build(); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { a.engine.Close(); return nil })
	for _, w := range a.engine.SecurityReport().Warnings() {
		logger.Warn("insecure configuration", "detail", w)
	}

	deps := portal.Deps{
		Engine:       a.engine,
		Logger:       logger,
		Checks:       checks,
		TrustProxy:   s.TrustProxy,
		MetricsToken: s.MetricsToken,
	}
	if s.Metrics {
		deps.Metrics = prometheus.New(a.engine).Handler()
		if s.MetricsExportInterval > 0 {
			if err := a.startOTel(s.MetricsExportInterval, logger); err != nil {
				return nil, err
			}
		}
	}
	a.handler = portal.NewRouter(deps)
	return a, nil
}

// startOTel installs an SDK meter provider that logs the engine metrics
// every interval. It becomes the global provider.
func (a *app) startOTel(interval time.Duration, logger *slog.Logger) error {
	mp := newMeterProvider(logger.With("component", "otel"), interval)
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return mp.Shutdown(ctx)
	})
	otel.SetMeterProvider(mp)
	a.meters = mp

	exp, err := otelexport.New(mp.Meter(meterName), a.engine)
	if err != nil {
		return fmt.Errorf("register otel instruments: %w", err)
	}
	a.closers = append(a.closers, exp.Close)
	return nil
}

func (a *app) openRedis(ctx context.Context, rs settings.RedisSettings, logger *slog.Logger) (*redis.Client, error) {
	addr := rs.Addr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start embedded redis: %w", err)
		}
		a.closers = append(a.closers, func() error { mr.Close(); return nil })
		addr = mr.Addr()
		logger.Warn("no redis address configured; sessions live in an embedded in-memory redis", "addr", addr)
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: rs.Password, DB: rs.DB})
	a.closers = append(a.closers, rdb.Close)
	if err := rdb.Ping(ctx).Err(); err != nil {
		// Strict mode fails closed while Redis is down, so start anyway.
		logger.Error("redis unreachable at startup", "addr", addr, "error", err)
	}
	return rdb, nil
}

func (a *app) openUsers(us settings.UserSettings, logger *slog.Logger) (portalguard.UserProvider, map[string]func(context.Context) error, error) {
	switch us.Driver {
	case "sqlite":
		store, err := userstore.OpenSQLite(us.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, map[string]func(context.Context) error{"users": store.Ping}, nil
	case "memory":
		if us.SeedFile == "" {
			logger.Warn("memory user store has no seed file; nobody can log in")
			return userstore.NewMemory(), nil, nil
		}
		store, err := userstore.LoadMemoryFile(us.SeedFile)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("loaded user seed", "path", us.SeedFile, "users", store.Len())
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown users driver %q", us.Driver)
	}
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
