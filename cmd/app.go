package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"charm.land/log/v2"

	"github.com/Gaurav-Gosain/cfproblem/cache"
	"github.com/Gaurav-Gosain/cfproblem/fetch"
	"github.com/Gaurav-Gosain/cfproblem/metrics"
	"github.com/Gaurav-Gosain/cfproblem/store"
)

// app holds the wired pipeline shared by every command.
type app struct {
	cfg      Config
	logger   *log.Logger
	recorder *metrics.Recorder
	durable  store.Store
	fetcher  *fetch.Orchestrator
	cache    *cache.Service

	closers []func(context.Context) error
}

func newLogger(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          appName,
	})
	if lvl, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

func newApp(ctx context.Context, cfg Config) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   newLogger(cfg.Log.Level),
		recorder: metrics.NewRecorder(nil),
	}

	switch cfg.Store.Backend {
	case "redis":
		r, err := store.NewRedis(ctx, store.RedisConfig{
			Address:   cfg.Store.Redis.Address,
			Username:  cfg.Store.Redis.Username,
			Password:  cfg.Store.Redis.Password,
			DB:        cfg.Store.Redis.DB,
			KeyPrefix: cfg.Store.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		a.durable = r
		a.closers = append(a.closers, func(context.Context) error { return r.Close() })
		a.logger.Debug("Using redis store", "addr", cfg.Store.Redis.Address)
	default:
		a.durable = store.NewMemory()
	}

	a.fetcher = fetch.New(a.durable,
		fetch.WithBaseURL(cfg.Fetch.BaseURL),
		fetch.WithAPIURL(cfg.Fetch.APIURL),
		fetch.WithTimeout(cfg.Fetch.Timeout),
		fetch.WithUserAgent(cfg.Fetch.UserAgent),
		fetch.WithLogger(a.logger),
		fetch.WithAttemptHook(a.recorder.ObserveAttempt),
	)
	a.cache = cache.New(a.fetcher, a.durable,
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithLogger(a.logger),
		cache.WithLookupHook(a.recorder.ObserveLookup),
	)

	if cfg.Metrics.Address != "" {
		a.serveMetrics(cfg.Metrics.Address)
	}
	return a, nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.recorder.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Metrics server stopped", "addr", addr, "err", err)
		}
	}()
	a.logger.Info("Serving metrics", "addr", addr)
	a.closers = append(a.closers, srv.Shutdown)
}

func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
