// Package app wires the feed engine from a project configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"feedcraft/internal/config"
	"feedcraft/internal/dispatch"
	"feedcraft/internal/engine"
	"feedcraft/internal/queue"
	"feedcraft/internal/registry"
	"feedcraft/internal/store"
)

type Options struct {
	// Host supplies entity classes and resolvers; classes it omits are stubs.
	Host registry.Host
	// Hooks run around every store insert and fetch when set.
	Hooks *store.Hooks
	// EnsureSchema creates or migrates the store schema on open.
	EnsureSchema bool
}

type App struct {
	Config     *config.ProjectConfig
	Schema     *config.Schema
	Logger     *slog.Logger
	Store      store.Store
	Registry   *registry.Registry
	Queue      *queue.Redis
	Dispatcher *dispatch.Dispatcher
	Engine     *engine.Engine

	metrics *http.Server
}

// Open builds every component named by cfg. A failure closes whatever was
// already opened.
func Open(ctx context.Context, cfg *config.ProjectConfig, opts Options) (_ *App, err error) {
	logger := NewLogger(cfg.Log)
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	if a.Schema, err = config.LoadSchema(cfg.Schema); err != nil {
		return nil, err
	}
	if a.Registry, err = registry.Load(a.Schema, opts.Host); err != nil {
		return nil, fmt.Errorf("loading registry: %w", err)
	}

	if a.Store, err = OpenStore(ctx, cfg.Database); err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Database.Driver, err)
	}
	if opts.EnsureSchema {
		if err = a.Store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensuring schema: %w", err)
		}
	}
	if opts.Hooks != nil {
		a.Store = store.WithHooks(a.Store, opts.Hooks)
	}

	dispatchOpts := dispatch.Options{
		Concurrency: cfg.Dispatch.Concurrency,
		AsyncRoute:  cfg.Dispatch.AsyncRoute,
		AsyncHandle: cfg.Dispatch.AsyncHandle,
		Logger:      logger,
	}
	if cfg.Redis.Enabled {
		if a.Queue, err = queue.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Queue); err != nil {
			return nil, err
		}
		dispatchOpts.Queue = a.Queue
	}
	if a.Dispatcher, err = dispatch.New(a.Registry, a.Store, dispatchOpts); err != nil {
		return nil, err
	}
	a.Engine = engine.New(a.Registry, a.Store, a.Dispatcher, logger)

	logger.Info("feed engine ready",
		slog.String("project", cfg.Project),
		slog.String("driver", cfg.Database.Driver),
		slog.Int("activity_types", len(a.Schema.Activities)),
		slog.Int("timeline_types", len(a.Schema.Timelines)),
		slog.Bool("redis", cfg.Redis.Enabled))
	return a, nil
}

// ServeMetrics starts the prometheus listener when metrics.addr is set. It
// returns once the listener is bound.
func (a *App) ServeMetrics() error {
	addr := a.Config.Metrics.Addr
	if addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("metrics listener stopped", slog.Any("error", err))
		}
	}()
	a.Logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))
	return nil
}

// Close releases the metrics listener, the queue and the store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.metrics != nil {
		errs = append(errs, a.metrics.Shutdown(ctx))
	}
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close(ctx))
	}
	return errors.Join(errs...)
}
