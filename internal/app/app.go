package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"
	"github.com/specialistvlad/convergo/internal/config"
	"github.com/specialistvlad/convergo/internal/ctxlog"
	"github.com/specialistvlad/convergo/internal/lock"
	"github.com/specialistvlad/convergo/internal/metrics"
	"github.com/specialistvlad/convergo/internal/registry"
	"github.com/specialistvlad/convergo/internal/repository"
	"github.com/specialistvlad/convergo/internal/transport"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config

	registry  *registry.Registry
	repo      *repository.Repository
	transport transport.Transport
	locker    lock.Locker
	redis     *backend.Client

	promRegistry *prometheus.Registry
	metrics      *metrics.Recorder
	httpServer   *http.Server
}

// Option customizes NewApp.
type Option func(*options)

type options struct {
	transport transport.Transport
	modules   []registry.Module
	redis     *backend.Client
}

// WithTransport replaces the transport built from the configuration.
func WithTransport(t transport.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithModules replaces the compiled-in reactor modules.
func WithModules(modules ...registry.Module) Option {
	return func(o *options) { o.modules = modules }
}

// WithRedisClient uses client instead of connecting to redis.addr.
func WithRedisClient(client *backend.Client) Option {
	return func(o *options) { o.redis = client }
}

// NewApp is the constructor for the main application. It loads the
// repository at cfg.RepoPath through loader and builds the configured
// backends. The returned App owns its logger, registry and metrics.
func NewApp(ctx context.Context, outW io.Writer, cfg *Config, loader config.Loader, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	a := &App{
		outW:         outW,
		logger:       logger,
		config:       cfg,
		transport:    o.transport,
		redis:        o.redis,
		promRegistry: prometheus.NewRegistry(),
	}
	a.promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.promRegistry)

	modules := o.modules
	if modules == nil {
		modules = coreModules
	}
	a.registry = registry.New(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules), "reactors", a.registry.Names())

	if a.redis == nil && cfg.usesRedis() {
		client, err := newRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.redis = client
	}
	if a.transport == nil {
		a.transport = newTransport(cfg.Transport)
	}
	a.locker = newLocker(cfg.Lock, a.redis, cfg.Redis.Prefix)
	cache := newCache(cfg.Cache, a.redis, cfg.Redis.Prefix)

	model, err := loader.Load(ctx, cfg.RepoPath)
	if err != nil {
		a.closeRedis()
		return nil, fmt.Errorf("failed to load repository: %w", err)
	}
	logger.Debug("Repository loaded and translated into unified model.")

	a.repo, err = repository.New(ctx, model,
		repository.WithRegistry(a.registry),
		repository.WithCache(cache, cfg.Revision),
		repository.WithMaxIterations(cfg.MaxMetadataIterations),
		repository.WithMetrics(a.metrics),
	)
	if err != nil {
		a.closeRedis()
		return nil, err
	}
	logger.Debug("Repository validated.", "nodes", len(a.repo.NodeNames()), "groups", len(a.repo.GroupNames()))
	return a, nil
}

// Context returns ctx carrying the application logger.
func (a *App) Context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// Repository returns the loaded repository.
func (a *App) Repository() *repository.Repository {
	return a.repo
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Close stops the health check server and releases backend connections.
func (a *App) Close(ctx context.Context) error {
	ctx = a.Context(ctx)
	err := a.closeHealthCheckServer(ctx)
	return errors.Join(err, a.closeRedis())
}

func (a *App) closeRedis() error {
	if a.redis == nil {
		return nil
	}
	err := a.redis.Close()
	a.redis = nil
	return err
}
