package cli

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/feelflow"
	"github.com/aretw0/feelflow/internal/config"
	"github.com/aretw0/feelflow/internal/logging"
	"github.com/aretw0/feelflow/pkg/adapters/memory"
	"github.com/aretw0/feelflow/pkg/adapters/redis"
	"github.com/aretw0/feelflow/pkg/catalog"
	"github.com/aretw0/feelflow/pkg/domain"
	"github.com/aretw0/feelflow/pkg/observability"
	"github.com/aretw0/feelflow/pkg/persistence/middleware"
	"github.com/aretw0/feelflow/pkg/ports"
	"github.com/aretw0/feelflow/pkg/runner"
)

// App is a fully wired engine plus the resources it owns.
type App struct {
	Engine   *feelflow.Engine
	Store    ports.SessionStore
	Logger   *slog.Logger
	Registry *prometheus.Registry // nil when metrics are disabled

	// Sanitizer carries the input rules every surface applies.
	Sanitizer runner.Sanitizer

	closers []func(context.Context) error
}

// Close releases the store, trace provider and log files in reverse order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Bootstrap initializes an engine from cfg following the CLI conventions:
// logs and traces go to rotated files when configured, metrics to a private registry.
func Bootstrap(cfg config.Config, stderr io.Writer) (*App, error) {
	app := &App{Sanitizer: runner.Sanitizer{MaxSize: cfg.Input.MaxSize}}

	logger, err := app.createLogger(cfg.Log, stderr)
	if err != nil {
		return nil, err
	}
	app.Logger = logger

	random := ports.DefaultRandom
	if cfg.Seed != 0 {
		random = ports.NewSeededRandom(cfg.Seed)
	}

	reflector := catalog.Default(catalog.WithRand(random))
	if cfg.Catalog != "" {
		if reflector, err = catalog.Load(cfg.Catalog, catalog.WithRand(random)); err != nil {
			app.Close(context.Background())
			return nil, fmt.Errorf("error loading catalog: %w", err)
		}
	}

	engineOpts := []feelflow.Option{
		feelflow.WithLogger(logger),
		feelflow.WithRandom(random),
		feelflow.WithCatalog(reflector),
		feelflow.WithTypingDelay(cfg.TypingDelay),
		feelflow.WithDebounce(cfg.CreateDebounce),
		feelflow.WithAutoCreateAfterFarewell(cfg.AutoCreateAfterFarewell),
	}

	// Store
	storeOpts, err := app.createStore(cfg.Store)
	if err != nil {
		app.Close(context.Background())
		return nil, err
	}
	engineOpts = append(engineOpts, storeOpts...)

	// Tracing
	if cfg.Trace.File != "" {
		engineOpts = append(engineOpts, feelflow.WithTracer(app.createTracer(cfg.Trace.File)))
	}

	// Hooks
	hooks := []domain.LifecycleHooks{observability.LogHooks(logger)}
	if cfg.Metrics.Enabled {
		app.Registry = prometheus.NewRegistry()
		app.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		hooks = append(hooks, observability.NewMetrics(app.Registry).Hooks())
	}
	engineOpts = append(engineOpts, feelflow.WithHooks(observability.Combine(hooks...)))

	engine, err := feelflow.New(engineOpts...)
	if err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	app.Engine = engine
	return app, nil
}

// createLogger writes to stderr, or to a rotated file when one is configured.
func (a *App) createLogger(cfg config.LogConfig, stderr io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if cfg.File == "" {
		return logging.NewWithWriter(stderr, level), nil
	}
	file := logging.NewRotatingFile(cfg.File)
	a.closers = append(a.closers, func(context.Context) error { return file.Close() })
	return logging.NewWithWriter(file, level), nil
}

func (a *App) createStore(cfg config.StoreConfig) ([]feelflow.Option, error) {
	var opts []feelflow.Option
	var store ports.SessionStore = memory.NewStore()

	if cfg.Backend == "redis" {
		rs := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(cfg.Redis.TTL),
		)
		a.closers = append(a.closers, func(context.Context) error { return rs.Close() })
		a.Logger.Debug("Using redis session store", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)

		store = rs
		opts = append(opts, feelflow.WithLocker(redis.NewLocker(rs.Client(), cfg.Redis.Prefix)))
	}

	mws, err := storeMiddleware(cfg)
	if err != nil {
		return nil, err
	}
	a.Store = middleware.Chain(store, mws...)
	return append(opts, feelflow.WithStore(a.Store)), nil
}

// storeMiddleware redacts before it encrypts, so sealed sessions are redacted too.
func storeMiddleware(cfg config.StoreConfig) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware

	if cfg.Redact {
		patterns := cfg.RedactPatterns
		if len(patterns) == 0 {
			patterns = middleware.DefaultPIIPatterns
		}
		mw, err := middleware.NewPIIMiddleware(patterns)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}

	if cfg.EncryptionKey != "" {
		active, err := decodeKey(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("store.encryption_key: %w", err)
		}
		enc := middleware.EncryptionConfig{ActiveKey: active}
		for i, k := range cfg.FallbackKeys {
			key, err := decodeKey(k)
			if err != nil {
				return nil, fmt.Errorf("store.fallback_keys[%d]: %w", i, err)
			}
			enc.FallbackKeys = append(enc.FallbackKeys, key)
		}
		mw, err := middleware.NewEncryptionMiddleware(enc)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	return mws, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 key: %w", err)
	}
	return key, nil
}

// createTracer installs an SDK provider that writes spans as JSON lines to a rotated file.
func (a *App) createTracer(path string) trace.Tracer {
	file := logging.NewRotatingFile(path)
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(file))
	if err != nil {
		// stdouttrace only fails on invalid options
		a.Logger.Warn("Tracing disabled", "error", err)
		return otel.Tracer(feelflow.TracerName)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	a.closers = append(a.closers,
		func(context.Context) error { return file.Close() },
		tp.Shutdown,
	)
	return tp.Tracer(feelflow.TracerName)
}
