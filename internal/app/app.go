// Package app owns the runtime resources of one resourcekit invocation:
// telemetry providers, the database handle, the loaded catalog and the engine
// built over them. Resources are released in reverse order on Shutdown.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"resourcekit/internal/catalog"
	"resourcekit/internal/config"
	"resourcekit/internal/engine"
	"resourcekit/internal/logging"
	"resourcekit/internal/observability"
	"resourcekit/internal/pivot"
	"resourcekit/internal/sqlutil"
)

// App owns runtime resources for a CLI run.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider
	meterProvider  *observability.MeterProvider
	tracerProvider *observability.TracerProvider
	metrics        *observability.Metrics

	catalog *catalog.Catalog
	dialect sqlutil.Dialect
	engine  *engine.Engine

	db         *sql.DB
	dbStatsReg interface{ Unregister() error }

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	dialect, err := sqlutil.DialectFor(cfg.Database.Dialect())
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, logger: logger, dialect: dialect}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Init loads the catalog and starts telemetry. With connect set it also
// opens and pings the database. It is idempotent.
func (a *App) Init(ctx context.Context, connect bool) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	meterProvider, metrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
		if path := a.cfg.Observability.MetricsTextfile; path != "" {
			// Runs before the provider shuts down.
			cleanup.push("metrics textfile", func(context.Context) error {
				return meterProvider.WriteTextfile(path)
			})
		}
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	cat, err := catalog.Load(a.cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	a.logger.Info("catalog loaded",
		slog.String("path", a.cfg.Catalog.Path),
		slog.Int("resources", len(cat.Registry)),
	)

	var db *sql.DB
	var dbStatsReg interface{ Unregister() error }
	if connect {
		db, dbStatsReg, err = connectDB(a.cfg, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		cleanup.push("database", func(_ context.Context) error {
			if dbStatsReg != nil {
				if err := dbStatsReg.Unregister(); err != nil {
					a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
				}
			}
			return db.Close()
		})
		if err := configureDatabase(ctx, a.cfg, a.logger, db); err != nil {
			return fmt.Errorf("failed to verify database connection: %w", err)
		}
	}

	synchronizer := pivot.NewSynchronizer(a.dialect,
		pivot.WithValidateExists(a.cfg.Sync.ValidateExists),
		pivot.WithChecker(pivot.SQLChecker{Dialect: a.dialect, BatchSize: a.cfg.Sync.ExistsBatchSize}),
		pivot.WithMetrics(metrics),
	)
	eng := engine.New(engine.Options{
		Registry:     cat.Registry,
		Search:       cat,
		Dialect:      a.dialect,
		Synchronizer: synchronizer,
		Metrics:      metrics,
	})

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.metrics = metrics
	a.tracerProvider = tracerProvider
	a.catalog = cat
	a.engine = eng
	a.db = db
	a.dbStatsReg = dbStatsReg
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}

// Engine returns the engine built by Init.
func (a *App) Engine() *engine.Engine { return a.engine }

// Catalog returns the catalog loaded by Init.
func (a *App) Catalog() *catalog.Catalog { return a.catalog }

// DB returns the database handle, or nil when Init did not connect.
func (a *App) DB() *sql.DB { return a.db }

// Dialect returns the SQL dialect of the configured driver.
func (a *App) Dialect() sqlutil.Dialect { return a.dialect }

// Logger returns the application logger.
func (a *App) Logger() *logging.Logger { return a.logger }
