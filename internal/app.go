// Package internal contains core application functionality
package internal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"sitescope/internal/config"
	sitehttp "sitescope/internal/http"
	"sitescope/internal/jobs"
	"sitescope/internal/logging"
	"sitescope/internal/meta"
	"sitescope/internal/rollup"
	"sitescope/internal/store"
)

// Application wires together the columnar store, the rollup jobs and the
// HTTP server.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     store.Store
	Meta      *meta.DB
	Scheduler *jobs.Scheduler

	fiber *fiber.App
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	cfg := config.GetConfig()
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := logging.NewLogger(cfg)

	client, err := store.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to columnar store: %w", err)
	}
	st := store.NewRetrier(client, store.WithInsertPolicy(store.Policy{
		MaxAttempts: cfg.InsertRetryMaxAttempts,
		BaseDelay:   cfg.InsertRetryBaseDelay(),
	}))

	metaDB, err := meta.Open(cfg.MetaDatabasePath, cfg.LockStaleAfter(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open meta database: %w", err)
	}

	aggregator := rollup.NewAggregator(st, metaDB, logger)
	aggregationJob := jobs.NewAggregationJob(st, aggregator, metaDB, logger, cfg)
	missingDataJob := jobs.NewMissingDataJob(st, aggregator, metaDB, logger, cfg)
	optimizationJob := jobs.NewOptimizationJob(st, logger)
	scheduler := jobs.NewScheduler(aggregationJob, missingDataJob, optimizationJob, logger)

	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		DisableStartupMessage: cfg.IsProduction(),
	})
	sitehttp.RegisterRoutes(app,
		sitehttp.NewStatsHandler(st, logger),
		sitehttp.NewAdminHandler(aggregator, aggregationJob, missingDataJob, optimizationJob, metaDB, cfg, logger),
		sitehttp.NewHealthHandler(st, logger),
	)

	return &Application{
		Config:    cfg,
		Logger:    logger,
		Store:     st,
		Meta:      metaDB,
		Scheduler: scheduler,
		fiber:     app,
	}, nil
}

// Migrate creates the event and rollup tables when they do not exist.
func (a *Application) Migrate(ctx context.Context) error {
	return store.Migrate(ctx, a.Store, a.Logger)
}

// StartAsync starts the scheduler and the HTTP listener without blocking.
func (a *Application) StartAsync() error {
	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start background jobs: %w", err)
	}

	go func() {
		addr := ":" + a.Config.AppPort
		a.Logger.Info("HTTP server listening", slog.String("addr", addr))
		if err := a.fiber.Listen(addr); err != nil {
			a.Logger.Error("HTTP server stopped", slog.Any("error", err))
		}
	}()
	return nil
}

// Shutdown stops background jobs, drains the HTTP server and closes the
// store connections.
func (a *Application) Shutdown(ctx context.Context) error {
	a.Scheduler.Stop()

	if err := a.fiber.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := a.Store.Close(); err != nil {
		return fmt.Errorf("store close: %w", err)
	}
	return nil
}
