// Package app wires configuration, storage and HTTP servers into a runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/examdesk/incidentd/internal/config"
	"github.com/examdesk/incidentd/internal/pkg/metrics"
	"github.com/examdesk/incidentd/internal/pkg/postgres"
	"github.com/examdesk/incidentd/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const dbMetricsInterval = 15 * time.Second

// App owns the database pool and the API and metrics servers.
type App struct {
	config *config.Config
	logger *slog.Logger
	db     *pgxpool.Pool

	api     *http.Server
	metrics *http.Server

	stopCollector context.CancelFunc
}

// New connects to the database, applies migrations when configured and
// builds both servers. Nothing listens until Run is called.
func New(cfg *config.Config) (*App, error) {
	logger := NewLogger(cfg.Log)
	slog.SetDefault(logger)

	if cfg.Database.AutoMigrate {
		if err := postgres.MigrateUp(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer cancel()

	db, err := postgres.Connect(ctx, postgres.Config{
		URL:               cfg.Database.URL,
		MaxOpenConns:      cfg.Database.MaxOpenConns,
		MaxIdleConns:      cfg.Database.MaxIdleConns,
		ConnMaxLifetime:   cfg.Database.ConnMaxLifetime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
		ConnectAttempts:   cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	a := &App{config: cfg, logger: logger, db: db}

	router, err := a.router()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("build router: %w", err)
	}

	a.api = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())
	a.metrics = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	collectorCtx, stop := context.WithCancel(context.Background())
	a.stopCollector = stop
	go a.collectDBMetrics(collectorCtx)

	return a, nil
}

// Run serves the API and metrics endpoints until both servers are shut down
// or one of them fails.
func (a *App) Run() error {
	var g errgroup.Group

	g.Go(func() error {
		a.logger.Info("metrics server listening", "addr", a.metrics.Addr)
		return serve(a.metrics, "metrics server")
	})
	g.Go(func() error {
		a.logger.Info("api server listening", "addr", a.api.Addr, "version", version.Version)
		return serve(a.api, "api server")
	})

	return g.Wait()
}

func serve(srv *http.Server, name string) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Shutdown drains both servers within ctx and closes the database pool.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")
	a.stopCollector()

	var g errgroup.Group
	g.Go(func() error {
		if err := a.api.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.metrics.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	})
	err := g.Wait()

	a.db.Close()
	return err
}

// Router returns the API handler, for tests that serve it with httptest.
func (a *App) Router() http.Handler {
	return a.api.Handler
}

func (a *App) collectDBMetrics(ctx context.Context) {
	ticker := time.NewTicker(dbMetricsInterval)
	defer ticker.Stop()

	for {
		metrics.RecordDBPoolMetrics(a.db)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
