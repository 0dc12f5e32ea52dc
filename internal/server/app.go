// Package server assembles the backbone: database, repositories, services,
// the push hub and the HTTP API, and runs them until the context ends.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/datawallet/internal/logging"
	"github.com/dmitrijs2005/datawallet/internal/server/config"
	"github.com/dmitrijs2005/datawallet/internal/server/httpapi"
	"github.com/dmitrijs2005/datawallet/internal/server/push"
	"github.com/dmitrijs2005/datawallet/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/datawallet/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hub         *push.Hub
	handler     http.Handler
}

func NewApp(cfg *config.Config, logger logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	db, err := openDB(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	hub := push.NewHub(logger)

	identities := services.NewIdentityService(db, rm, cfg, logger)
	datawallet := services.NewDatawalletService(db, rm, hub, logger)
	events := services.NewEventService(db, rm, hub, logger)
	files := services.NewFileService(db, rm, cfg, logger)

	handler := httpapi.NewRouter(httpapi.Options{
		Identities:  identities,
		Datawallet:  datawallet,
		Events:      events,
		Files:       files,
		Push:        hub,
		AdminSecret: cfg.AdminSecret,
		Logger:      logger,
	})

	return &App{
		config:      cfg,
		logger:      logger.With("module", "app"),
		db:          db,
		repomanager: rm,
		hub:         hub,
		handler:     handler,
	}, nil
}

// Migrate brings the database schema up to date.
func (app *App) Migrate(ctx context.Context) error {
	app.logger.Info(ctx, "Running migrations...")
	if err := app.repomanager.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

// Run listens on the configured address and serves until ctx is done.
func (app *App) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", app.config.ListenAddr)
	if err != nil {
		return err
	}
	return app.Serve(ctx, listen)
}

// Serve serves on l until ctx is done, then closes push connections and
// drains in-flight requests.
func (app *App) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.logger.Info(ctx, "Starting HTTP server", "address", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		app.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close releases the database pool.
func (app *App) Close() error {
	return app.db.Close()
}
