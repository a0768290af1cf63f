// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "github.com/alexconrey/webmux/docs"
	"github.com/alexconrey/webmux/internal/config"
	"github.com/alexconrey/webmux/internal/connection"
	"github.com/alexconrey/webmux/internal/database"
	"github.com/alexconrey/webmux/internal/handler"
	"github.com/alexconrey/webmux/internal/metrics"
	"github.com/alexconrey/webmux/internal/protocol"
	"github.com/alexconrey/webmux/internal/registry"
	"github.com/alexconrey/webmux/internal/repository"
	"github.com/alexconrey/webmux/internal/routes"
	"github.com/alexconrey/webmux/internal/service"
	"github.com/alexconrey/webmux/internal/utils"
)

const httpShutdownTimeout = 30 * time.Second

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB

	registry *registry.Registry
	eventBus *handler.EventBus
	journal  *service.JournalService
	metrics  *prometheus.Registry
}

// @title webmux API
// @version 0.1.0
// @description Serial port gateway: REST send, WebSocket streams and per-connection statistics

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:           "webmux-server [config.yaml]",
		Short:         "Expose serial port devices over HTTP and WebSocket",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" && len(args) == 1 {
				configPath = args[0]
			}
			app, err := NewApplication(configPath)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return app.Start()
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default $WEBMUX_CONFIG or ./config.yaml)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "webmux")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.initializeEventBus()
	app.initializeRegistry()

	if err := app.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return app, nil
}

// initializeDatabase sets up the optional connection journal
func (app *Application) initializeDatabase() error {
	if !app.config.Database.Enabled {
		app.logger.Info("Connection journal disabled")
		return nil
	}

	db, err := database.NewConnection(&app.config.Database, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	migrator := database.NewMigrator(db, app.logger)
	if err := migrator.Up(context.Background()); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	repo := repository.NewJournalRepository(db, app.logger)
	app.journal = service.NewJournalService(repo, nil, app.config.Database, app.logger)

	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeEventBus creates the lifecycle event bus
func (app *Application) initializeEventBus() {
	app.eventBus = handler.NewEventBus(app.logger)
}

// initializeRegistry creates the serial connection registry
func (app *Application) initializeRegistry() {
	observers := connection.Observers{handler.NewStateEventHandler(app.eventBus, app.logger)}
	if app.journal != nil {
		observers = append(observers, app.journal)
	}

	readTimeout := app.config.Bridge.ReadTimeout
	opener := func(cfg *config.SerialConnectionConfig) (connection.Port, error) {
		port, err := protocol.OpenSerial(cfg, readTimeout)
		if err != nil {
			return nil, err
		}
		return port, nil
	}

	app.registry = registry.New(opener, connection.Options{
		SubscriberBuffer: app.config.Bridge.SubscriberBuffer,
		WriteQueue:       app.config.Bridge.WriteQueue,
		ReadBuffer:       app.config.Bridge.ReadBuffer,
		Observer:         observers,
	}, app.logger)

	if app.journal != nil {
		app.journal.SetSource(app.registry)
	}

	app.metrics = metrics.NewRegistry(app.registry)
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	var journal handler.JournalReader
	if app.journal != nil {
		journal = app.journal
	}

	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.registry,
		journal,
		app.eventBus,
		app.metrics,
	)

	router := routerManager.SetupRouter()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
	)

	return nil
}

// openConnections opens every configured serial port. Ports that fail to
// open are logged and journaled, and the rest keep running.
func (app *Application) openConnections(ctx context.Context) error {
	if err := app.registry.OpenAll(ctx, app.config.SerialConnections); err != nil {
		return err
	}

	for _, failure := range app.registry.Failures() {
		app.logger.Warn("Serial connection unavailable",
			zap.String("connection", failure.Name),
			zap.String("port", failure.Port),
			zap.Error(failure.Err),
		)
		if app.journal != nil {
			app.journal.RecordOpenFailure(failure.Name, failure.Err)
		}
	}

	app.logger.Info("Serial connections opened",
		zap.Strings("connections", app.registry.List()),
		zap.Int("failed", len(app.registry.Failures())),
	)
	return nil
}

// Start runs the gateway until SIGINT or SIGTERM
func (app *Application) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go app.eventBus.Start()
	if app.journal != nil {
		app.journal.Start(ctx)
	}

	if err := app.openConnections(ctx); err != nil {
		app.shutdown()
		return fmt.Errorf("failed to open serial connections: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info("Received shutdown signal")
	case err := <-serverErr:
		app.logger.Error("HTTP server failed", zap.Error(err))
		runErr = err
	}

	app.shutdown()
	return runErr
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "webmux")
	serviceLogger.LogServiceStop("shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), app.config.Bridge.ShutdownGrace)
	defer closeCancel()
	if err := app.registry.CloseAll(closeCtx); err != nil {
		app.logger.Warn("Serial connections did not close cleanly", zap.Error(err))
	}

	if app.journal != nil {
		app.journal.Stop()
	}
	app.eventBus.Stop()

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		}
	}

	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Fprintf(os.Stderr, "Logger close error: %v\n", err)
	}
}
