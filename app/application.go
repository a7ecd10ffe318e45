package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"weatherdash.app/api"
	"weatherdash.app/cache"
	"weatherdash.app/config"
	"weatherdash.app/providers"
	"weatherdash.app/reliability"
	"weatherdash.app/weather"
)

// Application represents the main application with all its dependencies
type Application struct {
	config     *config.Config
	cache      cache.Cache
	persister  *cache.Persister
	service    *weather.Service
	server     *api.Server
	httpServer *http.Server

	persistCancel context.CancelFunc
	persistDone   chan struct{}
}

// NewApplication creates and initializes a new application instance
func NewApplication() (*Application, error) {
	app := &Application{}

	if err := app.loadConfiguration(); err != nil {
		return nil, err
	}

	if err := app.initializeCache(); err != nil {
		return nil, err
	}

	app.initializeServices()
	return app, nil
}

// Config returns the loaded configuration.
func (app *Application) Config() *config.Config {
	return app.config
}

func (app *Application) loadConfiguration() error {
	slog.Info("Loading configuration...")

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return fmt.Errorf("load application configuration: %w", err)
	}

	app.config = cfg
	slog.Info("Configuration loaded successfully")
	return nil
}

func (app *Application) initializeCache() error {
	slog.Info("Initializing cache...", "backend", app.config.Cache.Backend)

	c, err := cache.New(&app.config.Cache)
	if err != nil {
		slog.Error("Failed to initialize cache", "error", err)
		return fmt.Errorf("initialize cache backend: %w", err)
	}
	app.cache = c

	// Snapshot persistence only applies to the in-memory store.
	if store, ok := c.(*cache.Store); ok && app.config.Cache.SnapshotPath != "" {
		app.persister = cache.NewPersister(store, app.config.Cache.SnapshotPath, app.config.Cache.SnapshotInterval)
	}

	slog.Info("Cache initialized successfully")
	return nil
}

func (app *Application) initializeServices() {
	slog.Info("Initializing services...")

	primary := providers.NewOpenWeatherMapProvider(&app.config.Weather)

	var fallback providers.WeatherProvider
	if app.config.Weather.HasFallback() {
		fallback = providers.NewWeatherAPIProvider(&app.config.Weather)
		slog.Info("Fallback weather provider configured", "provider", fallback.Name())
	} else {
		slog.Info("No fallback weather provider configured")
	}

	timeouts := reliability.NewTimeoutManager(app.config.Breaker.CallTimeout)

	app.service = weather.NewService(weather.ServiceOptions{
		Cache:    app.cache,
		Retrier:  reliability.NewRetrier(app.config.Retry),
		Breakers: reliability.NewBreakerRegistry(app.config.Breaker),
		Timeouts: timeouts,
		Offline:  weather.NewOfflineController(app.config.Offline),
		Primary:  primary,
		Fallback: fallback,
		CacheCfg: app.config.Cache,
	})

	app.server = api.NewServer(app.config, app.service)
	slog.Info("Services initialized successfully")
}

// Start runs the HTTP server and the cache snapshot loop until the server
// stops.
func (app *Application) Start() error {
	if app.persister != nil {
		ctx, cancel := context.WithCancel(context.Background())
		app.persistCancel = cancel
		app.persistDone = make(chan struct{})
		go func() {
			defer close(app.persistDone)
			app.persister.Run(ctx)
		}()
	}

	app.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.server.GetRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "port", app.config.Server.Port)
	if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("run HTTP server: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server, flushes the cache snapshot, and closes
// the cache backend.
func (app *Application) Shutdown() error {
	slog.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	if app.httpServer != nil {
		if err := app.httpServer.Shutdown(ctx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
			firstErr = err
		}
	}

	if app.persistCancel != nil {
		// Cancellation triggers the persister's final flush.
		app.persistCancel()
		select {
		case <-app.persistDone:
		case <-ctx.Done():
			slog.Warn("cache snapshot flush timed out")
		}
	}

	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			slog.Error("cache close error", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	slog.Info("Shutdown complete")
	return firstErr
}
