package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/mug/internal/config"
	"github.com/vyrodovalexey/mug/internal/observability"
)

// run starts the application and blocks until a shutdown signal arrives.
func run(app *application, configPath string) {
	ctx := context.Background()

	if err := app.start(ctx); err != nil {
		app.logger.Fatal("failed to start server", observability.Error(err))
	}

	watchCtx, stopWatching := context.WithCancel(ctx)
	defer stopWatching()
	watchConfig(watchCtx, app, configPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	app.logger.Info("received shutdown signal", observability.String("signal", sig.String()))

	stopWatching()
	app.shutdown()
}

// watchConfig reloads the application whenever the configuration file
// changes. A file that cannot be watched only disables hot reload.
func watchConfig(ctx context.Context, app *application, configPath string) {
	reloader, err := newConfigReloader(app, configPath)
	if err != nil {
		app.logger.Warn("configuration hot reload disabled", observability.Error(err))
		return
	}

	go func() {
		if err := reloader.Watch(ctx); err != nil {
			app.logger.Warn("configuration hot reload disabled", observability.Error(err))
		}
	}()
}

// newConfigReloader binds a config.Reloader to the application.
func newConfigReloader(app *application, configPath string) (*config.Reloader, error) {
	return config.NewReloader(configPath, app.reload,
		config.WithLogger(app.logger.Named("config")),
		config.WithReloadHook(func(err error) {
			app.metrics.RecordConfigReload(err == nil)
		}),
	)
}

// shutdown stops the listeners and releases resources in dependency order.
func (a *application) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	if a.metricsServer != nil {
		if err := a.metricsServer.Stop(shutdownCtx); err != nil {
			a.logger.Error("failed to stop metrics server gracefully", observability.Error(err))
		}
	}

	if err := a.server.Stop(shutdownCtx); err != nil {
		a.logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close store", observability.Error(err))
	}

	if err := a.tracer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	a.logger.Info("mug stopped")
}
