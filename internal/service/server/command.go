package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	api "github.com/oshokin/dynamic-timers/internal/api/http"
	"github.com/oshokin/dynamic-timers/internal/config"
	"github.com/oshokin/dynamic-timers/internal/dispatch"
	"github.com/oshokin/dynamic-timers/internal/logger"
	"github.com/oshokin/dynamic-timers/internal/render"
	repository "github.com/oshokin/dynamic-timers/internal/repository/timers"
	"github.com/oshokin/dynamic-timers/internal/service/manager"
)

// Options controls the timer-server process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the HTTP server.
	ListenAddress string
	// StateFile specifies the path to persist timer state JSON.
	StateFile string
}

// ErrNoServerAddress indicates missing server configuration.
var ErrNoServerAddress = errors.New("no server address configured")

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Run starts the timer server and blocks until the context is canceled or the
// server stops. Loads configuration first, then determines the listen address
// from config or override.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "timer-server")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// Use StateFile from config unless overridden by command line option.
	stateFile := settings.StateFile
	if opts.StateFile != "" {
		stateFile = opts.StateFile
	}

	// Determine listen address: CLI argument overrides config port extraction.
	listenAddress, err := resolveListenAddress(settings.ServerAddress, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	repo := repository.NewFileRepository(stateFile)

	m := manager.New(repo,
		newDispatcher(ctx, settings),
		render.NewTemplateRenderer(),
		settings.ActionTimeout)

	// Reconciliation runs before the server accepts requests, so the first
	// caller already observes the restart-policy outcome.
	if err = m.Start(ctx); err != nil {
		return fmt.Errorf("initialise timer manager: %w", err)
	}

	router := mux.NewRouter()
	api.NewHandler(m).Register(router)

	httpServer := &http.Server{
		Addr:    listenAddress,
		Handler: router,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	logger.InfoKV(ctx, "Timer server listening", "listen_address", listenAddress, "state_file", stateFile)

	// Done channel is closed after Shutdown finishes to ensure we block until
	// in-flight requests drain before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Errorf(ctx, "HTTP server shutdown: %v", shutdownErr)
		}

		close(done)
	}()

	if err = httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve HTTP: %w", err)
	}

	<-done
	logger.Info(ctx, "HTTP server stopped")

	return nil
}

// newDispatcher selects the action backend. Without a configured endpoint,
// fired actions are logged instead of delivered.
func newDispatcher(ctx context.Context, settings *config.Config) dispatch.Dispatcher {
	if settings.ActionEndpoint == "" {
		logger.Warn(ctx, "No action endpoint configured, fired actions will only be logged")

		return dispatch.NewLogDispatcher()
	}

	return dispatch.NewRestDispatcher(settings.ActionEndpoint, settings.ActionToken, settings.ActionTimeout)
}

// resolveListenAddress determines the listen address for the HTTP server.
// If override is provided, uses it directly. Otherwise extracts the port from
// configAddr and binds on all interfaces.
func resolveListenAddress(configAddr, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid server address format %q: %w", configAddr, err)
	}

	return ":" + port, nil
}
