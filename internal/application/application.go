// Package application wires config, storage, the game service and the HTTP
// server together and runs them until the process is signalled.
package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jaminalder/timetravel-tic-tac-toe/internal/app"
	"github.com/jaminalder/timetravel-tic-tac-toe/internal/config"
	"github.com/jaminalder/timetravel-tic-tac-toe/internal/store"
	"github.com/jaminalder/timetravel-tic-tac-toe/internal/web"
)

// NewLogger builds the process logger from the configured level and format.
func NewLogger(conf *config.Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(conf.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if conf.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// NewStore returns the session store selected by conf.
func NewStore(ctx context.Context, conf *config.Config) (store.Store, error) {
	switch conf.Store {
	case config.StoreMemory:
		return store.NewMemory(), nil
	case config.StoreRedis:
		st, err := store.NewRedis(ctx, &redis.Options{
			Addr:     conf.Redis.Addr(),
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		}, conf.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("could not connect to redis storage: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownStore, conf.Store)
	}
}

// RunApp serves the game until SIGINT or SIGTERM, then shuts the server down
// within conf.ShutdownTimeout.
func RunApp(logger zerolog.Logger, conf *config.Config) error {
	log := logger.With().Str("component", "application").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := NewStore(ctx, conf)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("could not close session storage")
		}
	}()

	svc := app.NewService(st, logger)
	srv := &http.Server{
		Addr:              ":" + conf.HTTPPort,
		Handler:           web.NewServer(svc, web.Options{Logger: logger, Heartbeat: conf.SSEHeartbeat}),
		ReadHeaderTimeout: 10 * time.Second,
		// long-lived event streams end with the process context
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	httpErrCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", conf.HTTPPort).Str("store", conf.Store).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrCh <- err
		}
	}()

	select {
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
		log.Info().Msg("received signal, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.ShutdownTimeout)
	defer cancel()
	if err = srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}
