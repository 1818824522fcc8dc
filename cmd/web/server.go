package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Diego-DPL/zypace/internal/e2etest"
	"github.com/Diego-DPL/zypace/internal/errors"
)

const (
	// defaultTimeout bounds reading requests, writing responses and shutting down. Slow routes extend the write
	// deadline per request.
	defaultTimeout    = 2 * time.Second
	readHeaderTimeout = time.Second
	idleTimeout       = time.Minute
)

// configureAndStartServer serves handler on addr until ctx is done, then drains in-flight requests.
func (app *application) configureAndStartServer(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{ //nolint:exhaustruct // defaults are fine.
		ErrorLog:          slog.NewLogLogger(app.logger.Handler(), slog.LevelError),
		Handler:           handler,
		IdleTimeout:       idleTimeout,
		ReadTimeout:       defaultTimeout,
		WriteTimeout:      defaultTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "listen", slog.String("addr", addr))
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		app.logger.LogAttrs(ctx, slog.LevelInfo, "shutting down server", slog.Any("cause", context.Cause(ctx)))

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTimeout)
		defer cancel()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			app.logger.LogAttrs(ctx, slog.LevelError, "shutdown incomplete", errors.SlogError(shutdownErr))
		}
	}()

	app.logger.LogAttrs(ctx, slog.LevelInfo, "starting server", slog.String(e2etest.LogAddrKey, listener.Addr().String()))
	if err = srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve")
	}
	<-drained
	app.logger.LogAttrs(ctx, slog.LevelInfo, "server stopped")
	return nil
}
