// Package errorreport forwards recovered failures to Sentry.
package errorreport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Diego-DPL/zypace/internal/contexthelpers"
	"github.com/Diego-DPL/zypace/internal/errors"
	"github.com/Diego-DPL/zypace/internal/logging"
	"github.com/getsentry/sentry-go"
)

// Config configures a Reporter. An empty DSN disables reporting.
type Config struct {
	DSN         string
	Environment string
	Release     string
}

// Reporter sends errors to Sentry. The zero value and a nil Reporter discard everything.
type Reporter struct {
	hub    *sentry.Hub
	logger *slog.Logger
}

// New creates a Reporter.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Reporter, error) {
	if cfg.DSN == "" {
		logger.LogAttrs(ctx, slog.LevelInfo, "error reporting disabled")
		return &Reporter{hub: nil, logger: logger}, nil
	}
	r, err := newReporter(sentry.ClientOptions{ //nolint:exhaustruct // defaults are fine.
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		BeforeSend:  scrub,
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "error reporting enabled", slog.String("environment", cfg.Environment))
	return r, nil
}

func newReporter(opts sentry.ClientOptions, logger *slog.Logger) (*Reporter, error) {
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("sentry client: %w", err)
	}
	return &Reporter{hub: sentry.NewHub(client, sentry.NewScope()), logger: logger}, nil
}

// scrub drops credentials from request data.
func scrub(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event.Request != nil {
		delete(event.Request.Headers, "Authorization")
		delete(event.Request.Headers, "Cookie")
		event.Request.Cookies = ""
	}
	return event
}

// Report captures err tagged with the logging attributes and request id of ctx.
func (r *Reporter) Report(ctx context.Context, err error) {
	if r == nil || r.hub == nil || err == nil {
		return
	}
	hub := r.hub.Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		for _, attr := range logging.Attrs(ctx) {
			scope.SetTag(attr.Key, attr.Value.String())
		}
		if id := contexthelpers.RequestID(ctx); id != "" {
			scope.SetTag("request_id", id)
		}
		if eventID := hub.CaptureException(err); eventID != nil {
			r.logger.LogAttrs(ctx, slog.LevelDebug, "reported error", slog.String("event_id", string(*eventID)))
		}
	})
}

// ReportPanic reports a recovered panic value.
func (r *Reporter) ReportPanic(ctx context.Context, excp any) {
	r.Report(ctx, errors.DecoratePanic(excp))
}

// Flush waits up to timeout for queued events to be sent.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if r == nil || r.hub == nil {
		return true
	}
	return r.hub.Flush(timeout)
}
