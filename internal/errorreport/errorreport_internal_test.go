package errorreport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Diego-DPL/zypace/internal/contexthelpers"
	"github.com/Diego-DPL/zypace/internal/logging"
	"github.com/Diego-DPL/zypace/internal/testhelpers"
	"github.com/getsentry/sentry-go"
)

// newCapturingReporter returns a Reporter that records events instead of sending them.
func newCapturingReporter(t *testing.T) (*Reporter, func() []*sentry.Event) {
	t.Helper()
	var (
		mu     sync.Mutex
		events []*sentry.Event
	)
	r, err := newReporter(sentry.ClientOptions{ //nolint:exhaustruct // defaults are fine.
		Dsn: "https://public@sentry.example.com/1",
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, scrub(event, hint))
			return nil
		},
	}, testhelpers.NewLogger(testhelpers.NewWriter(t)))
	if err != nil {
		t.Fatalf("newReporter: %v", err)
	}
	return r, func() []*sentry.Event {
		mu.Lock()
		defer mu.Unlock()
		return events
	}
}

func TestReporter_Report(t *testing.T) {
	r, events := newCapturingReporter(t)

	ctx := logging.WithAttrs(t.Context(), slog.String("trace_id", "abc123"), slog.Int("runner_id", 7))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "/", nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx = contexthelpers.SetRequestID(req, "req-1").Context()

	r.Report(ctx, errors.New("provider unavailable"))
	r.Report(ctx, nil)

	got := events()
	if len(got) != 1 {
		t.Fatalf("captured %d events, want 1", len(got))
	}
	for key, want := range map[string]string{"trace_id": "abc123", "runner_id": "7", "request_id": "req-1"} {
		if got[0].Tags[key] != want {
			t.Errorf("tag %s = %q, want %q", key, got[0].Tags[key], want)
		}
	}
	if len(got[0].Exception) == 0 || got[0].Exception[len(got[0].Exception)-1].Value != "provider unavailable" {
		t.Errorf("exception = %+v", got[0].Exception)
	}

	// Tags must not leak into later reports from other requests.
	r.Report(t.Context(), errors.New("second"))
	if got = events(); len(got) != 2 || got[1].Tags["trace_id"] != "" {
		t.Errorf("second event tags = %v", got[len(got)-1].Tags)
	}
}

func TestReporter_ReportPanic(t *testing.T) {
	r, events := newCapturingReporter(t)

	func() {
		defer func() {
			r.ReportPanic(t.Context(), recover())
		}()
		panic("nil map")
	}()

	got := events()
	if len(got) != 1 || got[0].Exception[len(got[0].Exception)-1].Value != "panic: nil map" {
		t.Errorf("events = %+v", got)
	}
}

func TestScrub(t *testing.T) {
	event := &sentry.Event{Request: &sentry.Request{ //nolint:exhaustruct // only request data matters.
		Headers: map[string]string{"Authorization": "Bearer x", "Cookie": "session=y", "Accept": "text/html"},
		Cookies: "session=y",
	}}
	scrub(event, nil)
	if len(event.Request.Headers) != 1 || event.Request.Cookies != "" {
		t.Errorf("request = %+v", event.Request)
	}
}

func TestReporter_Disabled(t *testing.T) {
	r, err := New(t.Context(), Config{DSN: "", Environment: "test", Release: ""},
		testhelpers.NewLogger(testhelpers.NewWriter(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Report(t.Context(), errors.New("ignored"))
	if !r.Flush(time.Millisecond) {
		t.Error("Flush of a disabled reporter failed")
	}

	var nilReporter *Reporter
	nilReporter.Report(context.Background(), errors.New("ignored"))
}
