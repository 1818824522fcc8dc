package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"testing/synctest"
	"time"

	"github.com/Diego-DPL/zypace/internal/contexthelpers"
	"github.com/Diego-DPL/zypace/internal/flightrecorder"
	"github.com/Diego-DPL/zypace/internal/i18n"
	"github.com/Diego-DPL/zypace/internal/testhelpers"
)

type timeoutResponseWriter struct {
	httptest.ResponseRecorder
}

func newTimeoutResponseWriter() *timeoutResponseWriter {
	return &timeoutResponseWriter{
		ResponseRecorder: *httptest.NewRecorder(),
	}
}

// SetWriteDeadline is needed to not get "feature not implemented" error.
func (w *timeoutResponseWriter) SetWriteDeadline(_ time.Time) error {
	return nil
}

func newTestApplication(t *testing.T) *application {
	t.Helper()
	return &application{ //nolint:exhaustruct // this is a test
		logger:      testhelpers.NewLogger(testhelpers.NewWriter(t)),
		slowTimeout: 30 * time.Second,
	}
}

func sleepHandler(d time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(d)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"completed"}`))
	})
}

func Test_application_timeout(t *testing.T) {
	tests := []struct {
		name     string
		sleep    time.Duration
		slow     bool
		timesOut bool
	}{
		{name: "completes within timeout", sleep: 500 * time.Millisecond, slow: false, timesOut: false},
		{name: "times out", sleep: 3 * time.Second, slow: false, timesOut: true},
		{name: "slow route gets longer timeout", sleep: 28 * time.Second, slow: true, timesOut: false},
		{name: "slow route times out", sleep: 31 * time.Second, slow: true, timesOut: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				app := newTestApplication(t)
				d := defaultTimeout
				if tt.slow {
					d = app.slowTimeout
				}
				handler := app.timeout(d)(sleepHandler(tt.sleep))

				req := httptest.NewRequest(http.MethodGet, "/", nil)
				w := newTimeoutResponseWriter()
				handler.ServeHTTP(w, req)

				if tt.timesOut {
					if w.Code != http.StatusServiceUnavailable {
						t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
					}
					if w.Body.String() != timeoutBody {
						t.Errorf("body = %q", w.Body.String())
					}
					return
				}
				if w.Code != http.StatusOK {
					t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
				}
			})
		})
	}
}

func Test_application_timeout_capturesTrace(t *testing.T) {
	app := newTestApplication(t)
	dir := t.TempDir()
	recorder, err := flightrecorder.New(flightrecorder.Config{
		Logger:          app.logger,
		MinAge:          time.Second,
		MaxBytes:        1 << 20,
		TracesDirectory: dir,
	})
	if err != nil {
		t.Fatalf("flightrecorder.New: %v", err)
	}
	if err = recorder.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { recorder.Stop(t.Context()) })
	app.flightRecorder = recorder

	blocked := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	w := newTimeoutResponseWriter()
	app.timeout(writeMargin+50*time.Millisecond)(blocked).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("trace files = %d, want 1", len(entries))
	}
}

func Test_application_logAndTraceRequest(t *testing.T) {
	app := newTestApplication(t)
	var seen string
	handler := app.logAndTraceRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = contexthelpers.RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d", w.Code)
	}
	if got := w.Header().Get(requestIDHeader); got == "" || got != seen {
		t.Errorf("X-Request-Id = %q, context request id = %q", got, seen)
	}

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "proxy uuid is kept", incoming: "3f1c2a9e-8b7d-4c6e-9a5f-0e1d2c3b4a59", keep: true},
		{name: "garbage is replaced", incoming: "<script>", keep: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(requestIDHeader, tt.incoming)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if got := w.Header().Get(requestIDHeader); (got == tt.incoming) != tt.keep || got != seen {
				t.Errorf("X-Request-Id = %q for incoming %q, context has %q", got, tt.incoming, seen)
			}
		})
	}
}

func Test_application_recoverPanic(t *testing.T) {
	app := newTestApplication(t)
	handler := app.logAndTraceRequest(app.recoverPanic(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.RequestID == "" || body.RequestID != w.Header().Get(requestIDHeader) {
		t.Errorf("requestId = %q, header = %q", body.RequestID, w.Header().Get(requestIDHeader))
	}
	if body.Error != http.StatusText(http.StatusInternalServerError) {
		t.Errorf("error = %q leaks the panic", body.Error)
	}
	if _, err := time.Parse(time.RFC3339, body.Timestamp); err != nil {
		t.Errorf("timestamp %q: %v", body.Timestamp, err)
	}
}

func Test_application_language(t *testing.T) {
	tests := []struct {
		name           string
		acceptLanguage string
		cookie         string
		want           i18n.Language
	}{
		{name: "default", acceptLanguage: "", cookie: "", want: i18n.English},
		{name: "accept language", acceptLanguage: "es-ES,es;q=0.9,en;q=0.8", cookie: "", want: i18n.Spanish},
		{name: "unsupported", acceptLanguage: "fi", cookie: "", want: i18n.English},
		{name: "cookie wins", acceptLanguage: "en", cookie: "es", want: i18n.Spanish},
		{name: "invalid cookie", acceptLanguage: "es", cookie: "xx", want: i18n.Spanish},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApplication(t)
			var got i18n.Language
			handler := app.language(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				got = contexthelpers.Language(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.acceptLanguage != "" {
				req.Header.Set("Accept-Language", tt.acceptLanguage)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: languageCookie, Value: tt.cookie}) //nolint:exhaustruct // test.
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("language = %s, want %s", got, tt.want)
			}
		})
	}
}

func Test_isRelativePath(t *testing.T) {
	for path, want := range map[string]bool{
		"/plans/1":           true,
		"/":                  true,
		"//evil.example.com": false,
		"/\\evil":            false,
		"https://evil.com/":  false,
		"plans/1":            false,
	} {
		if got := isRelativePath(path); got != want {
			t.Errorf("isRelativePath(%q) = %v, want %v", path, got, want)
		}
	}
}
