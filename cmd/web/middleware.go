package main

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/trace"
	"slices"
	"strings"
	"time"

	"github.com/Diego-DPL/zypace/internal/contexthelpers"
	"github.com/Diego-DPL/zypace/internal/i18n"
	"github.com/Diego-DPL/zypace/internal/logging"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// statusResponseWriter remembers the status code of the response.
type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func newStatusResponseWriter(w http.ResponseWriter) *statusResponseWriter {
	return &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK, written: false}
}

func (sw *statusResponseWriter) WriteHeader(statusCode int) {
	if !sw.written {
		sw.statusCode = statusCode
		sw.written = true
	}
	sw.ResponseWriter.WriteHeader(statusCode)
}

func (sw *statusResponseWriter) Write(b []byte) (int, error) {
	sw.written = true
	n, err := sw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

// Unwrap lets http.ResponseController reach the connection, e.g. to extend the write deadline.
func (sw *statusResponseWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// contentSecurityPolicy allows nothing but the nonce-tagged stylesheet of the plan page.
func contentSecurityPolicy(nonce string) string {
	return strings.Join([]string{
		"default-src 'none'",
		"style-src 'nonce-" + nonce + "'",
		"img-src 'self'",
		"form-action 'self'",
		"frame-ancestors 'none'",
		"base-uri 'none'",
	}, "; ")
}

func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce := rand.Text()
		h := w.Header()
		h.Set("Content-Security-Policy", contentSecurityPolicy(nonce))
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")
		h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		next.ServeHTTP(w, contexthelpers.SetCSPNonce(r, nonce))
	})
}

// noCache keeps runner-specific responses out of shared caches.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// requestID reuses a UUID sent by a proxy so that logs line up across hops, and makes one up otherwise.
func requestID(r *http.Request) string {
	if id, err := uuid.Parse(r.Header.Get(requestIDHeader)); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// logAndTraceRequest assigns the request id, echoes it in the X-Request-Id header and logs the request outcome.
// With runtime tracing enabled every request becomes a trace task.
func (app *application) logAndTraceRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := requestID(r)
		w.Header().Set(requestIDHeader, id)
		r = contexthelpers.SetRequestID(r, id)

		ctx := logging.WithAttrs(r.Context(),
			slog.String("trace_id", id),
			slog.String("method", r.Method),
			slog.String("uri", r.URL.RequestURI()),
		)
		app.logger.LogAttrs(ctx, slog.LevelDebug, "received request", slog.String("proto", r.Proto))

		sw := newStatusResponseWriter(w)
		if trace.IsEnabled() {
			var task *trace.Task
			ctx, task = trace.NewTask(ctx, "HTTP "+r.Method+" "+r.URL.Path)
			trace.Log(ctx, "trace_id", id)
			defer func() {
				trace.Logf(ctx, "response", "status=%d duration=%s", sw.statusCode, time.Since(start))
				task.End()
			}()
		}
		next.ServeHTTP(sw, r.WithContext(ctx))

		level := slog.LevelInfo
		if sw.statusCode >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		app.logger.LogAttrs(ctx, level, "request completed",
			slog.Int("status_code", sw.statusCode), slog.Duration("duration", time.Since(start)))
	})
}

// recoverPanic turns a handler panic into a reported 500. Aborted handlers keep panicking so that net/http drops the
// connection.
func (app *application) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			excp := recover()
			if excp == nil {
				return
			}
			if excp == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value.
				panic(excp)
			}
			app.reporter.ReportPanic(r.Context(), excp)
			w.Header().Set("Connection", "close")
			app.serverError(w, r, fmt.Errorf("panic: %v", excp))
		}()
		next.ServeHTTP(w, r)
	})
}

// mustAuthenticate rejects requests without a runner.
func (app *application) mustAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !contexthelpers.IsAuthenticated(r.Context()) {
			app.writeError(w, r, http.StatusUnauthorized, "no runner session, POST /api/session first")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// language picks the response language from the language cookie, falling back to Accept-Language.
func (app *application) language(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := i18n.Negotiate(r.Header.Get("Accept-Language"))
		if cookie, err := r.Cookie(languageCookie); err == nil &&
			slices.Contains(i18n.SupportedLanguages(), i18n.Language(cookie.Value)) {
			lang = i18n.Language(cookie.Value)
		}
		next.ServeHTTP(w, contexthelpers.SetLanguage(r, lang))
	})
}

// crossOriginProtection rejects cross-origin unsafe requests. Requests without Origin or Sec-Fetch-Site, such as
// API clients, pass.
func (app *application) crossOriginProtection(next http.Handler) http.Handler {
	return http.NewCrossOriginProtection().Handler(next)
}
