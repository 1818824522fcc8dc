package main

import (
	"errors"
	"log/slog"
	"net/http"
	"time"
)

const timeoutBody = `{"error":"request timed out"}`

// writeMargin is left between the handler deadline and the server's write deadline so that the timeout response
// still gets through.
const writeMargin = 200 * time.Millisecond

// timeout responds with 503 Service Unavailable when the handler does not meet the deadline. Deadlines longer than
// the server's write timeout extend the write deadline of the connection. A timed out request captures a runtime
// trace when the flight recorder is enabled.
func (app *application) timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handlerTimeout := d - writeMargin
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if d > defaultTimeout {
				rc := http.NewResponseController(w)
				if err := rc.SetWriteDeadline(time.Now().Add(d)); err != nil {
					if !errors.Is(err, http.ErrNotSupported) {
						app.serverError(w, r, err)
						return
					}
					app.logger.LogAttrs(r.Context(), slog.LevelWarn, "cannot extend write deadline")
				}
			}
			sw := newStatusResponseWriter(w)
			w.Header().Set("Content-Type", "application/json")
			http.TimeoutHandler(next, handlerTimeout, timeoutBody).ServeHTTP(sw, r)
			if sw.statusCode == http.StatusServiceUnavailable {
				app.logger.LogAttrs(r.Context(), slog.LevelWarn, "request timed out",
					slog.Duration("timeout", handlerTimeout))
				if app.flightRecorder != nil {
					app.flightRecorder.CaptureTimeoutTrace(r.Context())
				}
			}
		})
	}
}
