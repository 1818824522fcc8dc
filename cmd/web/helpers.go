package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Diego-DPL/zypace/internal/contexthelpers"
	"github.com/Diego-DPL/zypace/internal/errors"
	"github.com/Diego-DPL/zypace/internal/plan"
	"github.com/Diego-DPL/zypace/internal/reconcile"
	"github.com/Diego-DPL/zypace/internal/strava"
)

const maxRequestBodySize = 64 * 1024

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
}

func (app *application) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "marshal response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (app *application) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	app.writeJSON(w, r, status, errorBody{
		Error:     msg,
		RequestID: contexthelpers.RequestID(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (app *application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.LogAttrs(r.Context(), slog.LevelError, "server error", errors.SlogError(err))
	app.writeError(w, r, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

// handleError maps the error taxonomy to a status code. Only server errors hide their message.
func (app *application) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, plan.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, plan.ErrNotFound), errors.Is(err, reconcile.ErrNotConnected):
		status = http.StatusNotFound
	case errors.Is(err, strava.ErrUpstream):
		status = http.StatusBadGateway
	case errors.Is(err, strava.ErrNotConfigured), errors.Is(err, plan.ErrConfig):
		app.logger.LogAttrs(r.Context(), slog.LevelError, "configuration error", errors.SlogError(err))
		app.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	default:
		app.serverError(w, r, err)
		return
	}
	app.logger.LogAttrs(r.Context(), slog.LevelWarn, "request failed",
		slog.Int("status_code", status), errors.SlogError(err))
	app.writeError(w, r, status, err.Error())
}

// decodeJSON decodes the request body into dst. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errors.Join(&plan.ValidationError{Date: "", Reason: "request body: " + err.Error()}, err)
	}
	return nil
}

// parseIDParam parses a positive integer path parameter.
func parseIDParam(r *http.Request, name string) (int, error) {
	id, err := strconv.Atoi(r.PathValue(name))
	if err != nil || id <= 0 {
		return 0, errors.Wrap(plan.ErrNotFound, "invalid "+name, slog.String(name, r.PathValue(name)))
	}
	return id, nil
}

// parseDate parses a YYYY-MM-DD date.
func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, errors.Join(&plan.ValidationError{Date: "", Reason: field + " " + strconv.Quote(s)}, err)
	}
	return t, nil
}
