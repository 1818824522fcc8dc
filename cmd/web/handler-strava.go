package main

import (
	"crypto/rand"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/Diego-DPL/zypace/internal/plan"
	"github.com/Diego-DPL/zypace/internal/reconcile"
)

type connectionResponse struct {
	AthleteID int64  `json:"athleteId"`
	Scope     string `json:"scope"`
}

type syncRequest struct {
	Full         bool `json:"full"`
	Reset        bool `json:"reset"`
	Debug        bool `json:"debug"`
	NoAfter      bool `json:"noAfter"`
	LookbackDays int  `json:"lookbackDays"`
}

// stravaConnectGET sends the runner to the provider consent page. The state is checked on the callback.
func (app *application) stravaConnectGET(w http.ResponseWriter, r *http.Request) {
	state := rand.Text()
	authURL, err := app.reconciler.AuthURL(state)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.runners.SetOAuthState(r.Context(), state)
	http.Redirect(w, r, authURL, http.StatusSeeOther)
}

func (app *application) stravaCallbackGET(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	expected := app.runners.PopOAuthState(ctx)
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(query.Get("state"))) != 1 {
		app.handleError(w, r, &plan.ValidationError{Date: "", Reason: "authorization state"})
		return
	}
	if denied := query.Get("error"); denied != "" {
		app.logger.LogAttrs(ctx, slog.LevelInfo, "authorization denied", slog.String("reason", denied))
		app.handleError(w, r, &plan.ValidationError{Date: "", Reason: "authorization: " + denied})
		return
	}
	cred, err := app.reconciler.Connect(ctx, query.Get("code"), query.Get("scope"))
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, connectionResponse{AthleteID: cred.AthleteID, Scope: cred.Scope})
}

func (app *application) stravaDisconnectPOST(w http.ResponseWriter, r *http.Request) {
	if err := app.reconciler.Disconnect(r.Context()); err != nil {
		app.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) stravaSyncPOST(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeJSON(r, &req); err != nil {
		app.handleError(w, r, err)
		return
	}
	result, err := app.reconciler.Sync(r.Context(), reconcile.Options{
		Full:         req.Full,
		Reset:        req.Reset,
		Debug:        req.Debug,
		NoAfter:      req.NoAfter,
		LookbackDays: req.LookbackDays,
	})
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, result)
}
