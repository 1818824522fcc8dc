package main

import (
	"net/http"
)

type sessionResponse struct {
	RunnerID int `json:"runnerId"`
}

// sessionPOST creates an anonymous runner unless the session already has one.
func (app *application) sessionPOST(w http.ResponseWriter, r *http.Request) {
	runnerID, err := app.runners.Start(r.Context())
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, sessionResponse{RunnerID: runnerID})
}

func (app *application) logoutPOST(w http.ResponseWriter, r *http.Request) {
	if err := app.runners.Logout(r.Context()); err != nil {
		app.serverError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
