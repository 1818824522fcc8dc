package main

import (
	"net/http"
)

type healthResponse struct {
	Status  string `json:"status"`
	Release string `json:"release,omitempty"`
}

func (app *application) healthy(w http.ResponseWriter, r *http.Request) {
	app.writeJSON(w, r, http.StatusOK, healthResponse{Status: "ok", Release: release()})
}
