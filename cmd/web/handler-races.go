package main

import (
	"net/http"
	"time"

	"github.com/Diego-DPL/zypace/internal/plan"
)

type raceRequest struct {
	Name       string   `json:"name"`
	Date       string   `json:"date"`
	DistanceKm *float64 `json:"distanceKm"`
}

type raceResponse struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	Date       string   `json:"date"`
	DistanceKm *float64 `json:"distanceKm,omitempty"`
	Completed  bool     `json:"completed"`
}

func newRaceResponse(race plan.Race) raceResponse {
	return raceResponse{
		ID:         race.ID,
		Name:       race.Name,
		Date:       race.Date.Format(time.DateOnly),
		DistanceKm: race.DistanceKm,
		Completed:  race.Completed,
	}
}

func (app *application) racesPOST(w http.ResponseWriter, r *http.Request) {
	var req raceRequest
	if err := decodeJSON(r, &req); err != nil {
		app.handleError(w, r, err)
		return
	}
	date, err := parseDate("race date", req.Date)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	race, err := app.plans.CreateRace(r.Context(), plan.RaceInput{Name: req.Name, Date: date, DistanceKm: req.DistanceKm})
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusCreated, newRaceResponse(race))
}

func (app *application) racesGET(w http.ResponseWriter, r *http.Request) {
	races, err := app.plans.ListRaces(r.Context())
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	resp := make([]raceResponse, 0, len(races))
	for _, race := range races {
		resp = append(resp, newRaceResponse(race))
	}
	app.writeJSON(w, r, http.StatusOK, resp)
}
