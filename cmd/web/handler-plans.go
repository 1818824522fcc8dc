package main

import (
	"net/http"
	"time"

	"github.com/Diego-DPL/zypace/internal/plan"
)

const defaultRunDays = 4

type priorRaceRequest struct {
	DistanceKm float64 `json:"distanceKm"`
	Time       string  `json:"time"`
}

type planConfigRequest struct {
	RunDays         int               `json:"runDays"`
	IncludeStrength bool              `json:"includeStrength"`
	StrengthDays    int               `json:"strengthDays"`
	PriorRace       *priorRaceRequest `json:"priorRace"`
	TargetTime      string            `json:"targetTime"`
}

// toConfig parses the finish times. Omitted run days default to four a week.
func (c planConfigRequest) toConfig() (plan.Config, error) {
	cfg := plan.Config{
		RunDays:         c.RunDays,
		IncludeStrength: c.IncludeStrength,
		StrengthDays:    c.StrengthDays,
		PriorRace:       nil,
		TargetTime:      nil,
	}
	if cfg.RunDays == 0 {
		cfg.RunDays = defaultRunDays
	}
	if c.PriorRace != nil && c.PriorRace.Time != "" {
		d, err := plan.ParseDuration(c.PriorRace.Time)
		if err != nil {
			return plan.Config{}, err
		}
		cfg.PriorRace = &plan.PriorRace{DistanceKm: c.PriorRace.DistanceKm, Time: d}
	}
	if c.TargetTime != "" {
		d, err := plan.ParseDuration(c.TargetTime)
		if err != nil {
			return plan.Config{}, err
		}
		cfg.TargetTime = &d
	}
	return cfg, nil
}

type createPlanRequest struct {
	RaceID int               `json:"raceId"`
	Goal   string            `json:"goal"`
	Config planConfigRequest `json:"config"`
}

type planResponse struct {
	PlanID      int          `json:"planId"`
	RaceID      int          `json:"raceId"`
	Goal        string       `json:"goal"`
	StartDate   string       `json:"startDate"`
	GeneratedAt time.Time    `json:"generatedAt"`
	Entries     []plan.Entry `json:"entries"`
	Meta        plan.Meta    `json:"meta"`
}

func newPlanResponse(p plan.Plan, entries []plan.Entry) planResponse {
	if entries == nil {
		entries = []plan.Entry{}
	}
	return planResponse{
		PlanID:      p.ID,
		RaceID:      p.RaceID,
		Goal:        p.Goal,
		StartDate:   p.StartDate.Format(time.DateOnly),
		GeneratedAt: p.GeneratedAt,
		Entries:     entries,
		Meta:        p.Meta,
	}
}

type workoutResponse struct {
	ID          int              `json:"id"`
	Date        string           `json:"date"`
	Description string           `json:"description"`
	Category    plan.Category    `json:"category"`
	Explanation plan.Explanation `json:"explanation"`
	DistanceKm  *float64         `json:"distanceKm,omitempty"`
	DurationMin *int             `json:"durationMin,omitempty"`
	Completed   bool             `json:"completed"`
}

func newWorkoutResponse(w plan.Workout) workoutResponse {
	return workoutResponse{
		ID:          w.ID,
		Date:        w.Date.Format(time.DateOnly),
		Description: w.Description,
		Category:    w.Category,
		Explanation: w.Explanation,
		DistanceKm:  w.DistanceKm,
		DurationMin: w.DurationMin,
		Completed:   w.Completed,
	}
}

// workoutEntries converts stored workouts back to schedule entries.
func workoutEntries(workouts []plan.Workout) []plan.Entry {
	entries := make([]plan.Entry, 0, len(workouts))
	for _, w := range workouts {
		explanation := w.Explanation
		entries = append(entries, plan.Entry{
			Date:        w.Date.Format(time.DateOnly),
			Description: w.Description,
			Category:    w.Category,
			Explanation: &explanation,
		})
	}
	return entries
}

type versionSummary struct {
	ID           int       `json:"id"`
	GeneratedAt  time.Time `json:"generatedAt"`
	Model        string    `json:"model"`
	UsedFallback bool      `json:"usedFallback"`
	Attempts     int       `json:"attempts"`
}

type versionResponse struct {
	ID          int          `json:"id"`
	PlanID      int          `json:"planId"`
	GeneratedAt time.Time    `json:"generatedAt"`
	Meta        plan.Meta    `json:"meta"`
	Entries     []plan.Entry `json:"entries"`
}

// plansPOST generates a plan for a race, replacing the race's previous plan.
func (app *application) plansPOST(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := decodeJSON(r, &req); err != nil {
		app.handleError(w, r, err)
		return
	}
	cfg, err := req.Config.toConfig()
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	p, schedule, err := app.plans.CreatePlan(r.Context(), req.RaceID, req.Goal, cfg)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusCreated, newPlanResponse(p, schedule.Entries))
}

func (app *application) planGET(w http.ResponseWriter, r *http.Request) {
	planID, err := parseIDParam(r, "id")
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	p, err := app.plans.GetPlan(r.Context(), planID)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	workouts, err := app.plans.ListWorkouts(r.Context(), planID)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, newPlanResponse(p, workoutEntries(workouts)))
}

// planRegeneratePOST replaces the schedule from today onwards and returns the whole plan.
func (app *application) planRegeneratePOST(w http.ResponseWriter, r *http.Request) {
	planID, err := parseIDParam(r, "id")
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	if _, err = app.plans.RegeneratePlan(r.Context(), planID); err != nil {
		app.handleError(w, r, err)
		return
	}
	app.planGET(w, r)
}

func (app *application) planDELETE(w http.ResponseWriter, r *http.Request) {
	planID, err := parseIDParam(r, "id")
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	if err = app.plans.DeletePlan(r.Context(), planID); err != nil {
		app.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) planVersionsGET(w http.ResponseWriter, r *http.Request) {
	planID, err := parseIDParam(r, "id")
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	versions, err := app.plans.ListVersions(r.Context(), planID)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	resp := make([]versionSummary, 0, len(versions))
	for _, v := range versions {
		resp = append(resp, versionSummary{
			ID:           v.ID,
			GeneratedAt:  v.GeneratedAt,
			Model:        v.Meta.Model,
			UsedFallback: v.Meta.Fallback,
			Attempts:     v.Meta.Attempts,
		})
	}
	app.writeJSON(w, r, http.StatusOK, resp)
}

func (app *application) planVersionGET(w http.ResponseWriter, r *http.Request) {
	planID, err := parseIDParam(r, "id")
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	versionID, err := parseIDParam(r, "versionID")
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	v, err := app.plans.GetVersion(r.Context(), planID, versionID)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, versionResponse{
		ID:          v.ID,
		PlanID:      v.PlanID,
		GeneratedAt: v.GeneratedAt,
		Meta:        v.Meta,
		Entries:     v.Entries,
	})
}

func (app *application) planWorkoutsGET(w http.ResponseWriter, r *http.Request) {
	planID, err := parseIDParam(r, "id")
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	workouts, err := app.plans.ListWorkouts(r.Context(), planID)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	resp := make([]workoutResponse, 0, len(workouts))
	for _, workout := range workouts {
		resp = append(resp, newWorkoutResponse(workout))
	}
	app.writeJSON(w, r, http.StatusOK, resp)
}

func (app *application) workoutTogglePOST(w http.ResponseWriter, r *http.Request) {
	workoutID, err := parseIDParam(r, "id")
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	workout, err := app.plans.ToggleWorkout(r.Context(), workoutID)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, newWorkoutResponse(workout))
}
