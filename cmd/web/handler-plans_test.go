package main

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Diego-DPL/zypace/internal/e2etest"
	"github.com/Diego-DPL/zypace/internal/ptr"
	"github.com/PuerkitoBio/goquery"
)

func createRace(t *testing.T, client *e2etest.Client, days int) raceResponse {
	t.Helper()
	var race raceResponse
	status, err := client.JSON(t.Context(), http.MethodPost, "/api/races", raceRequest{
		Name:       "Spring 10K",
		Date:       today().AddDate(0, 0, days).Format(time.DateOnly),
		DistanceKm: ptr.Ref(10.0),
	}, &race)
	if err != nil || status != http.StatusCreated {
		t.Fatalf("create race: status %d, %v", status, err)
	}
	return race
}

func createPlan(t *testing.T, client *e2etest.Client, raceID int) planResponse {
	t.Helper()
	var p planResponse
	status, err := client.JSON(t.Context(), http.MethodPost, "/api/plans", createPlanRequest{
		RaceID: raceID,
		Goal:   "sub 50 minutes",
		Config: planConfigRequest{RunDays: 4, IncludeStrength: false, StrengthDays: 0, PriorRace: nil, TargetTime: "50:00"},
	}, &p)
	if err != nil || status != http.StatusCreated {
		t.Fatalf("create plan: status %d, %v", status, err)
	}
	return p
}

func Test_application_requiresSession(t *testing.T) {
	server := startServer(t, nil)
	client := server.Client()
	ctx := t.Context()

	var body errorBody
	status, err := client.JSON(ctx, http.MethodGet, "/api/races", nil, &body)
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusUnauthorized || body.RequestID == "" || body.Timestamp == "" {
		t.Errorf("anonymous request: status %d, body %+v", status, body)
	}

	first := startSession(t, client)
	if again := startSession(t, client); again != first {
		t.Errorf("second session start changed runner from %d to %d", first, again)
	}
	var races []raceResponse
	if status, err = client.JSON(ctx, http.MethodGet, "/api/races", nil, &races); err != nil || status != http.StatusOK {
		t.Fatalf("list races: status %d, %v", status, err)
	}
	if len(races) != 0 {
		t.Errorf("new runner has races: %v", races)
	}

	if err = client.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if status, err = client.JSON(ctx, http.MethodGet, "/api/races", nil, nil); err != nil || status != http.StatusUnauthorized {
		t.Errorf("after logout: status %d, %v", status, err)
	}
}

func Test_application_races(t *testing.T) {
	server := startServer(t, nil)
	client := server.Client()
	ctx := t.Context()
	startSession(t, client)

	race := createRace(t, client, 30)
	if race.Name != "Spring 10K" || race.DistanceKm == nil || *race.DistanceKm != 10 {
		t.Errorf("race = %+v", race)
	}

	tests := []struct {
		name string
		req  any
	}{
		{name: "today", req: raceRequest{Name: "Now", Date: today().Format(time.DateOnly), DistanceKm: nil}},
		{name: "bad date", req: raceRequest{Name: "Bad", Date: "2026-02-30", DistanceKm: nil}},
		{name: "no name", req: raceRequest{Name: " ", Date: today().AddDate(0, 0, 9).Format(time.DateOnly), DistanceKm: nil}},
		{name: "unknown field", req: map[string]any{"name": "X", "date": "2099-01-01", "km": 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorBody
			status, err := client.JSON(ctx, http.MethodPost, "/api/races", tt.req, &body)
			if err != nil {
				t.Fatal(err)
			}
			if status != http.StatusBadRequest || body.Error == "" {
				t.Errorf("status %d, body %+v", status, body)
			}
		})
	}

	// Races belong to the runner.
	other, err := e2etest.NewClient(server.URL())
	if err != nil {
		t.Fatal(err)
	}
	startSession(t, other)
	var races []raceResponse
	if _, err = other.JSON(ctx, http.MethodGet, "/api/races", nil, &races); err != nil {
		t.Fatal(err)
	}
	if len(races) != 0 {
		t.Errorf("other runner sees races %v", races)
	}
}

func Test_application_planLifecycle(t *testing.T) {
	generation := newGenerationServer(t)
	server := startServer(t, generation.env())
	client := server.Client()
	ctx := t.Context()
	startSession(t, client)

	race := createRace(t, client, 21)
	created := createPlan(t, client, race.ID)
	if created.Meta.Model != "gpt-test" || created.Meta.Fallback || created.Meta.Attempts != 1 {
		t.Errorf("meta = %+v", created.Meta)
	}
	if len(created.Entries) != 22 {
		t.Fatalf("entries = %d, want 22", len(created.Entries))
	}
	for _, e := range created.Entries {
		if e.Explanation == nil || e.Explanation.Purpose == "" || e.Category == "" {
			t.Fatalf("entry without explanation: %+v", e)
		}
	}

	var fetched planResponse
	if status, err := client.JSON(ctx, http.MethodGet, fmt.Sprintf("/api/plans/%d", created.PlanID), nil, &fetched); err != nil || status != http.StatusOK {
		t.Fatalf("get plan: status %d, %v", status, err)
	}
	if len(fetched.Entries) != len(created.Entries) || fetched.Goal != "sub 50 minutes" {
		t.Errorf("fetched plan = %d entries, goal %q", len(fetched.Entries), fetched.Goal)
	}

	var workouts []workoutResponse
	if _, err := client.JSON(ctx, http.MethodGet, fmt.Sprintf("/api/plans/%d/workouts", created.PlanID), nil, &workouts); err != nil {
		t.Fatal(err)
	}
	if len(workouts) != 22 {
		t.Fatalf("workouts = %d, want 22", len(workouts))
	}
	var run workoutResponse
	for _, w := range workouts {
		if w.Category != "rest" {
			run = w
			break
		}
	}
	if run.DistanceKm == nil || *run.DistanceKm != 6 {
		t.Errorf("parsed distance of %q = %v", run.Description, run.DistanceKm)
	}

	var toggled workoutResponse
	for _, want := range []bool{true, false} {
		if _, err := client.JSON(ctx, http.MethodPost, fmt.Sprintf("/api/workouts/%d/toggle", run.ID), nil, &toggled); err != nil {
			t.Fatal(err)
		}
		if toggled.Completed != want {
			t.Errorf("completed = %v, want %v", toggled.Completed, want)
		}
	}

	// Regeneration falls back to the planner when every candidate fails.
	generation.setFailing(true)
	var regenerated planResponse
	if status, err := client.JSON(ctx, http.MethodPost, fmt.Sprintf("/api/plans/%d/regenerate", created.PlanID), nil, &regenerated); err != nil || status != http.StatusOK {
		t.Fatalf("regenerate: status %d, %v", status, err)
	}
	if !regenerated.Meta.Fallback || regenerated.Meta.Model != "fallback" || regenerated.Meta.Attempts != 3 {
		t.Errorf("regenerated meta = %+v", regenerated.Meta)
	}
	if len(regenerated.Entries) != 22 {
		t.Errorf("regenerated entries = %d, want 22", len(regenerated.Entries))
	}
	if got := generation.requestedModels(); strings.Join(got, ",") != "gpt-test,gpt-test,gpt-4o-mini,gpt-4o" {
		t.Errorf("requested models = %v", got)
	}

	var versions []versionSummary
	if _, err := client.JSON(ctx, http.MethodGet, fmt.Sprintf("/api/plans/%d/versions", created.PlanID), nil, &versions); err != nil {
		t.Fatal(err)
	}
	if len(versions) != 2 {
		t.Fatalf("versions = %d, want 2", len(versions))
	}
	for _, v := range versions {
		if v.Model != "gpt-test" || v.UsedFallback {
			t.Errorf("version snapshot = %+v, want the generated plan", v)
		}
	}
	var version versionResponse
	if _, err := client.JSON(ctx, http.MethodGet, fmt.Sprintf("/api/plans/%d/versions/%d", created.PlanID, versions[0].ID), nil, &version); err != nil {
		t.Fatal(err)
	}
	if len(version.Entries) != 22 {
		t.Errorf("version entries = %d, want 22", len(version.Entries))
	}

	if status, err := client.JSON(ctx, http.MethodDelete, fmt.Sprintf("/api/plans/%d", created.PlanID), nil, nil); err != nil || status != http.StatusNoContent {
		t.Fatalf("delete: status %d, %v", status, err)
	}
	for _, path := range []string{"", "/versions", "/workouts"} {
		var body errorBody
		status, err := client.JSON(ctx, http.MethodGet, fmt.Sprintf("/api/plans/%d%s", created.PlanID, path), nil, &body)
		if err != nil {
			t.Fatal(err)
		}
		if status != http.StatusNotFound {
			t.Errorf("GET %s after delete: status %d", path, status)
		}
	}
	var count int
	if err := server.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM plan_versions").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("%d versions survived the plan", count)
	}
}

func Test_application_planErrors(t *testing.T) {
	server := startServer(t, nil)
	client := server.Client()
	ctx := t.Context()
	startSession(t, client)
	race := createRace(t, client, 14)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{name: "unknown race", method: http.MethodPost, path: "/api/plans",
			body: createPlanRequest{RaceID: 999, Goal: "finish", Config: planConfigRequest{}}, status: http.StatusNotFound},
		{name: "empty goal", method: http.MethodPost, path: "/api/plans",
			body: createPlanRequest{RaceID: race.ID, Goal: "", Config: planConfigRequest{}}, status: http.StatusBadRequest},
		{name: "bad target time", method: http.MethodPost, path: "/api/plans",
			body:   createPlanRequest{RaceID: race.ID, Goal: "finish", Config: planConfigRequest{TargetTime: "fast"}},
			status: http.StatusBadRequest},
		{name: "unknown plan", method: http.MethodGet, path: "/api/plans/999", body: nil, status: http.StatusNotFound},
		{name: "invalid plan id", method: http.MethodGet, path: "/api/plans/abc", body: nil, status: http.StatusNotFound},
		{name: "unknown workout", method: http.MethodPost, path: "/api/workouts/999/toggle", body: nil, status: http.StatusNotFound},
		{name: "unknown route", method: http.MethodGet, path: "/api/nothing", body: nil, status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorBody
			status, err := client.JSON(ctx, tt.method, tt.path, tt.body, &body)
			if err != nil {
				t.Fatal(err)
			}
			if status != tt.status {
				t.Errorf("status = %d, want %d (%s)", status, tt.status, body.Error)
			}
		})
	}

	// Without a generation service the planner builds the plan.
	p := createPlan(t, client, race.ID)
	if !p.Meta.Fallback || p.Meta.Attempts != 0 {
		t.Errorf("meta = %+v", p.Meta)
	}
}

func Test_application_planPage(t *testing.T) {
	server := startServer(t, nil)
	client := server.Client()
	ctx := t.Context()
	startSession(t, client)
	race := createRace(t, client, 14)
	p := createPlan(t, client, race.ID)

	var workouts []workoutResponse
	if _, err := client.JSON(ctx, http.MethodGet, fmt.Sprintf("/api/plans/%d/workouts", p.PlanID), nil, &workouts); err != nil {
		t.Fatal(err)
	}
	if _, err := client.JSON(ctx, http.MethodPost, fmt.Sprintf("/api/workouts/%d/toggle", workouts[0].ID), nil, nil); err != nil {
		t.Fatal(err)
	}

	doc, err := client.GetDoc(ctx, fmt.Sprintf("/plans/%d", p.PlanID))
	if err != nil {
		t.Fatalf("get plan page: %v", err)
	}
	if got := doc.Find("h1").Text(); got != "Training plan: Spring 10K" {
		t.Errorf("h1 = %q", got)
	}
	if got := doc.Find("h2").Length(); got != 3 {
		t.Errorf("weeks = %d, want 3", got)
	}
	if got := doc.Find("blockquote").Length(); got != 1 {
		t.Errorf("fallback notice count = %d", got)
	}
	items := doc.Find("main ul li").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find("input[type=checkbox]").Length() == 1
	})
	if items.Length() != len(workouts) {
		t.Errorf("workout items = %d, want %d", items.Length(), len(workouts))
	}
	if checked := items.Find("input[checked]").Length(); checked != 1 {
		t.Errorf("checked items = %d, want 1", checked)
	}
	if !strings.Contains(doc.Find("main ul li").First().Text(), "10.0 km") {
		t.Errorf("race line = %q", doc.Find("main ul li").First().Text())
	}
}

func Test_application_planPageSpanish(t *testing.T) {
	server := startServer(t, nil)
	client := server.Client()
	ctx := t.Context()
	startSession(t, client)
	p := createPlan(t, client, createRace(t, client, 10).ID)

	resp, err := client.Do(ctx, http.MethodPost, "/language?language=es", nil)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("set language: status %d", resp.StatusCode)
	}

	doc, err := client.GetDoc(ctx, fmt.Sprintf("/plans/%d", p.PlanID))
	if err != nil {
		t.Fatal(err)
	}
	if lang, _ := doc.Find("html").Attr("lang"); lang != "es" {
		t.Errorf("lang = %q", lang)
	}
	if got := doc.Find("h1").Text(); got != "Plan de entrenamiento: Spring 10K" {
		t.Errorf("h1 = %q", got)
	}
	if !strings.Contains(doc.Find("main ul li").First().Text(), "10,0 km") {
		t.Errorf("race line = %q", doc.Find("main ul li").First().Text())
	}
}
