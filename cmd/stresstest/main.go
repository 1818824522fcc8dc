package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Diego-DPL/zypace/internal/e2etest"
	"github.com/Diego-DPL/zypace/internal/logging"
	"github.com/Diego-DPL/zypace/internal/testhelpers"
	"golang.org/x/sync/errgroup"
)

const (
	scenarioTimeout         = 2 * time.Minute
	maxConcurrentOperations = 20
	numRunners              = 10
	successRateThreshold    = 95.0
	percentageMultiplier    = 100
	expectedArgsCount       = 2
	raceWeeksOut            = 12
	toggledWorkouts         = 5
)

type race struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Date string `json:"date"`
}

type planConfig struct {
	RunDays int `json:"runDays"`
}

type createPlan struct {
	RaceID int        `json:"raceId"`
	Goal   string     `json:"goal"`
	Config planConfig `json:"config"`
}

type plan struct {
	PlanID int `json:"planId"`
}

type workout struct {
	ID        int  `json:"id"`
	Completed bool `json:"completed"`
}

// expect fails unless the request succeeded with want.
func expect(status int, err error, want int, what string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if status != want {
		return fmt.Errorf("%s: unexpected status code: %d", what, status)
	}
	return nil
}

// RunnerScenario walks one anonymous runner through planning a race: the plan is generated, a few workouts are
// ticked off and the rendered plan page is read back.
//
// Point the stress test at a server without generation keys unless you want to pay for the load.
func RunnerScenario(ctx context.Context, url string, index int, logger *slog.Logger) error {
	client, err := e2etest.NewClient(url)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	runnerID, err := client.StartSession(ctx)
	if err != nil {
		return err
	}
	ctx = logging.WithAttrs(ctx, slog.Int("runner_id", runnerID))

	r := race{
		ID:   0,
		Name: fmt.Sprintf("Stress test race %d", index),
		Date: time.Now().AddDate(0, 0, raceWeeksOut*7).Format(time.DateOnly), //nolint:mnd // days per week
	}
	status, err := client.JSON(ctx, http.MethodPost, "/api/races", r, &r)
	if err = expect(status, err, http.StatusCreated, "create race"); err != nil {
		return err
	}

	var p plan
	status, err = client.JSON(ctx, http.MethodPost, "/api/plans", createPlan{
		RaceID: r.ID,
		Goal:   "finish strong",
		Config: planConfig{RunDays: 3 + index%3}, //nolint:mnd // vary between three and five run days
	}, &p)
	if err = expect(status, err, http.StatusCreated, "create plan"); err != nil {
		return err
	}

	var workouts []workout
	status, err = client.JSON(ctx, http.MethodGet, fmt.Sprintf("/api/plans/%d/workouts", p.PlanID), nil, &workouts)
	if err = expect(status, err, http.StatusOK, "list workouts"); err != nil {
		return err
	}
	if len(workouts) == 0 {
		return errors.New("plan has no workouts")
	}
	for _, w := range workouts[:min(toggledWorkouts, len(workouts))] {
		status, err = client.JSON(ctx, http.MethodPost, fmt.Sprintf("/api/workouts/%d/toggle", w.ID), nil, &w)
		if err = expect(status, err, http.StatusOK, "toggle workout"); err != nil {
			return err
		}
		if !w.Completed {
			return fmt.Errorf("workout %d not completed after toggle", w.ID)
		}
	}

	doc, err := client.GetDoc(ctx, fmt.Sprintf("/plans/%d", p.PlanID))
	if err != nil {
		return fmt.Errorf("plan page: %w", err)
	}
	if checked := doc.Find("input[type=checkbox][checked]").Length(); checked != min(toggledWorkouts, len(workouts)) {
		return fmt.Errorf("plan page shows %d completed workouts", checked)
	}

	logger.LogAttrs(ctx, slog.LevelDebug, "scenario completed", slog.Int("workouts", len(workouts)))
	return client.Logout(ctx)
}

// RunLoadTest runs a scenario per runner with bounded concurrency.
func RunLoadTest(ctx context.Context, url string, runners int, logger *slog.Logger) error {
	logger.LogAttrs(ctx, slog.LevelInfo, "Starting load test", slog.Int("num_runners", runners))

	var successCount, failureCount atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentOperations)

	for i := range runners {
		g.Go(func() error {
			scenarioCtx, cancel := context.WithTimeout(ctx, scenarioTimeout)
			defer cancel()

			if err := RunnerScenario(scenarioCtx, url, i, logger); err != nil {
				failureCount.Add(1)
				// One failed runner does not stop the others.
				logger.LogAttrs(scenarioCtx, slog.LevelWarn, "Scenario failed",
					slog.Int("runner_index", i), slog.Any("error", err))
				return nil
			}
			successCount.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load test failed: %w", err)
	}

	successRate := float64(successCount.Load()) / float64(runners) * percentageMultiplier
	logger.LogAttrs(ctx, slog.LevelInfo, "Load test completed",
		slog.Int64("successful", successCount.Load()),
		slog.Int64("failed", failureCount.Load()),
		slog.Float64("success_rate", successRate))

	if successRate < successRateThreshold {
		return fmt.Errorf("load test failed: success rate %.1f%% below threshold", successRate)
	}
	return nil
}

func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	ctx := context.Background()

	if len(os.Args) != expectedArgsCount {
		logger.LogAttrs(ctx, slog.LevelError, "usage: stresstest <hostname>")
		os.Exit(1)
	}

	var (
		hostname = os.Args[1]
		start    = time.Now()
	)
	ctx = logging.WithAttrs(ctx, slog.String("hostname", hostname))
	url := "https://" + hostname
	if strings.Contains(hostname, "localhost") {
		url = "http://" + hostname
	}

	client, err := e2etest.NewClient(url)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating client", slog.Any("error", err))
		os.Exit(1)
	}
	if err = client.WaitForReady(ctx, "/api/healthy"); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "server not ready in time", slog.Any("error", err))
		os.Exit(1)
	}

	if err = RunLoadTest(ctx, url, numRunners, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "load test failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "Load test completed successfully",
		slog.Duration("total_duration", time.Since(start)),
		slog.Int("runners_tested", numRunners))
}
