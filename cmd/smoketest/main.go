package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Diego-DPL/zypace/internal/e2etest"
	"github.com/Diego-DPL/zypace/internal/logging"
	"github.com/Diego-DPL/zypace/internal/testhelpers"
)

type race struct {
	ID         int      `json:"id,omitempty"`
	Name       string   `json:"name"`
	Date       string   `json:"date"`
	DistanceKm *float64 `json:"distanceKm,omitempty"`
}

// TestRaces starts an anonymous session and checks that a race round-trips. Plans are left alone so that the smoke
// test never spends generation credits.
func TestRaces(client *e2etest.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second) //nolint:mnd // 10 seconds
	defer cancel()

	if _, err := client.StartSession(ctx); err != nil {
		return err
	}

	distance := 21.1
	created := race{
		ID:         0,
		Name:       "Smoke test half marathon",
		Date:       time.Now().AddDate(0, 0, 70).Format(time.DateOnly), //nolint:mnd // ten weeks out
		DistanceKm: &distance,
	}
	status, err := client.JSON(ctx, http.MethodPost, "/api/races", created, &created)
	if err != nil {
		return fmt.Errorf("create race: %w", err)
	}
	if status != http.StatusCreated {
		return fmt.Errorf("create race: unexpected status code: %d", status)
	}

	var races []race
	if status, err = client.JSON(ctx, http.MethodGet, "/api/races", nil, &races); err != nil {
		return fmt.Errorf("list races: %w", err)
	}
	if status != http.StatusOK || len(races) != 1 || races[0].ID != created.ID {
		return fmt.Errorf("list races: status %d, got %+v", status, races)
	}

	return client.Logout(ctx)
}

func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	ctx := context.Background()

	if len(os.Args) != 2 { //nolint:mnd // we expect only hostname to be passed as argument.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <hostname>")
		os.Exit(1)
	}

	var (
		hostname = os.Args[1]
		client   *e2etest.Client
		err      error
		start    = time.Now()
	)
	ctx = logging.WithAttrs(ctx, slog.String("hostname", hostname))
	url := "https://" + hostname
	if strings.Contains(hostname, "localhost") {
		url = "http://" + hostname
	}

	if client, err = e2etest.NewClient(url); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating client", slog.Any("error", err))
		os.Exit(1)
	}
	if err = client.WaitForReady(ctx, "/api/healthy"); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "server not ready in time", slog.Any("error", err))
		os.Exit(1)
	}
	if err = TestRaces(client); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error testing races", slog.Any("error", err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful", slog.Duration("duration", time.Since(start)))
	os.Exit(0)
}
