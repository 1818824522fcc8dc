package plan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Diego-DPL/zypace/internal/sqlite"
)

const maxRaceNameLength = 200

// Service manages races and the lifecycle of their training plans.
type Service struct {
	repo      *repository
	generator *Generator
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a plan service. now defaults to time.Now.
func NewService(db *sqlite.Database, logger *slog.Logger, generator *Generator, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:      newRepository(db),
		generator: generator,
		logger:    logger,
		now:       now,
	}
}

func (s *Service) today() time.Time {
	return normalizeDate(s.now())
}

// RaceInput is the data needed to register a race.
type RaceInput struct {
	Name       string
	Date       time.Time
	DistanceKm *float64
}

// CreateRace registers a race strictly after today.
func (s *Service) CreateRace(ctx context.Context, in RaceInput) (Race, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > maxRaceNameLength {
		return Race{}, &ValidationError{Date: "", Reason: "race name"}
	}
	date := normalizeDate(in.Date)
	if !date.After(s.today()) {
		return Race{}, &ValidationError{Date: date.Format(dateFormat), Reason: "race date must be in the future"}
	}
	if in.DistanceKm != nil && *in.DistanceKm <= 0 {
		return Race{}, &ValidationError{Date: "", Reason: "race distance"}
	}
	race, err := s.repo.races.Create(ctx, Race{ID: 0, Name: name, Date: date, DistanceKm: in.DistanceKm, Completed: false})
	if err != nil {
		return Race{}, fmt.Errorf("create race: %w", err)
	}
	return race, nil
}

// ListRaces returns the runner's races ordered by date.
func (s *Service) ListRaces(ctx context.Context) ([]Race, error) {
	races, err := s.repo.races.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list races: %w", err)
	}
	return races, nil
}

// GetRace returns one of the runner's races.
func (s *Service) GetRace(ctx context.Context, id int) (Race, error) {
	race, err := s.repo.races.Get(ctx, id)
	if err != nil {
		return Race{}, fmt.Errorf("get race %d: %w", id, err)
	}
	return race, nil
}

// CreatePlan generates a schedule from today to the race and stores it, replacing any existing plan for the race.
func (s *Service) CreatePlan(ctx context.Context, raceID int, goal string, cfg Config) (Plan, Schedule, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return Plan{}, Schedule{}, &ValidationError{Date: "", Reason: "goal"}
	}
	race, err := s.repo.races.Get(ctx, raceID)
	if err != nil {
		return Plan{}, Schedule{}, fmt.Errorf("get race %d: %w", raceID, err)
	}
	today := s.today()
	cfg = cfg.Normalize()
	schedule, err := s.generator.Generate(ctx, Request{Race: race, Goal: goal, Config: cfg, Start: today})
	if err != nil {
		return Plan{}, Schedule{}, fmt.Errorf("generate schedule: %w", err)
	}

	p := Plan{
		ID:          0,
		RaceID:      race.ID,
		Goal:        goal,
		StartDate:   today,
		Config:      cfg,
		Meta:        schedule.Meta,
		GeneratedAt: s.now(),
	}
	if p, err = s.repo.plans.Replace(ctx, p, schedule.Entries); err != nil {
		return Plan{}, Schedule{}, fmt.Errorf("store plan: %w", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "plan created",
		slog.Int("plan_id", p.ID), slog.Int("race_id", race.ID), slog.String("model", p.Meta.Model),
		slog.Bool("fallback", p.Meta.Fallback))
	return p, schedule, nil
}

// RegeneratePlan snapshots the plan into a new version and replaces its entries from today onwards with a
// freshly generated schedule. Past entries and their completion state are kept.
func (s *Service) RegeneratePlan(ctx context.Context, planID int) (Schedule, error) {
	p, err := s.repo.plans.Get(ctx, planID)
	if err != nil {
		return Schedule{}, fmt.Errorf("get plan %d: %w", planID, err)
	}
	race, err := s.repo.races.Get(ctx, p.RaceID)
	if err != nil {
		return Schedule{}, fmt.Errorf("get race %d: %w", p.RaceID, err)
	}
	today := s.today()
	schedule, err := s.generator.Generate(ctx, Request{Race: race, Goal: p.Goal, Config: p.Config, Start: today})
	if err != nil {
		return Schedule{}, fmt.Errorf("generate schedule: %w", err)
	}
	if err = s.repo.plans.Regenerate(ctx, p, schedule, today, s.now()); err != nil {
		return Schedule{}, fmt.Errorf("store regenerated plan: %w", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "plan regenerated",
		slog.Int("plan_id", p.ID), slog.String("from", today.Format(dateFormat)),
		slog.String("model", schedule.Meta.Model), slog.Bool("fallback", schedule.Meta.Fallback))
	return schedule, nil
}

// GetPlan returns the stored plan.
func (s *Service) GetPlan(ctx context.Context, planID int) (Plan, error) {
	p, err := s.repo.plans.Get(ctx, planID)
	if err != nil {
		return Plan{}, fmt.Errorf("get plan %d: %w", planID, err)
	}
	return p, nil
}

// PlanForRace returns the plan built for the race.
func (s *Service) PlanForRace(ctx context.Context, raceID int) (Plan, error) {
	p, err := s.repo.plans.GetByRace(ctx, raceID)
	if err != nil {
		return Plan{}, fmt.Errorf("get plan for race %d: %w", raceID, err)
	}
	return p, nil
}

// DeletePlan removes the plan together with its workouts and versions.
func (s *Service) DeletePlan(ctx context.Context, planID int) error {
	if err := s.repo.plans.Delete(ctx, planID); err != nil {
		return fmt.Errorf("delete plan %d: %w", planID, err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "plan deleted", slog.Int("plan_id", planID))
	return nil
}

// ListVersions returns the version history of a plan, newest first, without entries.
func (s *Service) ListVersions(ctx context.Context, planID int) ([]Version, error) {
	if _, err := s.repo.plans.Get(ctx, planID); err != nil {
		return nil, fmt.Errorf("get plan %d: %w", planID, err)
	}
	versions, err := s.repo.plans.ListVersions(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("list versions of plan %d: %w", planID, err)
	}
	return versions, nil
}

// GetVersion returns a version snapshot with its entries.
func (s *Service) GetVersion(ctx context.Context, planID, versionID int) (Version, error) {
	v, err := s.repo.plans.GetVersion(ctx, planID, versionID)
	if err != nil {
		return Version{}, fmt.Errorf("get version %d of plan %d: %w", versionID, planID, err)
	}
	return v, nil
}

// ListWorkouts returns the stored workouts of a plan ordered by date.
func (s *Service) ListWorkouts(ctx context.Context, planID int) ([]Workout, error) {
	if _, err := s.repo.plans.Get(ctx, planID); err != nil {
		return nil, fmt.Errorf("get plan %d: %w", planID, err)
	}
	workouts, err := s.repo.workouts.List(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("list workouts of plan %d: %w", planID, err)
	}
	return workouts, nil
}

// ToggleWorkout flips the completion flag of a workout.
func (s *Service) ToggleWorkout(ctx context.Context, workoutID int) (Workout, error) {
	w, err := s.repo.workouts.Toggle(ctx, workoutID)
	if err != nil {
		return Workout{}, fmt.Errorf("toggle workout %d: %w", workoutID, err)
	}
	return w, nil
}
