package plan

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Diego-DPL/zypace/internal/errors"
)

const dateFormat = time.DateOnly

var (
	// ErrValidation marks input that is rejected without retrying.
	ErrValidation = errors.NewSentinel("validation failed")
	// ErrNotFound is returned when a race, plan, version or workout does not exist for the runner.
	ErrNotFound = errors.NewSentinel("not found")
	// ErrConfig marks a missing secret or an unusable generation setup.
	ErrConfig = errors.NewSentinel("configuration error")
)

// ValidationError names the schedule date or input field that failed validation.
type ValidationError struct {
	Date   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Date == "" {
		return "invalid " + e.Reason
	}
	return fmt.Sprintf("invalid schedule entry %s: %s", e.Date, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// LogValue implements slog.LogValuer.
func (e *ValidationError) LogValue() slog.Value {
	return slog.GroupValue(slog.String("date", e.Date), slog.String("reason", e.Reason))
}

// Category is the kind of training session derived from a description.
type Category string

const (
	CategorySeries Category = "series"
	CategoryTempo  Category = "tempo"
	CategoryLong   Category = "long"
	CategoryRest   Category = "rest"
	CategoryEasy   Category = "easy"
	CategoryOther  Category = "other"
)

// Explanation is the structured rationale attached to every schedule entry.
type Explanation struct {
	Type      string `json:"type"`
	Purpose   string `json:"purpose"`
	Details   string `json:"details"`
	Intensity string `json:"intensity,omitempty"`
}

// Entry is one calendar day of a schedule.
//
// Date is kept as text so that malformed dates coming from a generation service reach the validator untouched.
type Entry struct {
	Date        string       `json:"date"`
	Description string       `json:"description"`
	Category    Category     `json:"category,omitempty"`
	Explanation *Explanation `json:"explanation,omitempty"`
}

// Meta describes how a schedule was produced.
type Meta struct {
	Attempts  int    `json:"attempts"`
	Fallback  bool   `json:"fallback"`
	Model     string `json:"model"`
	LastError string `json:"lastError,omitempty"`
}

// Schedule is the output of a generation run.
type Schedule struct {
	Entries []Entry `json:"plan"`
	Meta    Meta    `json:"meta"`
}

// Race is the target event a plan builds towards.
type Race struct {
	ID         int
	Name       string
	Date       time.Time
	DistanceKm *float64
	Completed  bool
}

// PriorRace is a recent race result used to calibrate training paces.
type PriorRace struct {
	DistanceKm float64
	Time       time.Duration
}

const (
	minRunDays      = 2
	maxRunDays      = 7
	minStrengthDays = 1
	maxStrengthDays = 3
)

// Config holds the runner's scheduling constraints.
type Config struct {
	RunDays         int
	IncludeStrength bool
	StrengthDays    int
	PriorRace       *PriorRace
	TargetTime      *time.Duration
}

// Normalize clamps run days to 2..7 and strength days to 1..3, or zero when strength is disabled.
func (c Config) Normalize() Config {
	c.RunDays = min(max(c.RunDays, minRunDays), maxRunDays)
	if c.IncludeStrength {
		c.StrengthDays = min(max(c.StrengthDays, minStrengthDays), maxStrengthDays)
	} else {
		c.StrengthDays = 0
	}
	if c.PriorRace != nil && (c.PriorRace.DistanceKm <= 0 || c.PriorRace.Time <= 0) {
		c.PriorRace = nil
	}
	if c.TargetTime != nil && *c.TargetTime <= 0 {
		c.TargetTime = nil
	}
	return c
}

// TargetPace returns the pace per kilometre needed to finish distanceKm in the target time.
func (c Config) TargetPace(distanceKm *float64) (time.Duration, bool) {
	if c.TargetTime == nil || distanceKm == nil || *distanceKm <= 0 {
		return 0, false
	}
	return time.Duration(float64(*c.TargetTime) / *distanceKm).Round(time.Second), true
}

// Plan is the stored schedule for a race.
type Plan struct {
	ID          int
	RaceID      int
	Goal        string
	StartDate   time.Time
	Config      Config
	Meta        Meta
	GeneratedAt time.Time
}

// Version is an immutable snapshot of a plan.
type Version struct {
	ID          int
	PlanID      int
	GeneratedAt time.Time
	Meta        Meta
	Entries     []Entry
}

// Workout is a persisted schedule entry with completion state.
type Workout struct {
	ID          int
	PlanID      int
	Date        time.Time
	Description string
	Category    Category
	Explanation Explanation
	DistanceKm  *float64
	DurationMin *int
	Completed   bool
}

// formatPace renders a per-kilometre pace as m:ss.
func formatPace(pace time.Duration) string {
	secs := int(pace.Round(time.Second).Seconds())
	return fmt.Sprintf("%d:%02d", secs/60, secs%60) //nolint:mnd // seconds per minute.
}

// normalizeDate truncates t to midnight UTC.
func normalizeDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
