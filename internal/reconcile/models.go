// Package reconcile imports activities from the activity provider and marks planned workouts as completed when a
// recorded activity matches them.
package reconcile

import (
	"log/slog"
	"strings"
	"time"

	"github.com/Diego-DPL/zypace/internal/errors"
	"github.com/Diego-DPL/zypace/internal/strava"
)

const (
	dateFormat      = time.DateOnly
	timestampFormat = "2006-01-02T15:04:05.000Z"

	defaultLookbackDays = 30
	fullLookbackDays    = 180
	maxLookbackDays     = 365

	pageSize = 100
	// maxFetched caps the activities fetched by a single run.
	maxFetched = 1000
	// afterSlack widens the lower bound so activities right at the boundary are fetched again and deduplicated.
	afterSlack = time.Minute
	sampleSize = 5
)

// ErrNotConnected is returned when the runner has no stored provider credential.
var ErrNotConnected = errors.NewSentinel("activity provider not connected")

// Rule names the matching rule that marked a workout completed.
type Rule string

const (
	RuleDistance    Rule = "distance"
	RuleTime        Rule = "time"
	RuleAnyActivity Rule = "fallback_any"
)

// MatchConfig tunes the matching heuristics.
type MatchConfig struct {
	// DistanceTolerance is the accepted relative difference between the planned and the recorded distance.
	DistanceTolerance float64
	// FallbackMinKm is the shortest activity that completes a workout without a distance or duration target.
	FallbackMinKm float64
	// TimeMinKm is the shortest activity that completes a workout with only a duration target.
	TimeMinKm     float64
	LookbackDays  int
	LookaheadDays int
}

// DefaultMatchConfig returns the production matching heuristics.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		DistanceTolerance: 0.25,
		FallbackMinKm:     1,
		TimeMinKm:         0.2,
		LookbackDays:      30,
		LookaheadDays:     7,
	}
}

func (c MatchConfig) withDefaults() MatchConfig {
	d := DefaultMatchConfig()
	if c.DistanceTolerance <= 0 {
		c.DistanceTolerance = d.DistanceTolerance
	}
	if c.FallbackMinKm <= 0 {
		c.FallbackMinKm = d.FallbackMinKm
	}
	if c.TimeMinKm <= 0 {
		c.TimeMinKm = d.TimeMinKm
	}
	if c.LookbackDays <= 0 {
		c.LookbackDays = d.LookbackDays
	}
	if c.LookaheadDays < 0 {
		c.LookaheadDays = d.LookaheadDays
	}
	return c
}

// Credential is the stored provider token of a runner.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	AthleteID    int64
	Scope        string
}

func (c Credential) expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// canReadActivities reports whether the granted scope lets the provider list activities.
func (c Credential) canReadActivities() bool {
	for scope := range strings.SplitSeq(c.Scope, ",") {
		if strings.HasPrefix(strings.TrimSpace(scope), "activity:read") {
			return true
		}
	}
	return false
}

// Options tunes a single sync run.
type Options struct {
	// Full looks back 180 days.
	Full bool
	// Reset fetches the whole lookback even when newer activities are stored. Stored activities are kept.
	Reset bool
	// Debug adds the athlete profile and sample activity ids to the result.
	Debug bool
	// NoAfter fetches without a lower bound. The reported range still starts at the lookback.
	NoAfter bool
	// LookbackDays defaults to 30 and is capped at 365.
	LookbackDays int
}

func (o Options) lookbackDays() int {
	switch {
	case o.Full:
		return fullLookbackDays
	case o.LookbackDays <= 0:
		return defaultLookbackDays
	default:
		return min(o.LookbackDays, maxLookbackDays)
	}
}

// Range is the inclusive date range a sync run fetched.
type Range struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Result summarizes a sync run.
type Result struct {
	Imported          int             `json:"importedNew"`
	Fetched           int             `json:"fetchedTotal"`
	Matched           int             `json:"matchedWorkouts"`
	LookbackDays      int             `json:"lookbackDays"`
	Range             Range           `json:"range"`
	MatchedRules      map[int]Rule    `json:"matchedRules,omitempty"`
	SampleActivityIDs []int64         `json:"sampleActivityIds,omitempty"`
	StoredScope       string          `json:"storedScope"`
	Hint              string          `json:"hint,omitempty"`
	Athlete           *strava.Athlete `json:"athlete,omitempty"`
}

// LogValue keeps sync logs compact.
func (r Result) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("imported", r.Imported),
		slog.Int("fetched", r.Fetched),
		slog.Int("matched", r.Matched),
		slog.String("from", r.Range.From),
		slog.String("to", r.Range.To),
	)
}

// activity is a stored provider activity.
type activity struct {
	ProviderID int64
	StartDate  time.Time
	Day        string
	Name       string
	DistanceM  float64
	MovingTime int
	Sport      string
}

func fromProvider(a strava.Activity) activity {
	return activity{
		ProviderID: a.ID,
		StartDate:  a.StartDate.UTC(),
		Day:        a.Day(),
		Name:       a.Name,
		DistanceM:  a.Distance,
		MovingTime: a.MovingTime,
		Sport:      a.Sport(),
	}
}
