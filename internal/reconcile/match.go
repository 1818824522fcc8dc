package reconcile

import (
	"math"

	"github.com/Diego-DPL/zypace/internal/plan"
)

// candidate is a planned workout that is not completed yet.
type candidate struct {
	ID          int
	Day         string
	Description string
}

type match struct {
	WorkoutID int
	Rule      Rule
}

// matchWorkouts returns the workouts completed by activities, in candidate order. Rest days never match and the
// first rule that fires wins.
func matchWorkouts(cfg MatchConfig, candidates []candidate, activities []activity) []match {
	byDay := make(map[string][]activity)
	for _, a := range activities {
		byDay[a.Day] = append(byDay[a.Day], a)
	}

	var matches []match
	for _, c := range candidates {
		if plan.IsRestDescription(c.Description) {
			continue
		}
		dayActs := byDay[c.Day]
		if len(dayActs) == 0 {
			continue
		}
		if rule, ok := matchRule(cfg, c.Description, dayActs); ok {
			matches = append(matches, match{WorkoutID: c.ID, Rule: rule})
		}
	}
	return matches
}

func matchRule(cfg MatchConfig, description string, dayActs []activity) (Rule, bool) {
	targetKm, hasDistance := plan.ExtractDistanceKm(description)
	_, hasDuration := plan.ExtractDurationMin(description)

	if hasDistance && targetKm > 0 {
		for _, a := range dayActs {
			if math.Abs(a.DistanceM/1000-targetKm)/targetKm <= cfg.DistanceTolerance {
				return RuleDistance, true
			}
		}
	}
	if hasDuration {
		for _, a := range dayActs {
			if a.DistanceM/1000 > cfg.TimeMinKm {
				return RuleTime, true
			}
		}
	}
	if !hasDistance && !hasDuration {
		for _, a := range dayActs {
			if a.DistanceM/1000 >= cfg.FallbackMinKm {
				return RuleAnyActivity, true
			}
		}
	}
	return "", false
}
