package plan

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

const (
	daysPerWeek      = 7
	baseLongRunKm    = 10
	baseTempoKm      = 4
	baseEasyKm       = 5
	baseSeriesReps   = 4
	speedFocusReps   = 2
	maxSeriesReps    = 12
	strengthMinutes  = 40
	highVolumeRunDay = 5
)

var speedFocusPattern = regexp.MustCompile(`(?i)\b(sub|under|below|faster|menos de|bajar|romper)\b`)

type session int

const (
	sessionRest session = iota
	sessionEasy
	sessionSeries
	sessionTempo
	sessionLong
	sessionStrength
)

// easyPriority is the order in which extra run days are added once the key sessions are placed.
var easyPriority = []time.Weekday{
	time.Monday, time.Wednesday, time.Friday, time.Sunday, time.Tuesday, time.Thursday, time.Saturday,
}

var ascendingWeekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

// weekTemplate assigns a session to every weekday for the given constraints.
func weekTemplate(cfg Config) [daysPerWeek]session {
	var week [daysPerWeek]session
	week[time.Tuesday] = sessionSeries
	week[time.Sunday] = sessionLong
	assigned := 2 //nolint:mnd // series and long run.
	// Two run days keep only the series and the long run.
	if cfg.RunDays > minRunDays {
		week[time.Thursday] = sessionTempo
		assigned++
	}
	for _, day := range easyPriority {
		if assigned >= cfg.RunDays {
			break
		}
		if week[day] != sessionRest {
			continue
		}
		week[day] = sessionEasy
		assigned++
	}
	strength := 0
	for _, day := range ascendingWeekdays {
		if strength >= cfg.StrengthDays {
			break
		}
		if week[day] == sessionRest {
			week[day] = sessionStrength
			strength++
		}
	}
	return week
}

// Periodize builds a complete schedule from start to the race date without any external calls.
// Entries carry descriptions only; explanations are attached by Synthesize.
func Periodize(start time.Time, race Race, goal string, cfg Config) []Entry {
	start = normalizeDate(start)
	end := normalizeDate(race.Date)
	if end.Before(start) {
		return nil
	}
	cfg = cfg.Normalize()
	week := weekTemplate(cfg)

	totalDays := int(end.Sub(start).Hours()/24) + 1 //nolint:mnd // hours per day.
	weeks := (totalDays + daysPerWeek - 1) / daysPerWeek

	pace, hasPace := cfg.TargetPace(race.DistanceKm)
	speedFocus := hasPace || speedFocusPattern.MatchString(goal)

	entries := make([]Entry, 0, totalDays)
	for w := range weeks {
		for d := range daysPerWeek {
			date := start.AddDate(0, 0, w*daysPerWeek+d)
			if date.After(end) {
				break
			}
			entries = append(entries, Entry{
				Date:        date.Format(dateFormat),
				Description: describe(week[date.Weekday()], w, cfg, speedFocus, pace, hasPace),
				Category:    "",
				Explanation: nil,
			})
		}
	}
	return entries
}

// longRunKm grows 1.5 km per week for high-volume runners and 1.2 km otherwise.
func longRunKm(w int, cfg Config) float64 {
	step := 1.2
	if cfg.RunDays >= highVolumeRunDay {
		step = 1.5
	}
	return baseLongRunKm + float64(w)*step
}

func describe(s session, w int, cfg Config, speedFocus bool, pace time.Duration, hasPace bool) string {
	paceHint := ""
	if hasPace {
		paceHint = fmt.Sprintf(" (goal pace %s/km)", formatPace(pace))
	}
	switch s {
	case sessionSeries:
		reps := baseSeriesReps + w
		if speedFocus {
			reps += speedFocusReps
		}
		reps = min(reps, maxSeriesReps)
		return fmt.Sprintf("Intervals %dx800 metres at 5-km race effort%s", reps, paceHint)
	case sessionTempo:
		return fmt.Sprintf("Tempo run %d km%s", baseTempoKm+min(w, 6), paceHint) //nolint:mnd // tempo plateaus after six weeks.
	case sessionLong:
		return fmt.Sprintf("Long run %s km", formatKm(longRunKm(w, cfg)))
	case sessionEasy:
		return fmt.Sprintf("Easy run %d km", baseEasyKm+min(w, 4)) //nolint:mnd // easy runs plateau after four weeks.
	case sessionStrength:
		return fmt.Sprintf("Strength training %d min: core, glutes and legs", strengthMinutes)
	case sessionRest:
		return "Rest day"
	}
	return "Rest day"
}

func formatKm(km float64) string {
	return strconv.FormatFloat(math.Round(km*10)/10, 'f', -1, 64) //nolint:mnd // one decimal.
}
