package plan

import (
	"fmt"
	"strings"
	"time"
)

// Prompt is the text sent to a generation service.
type Prompt struct {
	Instructions string
	Input        string
}

// Request carries everything needed to generate one schedule.
type Request struct {
	Race   Race
	Goal   string
	Config Config
	// Start is the first day of the schedule, normalized to midnight UTC.
	Start time.Time
}

func buildPrompt(req Request) Prompt {
	start := normalizeDate(req.Start).Format(dateFormat)
	end := normalizeDate(req.Race.Date).Format(dateFormat)
	cfg := req.Config

	var b strings.Builder
	b.WriteString("You are an expert running coach. Return ONLY valid JSON with the structure ")
	b.WriteString(`{"plan":[{"date":"YYYY-MM-DD","description":"...","explanation":{"type":"series|tempo|long|rest|easy|other",`)
	b.WriteString(`"purpose":"...","details":"...","intensity":"optional"}}]}. `)
	fmt.Fprintf(&b, "Rules: exactly one entry per calendar day from %s to %s inclusive. ", start, end)
	fmt.Fprintf(&b, "Schedule %d running sessions per week. ", cfg.RunDays)
	if cfg.StrengthDays > 0 {
		fmt.Fprintf(&b, "Add %d strength sessions per week on non-running days. ", cfg.StrengthDays)
	} else {
		b.WriteString("Do not schedule strength sessions. ")
	}
	b.WriteString(`Mark rest days with description "Rest" and type "rest". Increase load progressively. `)
	b.WriteString("Keep descriptions concise and include the distance in km or the duration in min. ")
	b.WriteString("explanation.purpose states the physiological goal, details says how to execute the session. ")
	b.WriteString(`ALWAYS include an explanation, also on rest days (purpose "recovery"). No text outside the JSON.`)

	var in strings.Builder
	fmt.Fprintf(&in, "Race: %s\n", req.Race.Name)
	if req.Race.DistanceKm != nil {
		fmt.Fprintf(&in, "Distance: %s km\n", formatKm(*req.Race.DistanceKm))
	} else {
		in.WriteString("Distance: not specified\n")
	}
	fmt.Fprintf(&in, "Date: %s\n", end)
	fmt.Fprintf(&in, "Goal: %s\n", req.Goal)
	if cfg.TargetTime != nil {
		fmt.Fprintf(&in, "Target time: %s\n", cfg.TargetTime.String())
	}
	if pace, ok := cfg.TargetPace(req.Race.DistanceKm); ok {
		fmt.Fprintf(&in, "Target pace: %s/km\n", formatPace(pace))
	}
	if pr := cfg.PriorRace; pr != nil {
		fmt.Fprintf(&in, "Recent race: %s km in %s (%s/km)\n",
			formatKm(pr.DistanceKm), pr.Time.String(), formatPace(time.Duration(float64(pr.Time)/pr.DistanceKm)))
	}
	return Prompt{Instructions: b.String(), Input: in.String()}
}
