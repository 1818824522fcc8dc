package plan

// Purposes shared by every schedule source.
const (
	PurposeSeries   = "VO2max/speed"
	PurposeTempo    = "threshold endurance"
	PurposeLong     = "aerobic endurance and efficiency"
	PurposeRest     = "recovery"
	PurposeStrength = "injury prevention and power"
	PurposeEasy     = "aerobic base / active recovery"
)

func explanationFor(category Category, description string) Explanation {
	switch category {
	case CategorySeries:
		return Explanation{
			Type:      string(category),
			Purpose:   PurposeSeries,
			Details:   "warm up, execute repetitions at 5k effort with easy jogging recovery, cool down",
			Intensity: "5k pace",
		}
	case CategoryTempo:
		return Explanation{
			Type:      string(category),
			Purpose:   PurposeTempo,
			Details:   "sustained controlled effort, conversation-limited pace",
			Intensity: "10k to half marathon pace",
		}
	case CategoryLong:
		return Explanation{
			Type:      string(category),
			Purpose:   PurposeLong,
			Details:   "steady comfortable pace, periodic hydration",
			Intensity: "Z2 low",
		}
	case CategoryRest:
		return Explanation{
			Type:      string(category),
			Purpose:   PurposeRest,
			Details:   "no running or very light activity",
			Intensity: "",
		}
	case CategoryEasy, CategoryOther:
	}
	if isStrength(description) {
		return Explanation{
			Type:      "strength",
			Purpose:   PurposeStrength,
			Details:   "general strength: core, glutes, legs, stability",
			Intensity: "",
		}
	}
	intensity := ""
	if category == CategoryEasy {
		intensity = "Z2"
	}
	return Explanation{
		Type:      string(category),
		Purpose:   PurposeEasy,
		Details:   "conversational, relaxed effort",
		Intensity: intensity,
	}
}

// Synthesize derives each entry's category from its description and attaches an explanation to every
// entry lacking one. Rest days always carry the recovery purpose, whatever the source wrote.
func Synthesize(entries []Entry) {
	for i := range entries {
		e := &entries[i]
		e.Category = Classify(e.Description)
		if e.Explanation == nil || e.Explanation.Purpose == "" {
			explanation := explanationFor(e.Category, e.Description)
			e.Explanation = &explanation
			continue
		}
		if e.Explanation.Type == "" {
			e.Explanation.Type = string(e.Category)
		}
		if e.Category == CategoryRest {
			e.Explanation.Purpose = PurposeRest
		}
	}
}
