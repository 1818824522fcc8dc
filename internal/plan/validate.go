package plan

import (
	"regexp"
	"strings"
	"time"
)

var strictDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Validate checks that entries form a usable schedule from start to end inclusive: every date is a
// strict YYYY-MM-DD calendar date, dates are unique and cover the range without gaps, and every
// description is non-empty. Missing explanations are not an error; Synthesize repairs them.
func Validate(entries []Entry, start, end time.Time) error {
	start, end = normalizeDate(start), normalizeDate(end)
	if len(entries) == 0 {
		return &ValidationError{Date: start.Format(dateFormat), Reason: "empty schedule"}
	}

	dates := make([]time.Time, len(entries))
	for i, e := range entries {
		if !strictDatePattern.MatchString(e.Date) {
			return &ValidationError{Date: e.Date, Reason: "malformed date"}
		}
		date, err := time.Parse(dateFormat, e.Date)
		if err != nil {
			return &ValidationError{Date: e.Date, Reason: "not a calendar date"}
		}
		dates[i] = date
	}

	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if dates[i].Before(start) || dates[i].After(end) {
			return &ValidationError{Date: e.Date, Reason: "outside " + start.Format(dateFormat) + ".." + end.Format(dateFormat)}
		}
		if _, ok := seen[e.Date]; ok {
			return &ValidationError{Date: e.Date, Reason: "duplicate date"}
		}
		seen[e.Date] = struct{}{}
	}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if _, ok := seen[d.Format(dateFormat)]; !ok {
			return &ValidationError{Date: d.Format(dateFormat), Reason: "missing date"}
		}
	}

	for _, e := range entries {
		if strings.TrimSpace(e.Description) == "" {
			return &ValidationError{Date: e.Date, Reason: "empty description"}
		}
	}
	return nil
}
