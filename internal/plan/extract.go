package plan

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Diego-DPL/zypace/internal/errors"
)

var (
	distancePattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s?(?:km|k)\b`)
	durationPattern = regexp.MustCompile(`(?i)(\d{1,3})\s?(?:min|mins|m)\b`)
	restPattern     = regexp.MustCompile(`(?i)\b(rest|descanso|day off|off day)\b`)
)

// ExtractDistanceKm finds the first kilometre figure in a description, e.g. "10 km", "10k" or "10,5km".
func ExtractDistanceKm(description string) (float64, bool) {
	m := distancePattern.FindStringSubmatch(description)
	if m == nil {
		return 0, false
	}
	km, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil || km <= 0 {
		return 0, false
	}
	return km, true
}

// ExtractDurationMin finds the first minute figure in a description, e.g. "45 min".
func ExtractDurationMin(description string) (int, bool) {
	m := durationPattern.FindStringSubmatch(description)
	if m == nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(m[1])
	if err != nil || minutes <= 0 {
		return 0, false
	}
	return minutes, true
}

// IsRestDescription reports whether the description names a rest day.
func IsRestDescription(description string) bool {
	return restPattern.MatchString(description)
}

// ParseDuration parses finish times written as H:MM:SS, MM:SS or a plain number of seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &ValidationError{Date: "", Reason: "empty duration"}
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 { //nolint:mnd // hours, minutes and seconds.
		return 0, &ValidationError{Date: "", Reason: "duration " + strconv.Quote(s)}
	}
	if len(parts) == 1 {
		seconds, err := strconv.Atoi(parts[0])
		if err != nil || seconds <= 0 {
			return 0, errors.Join(&ValidationError{Date: "", Reason: "duration " + strconv.Quote(s)}, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	var total time.Duration
	units := []time.Duration{time.Second, time.Minute, time.Hour}
	for i := range parts {
		part := parts[len(parts)-1-i]
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || (i < len(parts)-1 && n >= 60) {
			return 0, errors.Join(&ValidationError{Date: "", Reason: "duration " + strconv.Quote(s)}, err)
		}
		total += time.Duration(n) * units[i]
	}
	if total <= 0 {
		return 0, &ValidationError{Date: "", Reason: "duration " + strconv.Quote(s)}
	}
	return total, nil
}
