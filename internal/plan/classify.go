package plan

import (
	"regexp"
	"strings"
)

// Keyword groups are checked in order, the first group with a hit decides the category.
var categoryRules = []struct {
	category Category
	pattern  *regexp.Regexp
}{
	{CategorySeries, regexp.MustCompile(`\b(series|intervals?|intervalos?|fartlek|repeats?|repeticiones)\b|\d+\s*x\s*\d+`)},
	{CategoryTempo, regexp.MustCompile(`\b(tempo|threshold|umbral|progresivo)\b`)},
	{CategoryLong, regexp.MustCompile(`\b(long|largo|larga|tirada)\b`)},
	{CategoryRest, regexp.MustCompile(`\b(rest|descanso|day off|off day)\b`)},
	{CategoryEasy, regexp.MustCompile(`\b(easy|suave|rodaje|recovery|recuperaci[oó]n|base|jog|trote)\b`)},
}

var strengthPattern = regexp.MustCompile(`\b(strength|fuerza|gym|gimnasio)\b`)

// Classify maps a free-text workout description to a category. Matching is case-insensitive and
// never fails; unknown or empty text is CategoryOther.
func Classify(description string) Category {
	d := strings.ToLower(description)
	for _, rule := range categoryRules {
		if rule.pattern.MatchString(d) {
			return rule.category
		}
	}
	return CategoryOther
}

func isStrength(description string) bool {
	return strengthPattern.MatchString(strings.ToLower(description))
}
