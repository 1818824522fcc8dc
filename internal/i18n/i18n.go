package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Language represents a supported language.
type Language string

const (
	English Language = "en"
	Spanish Language = "es"
)

// DefaultLanguage is the fallback language.
const DefaultLanguage = English

//nolint:gochecknoglobals // static lookup tables.
var (
	tags    = map[Language]language.Tag{English: language.English, Spanish: language.Spanish}
	matcher = language.NewMatcher([]language.Tag{language.English, language.Spanish})

	translations = map[Language]map[string]string{
		English: {
			"plan.title":       "Training plan",
			"plan.goal":        "Goal",
			"plan.race":        "Race",
			"plan.generatedBy": "Generated by",
			"plan.fallback":    "The generation service was unavailable, this plan was built by the periodization fallback.",
			"plan.week":        "Week",
			"plan.completed":   "done",
			"plan.intensity":   "Intensity",
		},
		Spanish: {
			"plan.title":       "Plan de entrenamiento",
			"plan.goal":        "Objetivo",
			"plan.race":        "Carrera",
			"plan.generatedBy": "Generado por",
			"plan.fallback":    "El servicio de generación no estaba disponible, este plan lo creó el algoritmo de periodización.",
			"plan.week":        "Semana",
			"plan.completed":   "hecho",
			"plan.intensity":   "Intensidad",
		},
	}
)

// SupportedLanguages returns a list of all supported languages.
func SupportedLanguages() []Language {
	return []Language{English, Spanish}
}

// Negotiate picks the best supported language for an Accept-Language header value.
func Negotiate(acceptLanguage string) Language {
	preferred, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(preferred) == 0 {
		return DefaultLanguage
	}
	_, index, confidence := matcher.Match(preferred...)
	if confidence == language.No {
		return DefaultLanguage
	}
	return SupportedLanguages()[index]
}

// Translate returns the translation for key, falling back to the default language and finally the key itself.
func Translate(lang Language, key string) string {
	if translation, ok := translations[lang][key]; ok {
		return translation
	}
	if translation, ok := translations[DefaultLanguage][key]; ok {
		return translation
	}
	return key
}

// FormatKm renders a distance with the decimal separator of lang.
func FormatKm(lang Language, km float64) string {
	tag, ok := tags[lang]
	if !ok {
		tag = language.English
	}
	return message.NewPrinter(tag).Sprintf("%.1f km", km)
}
