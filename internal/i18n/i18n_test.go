package i18n_test

import (
	"testing"

	"github.com/Diego-DPL/zypace/internal/i18n"
)

func TestNegotiate(t *testing.T) {
	tests := []struct {
		header string
		want   i18n.Language
	}{
		{header: "", want: i18n.English},
		{header: "es-ES,es;q=0.9,en;q=0.8", want: i18n.Spanish},
		{header: "en-GB", want: i18n.English},
		{header: "fi-FI", want: i18n.English},
		{header: "not a header;;", want: i18n.English},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := i18n.Negotiate(tt.header); got != tt.want {
				t.Errorf("Negotiate(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestTranslate(t *testing.T) {
	if got := i18n.Translate(i18n.Spanish, "plan.goal"); got != "Objetivo" {
		t.Errorf("Translate(es) = %q", got)
	}
	if got := i18n.Translate(i18n.Language("fi"), "plan.goal"); got != "Goal" {
		t.Errorf("Translate(fi) fallback = %q", got)
	}
	if got := i18n.Translate(i18n.English, "missing.key"); got != "missing.key" {
		t.Errorf("Translate(missing) = %q", got)
	}
}

func TestFormatKm(t *testing.T) {
	if got := i18n.FormatKm(i18n.English, 21.1); got != "21.1 km" {
		t.Errorf("FormatKm(en) = %q", got)
	}
	if got := i18n.FormatKm(i18n.Spanish, 21.1); got != "21,1 km" {
		t.Errorf("FormatKm(es) = %q", got)
	}
}
