package main

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/Diego-DPL/zypace/internal/contexthelpers"
	"github.com/Diego-DPL/zypace/internal/i18n"
	"github.com/Diego-DPL/zypace/internal/plan"
)

const daysPerWeek = 7

//nolint:gochecknoglobals // parsed once.
var planPage = template.Must(template.New("plan").Parse(`<!doctype html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style nonce="{{.Nonce}}">
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
li { margin: .25rem 0; list-style: none; }
blockquote { border-left: 4px solid #e07a1f; margin-left: 0; padding-left: 1rem; }
</style>
</head>
<body>
<main>
{{.Body}}
</main>
</body>
</html>
`))

type planPageData struct {
	Lang  string
	Title string
	Nonce string
	Body  template.HTML
}

//nolint:gochecknoglobals // static.
var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`, "<", `\<`, ">", `\>`, "#", `\#`, "`", "\\`", "|", `\|`,
)

// planMarkdown renders the plan as a markdown document grouped by week with a task list of workouts.
func planMarkdown(lang i18n.Language, race plan.Race, p plan.Plan, workouts []plan.Workout) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s: %s\n\n", i18n.Translate(lang, "plan.title"), markdownEscaper.Replace(race.Name))

	fmt.Fprintf(&b, "- **%s:** %s", i18n.Translate(lang, "plan.race"), race.Date.Format(time.DateOnly))
	if race.DistanceKm != nil {
		fmt.Fprintf(&b, ", %s", i18n.FormatKm(lang, *race.DistanceKm))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "- **%s:** %s\n", i18n.Translate(lang, "plan.goal"), markdownEscaper.Replace(p.Goal))
	fmt.Fprintf(&b, "- **%s:** %s\n\n", i18n.Translate(lang, "plan.generatedBy"), markdownEscaper.Replace(p.Meta.Model))
	if p.Meta.Fallback {
		fmt.Fprintf(&b, "> %s\n\n", i18n.Translate(lang, "plan.fallback"))
	}

	if len(workouts) == 0 {
		return b.String()
	}
	first := workouts[0].Date
	week := 0
	for _, w := range workouts {
		if n := int(w.Date.Sub(first).Hours()/24)/daysPerWeek + 1; n != week { //nolint:mnd // hours per day.
			week = n
			fmt.Fprintf(&b, "\n## %s %d\n\n", i18n.Translate(lang, "plan.week"), week)
		}
		check := " "
		if w.Completed {
			check = "x"
		}
		fmt.Fprintf(&b, "- [%s] %s: %s", check, w.Date.Format(time.DateOnly), markdownEscaper.Replace(w.Description))
		if w.DistanceKm != nil {
			fmt.Fprintf(&b, " (%s)", i18n.FormatKm(lang, *w.DistanceKm))
		}
		if w.Explanation.Intensity != "" {
			fmt.Fprintf(&b, " *%s: %s*", i18n.Translate(lang, "plan.intensity"),
				markdownEscaper.Replace(w.Explanation.Intensity))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// planPageGET serves the plan as an HTML page in the negotiated language.
func (app *application) planPageGET(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	planID, err := parseIDParam(r, "id")
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	p, err := app.plans.GetPlan(ctx, planID)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	race, err := app.plans.GetRace(ctx, p.RaceID)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	workouts, err := app.plans.ListWorkouts(ctx, planID)
	if err != nil {
		app.handleError(w, r, err)
		return
	}

	lang := contexthelpers.Language(ctx)
	var body bytes.Buffer
	if err = app.markdown.Convert([]byte(planMarkdown(lang, race, p, workouts)), &body); err != nil {
		app.serverError(w, r, fmt.Errorf("render markdown: %w", err))
		return
	}
	var page bytes.Buffer
	if err = planPage.Execute(&page, planPageData{
		Lang:  string(lang),
		Title: i18n.Translate(lang, "plan.title") + ": " + race.Name,
		Nonce: contexthelpers.CSPNonce(ctx),
		Body:  template.HTML(body.String()), //nolint:gosec // goldmark omits raw HTML from the markdown.
	}); err != nil {
		app.serverError(w, r, fmt.Errorf("execute plan template: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = page.WriteTo(w)
}
