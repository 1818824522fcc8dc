package main

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/Diego-DPL/zypace/internal/i18n"
	"github.com/Diego-DPL/zypace/internal/plan"
)

const (
	languageCookie       = "language"
	languageCookieMaxAge = 365 * 24 * time.Hour
)

// isRelativePath accepts only same-origin absolute paths such as "/plans/1". Scheme-relative ("//host") and
// backslash tricks ("/\host") are rejected.
func isRelativePath(path string) bool {
	if !strings.HasPrefix(path, "/") || strings.Contains(path, "://") {
		return false
	}
	return len(path) == 1 || (path[1] != '/' && path[1] != '\\')
}

// languagePOST stores the language preference used for the plan page. An optional relative "next" redirects back.
func (app *application) languagePOST(w http.ResponseWriter, r *http.Request) {
	lang := i18n.Language(r.FormValue("language"))
	if !slices.Contains(i18n.SupportedLanguages(), lang) {
		app.handleError(w, r, &plan.ValidationError{Date: "", Reason: "unsupported language " + string(lang)})
		return
	}

	http.SetCookie(w, &http.Cookie{ //nolint:exhaustruct // defaults are fine.
		Name:     languageCookie,
		Value:    string(lang),
		Path:     "/",
		MaxAge:   int(languageCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   app.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	if next := r.FormValue("next"); isRelativePath(next) {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
