package main

import (
	"net/http"
)

func (app *application) routes() *http.ServeMux {
	mux := http.NewServeMux()

	var (
		shared = func(next http.Handler) http.Handler {
			return app.logAndTraceRequest(app.recoverPanic(secureHeaders(app.crossOriginProtection(
				app.language(next)))))
		}
		noAuth = func(next http.Handler) http.Handler {
			return shared(app.timeout(defaultTimeout)(next))
		}
		session = func(next http.Handler) http.Handler {
			return shared(noCache(app.sessions.LoadAndSave(app.runners.AuthenticateMiddleware(
				app.timeout(defaultTimeout)(next)))))
		}
		mustSession = func(next http.Handler) http.Handler {
			return session(app.mustAuthenticate(next))
		}
		// slowSession waits for the generation service or the activity provider.
		slowSession = func(next http.Handler) http.Handler {
			return shared(noCache(app.sessions.LoadAndSave(app.runners.AuthenticateMiddleware(
				app.timeout(app.slowTimeout)(app.mustAuthenticate(next))))))
		}
	)

	mux.Handle("GET /api/healthy", noAuth(http.HandlerFunc(app.healthy)))
	mux.Handle("POST /api/session", session(http.HandlerFunc(app.sessionPOST)))
	mux.Handle("POST /api/logout", session(http.HandlerFunc(app.logoutPOST)))
	mux.Handle("POST /language", noAuth(http.HandlerFunc(app.languagePOST)))

	mux.Handle("POST /api/races", mustSession(http.HandlerFunc(app.racesPOST)))
	mux.Handle("GET /api/races", mustSession(http.HandlerFunc(app.racesGET)))

	mux.Handle("POST /api/plans", slowSession(http.HandlerFunc(app.plansPOST)))
	mux.Handle("GET /api/plans/{id}", mustSession(http.HandlerFunc(app.planGET)))
	mux.Handle("DELETE /api/plans/{id}", mustSession(http.HandlerFunc(app.planDELETE)))
	mux.Handle("POST /api/plans/{id}/regenerate", slowSession(http.HandlerFunc(app.planRegeneratePOST)))
	mux.Handle("GET /api/plans/{id}/versions", mustSession(http.HandlerFunc(app.planVersionsGET)))
	mux.Handle("GET /api/plans/{id}/versions/{versionID}", mustSession(http.HandlerFunc(app.planVersionGET)))
	mux.Handle("GET /api/plans/{id}/workouts", mustSession(http.HandlerFunc(app.planWorkoutsGET)))
	mux.Handle("POST /api/workouts/{id}/toggle", mustSession(http.HandlerFunc(app.workoutTogglePOST)))

	mux.Handle("GET /strava/connect", mustSession(http.HandlerFunc(app.stravaConnectGET)))
	mux.Handle("GET /strava/callback", slowSession(http.HandlerFunc(app.stravaCallbackGET)))
	mux.Handle("POST /api/strava/disconnect", mustSession(http.HandlerFunc(app.stravaDisconnectPOST)))
	mux.Handle("POST /api/strava/sync", slowSession(http.HandlerFunc(app.stravaSyncPOST)))

	mux.Handle("GET /plans/{id}", mustSession(http.HandlerFunc(app.planPageGET)))

	mux.Handle("/", noAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app.writeError(w, r, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})))

	return mux
}
