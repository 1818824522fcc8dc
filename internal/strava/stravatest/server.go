// Package stravatest provides an in-process fake of the Strava OAuth and activity APIs for tests.
package stravatest

import (
	"cmp"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Diego-DPL/zypace/internal/strava"
)

const (
	ClientID     = "test-client"
	ClientSecret = "test-secret"
	// ValidCode is accepted by the authorization code exchange.
	ValidCode = "valid-code"
	AthleteID = 4242
)

// Server is a fake Strava. Refresh tokens are single use, like the real provider.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	activities    []strava.Activity
	accessTokens  map[string]time.Time
	refreshTokens map[string]bool
	refreshCalls  int
	pageRequests  []map[string]string
	failStatus    int
	// refreshHeld, when set, parks refresh grants until it is closed.
	refreshHeld    chan struct{}
	refreshEntered chan struct{}
}

// NewServer starts a fake Strava that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		Server:        nil,
		mu:            sync.Mutex{},
		activities:    nil,
		accessTokens:  map[string]time.Time{},
		refreshTokens: map[string]bool{},
		refreshCalls:  0,
		pageRequests:  nil,
		failStatus:    0,

		refreshHeld:    nil,
		refreshEntered: nil,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", s.handleToken)
	mux.HandleFunc("GET /api/v3/athlete/activities", s.authenticated(s.handleActivities))
	mux.HandleFunc("GET /api/v3/athlete", s.authenticated(s.handleAthlete))
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Config returns a client configuration pointing at the fake.
func (s *Server) Config() strava.Config {
	return strava.Config{
		ClientID:     ClientID,
		ClientSecret: ClientSecret,
		BaseURL:      s.URL,
		RedirectURL:  "http://localhost/strava/callback",
		Timeout:      5 * time.Second,
	}
}

// Issue registers a token pair. The access token is rejected once expiry has passed.
func (s *Server) Issue(expiry time.Time) strava.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(expiry)
}

func (s *Server) issueLocked(expiry time.Time) strava.Token {
	tok := strava.Token{
		AccessToken:  "access-" + rand.Text(),
		RefreshToken: "refresh-" + rand.Text(),
		Expiry:       expiry.Truncate(time.Second),
		AthleteID:    AthleteID,
	}
	s.accessTokens[tok.AccessToken] = tok.Expiry
	s.refreshTokens[tok.RefreshToken] = true
	return tok
}

// AddActivities makes activities visible to the list endpoint.
func (s *Server) AddActivities(activities ...strava.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, activities...)
}

// FailWith makes every API call answer status. Zero restores normal behaviour.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
}

// HoldRefresh parks the next refresh grants until release is called. entered is closed once the first of them
// has reached the fake.
func (s *Server) HoldRefresh(t testing.TB) (entered <-chan struct{}, release func()) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	held, reached := make(chan struct{}), make(chan struct{})
	s.refreshHeld, s.refreshEntered = held, reached
	var once sync.Once
	release = func() {
		once.Do(func() { close(held) })
	}
	t.Cleanup(release)
	return reached, release
}

func (s *Server) waitRefresh() {
	s.mu.Lock()
	held, reached := s.refreshHeld, s.refreshEntered
	s.refreshEntered = nil
	s.mu.Unlock()
	if held == nil {
		return
	}
	if reached != nil {
		close(reached)
	}
	<-held
}

// RefreshCalls counts successful and failed refresh token grants.
func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

// PageRequests returns the query parameters of every activities request.
func (s *Server) PageRequests() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.pageRequests)
}

// Activity builds a run of km kilometres starting at noon on day (YYYY-MM-DD).
func Activity(id int64, day string, km float64) strava.Activity {
	start, err := time.Parse(time.DateOnly, day)
	if err != nil {
		panic(err)
	}
	start = start.Add(12 * time.Hour)
	return strava.Activity{
		ID:             id,
		Name:           "Run " + strconv.FormatInt(id, 10),
		Distance:       km * 1000,
		MovingTime:     int(km * 330),
		StartDate:      start,
		StartDateLocal: start.Format("2006-01-02T15:04:05Z"),
		SportType:      "Run",
		Type:           "Run",
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Bad Request"})
		return
	}
	if r.PostForm.Get("client_id") != ClientID || r.PostForm.Get("client_secret") != ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Authorization Error"})
		return
	}

	if r.PostForm.Get("grant_type") == "refresh_token" {
		s.waitRefresh()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		if r.PostForm.Get("code") != ValidCode {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Bad Request", "field": "code"})
			return
		}
	case "refresh_token":
		s.refreshCalls++
		rt := r.PostForm.Get("refresh_token")
		if !s.refreshTokens[rt] {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Bad Request", "field": "refresh_token"})
			return
		}
		delete(s.refreshTokens, rt)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "unsupported grant type"})
		return
	}

	tok := s.issueLocked(time.Now().Add(6 * time.Hour))
	writeJSON(w, http.StatusOK, map[string]any{
		"token_type":    "Bearer",
		"access_token":  tok.AccessToken,
		"refresh_token": tok.RefreshToken,
		"expires_at":    tok.Expiry.Unix(),
		"expires_in":    int(time.Until(tok.Expiry).Seconds()),
		"athlete":       map[string]any{"id": AthleteID, "username": "runner"},
	})
}

func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		expiry, ok := s.accessTokens[token]
		failStatus := s.failStatus
		s.mu.Unlock()
		if !ok || time.Now().After(expiry) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"message": "Authorization Error",
				"errors":  []map[string]string{{"resource": "Athlete", "field": "access_token", "code": "invalid"}},
			})
			return
		}
		if failStatus != 0 {
			writeJSON(w, failStatus, map[string]string{"message": http.StatusText(failStatus)})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	page = max(page, 1)
	if perPage <= 0 {
		perPage = 30
	}
	var after int64
	if v := q.Get("after"); v != "" {
		after, _ = strconv.ParseInt(v, 10, 64)
	}

	s.mu.Lock()
	s.pageRequests = append(s.pageRequests, map[string]string{
		"after": q.Get("after"), "page": q.Get("page"), "per_page": q.Get("per_page"),
	})
	var matching []strava.Activity
	for _, a := range s.activities {
		if a.StartDate.Unix() > after {
			matching = append(matching, a)
		}
	}
	s.mu.Unlock()

	slices.SortFunc(matching, func(a, b strava.Activity) int {
		if c := a.StartDate.Compare(b.StartDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	from := min((page-1)*perPage, len(matching))
	to := min(from+perPage, len(matching))
	writeJSON(w, http.StatusOK, append([]strava.Activity{}, matching[from:to]...))
}

func (s *Server) handleAthlete(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, strava.Athlete{ID: AthleteID, Username: "runner", FirstName: "Test", LastName: "Runner"})
}
