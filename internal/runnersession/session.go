// Package runnersession keeps the runner identity in a server-side session.
//
// Runners are anonymous: starting a session creates a runner row and logs the session in as that runner.
package runnersession

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Diego-DPL/zypace/internal/contexthelpers"
	"github.com/Diego-DPL/zypace/internal/logging"
	"github.com/Diego-DPL/zypace/internal/sqlite"
	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
)

type sessionKey string

const (
	runnerIDSessionKey   sessionKey = "runner_id"
	oauthStateSessionKey sessionKey = "oauth_state"
)

// NewSessionManager stores sessions in the sessions table of db. secure must be false only in tests served over
// plain HTTP.
func NewSessionManager(db *sqlite.Database, secure bool) *scs.SessionManager {
	sessionManager := scs.New()
	sessionManager.Store = sqlite3store.NewWithCleanupInterval(db.ReadWrite, 24*time.Hour) //nolint:mnd // day
	sessionManager.Lifetime = 30 * 24 * time.Hour                                          //nolint:mnd // month
	sessionManager.Cookie.Persist = true
	sessionManager.Cookie.Secure = secure
	sessionManager.Cookie.HttpOnly = true
	// Lax so that the session survives the redirect back from the activity provider.
	sessionManager.Cookie.SameSite = http.SameSiteLaxMode
	return sessionManager
}

// Manager starts and ends runner sessions.
type Manager struct {
	logger   *slog.Logger
	sessions *scs.SessionManager
	db       *sqlite.Database
}

func New(logger *slog.Logger, sessions *scs.SessionManager, db *sqlite.Database) *Manager {
	return &Manager{logger: logger, sessions: sessions, db: db}
}

// Start creates a runner and logs the session in as that runner. A session that already belongs to an existing
// runner is kept.
func (m *Manager) Start(ctx context.Context) (int, error) {
	if id := contexthelpers.RunnerID(ctx); id != 0 {
		return id, nil
	}
	var runnerID int
	if err := m.db.ReadWrite.QueryRowContext(ctx,
		"INSERT INTO runners DEFAULT VALUES RETURNING id").Scan(&runnerID); err != nil {
		return 0, fmt.Errorf("insert runner: %w", err)
	}
	// Renew the token on privilege change to prevent session fixation.
	if err := m.sessions.RenewToken(ctx); err != nil {
		return 0, fmt.Errorf("renew session token: %w", err)
	}
	m.sessions.Put(ctx, string(runnerIDSessionKey), runnerID)
	m.logger.LogAttrs(ctx, slog.LevelInfo, "runner created", slog.Int("runner_id", runnerID))
	return runnerID, nil
}

// Logout detaches the runner from the session. The runner and its data stay stored.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.sessions.RenewToken(ctx); err != nil {
		return fmt.Errorf("renew session token: %w", err)
	}
	m.sessions.Remove(ctx, string(runnerIDSessionKey))
	return nil
}

// SetOAuthState remembers the state parameter of a pending provider authorization.
func (m *Manager) SetOAuthState(ctx context.Context, state string) {
	m.sessions.Put(ctx, string(oauthStateSessionKey), state)
}

// PopOAuthState returns and forgets the pending authorization state. It returns "" when there is none.
func (m *Manager) PopOAuthState(ctx context.Context) string {
	return m.sessions.PopString(ctx, string(oauthStateSessionKey))
}

// AuthenticateMiddleware puts the session's runner into the request context. It must run inside
// scs.SessionManager.LoadAndSave.
func (m *Manager) AuthenticateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		runnerID := m.sessions.GetInt(ctx, string(runnerIDSessionKey))

		// Not started yet.
		if runnerID == 0 {
			next.ServeHTTP(w, r)
			return
		}

		var exists int
		err := m.db.ReadOnly.QueryRowContext(ctx, "SELECT 1 FROM runners WHERE id = ?", runnerID).Scan(&exists)
		switch {
		case errors.Is(err, sql.ErrNoRows): // Do not authenticate if the runner has been removed.
			runnerID = 0
		case err != nil:
			m.logger.LogAttrs(ctx, slog.LevelError, "unable to fetch runner", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		default:
			r = contexthelpers.AuthenticateContext(r, runnerID)
		}

		// Hash the token to avoid leaking it in logs.
		tokenHash := sha256.Sum256([]byte(m.sessions.Token(ctx)))
		r = r.WithContext(logging.WithAttrs(r.Context(),
			slog.String("session_hash", hex.EncodeToString(tokenHash[:])),
			slog.Int("runner_id", runnerID),
		))

		next.ServeHTTP(w, r)
	})
}
