package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Diego-DPL/zypace/internal/contexthelpers"
	"github.com/Diego-DPL/zypace/internal/sqlite"
)

// repository is the storage of credentials, imported activities and workout completion. Every query is scoped to
// the runner found in the request context.
type repository struct {
	db *sqlite.Database
}

func (r *repository) credential(ctx context.Context) (Credential, error) {
	var (
		cred      Credential
		expiresAt string
		athleteID sql.NullInt64
	)
	err := r.db.ReadOnly.QueryRowContext(ctx, `
SELECT access_token, refresh_token, expires_at, athlete_id, scope
FROM provider_credentials
WHERE runner_id = ?`, contexthelpers.RunnerID(ctx)).Scan(
		&cred.AccessToken, &cred.RefreshToken, &expiresAt, &athleteID, &cred.Scope)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, ErrNotConnected
	}
	if err != nil {
		return Credential{}, fmt.Errorf("query credential: %w", err)
	}
	if cred.ExpiresAt, err = time.Parse(timestampFormat, expiresAt); err != nil {
		return Credential{}, fmt.Errorf("parse expiry %q: %w", expiresAt, err)
	}
	cred.AthleteID = athleteID.Int64
	return cred, nil
}

func (r *repository) upsertCredential(ctx context.Context, cred Credential, now time.Time) error {
	_, err := r.db.ReadWrite.ExecContext(ctx, `
INSERT INTO provider_credentials (runner_id, access_token, refresh_token, expires_at, athlete_id, scope, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (runner_id) DO UPDATE SET access_token  = excluded.access_token,
                                      refresh_token = excluded.refresh_token,
                                      expires_at    = excluded.expires_at,
                                      athlete_id    = excluded.athlete_id,
                                      scope         = excluded.scope,
                                      updated_at    = excluded.updated_at`,
		contexthelpers.RunnerID(ctx), cred.AccessToken, cred.RefreshToken, formatTimestamp(cred.ExpiresAt),
		sql.NullInt64{Int64: cred.AthleteID, Valid: cred.AthleteID != 0}, cred.Scope, formatTimestamp(now))
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// swapToken stores a refreshed token pair only if the stored refresh token is still previous. It reports whether
// the swap happened.
func (r *repository) swapToken(ctx context.Context, previous string, cred Credential, now time.Time) (bool, error) {
	result, err := r.db.ReadWrite.ExecContext(ctx, `
UPDATE provider_credentials
SET access_token  = ?,
    refresh_token = ?,
    expires_at    = ?,
    updated_at    = ?
WHERE runner_id = ?
  AND refresh_token = ?`,
		cred.AccessToken, cred.RefreshToken, formatTimestamp(cred.ExpiresAt), formatTimestamp(now),
		contexthelpers.RunnerID(ctx), previous)
	if err != nil {
		return false, fmt.Errorf("update credential: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *repository) deleteCredential(ctx context.Context) error {
	result, err := r.db.ReadWrite.ExecContext(ctx,
		"DELETE FROM provider_credentials WHERE runner_id = ?", contexthelpers.RunnerID(ctx))
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return ErrNotConnected
	}
	return nil
}

// latestActivity returns the start of the most recent stored activity.
func (r *repository) latestActivity(ctx context.Context) (time.Time, bool, error) {
	var latest sql.NullString
	err := r.db.ReadOnly.QueryRowContext(ctx,
		"SELECT MAX(start_date) FROM external_activities WHERE runner_id = ?",
		contexthelpers.RunnerID(ctx)).Scan(&latest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query latest activity: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(timestampFormat, latest.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse start date %q: %w", latest.String, err)
	}
	return t, true, nil
}

// insertNew stores the activities whose provider ids are not stored yet and returns how many were inserted. The
// comparison and the inserts share one transaction.
func (r *repository) insertNew(ctx context.Context, activities []activity) (int, error) {
	if len(activities) == 0 {
		return 0, nil
	}
	runnerID := contexthelpers.RunnerID(ctx)
	inserted := 0
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		stored, err := storedIDs(ctx, tx, runnerID, activities)
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO external_activities (runner_id, provider_id, start_date, activity_day, name, distance_m, moving_time_s, sport)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert activity: %w", err)
		}
		defer stmt.Close()
		for _, a := range activities {
			// A page may repeat an id when the provider shifts results between requests.
			if slices.Contains(stored, a.ProviderID) {
				continue
			}
			if _, err = stmt.ExecContext(ctx, runnerID, a.ProviderID, formatTimestamp(a.StartDate), a.Day, a.Name,
				a.DistanceM, a.MovingTime, a.Sport); err != nil {
				return fmt.Errorf("insert activity %d: %w", a.ProviderID, err)
			}
			stored = append(stored, a.ProviderID)
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func storedIDs(ctx context.Context, tx *sql.Tx, runnerID int, activities []activity) ([]int64, error) {
	args := make([]any, 0, len(activities)+1)
	args = append(args, runnerID)
	for _, a := range activities {
		args = append(args, a.ProviderID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(activities)), ",")
	rows, err := tx.QueryContext(ctx, `
SELECT provider_id
FROM external_activities
WHERE runner_id = ?
  AND provider_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query stored ids: %w", err)
	}
	defer rows.Close()

	var stored []int64
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stored id: %w", err)
		}
		stored = append(stored, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stored ids: %w", err)
	}
	return stored, nil
}

// activitiesBetween returns stored activities whose day lies in [from, to].
func (r *repository) activitiesBetween(ctx context.Context, from, to string) ([]activity, error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
SELECT provider_id, start_date, activity_day, name, distance_m, moving_time_s, sport
FROM external_activities
WHERE runner_id = ?
  AND activity_day BETWEEN ? AND ?
ORDER BY start_date`, contexthelpers.RunnerID(ctx), from, to)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	var activities []activity
	for rows.Next() {
		var (
			a         activity
			startDate string
		)
		if err = rows.Scan(&a.ProviderID, &startDate, &a.Day, &a.Name, &a.DistanceM, &a.MovingTime,
			&a.Sport); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if a.StartDate, err = time.Parse(timestampFormat, startDate); err != nil {
			return nil, fmt.Errorf("parse start date %q: %w", startDate, err)
		}
		activities = append(activities, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return activities, nil
}

// openWorkouts returns the runner's workouts in [from, to] that are not completed.
func (r *repository) openWorkouts(ctx context.Context, from, to string) ([]candidate, error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
SELECT id, workout_date, description
FROM workouts
WHERE runner_id = ?
  AND is_completed = 0
  AND workout_date BETWEEN ? AND ?
ORDER BY workout_date, id`, contexthelpers.RunnerID(ctx), from, to)
	if err != nil {
		return nil, fmt.Errorf("query workouts: %w", err)
	}
	defer rows.Close()

	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err = rows.Scan(&c.ID, &c.Day, &c.Description); err != nil {
			return nil, fmt.Errorf("scan workout: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workouts: %w", err)
	}
	return candidates, nil
}

// complete marks a workout completed. It reports false when the workout was already completed.
func (r *repository) complete(ctx context.Context, workoutID int) (bool, error) {
	result, err := r.db.ReadWrite.ExecContext(ctx, `
UPDATE workouts
SET is_completed = 1
WHERE id = ?
  AND runner_id = ?
  AND is_completed = 0`, workoutID, contexthelpers.RunnerID(ctx))
	if err != nil {
		return false, fmt.Errorf("complete workout %d: %w", workoutID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampFormat)
}
