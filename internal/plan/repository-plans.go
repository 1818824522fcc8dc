package plan

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Diego-DPL/zypace/internal/contexthelpers"
)

type sqlitePlanRepository struct {
	baseRepository
}

const planColumns = `
	id, race_id, goal, start_date, model, attempts, used_fallback, last_error,
	run_days, include_strength, strength_days, prior_race_distance_km, prior_race_time_seconds,
	target_time_seconds, generated_at`

// Replace atomically swaps any plan for the same race with p and its entries, and records the initial version.
func (r *sqlitePlanRepository) Replace(ctx context.Context, p Plan, entries []Entry) (Plan, error) {
	runnerID := contexthelpers.RunnerID(ctx)
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM plans WHERE runner_id = ? AND race_id = ?`, runnerID, p.RaceID); err != nil {
			return fmt.Errorf("delete previous plan: %w", err)
		}
		var priorKm sql.NullFloat64
		var priorTime sql.NullInt64
		if pr := p.Config.PriorRace; pr != nil {
			priorKm = sql.NullFloat64{Float64: pr.DistanceKm, Valid: true}
			priorTime = nullableSeconds(&pr.Time)
		}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO plans (runner_id, race_id, goal, start_date, model, attempts, used_fallback, last_error,
			                   run_days, include_strength, strength_days, prior_race_distance_km,
			                   prior_race_time_seconds, target_time_seconds, generated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			runnerID, p.RaceID, p.Goal, p.StartDate.Format(dateFormat), p.Meta.Model, p.Meta.Attempts,
			p.Meta.Fallback, nullableString(p.Meta.LastError), p.Config.RunDays, p.Config.IncludeStrength,
			p.Config.StrengthDays, priorKm, priorTime, nullableSeconds(p.Config.TargetTime),
			p.GeneratedAt.UTC().Format(timestampFormat),
		).Scan(&p.ID)
		if err != nil {
			return fmt.Errorf("insert plan: %w", err)
		}
		if err = insertWorkouts(ctx, tx, runnerID, p.ID, entries); err != nil {
			return err
		}
		return insertVersion(ctx, tx, p.ID, p.GeneratedAt, p.Meta, entries)
	})
	if err != nil {
		return Plan{}, fmt.Errorf("replace plan for race %d: %w", p.RaceID, err)
	}
	return p, nil
}

// Regenerate snapshots the current entries, stores the new metadata, and swaps every entry dated on or after
// today for the entries of s dated on or after today. Earlier entries keep their completion state.
func (r *sqlitePlanRepository) Regenerate(ctx context.Context, p Plan, s Schedule, today, now time.Time) error {
	runnerID := contexthelpers.RunnerID(ctx)
	todayStr := today.Format(dateFormat)
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := listEntries(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if err = insertVersion(ctx, tx, p.ID, now, p.Meta, current); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `
			UPDATE plans
			SET model = ?, attempts = ?, used_fallback = ?, last_error = ?, generated_at = ?
			WHERE id = ? AND runner_id = ?`,
			s.Meta.Model, s.Meta.Attempts, s.Meta.Fallback, nullableString(s.Meta.LastError),
			now.UTC().Format(timestampFormat), p.ID, runnerID); err != nil {
			return fmt.Errorf("update plan metadata: %w", err)
		}
		if _, err = tx.ExecContext(ctx,
			`DELETE FROM workouts WHERE plan_id = ? AND workout_date >= ?`, p.ID, todayStr); err != nil {
			return fmt.Errorf("delete upcoming workouts: %w", err)
		}
		upcoming := make([]Entry, 0, len(s.Entries))
		for _, e := range s.Entries {
			if e.Date >= todayStr {
				upcoming = append(upcoming, e)
			}
		}
		return insertWorkouts(ctx, tx, runnerID, p.ID, upcoming)
	})
	if err != nil {
		return fmt.Errorf("regenerate plan %d: %w", p.ID, err)
	}
	return nil
}

func (r *sqlitePlanRepository) Get(ctx context.Context, id int) (Plan, error) {
	row := r.db.ReadOnly.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = ? AND runner_id = ?`,
		id, contexthelpers.RunnerID(ctx))
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Plan{}, ErrNotFound
	}
	if err != nil {
		return Plan{}, fmt.Errorf("query plan %d: %w", id, err)
	}
	return p, nil
}

func (r *sqlitePlanRepository) GetByRace(ctx context.Context, raceID int) (Plan, error) {
	row := r.db.ReadOnly.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM plans WHERE race_id = ? AND runner_id = ?`, raceID, contexthelpers.RunnerID(ctx))
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Plan{}, ErrNotFound
	}
	if err != nil {
		return Plan{}, fmt.Errorf("query plan for race %d: %w", raceID, err)
	}
	return p, nil
}

// Delete removes the plan. Its workouts and versions are removed by cascade.
func (r *sqlitePlanRepository) Delete(ctx context.Context, id int) error {
	res, err := r.db.ReadWrite.ExecContext(ctx,
		`DELETE FROM plans WHERE id = ? AND runner_id = ?`, id, contexthelpers.RunnerID(ctx))
	if err != nil {
		return fmt.Errorf("delete plan %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqlitePlanRepository) ListVersions(ctx context.Context, planID int) (_ []Version, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT v.id, v.generated_at, v.model, v.attempts, v.used_fallback, v.last_error
		FROM plan_versions v
		JOIN plans p ON p.id = v.plan_id
		WHERE v.plan_id = ? AND p.runner_id = ?
		ORDER BY v.id DESC`, planID, contexthelpers.RunnerID(ctx))
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer func() {
		err = errors.Join(err, rows.Close())
	}()

	var versions []Version
	for rows.Next() {
		var (
			v           Version
			generatedAt string
			lastError   sql.NullString
		)
		if err = rows.Scan(&v.ID, &generatedAt, &v.Meta.Model, &v.Meta.Attempts, &v.Meta.Fallback,
			&lastError); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		if v.GeneratedAt, err = parseTimestamp(generatedAt); err != nil {
			return nil, err
		}
		v.PlanID = planID
		v.Meta.LastError = lastError.String
		versions = append(versions, v)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return versions, nil
}

func (r *sqlitePlanRepository) GetVersion(ctx context.Context, planID, versionID int) (Version, error) {
	var (
		v           Version
		generatedAt string
		lastError   sql.NullString
		planJSON    string
	)
	err := r.db.ReadOnly.QueryRowContext(ctx, `
		SELECT v.id, v.generated_at, v.model, v.attempts, v.used_fallback, v.last_error, v.plan_json
		FROM plan_versions v
		JOIN plans p ON p.id = v.plan_id
		WHERE v.id = ? AND v.plan_id = ? AND p.runner_id = ?`,
		versionID, planID, contexthelpers.RunnerID(ctx),
	).Scan(&v.ID, &generatedAt, &v.Meta.Model, &v.Meta.Attempts, &v.Meta.Fallback, &lastError, &planJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, ErrNotFound
	}
	if err != nil {
		return Version{}, fmt.Errorf("query version %d: %w", versionID, err)
	}
	if v.GeneratedAt, err = parseTimestamp(generatedAt); err != nil {
		return Version{}, err
	}
	var snap snapshot
	if err = json.Unmarshal([]byte(planJSON), &snap); err != nil {
		return Version{}, fmt.Errorf("unmarshal version %d: %w", versionID, err)
	}
	v.PlanID = planID
	v.Meta.LastError = lastError.String
	v.Entries = snap.Plan
	return v, nil
}

func scanPlan(row rowScanner) (Plan, error) {
	var (
		p           Plan
		startDate   string
		lastError   sql.NullString
		priorKm     sql.NullFloat64
		priorSecs   sql.NullInt64
		targetSecs  sql.NullInt64
		generatedAt string
	)
	if err := row.Scan(&p.ID, &p.RaceID, &p.Goal, &startDate, &p.Meta.Model, &p.Meta.Attempts, &p.Meta.Fallback,
		&lastError, &p.Config.RunDays, &p.Config.IncludeStrength, &p.Config.StrengthDays, &priorKm, &priorSecs,
		&targetSecs, &generatedAt); err != nil {
		return Plan{}, err //nolint:wrapcheck // callers add context.
	}
	var err error
	if p.StartDate, err = parseDate(startDate); err != nil {
		return Plan{}, err
	}
	if p.GeneratedAt, err = parseTimestamp(generatedAt); err != nil {
		return Plan{}, err
	}
	p.Meta.LastError = lastError.String
	if priorKm.Valid && priorSecs.Valid {
		p.Config.PriorRace = &PriorRace{DistanceKm: priorKm.Float64, Time: time.Duration(priorSecs.Int64) * time.Second}
	}
	if targetSecs.Valid {
		target := time.Duration(targetSecs.Int64) * time.Second
		p.Config.TargetTime = &target
	}
	return p, nil
}

func insertVersion(ctx context.Context, tx *sql.Tx, planID int, at time.Time, meta Meta, entries []Entry) error {
	planJSON, err := marshalSnapshot(entries)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO plan_versions (plan_id, generated_at, model, attempts, used_fallback, last_error, plan_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		planID, at.UTC().Format(timestampFormat), meta.Model, meta.Attempts, meta.Fallback,
		nullableString(meta.LastError), planJSON); err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}
