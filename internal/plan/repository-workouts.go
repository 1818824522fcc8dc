package plan

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Diego-DPL/zypace/internal/contexthelpers"
)

type sqliteWorkoutRepository struct {
	baseRepository
}

const workoutColumns = `id, plan_id, workout_date, description, category, explanation_json, distance_km, duration_min,
	is_completed`

func (r *sqliteWorkoutRepository) List(ctx context.Context, planID int) (_ []Workout, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `SELECT `+workoutColumns+`
		FROM workouts
		WHERE plan_id = ? AND runner_id = ?
		ORDER BY workout_date`, planID, contexthelpers.RunnerID(ctx))
	if err != nil {
		return nil, fmt.Errorf("query workouts: %w", err)
	}
	defer func() {
		err = errors.Join(err, rows.Close())
	}()

	var workouts []Workout
	for rows.Next() {
		w, scanErr := scanWorkout(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan workout: %w", scanErr)
		}
		workouts = append(workouts, w)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workouts: %w", err)
	}
	return workouts, nil
}

// Toggle flips the completion flag and returns the updated workout.
func (r *sqliteWorkoutRepository) Toggle(ctx context.Context, id int) (Workout, error) {
	row := r.db.ReadWrite.QueryRowContext(ctx, `
		UPDATE workouts
		SET is_completed = 1 - is_completed
		WHERE id = ? AND runner_id = ?
		RETURNING `+workoutColumns, id, contexthelpers.RunnerID(ctx))
	w, err := scanWorkout(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Workout{}, ErrNotFound
	}
	if err != nil {
		return Workout{}, fmt.Errorf("toggle workout %d: %w", id, err)
	}
	return w, nil
}

func scanWorkout(row rowScanner) (Workout, error) {
	var (
		w               Workout
		date            string
		category        string
		explanationJSON string
		distance        sql.NullFloat64
		duration        sql.NullInt64
	)
	if err := row.Scan(&w.ID, &w.PlanID, &date, &w.Description, &category, &explanationJSON, &distance, &duration,
		&w.Completed); err != nil {
		return Workout{}, err //nolint:wrapcheck // callers add context.
	}
	var err error
	if w.Date, err = parseDate(date); err != nil {
		return Workout{}, err
	}
	if err = json.Unmarshal([]byte(explanationJSON), &w.Explanation); err != nil {
		return Workout{}, fmt.Errorf("unmarshal explanation: %w", err)
	}
	w.Category = Category(category)
	if distance.Valid {
		w.DistanceKm = &distance.Float64
	}
	if duration.Valid {
		minutes := int(duration.Int64)
		w.DurationMin = &minutes
	}
	return w, nil
}

// insertWorkouts stores entries with the distance and duration parsed from their descriptions.
func insertWorkouts(ctx context.Context, tx *sql.Tx, runnerID, planID int, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO workouts (plan_id, runner_id, workout_date, description, category, explanation_json,
		                      distance_km, duration_min)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare workout insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		explanation := Explanation{Type: string(e.Category), Purpose: "", Details: "", Intensity: ""}
		if e.Explanation != nil {
			explanation = *e.Explanation
		}
		explanationJSON, marshalErr := json.Marshal(explanation)
		if marshalErr != nil {
			return fmt.Errorf("marshal explanation %s: %w", e.Date, marshalErr)
		}
		var (
			distance sql.NullFloat64
			duration sql.NullInt64
		)
		if km, ok := ExtractDistanceKm(e.Description); ok {
			distance = sql.NullFloat64{Float64: km, Valid: true}
		}
		if minutes, ok := ExtractDurationMin(e.Description); ok {
			duration = sql.NullInt64{Int64: int64(minutes), Valid: true}
		}
		if _, err = stmt.ExecContext(ctx, planID, runnerID, e.Date, e.Description, string(e.Category),
			string(explanationJSON), distance, duration); err != nil {
			return fmt.Errorf("insert workout %s: %w", e.Date, err)
		}
	}
	return nil
}

// listEntries reads the stored entries of a plan inside tx.
func listEntries(ctx context.Context, tx *sql.Tx, planID int) (_ []Entry, err error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT workout_date, description, category, explanation_json
		FROM workouts
		WHERE plan_id = ?
		ORDER BY workout_date`, planID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer func() {
		err = errors.Join(err, rows.Close())
	}()

	var entries []Entry
	for rows.Next() {
		var (
			e               Entry
			category        string
			explanationJSON string
		)
		if err = rows.Scan(&e.Date, &e.Description, &category, &explanationJSON); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		var explanation Explanation
		if err = json.Unmarshal([]byte(explanationJSON), &explanation); err != nil {
			return nil, fmt.Errorf("unmarshal explanation %s: %w", e.Date, err)
		}
		e.Category = Category(category)
		e.Explanation = &explanation
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}
