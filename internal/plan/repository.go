package plan

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Diego-DPL/zypace/internal/sqlite"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

// repository groups the storage access of the plan aggregate. Every query is scoped to the runner
// found in the request context.
type repository struct {
	races    *sqliteRaceRepository
	plans    *sqlitePlanRepository
	workouts *sqliteWorkoutRepository
}

type baseRepository struct {
	db *sqlite.Database
}

func newRepository(db *sqlite.Database) *repository {
	base := baseRepository{db: db}
	return &repository{
		races:    &sqliteRaceRepository{baseRepository: base},
		plans:    &sqlitePlanRepository{baseRepository: base},
		workouts: &sqliteWorkoutRepository{baseRepository: base},
	}
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullableSeconds(d *time.Duration) sql.NullInt64 {
	if d == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(d.Seconds()), Valid: true}
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

type snapshot struct {
	Plan []Entry `json:"plan"`
}

func marshalSnapshot(entries []Entry) (string, error) {
	b, err := json.Marshal(snapshot{Plan: entries})
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return string(b), nil
}
