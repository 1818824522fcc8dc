package sqlite

import (
	"testing"

	"github.com/Diego-DPL/zypace/internal/testhelpers"
)

const (
	racesV1 = `CREATE TABLE races (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`
	racesV2 = `CREATE TABLE races (id INTEGER PRIMARY KEY, name TEXT NOT NULL, distance_km REAL)`
	racesV3 = `CREATE TABLE races (id INTEGER PRIMARY KEY, name TEXT NOT NULL,
    distance_km REAL CHECK (distance_km IS NULL OR distance_km > 0))`

	plansAndWorkouts = `CREATE TABLE plans (id INTEGER PRIMARY KEY, goal TEXT NOT NULL);
CREATE TABLE workouts (
    id           INTEGER PRIMARY KEY,
    plan_id      INTEGER NOT NULL REFERENCES plans (id) ON DELETE CASCADE,
    workout_date TEXT    NOT NULL
);`
	plansAndWorkoutsWithDistance = `CREATE TABLE plans (id INTEGER PRIMARY KEY, goal TEXT NOT NULL);
CREATE TABLE workouts (
    id           INTEGER PRIMARY KEY,
    plan_id      INTEGER NOT NULL REFERENCES plans (id) ON DELETE CASCADE,
    workout_date TEXT    NOT NULL,
    distance_km  REAL
);`
	dateIndex     = `CREATE INDEX workouts_date_idx ON workouts (workout_date);`
	planDateIndex = `CREATE INDEX workouts_date_idx ON workouts (plan_id, workout_date);`
	lockTrigger   = `CREATE TRIGGER workouts_lock BEFORE DELETE ON workouts BEGIN SELECT RAISE(ABORT, 'locked'); END;`
)

// step migrates to schema and then runs seed against the migrated database.
type step struct {
	schema string
	seed   []string
}

func TestDatabase_migrateTo(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		steps   []step
		check   string
		want    int
		wantErr bool
	}{
		{
			name:  "empty schema",
			steps: []step{{schema: "", seed: nil}},
			check: "SELECT COUNT(*) FROM sqlite_schema",
			want:  0,
		},
		{
			name: "added column keeps rows",
			steps: []step{
				{schema: racesV1, seed: []string{"INSERT INTO races (name) VALUES ('City 10K')"}},
				{schema: racesV2, seed: nil},
			},
			check: "SELECT COUNT(*) FROM races WHERE name = 'City 10K' AND distance_km IS NULL",
			want:  1,
		},
		{
			name: "dropped column is gone",
			steps: []step{
				{schema: racesV2, seed: []string{"INSERT INTO races (name, distance_km) VALUES ('Half', 21.1)"}},
				{schema: racesV1, seed: nil},
			},
			check:   "SELECT COUNT(distance_km) FROM races",
			wantErr: true,
		},
		{
			name: "dropped table is gone",
			steps: []step{
				{schema: racesV1, seed: nil},
				{schema: "", seed: nil},
			},
			check:   "SELECT COUNT(*) FROM races",
			wantErr: true,
		},
		{
			name: "changed check constraint applies to new rows",
			steps: []step{
				{schema: racesV2, seed: []string{"INSERT INTO races (name, distance_km) VALUES ('Marathon', 42.195)"}},
				{schema: racesV3, seed: []string{"INSERT INTO races (name, distance_km) VALUES ('Broken', -1)"}},
			},
			check:   "SELECT COUNT(*) FROM races",
			wantErr: true,
		},
		{
			name:  "new index",
			steps: []step{{schema: plansAndWorkouts + dateIndex, seed: nil}},
			check: "SELECT COUNT(*) FROM sqlite_schema WHERE type = 'index' AND name = 'workouts_date_idx'",
			want:  1,
		},
		{
			name: "removed index",
			steps: []step{
				{schema: plansAndWorkouts + dateIndex, seed: nil},
				{schema: plansAndWorkouts, seed: nil},
			},
			check: "SELECT COUNT(*) FROM sqlite_schema WHERE type = 'index' AND name = 'workouts_date_idx'",
			want:  0,
		},
		{
			name: "changed index",
			steps: []step{
				{schema: plansAndWorkouts + dateIndex, seed: nil},
				{schema: plansAndWorkouts + planDateIndex, seed: nil},
			},
			check: "SELECT COUNT(*) FROM sqlite_schema WHERE name = 'workouts_date_idx' AND sql LIKE '%plan_id, workout_date%'",
			want:  1,
		},
		{
			name: "removed trigger no longer fires",
			steps: []step{
				{schema: plansAndWorkouts + lockTrigger, seed: []string{
					"INSERT INTO plans (id, goal) VALUES (1, 'finish')",
					"INSERT INTO workouts (plan_id, workout_date) VALUES (1, '2026-06-01')",
				}},
				{schema: plansAndWorkouts, seed: []string{"DELETE FROM workouts"}},
			},
			check: "SELECT COUNT(*) FROM workouts",
			want:  0,
		},
		{
			name: "foreign keys enforced after migration",
			steps: []step{
				{schema: plansAndWorkouts, seed: []string{
					"INSERT INTO workouts (plan_id, workout_date) VALUES (99, '2026-06-01')",
				}},
			},
			check:   "SELECT COUNT(*) FROM workouts",
			wantErr: true,
		},
		{
			name: "cascade survives a rebuilt table",
			steps: []step{
				{schema: plansAndWorkouts, seed: []string{
					"INSERT INTO plans (id, goal) VALUES (1, 'sub 50')",
					"INSERT INTO workouts (plan_id, workout_date) VALUES (1, '2026-06-01'), (1, '2026-06-02')",
				}},
				{schema: plansAndWorkoutsWithDistance, seed: []string{"DELETE FROM plans WHERE id = 1"}},
			},
			check: "SELECT COUNT(*) FROM workouts",
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := t.Context()
			db, err := connect(ctx, ":memory:", testhelpers.NewLogger(testhelpers.NewWriter(t)))
			if err != nil {
				t.Fatalf("connect: %v", err)
			}
			t.Cleanup(func() {
				if closeErr := db.Close(); closeErr != nil {
					t.Errorf("close: %v", closeErr)
				}
			})

			// Errors from seeds and the check are collected so that a failing seed satisfies wantErr.
			var gotErr error
			for i, s := range tt.steps {
				if err = db.migrateTo(ctx, s.schema); err != nil {
					t.Fatalf("migrate step %d: %v", i, err)
				}
				for _, statement := range s.seed {
					if _, err = db.ReadWrite.ExecContext(ctx, statement); err != nil && gotErr == nil {
						gotErr = err
					}
				}
			}
			var got int
			if err = db.ReadWrite.QueryRowContext(ctx, tt.check).Scan(&got); err != nil && gotErr == nil {
				gotErr = err
			}

			if tt.wantErr {
				if gotErr == nil {
					t.Errorf("got %d and no error, want an error", got)
				}
				return
			}
			if gotErr != nil {
				t.Fatalf("unexpected error: %v", gotErr)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}
