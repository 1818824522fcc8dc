package sqlite_test

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/Diego-DPL/zypace/internal/sqlite"
	"github.com/Diego-DPL/zypace/internal/testhelpers"
)

func TestNewDatabase_schemaAndTransactions(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	db, err := sqlite.NewDatabase(ctx, ":memory:", testhelpers.NewLogger(testhelpers.NewWriter(t)))
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	for _, table := range []string{
		"runners", "sessions", "races", "plans", "plan_versions", "workouts",
		"provider_credentials", "external_activities",
	} {
		var name string
		err = db.ReadOnly.QueryRowContext(ctx,
			"SELECT name FROM sqlite_schema WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	errBoom := errors.New("boom")
	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, execErr := tx.ExecContext(ctx, "INSERT INTO runners (id) VALUES (1)"); execErr != nil {
			return execErr
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("WithTx error = %v, want %v", err, errBoom)
	}
	var count int
	if err = db.ReadOnly.QueryRowContext(ctx, "SELECT COUNT(*) FROM runners").Scan(&count); err != nil {
		t.Fatalf("count runners: %v", err)
	}
	if count != 0 {
		t.Errorf("rolled back insert is visible, count = %d", count)
	}

	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx, "INSERT INTO runners (id) VALUES (1)")
		return execErr
	})
	if err != nil {
		t.Fatalf("WithTx commit: %v", err)
	}
	if err = db.ReadOnly.QueryRowContext(ctx, "SELECT COUNT(*) FROM runners").Scan(&count); err != nil {
		t.Fatalf("count runners: %v", err)
	}
	if count != 1 {
		t.Errorf("committed insert missing, count = %d", count)
	}
}

func TestNewDatabase_migrationIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	dir := t.TempDir()
	logger := testhelpers.NewLogger(testhelpers.NewWriter(t))
	for range 2 {
		db, err := sqlite.NewDatabase(ctx, dir+"/zypace.sqlite3", logger)
		if err != nil {
			t.Fatalf("NewDatabase: %v", err)
		}
		if err = db.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
}
