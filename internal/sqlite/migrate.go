package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"
)

// migrateTo brings the live schema in line with schemaDefinition declaratively.
//
// The target schema is materialised in a scratch in-memory database attached as schemaTarget. Tables that vanished
// are dropped, new tables are created, tables whose definition changed go through the 12-step procedure from
// https://www.sqlite.org/lang_altertable.html#otheralter, and finally indexes and triggers are synchronised.
//
// Based on https://david.rothlis.net/declarative-schema-migration-for-sqlite/.
func (db *Database) migrateTo(ctx context.Context, schemaDefinition string) error {
	start := time.Now()

	detach, err := db.attachSchemaTarget(ctx, schemaDefinition)
	if err != nil {
		return fmt.Errorf("attach schema target: %w", err)
	}
	defer detach()

	// Step 1 of the 12-step procedure. Foreign keys cannot be toggled inside a transaction.
	if _, err = db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("disable foreign keys: %w", err)
	}
	defer db.enableForeignKeys(ctx)

	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		if err = db.migrateTables(ctx, tx); err != nil {
			return fmt.Errorf("migrate tables: %w", err)
		}
		for _, typ := range []schemaType{schemaTypeTrigger, schemaTypeIndex} {
			if err = db.migrateSchema(ctx, tx, typ); err != nil {
				return fmt.Errorf("migrate %ss: %w", typ, err)
			}
		}
		if _, err = tx.ExecContext(ctx, "PRAGMA foreign_key_check"); err != nil {
			return fmt.Errorf("foreign key check: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.logger.LogAttrs(ctx, slog.LevelInfo, "migrated database", slog.Duration("duration", time.Since(start)))
	return nil
}

// enableForeignKeys is the final step. Running without foreign keys risks silent corruption, so failure stops the
// process.
func (db *Database) enableForeignKeys(ctx context.Context) {
	if _, err := db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.logger.LogAttrs(ctx, slog.LevelError, "re-enable foreign keys failed, exiting",
			slog.Any("error", err))
		if err = syscall.Kill(syscall.Getpid(), syscall.SIGINT); err != nil {
			os.Exit(1)
		}
	}
}

func (db *Database) attachSchemaTarget(ctx context.Context, schemaDefinition string) (func(), error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", rand.Text())
	target, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open schema target: %w", err)
	}
	// The shared cache keeps the scratch database alive while it is attached, this handle is only needed to build it.
	defer func() {
		if closeErr := target.Close(); closeErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "close schema target", slog.Any("error", closeErr))
		}
	}()
	if _, err = target.ExecContext(ctx, schemaDefinition); err != nil {
		return nil, fmt.Errorf("apply schema to target: %w", err)
	}
	if _, err = db.ReadWrite.ExecContext(ctx, "ATTACH DATABASE ? AS schemaTarget", dsn); err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}
	return func() {
		if _, detachErr := db.ReadWrite.ExecContext(ctx, "DETACH DATABASE schemaTarget"); detachErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "detach schema target", slog.Any("error", detachErr))
		}
	}, nil
}

// Internal tables of SQLite and Litestream are never touched.
const ignoredNames = `name NOT LIKE 'sqlite_%' AND name NOT LIKE '_litestream_%'`

func (db *Database) migrateTables(ctx context.Context, tx *sql.Tx) error {
	dropped, err := db.queryStrings(ctx, tx, `SELECT name FROM main.sqlite_schema
WHERE type = 'table' AND `+ignoredNames+`
  AND name NOT IN (SELECT name FROM schemaTarget.sqlite_schema WHERE type = 'table')`)
	if err != nil {
		return fmt.Errorf("query dropped tables: %w", err)
	}
	for _, table := range dropped {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping table", slog.String("table", table))
		if _, err = tx.ExecContext(ctx, "DROP TABLE "+table); err != nil {
			return fmt.Errorf("drop table %s: %w", table, err)
		}
	}

	created, err := db.queryStrings(ctx, tx, `SELECT sql FROM schemaTarget.sqlite_schema
WHERE type = 'table' AND `+ignoredNames+`
  AND name NOT IN (SELECT name FROM main.sqlite_schema WHERE type = 'table')`)
	if err != nil {
		return fmt.Errorf("query created tables: %w", err)
	}
	for _, createSQL := range created {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "creating table", slog.String("query", createSQL))
		if _, err = tx.ExecContext(ctx, createSQL); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	// Renamed tables get their name quoted in sqlite_schema, ignore quotes when diffing.
	changed, err := db.queryChanged(ctx, tx, `SELECT live.name, live.sql, target.sql
FROM main.sqlite_schema AS live
JOIN schemaTarget.sqlite_schema AS target ON live.name = target.name AND live.type = target.type
WHERE live.type = 'table' AND live.name NOT LIKE 'sqlite_%' AND live.name NOT LIKE '_litestream_%'
  AND REPLACE(live.sql, '"', '') <> REPLACE(target.sql, '"', '')`)
	if err != nil {
		return fmt.Errorf("query changed tables: %w", err)
	}
	for _, table := range changed {
		if err = db.rebuildTable(ctx, tx, table); err != nil {
			return fmt.Errorf("rebuild table %s: %w", table.name, err)
		}
	}
	return nil
}

// rebuildTable performs steps 4 to 7: create under a temporary name, copy common columns, drop, rename.
func (db *Database) rebuildTable(ctx context.Context, tx *sql.Tx, table changedSchema) error {
	db.logger.LogAttrs(ctx, slog.LevelInfo, "migrating table",
		slog.String("table", table.name),
		slog.String("live_sql", table.liveSQL),
		slog.String("new_sql", table.newSQL))

	tempName := table.name + "_migration_temp"
	if _, err := tx.ExecContext(ctx, strings.Replace(table.newSQL, table.name, tempName, 1)); err != nil {
		return fmt.Errorf("create temporary table: %w", err)
	}

	// Quoted because column names may be keywords.
	columns, err := db.queryStrings(ctx, tx, `SELECT '"' || target.name || '"'
FROM PRAGMA_TABLE_INFO(:table_name) AS live
JOIN PRAGMA_TABLE_INFO(:table_name, 'schemaTarget') AS target ON target.name = live.name`,
		sql.Named("table_name", table.name))
	if err != nil {
		return fmt.Errorf("query common columns: %w", err)
	}
	common := strings.Join(columns, ", ")

	statements := []string{
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", tempName, common, common, table.name),
		"DROP TABLE " + table.name,
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tempName, table.name),
	}
	for _, statement := range statements {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "executing", slog.String("query", statement))
		if _, err = tx.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("exec %q: %w", statement, err)
		}
	}
	return nil
}

type schemaType string

const (
	schemaTypeTrigger schemaType = "trigger"
	schemaTypeIndex   schemaType = "index"
)

// migrateSchema drops, creates and recreates all entities of typ so that they match the target.
func (db *Database) migrateSchema(ctx context.Context, tx *sql.Tx, typ schemaType) error {
	logger := db.logger.With(slog.String("schemaType", string(typ)))

	dropped, err := db.queryStrings(ctx, tx, `SELECT name FROM main.sqlite_schema
WHERE type = :type AND name NOT LIKE 'sqlite_%'
  AND name NOT IN (SELECT name FROM schemaTarget.sqlite_schema WHERE type = :type)`,
		sql.Named("type", string(typ)))
	if err != nil {
		return fmt.Errorf("query dropped: %w", err)
	}
	changed, err := db.queryChanged(ctx, tx, `SELECT live.name, live.sql, target.sql
FROM main.sqlite_schema AS live
JOIN schemaTarget.sqlite_schema AS target ON live.name = target.name AND live.type = target.type
WHERE live.type = :type AND live.name NOT LIKE 'sqlite_%' AND live.sql <> target.sql`,
		sql.Named("type", string(typ)))
	if err != nil {
		return fmt.Errorf("query changed: %w", err)
	}
	for _, c := range changed {
		dropped = append(dropped, c.name)
	}
	for _, name := range dropped {
		dropSQL := fmt.Sprintf("DROP %s %s", strings.ToUpper(string(typ)), name)
		logger.LogAttrs(ctx, slog.LevelInfo, "dropping", slog.String("query", dropSQL))
		if _, err = tx.ExecContext(ctx, dropSQL); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
	}

	// Everything that exists in the target but not live, which now includes the changed entities dropped above.
	created, err := db.queryStrings(ctx, tx, `SELECT sql FROM schemaTarget.sqlite_schema
WHERE type = :type AND name NOT LIKE 'sqlite_%' AND sql IS NOT NULL
  AND name NOT IN (SELECT name FROM main.sqlite_schema WHERE type = :type)`,
		sql.Named("type", string(typ)))
	if err != nil {
		return fmt.Errorf("query created: %w", err)
	}
	for _, createSQL := range created {
		logger.LogAttrs(ctx, slog.LevelInfo, "creating", slog.String("query", createSQL))
		if _, err = tx.ExecContext(ctx, createSQL); err != nil {
			return fmt.Errorf("create: %w", err)
		}
	}
	return nil
}

// queryStrings returns the first column of every row.
func (db *Database) queryStrings(ctx context.Context, tx *sql.Tx, query string, args ...any) (_ []string, err error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()
	var results []string
	for rows.Next() {
		var result string
		if err = rows.Scan(&result); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		results = append(results, result)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return results, nil
}

type changedSchema struct {
	name    string
	liveSQL string
	newSQL  string
}

func (db *Database) queryChanged(
	ctx context.Context,
	tx *sql.Tx,
	query string,
	args ...any,
) (_ []changedSchema, err error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()
	var results []changedSchema
	for rows.Next() {
		var c changedSchema
		if err = rows.Scan(&c.name, &c.liveSQL, &c.newSQL); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		results = append(results, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return results, nil
}
