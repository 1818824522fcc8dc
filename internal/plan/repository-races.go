package plan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Diego-DPL/zypace/internal/contexthelpers"
)

type sqliteRaceRepository struct {
	baseRepository
}

func (r *sqliteRaceRepository) Create(ctx context.Context, race Race) (Race, error) {
	runnerID := contexthelpers.RunnerID(ctx)
	err := r.db.ReadWrite.QueryRowContext(ctx, `
		INSERT INTO races (runner_id, name, race_date, distance_km)
		VALUES (?, ?, ?, ?)
		RETURNING id`,
		runnerID, race.Name, race.Date.Format(dateFormat), nullableFloat(race.DistanceKm),
	).Scan(&race.ID)
	if err != nil {
		return Race{}, fmt.Errorf("insert race: %w", err)
	}
	return race, nil
}

func (r *sqliteRaceRepository) Get(ctx context.Context, id int) (Race, error) {
	runnerID := contexthelpers.RunnerID(ctx)
	row := r.db.ReadOnly.QueryRowContext(ctx, `
		SELECT id, name, race_date, distance_km, is_completed
		FROM races
		WHERE id = ? AND runner_id = ?`, id, runnerID)
	race, err := scanRace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Race{}, ErrNotFound
	}
	if err != nil {
		return Race{}, fmt.Errorf("query race %d: %w", id, err)
	}
	return race, nil
}

func (r *sqliteRaceRepository) List(ctx context.Context) (_ []Race, err error) {
	runnerID := contexthelpers.RunnerID(ctx)
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT id, name, race_date, distance_km, is_completed
		FROM races
		WHERE runner_id = ?
		ORDER BY race_date, id`, runnerID)
	if err != nil {
		return nil, fmt.Errorf("query races: %w", err)
	}
	defer func() {
		err = errors.Join(err, rows.Close())
	}()

	var races []Race
	for rows.Next() {
		race, scanErr := scanRace(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		races = append(races, race)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate races: %w", err)
	}
	return races, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRace(row rowScanner) (Race, error) {
	var (
		race     Race
		date     string
		distance sql.NullFloat64
	)
	if err := row.Scan(&race.ID, &race.Name, &date, &distance, &race.Completed); err != nil {
		return Race{}, err //nolint:wrapcheck // callers add context.
	}
	var err error
	if race.Date, err = parseDate(date); err != nil {
		return Race{}, err
	}
	if distance.Valid {
		race.DistanceKm = &distance.Float64
	}
	return race, nil
}
