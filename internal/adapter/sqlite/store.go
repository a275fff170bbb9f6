// Package sqlite persists risk-surface snapshots to a SQLite database. Each
// load replaces the previous snapshot wholesale inside one transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/saferoute/internal/surface"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS surface_metadata (
	id             INTEGER PRIMARY KEY CHECK (id = 1),
	h3_resolution  INTEGER NOT NULL,
	has_crime_data INTEGER NOT NULL,
	generated_at   TEXT NOT NULL,
	total_cells    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS risk_cells (
	cell                TEXT PRIMARY KEY,
	base_risk           REAL NOT NULL,
	smoothed_risk       REAL NOT NULL,
	pedestrian_risk     REAL NOT NULL,
	cyclist_risk        REAL NOT NULL,
	crime_risk          REAL NOT NULL,
	smoothed_crime_risk REAL NOT NULL,
	crash_count         INTEGER NOT NULL,
	crime_count         INTEGER NOT NULL,
	total_severity      REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS cell_time_modifiers (
	cell     TEXT NOT NULL REFERENCES risk_cells(cell),
	bucket   TEXT NOT NULL,
	side     TEXT NOT NULL CHECK (side IN ('crash', 'crime')),
	modifier REAL NOT NULL,
	PRIMARY KEY (cell, bucket, side)
);
`

// ErrNoSnapshot is returned by ReadSurface when nothing has been loaded yet.
var ErrNoSnapshot = errors.New("sqlite: no surface snapshot stored")

// Store is a surface snapshot store backed by modernc.org/sqlite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck // pragma error takes precedence
			return nil, fmt.Errorf("sqlite: exec %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck // migrate error takes precedence
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadSurface replaces the stored snapshot with s.
func (s *Store) LoadSurface(ctx context.Context, surf *surface.Surface) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, table := range []string{"cell_time_modifiers", "risk_cells", "surface_metadata"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("sqlite: clear %s: %w", table, err)
		}
	}

	m := surf.Metadata
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO surface_metadata (id, h3_resolution, has_crime_data, generated_at, total_cells) VALUES (1, ?, ?, ?, ?)`,
		m.H3Resolution, m.HasCrimeData, m.GeneratedAt.UTC().Format(time.RFC3339Nano), len(surf.Cells),
	); err != nil {
		return fmt.Errorf("sqlite: insert metadata: %w", err)
	}

	cellStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO risk_cells (cell, base_risk, smoothed_risk, pedestrian_risk, cyclist_risk,
			crime_risk, smoothed_crime_risk, crash_count, crime_count, total_severity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare cell insert: %w", err)
	}
	defer cellStmt.Close()

	modStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cell_time_modifiers (cell, bucket, side, modifier) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare modifier insert: %w", err)
	}
	defer modStmt.Close()

	for _, id := range surf.CellIDs() {
		c := surf.Cells[id]
		if _, err := cellStmt.ExecContext(ctx, id, c.BaseRisk, c.SmoothedRisk, c.PedestrianRisk,
			c.CyclistRisk, c.CrimeRisk, c.SmoothedCrimeRisk, c.CrashCount, c.CrimeCount, c.TotalSeverity); err != nil {
			return fmt.Errorf("sqlite: insert cell %s: %w", id, err)
		}
		for bucket, v := range c.TimeModifiers {
			if _, err := modStmt.ExecContext(ctx, id, bucket, "crash", v); err != nil {
				return fmt.Errorf("sqlite: insert modifier %s/%s: %w", id, bucket, err)
			}
		}
		for bucket, v := range c.CrimeTimeModifiers {
			if _, err := modStmt.ExecContext(ctx, id, bucket, "crime", v); err != nil {
				return fmt.Errorf("sqlite: insert modifier %s/%s: %w", id, bucket, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	s.logger.Info("surface snapshot stored", "cells", len(surf.Cells))
	return nil
}

// ReadSurface reconstructs the stored snapshot. A snapshot that fails
// surface.Validate is reported as a *surface.MalformedRiskDataError.
func (s *Store) ReadSurface(ctx context.Context) (*surface.Surface, error) {
	var (
		m           surface.Metadata
		generatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT h3_resolution, has_crime_data, generated_at, total_cells FROM surface_metadata WHERE id = 1`,
	).Scan(&m.H3Resolution, &m.HasCrimeData, &generatedAt, &m.TotalCells)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: read metadata: %w", err)
	}
	if m.GeneratedAt, err = time.Parse(time.RFC3339Nano, generatedAt); err != nil {
		return nil, fmt.Errorf("sqlite: parse generated_at: %w", err)
	}

	out := &surface.Surface{Metadata: m, Cells: make(map[string]surface.Cell, m.TotalCells)}

	rows, err := s.db.QueryContext(ctx,
		`SELECT cell, base_risk, smoothed_risk, pedestrian_risk, cyclist_risk, crime_risk,
			smoothed_crime_risk, crash_count, crime_count, total_severity FROM risk_cells`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query cells: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var c surface.Cell
		if err := rows.Scan(&id, &c.BaseRisk, &c.SmoothedRisk, &c.PedestrianRisk, &c.CyclistRisk,
			&c.CrimeRisk, &c.SmoothedCrimeRisk, &c.CrashCount, &c.CrimeCount, &c.TotalSeverity); err != nil {
			return nil, fmt.Errorf("sqlite: scan cell: %w", err)
		}
		c.TimeModifiers = map[string]float64{}
		c.CrimeTimeModifiers = map[string]float64{}
		out.Cells[id] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate cells: %w", err)
	}

	modRows, err := s.db.QueryContext(ctx, `SELECT cell, bucket, side, modifier FROM cell_time_modifiers`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query modifiers: %w", err)
	}
	defer modRows.Close()
	for modRows.Next() {
		var id, bucket, side string
		var v float64
		if err := modRows.Scan(&id, &bucket, &side, &v); err != nil {
			return nil, fmt.Errorf("sqlite: scan modifier: %w", err)
		}
		c, ok := out.Cells[id]
		if !ok {
			return nil, &surface.MalformedRiskDataError{Cell: id, Field: "cell_time_modifiers", Reason: "modifier for unknown cell"}
		}
		if side == "crime" {
			c.CrimeTimeModifiers[bucket] = v
		} else {
			c.TimeModifiers[bucket] = v
		}
	}
	if err := modRows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate modifiers: %w", err)
	}
	if err := surface.Validate(out); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return out, nil
}

// HighRiskCells returns cell ids whose smoothed crash risk is at least
// threshold, highest first.
func (s *Store) HighRiskCells(ctx context.Context, threshold float64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cell FROM risk_cells WHERE smoothed_risk >= ? ORDER BY smoothed_risk DESC, cell`, threshold)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query high-risk cells: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan cell id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
