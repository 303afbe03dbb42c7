// Package export writes a finished distance matrix to a SQLite database.
package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/kilupskalvis/mashix/internal/models"
)

const schema = `
	-- Matrix identifiers in header order
	CREATE TABLE IF NOT EXISTS identifiers (
		position INTEGER PRIMARY KEY,
		id TEXT NOT NULL UNIQUE
	);

	-- One row per matrix cell
	CREATE TABLE IF NOT EXISTS distances (
		query TEXT NOT NULL,
		reference TEXT NOT NULL,
		distance REAL NOT NULL,
		PRIMARY KEY (query, reference)
	);

	-- Run metadata
	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
`

// WriteSQLite replaces the database at path with the contents of m.
func WriteSQLite(ctx context.Context, path string, m *models.DistanceMatrix, meta map[string]string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old export: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	idStmt, err := tx.PrepareContext(ctx, "INSERT INTO identifiers (position, id) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer idStmt.Close()

	distStmt, err := tx.PrepareContext(ctx, "INSERT INTO distances (query, reference, distance) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer distStmt.Close()

	for i, id := range m.IDs {
		if _, err := idStmt.ExecContext(ctx, i, id); err != nil {
			return fmt.Errorf("failed to insert identifier %s: %w", id, err)
		}
	}
	for _, q := range m.IDs {
		for i, d := range m.Rows[q] {
			if _, err := distStmt.ExecContext(ctx, q, m.IDs[i], d); err != nil {
				return fmt.Errorf("failed to insert distance %s/%s: %w", q, m.IDs[i], err)
			}
		}
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, "INSERT INTO metadata (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("failed to insert metadata: %w", err)
		}
	}

	return tx.Commit()
}

// ReadDistance returns one cell of an exported matrix.
func ReadDistance(ctx context.Context, path, query, reference string) (float64, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return 0, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	var d float64
	err = db.QueryRowContext(ctx,
		"SELECT distance FROM distances WHERE query = ? AND reference = ?", query, reference).Scan(&d)
	if err != nil {
		return 0, err
	}
	return d, nil
}
