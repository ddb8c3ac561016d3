package resorts

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/ski-report-service/internal/domain"
)

// Store persists the followed resorts in SQLite. It may share a database
// file with the alert store.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the resort table at dbPath.
// Use ":memory:" for an in-memory database.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open resort database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create resort schema: %w", err)
	}
	return s, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)"
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS followed_resorts (
		label TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		wakeup INTEGER NOT NULL DEFAULT 0
	);`)
	return err
}

// All returns every stored resort ordered by label.
func (s *Store) All(ctx context.Context) ([]domain.Resort, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT label, path, wakeup FROM followed_resorts ORDER BY label")
	if err != nil {
		return nil, fmt.Errorf("failed to query resorts: %w", err)
	}
	defer rows.Close()

	var out []domain.Resort
	for rows.Next() {
		var (
			loc    domain.Location
			wakeup int
		)
		if err := rows.Scan(&loc.Label, &loc.Path, &wakeup); err != nil {
			return nil, fmt.Errorf("failed to scan resort: %w", err)
		}
		out = append(out, domain.Resort{Location: loc, WakeupEnabled: wakeup != 0})
	}
	return out, rows.Err()
}

// Save inserts r or replaces the stored resort with the same label.
func (s *Store) Save(ctx context.Context, r domain.Resort) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO followed_resorts (label, path, wakeup) VALUES (?, ?, ?)
		ON CONFLICT(label) DO UPDATE SET path = excluded.path, wakeup = excluded.wakeup`,
		r.Location.Label, r.Location.Path, boolToInt(r.WakeupEnabled),
	)
	if err != nil {
		return fmt.Errorf("failed to save resort: %w", err)
	}
	return nil
}

// Delete removes the resort with label. Deleting an unknown label is not an error.
func (s *Store) Delete(ctx context.Context, label string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM followed_resorts WHERE label = ?", label); err != nil {
		return fmt.Errorf("failed to delete resort: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
