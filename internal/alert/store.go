package alert

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"

	"github.com/couchcryptid/ski-report-service/internal/domain"
)

// MaxAge is how long an alert is kept after its forecast time.
const MaxAge = 6 * time.Hour

// Alert is one stored forecast that met the user's threshold.
type Alert struct {
	ID          int64     `json:"id"`
	ResortID    int64     `json:"resort_id"`
	Time        time.Time `json:"time"`
	Description string    `json:"description"`
	Acked       bool      `json:"acked"`
}

// AlertResort is a resort identity row together with its alert counts.
type AlertResort struct {
	ID      int64  `json:"id"`
	Label   string `json:"label"`
	URL     string `json:"url"`
	Alerts  int    `json:"alerts"`
	Unacked int    `json:"unacked"`
}

// Store persists alerts in SQLite.
type Store struct {
	db    *sql.DB
	clock clockwork.Clock
}

// OpenStore opens (creating if needed) the alert database at dbPath.
// Use ":memory:" for an in-memory database.
func OpenStore(dbPath string, clock clockwork.Clock) (*Store, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open alert database: %w", err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, clock: clock}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create alert schema: %w", err)
	}
	return s, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS resorts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		label TEXT NOT NULL,
		url TEXT NOT NULL,
		UNIQUE(label, url)
	);

	CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		time INTEGER NOT NULL,
		"desc" TEXT NOT NULL,
		acked INTEGER NOT NULL DEFAULT 0,
		resort INTEGER NOT NULL,
		FOREIGN KEY (resort) REFERENCES resorts(id) ON DELETE CASCADE,
		UNIQUE(resort, time)
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_time ON alerts(time);
	CREATE INDEX IF NOT EXISTS idx_alerts_acked ON alerts(acked);

	CREATE VIEW IF NOT EXISTS view_resorts AS
		SELECT resorts.id AS id, resorts.label AS label, resorts.url AS url,
			COUNT(alerts.id) AS alert_count,
			SUM(CASE WHEN alerts.acked = 0 THEN 1 ELSE 0 END) AS unacked_count
		FROM resorts INNER JOIN alerts ON resorts.id = alerts.resort
		GROUP BY resorts.id
		ORDER BY resorts.label;
	`

	_, err := s.db.Exec(schema)
	return err
}

// ResortID returns the identity row for loc, inserting one if absent.
func (s *Store) ResortID(ctx context.Context, loc domain.Location) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM resorts WHERE label = ? AND url = ?",
		loc.Label, loc.Path,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up resort: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO resorts (label, url) VALUES (?, ?)",
		loc.Label, loc.Path,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert resort: %w", err)
	}
	id, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get resort ID: %w", err)
	}
	return id, nil
}

// findAlert returns the id of the alert for (resortID, when).
func (s *Store) findAlert(ctx context.Context, resortID int64, when time.Time) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM alerts WHERE resort = ? AND time = ?",
		resortID, when.Unix(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to find alert: %w", err)
	}
	return id, true, nil
}

// UpsertAlert stores an unacknowledged alert for (resortID, when). An
// existing alert for the same key only has its description replaced.
func (s *Store) UpsertAlert(ctx context.Context, resortID int64, when time.Time, desc string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (time, "desc", acked, resort) VALUES (?, ?, 0, ?)
		ON CONFLICT(resort, time) DO UPDATE SET "desc" = excluded."desc"`,
		when.Unix(), desc, resortID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert alert: %w", err)
	}
	return nil
}

// RemoveOld deletes alerts whose forecast time is more than MaxAge in the
// past, acknowledged or not.
func (s *Store) RemoveOld(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-MaxAge).Unix()
	result, err := s.db.ExecContext(ctx, "DELETE FROM alerts WHERE time < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to remove old alerts: %w", err)
	}
	return result.RowsAffected()
}

// RemoveResort deletes the identity row for loc and all of its alerts.
func (s *Store) RemoveResort(ctx context.Context, loc domain.Location) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	result, err := tx.ExecContext(ctx,
		"DELETE FROM alerts WHERE resort IN (SELECT id FROM resorts WHERE label = ? AND url = ?)",
		loc.Label, loc.Path,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to remove resort alerts: %w", err)
	}
	removed, _ := result.RowsAffected()

	if _, err := tx.ExecContext(ctx, "DELETE FROM resorts WHERE label = ? AND url = ?", loc.Label, loc.Path); err != nil {
		return 0, fmt.Errorf("failed to remove resort: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return removed, nil
}

// RemoveAll deletes every alert and resort identity.
func (s *Store) RemoveAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM alerts; DELETE FROM resorts;"); err != nil {
		return fmt.Errorf("failed to remove alerts: %w", err)
	}
	return nil
}

// AcknowledgeAll marks every unacknowledged alert as acknowledged.
func (s *Store) AcknowledgeAll(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, "UPDATE alerts SET acked = 1 WHERE acked = 0")
	if err != nil {
		return 0, fmt.Errorf("failed to acknowledge alerts: %w", err)
	}
	return result.RowsAffected()
}

// AlertResorts lists resorts that have alerts, ordered by label.
func (s *Store) AlertResorts(ctx context.Context) ([]AlertResort, error) {
	return s.queryResorts(ctx, "SELECT id, label, url, alert_count, unacked_count FROM view_resorts ORDER BY label")
}

// UnackedResorts lists resorts with at least one unacknowledged alert.
func (s *Store) UnackedResorts(ctx context.Context) ([]AlertResort, error) {
	return s.queryResorts(ctx, "SELECT id, label, url, alert_count, unacked_count FROM view_resorts WHERE unacked_count > 0 ORDER BY label")
}

func (s *Store) queryResorts(ctx context.Context, query string) ([]AlertResort, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert resorts: %w", err)
	}
	defer rows.Close()

	var resorts []AlertResort
	for rows.Next() {
		var r AlertResort
		if err := rows.Scan(&r.ID, &r.Label, &r.URL, &r.Alerts, &r.Unacked); err != nil {
			return nil, fmt.Errorf("failed to scan alert resort: %w", err)
		}
		resorts = append(resorts, r)
	}
	return resorts, rows.Err()
}

// Alerts lists the alerts of one resort ordered by forecast time.
func (s *Store) Alerts(ctx context.Context, resortID int64) ([]Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, resort, time, "desc", acked FROM alerts WHERE resort = ? ORDER BY time`,
		resortID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var (
			a     Alert
			unix  int64
			acked int
		)
		if err := rows.Scan(&a.ID, &a.ResortID, &unix, &a.Description, &acked); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Time = time.Unix(unix, 0).UTC()
		a.Acked = intToBool(acked)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Count returns the number of stored alerts.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return n, nil
}

func intToBool(i int) bool {
	return i != 0
}
