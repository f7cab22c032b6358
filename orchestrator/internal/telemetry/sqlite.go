package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSink appends outcomes to the task_outcomes table. Rows are only ever
// inserted; seq preserves append order.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open sqlite %s: %w", path, err)
	}
	s, err := NewSQLiteSink(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteSink wraps db and creates the table if it does not exist.
func NewSQLiteSink(db *sql.DB) (*SQLiteSink, error) {
	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("telemetry: migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS task_outcomes (
		seq              INTEGER PRIMARY KEY AUTOINCREMENT,
		id               TEXT NOT NULL,
		stage            TEXT NOT NULL,
		start_time       TEXT NOT NULL,
		end_time         TEXT NOT NULL,
		duration_seconds REAL NOT NULL,
		status           TEXT NOT NULL,
		error            TEXT NOT NULL DEFAULT '',
		alert            TEXT NOT NULL DEFAULT ''
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteSink) Append(ctx context.Context, o TaskOutcome) error {
	query := `INSERT INTO task_outcomes (
		id, stage, start_time, end_time, duration_seconds, status, error, alert
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		o.ID, o.Stage,
		o.Start.UTC().Format(time.RFC3339Nano), o.End.UTC().Format(time.RFC3339Nano),
		o.DurationSeconds, string(o.Status), o.Error, o.Alert,
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// Recent returns the last limit outcomes, oldest first.
func (s *SQLiteSink) Recent(ctx context.Context, limit int) ([]TaskOutcome, error) {
	query := `
	SELECT id, stage, start_time, end_time, duration_seconds, status, error, alert
	FROM task_outcomes
	ORDER BY seq DESC
	LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("telemetry: query outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TaskOutcome
	for rows.Next() {
		var (
			o          TaskOutcome
			start, end string
			status     string
		)
		if err := rows.Scan(&o.ID, &o.Stage, &start, &end, &o.DurationSeconds, &status, &o.Error, &o.Alert); err != nil {
			return nil, err
		}
		o.Start = parseTime(start)
		o.End = parseTime(end)
		o.Status = Status(status)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
