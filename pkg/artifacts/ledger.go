package artifacts

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // sqlite driver
)

// Ledger records runs and their artifacts in a sqlite database, giving
// the resync history a queryable form alongside the rolling log.
type Ledger struct {
	db *sql.DB
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	user        TEXT NOT NULL,
	workbook    TEXT NOT NULL,
	sheet       TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	outcome     TEXT
);
CREATE TABLE IF NOT EXISTS run_artifacts (
	run_id     TEXT NOT NULL REFERENCES runs(run_id),
	name       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, name)
);
`

// OpenLedger opens (or creates) the ledger database. SQLite supports a
// single writer, so the pool is pinned to one connection.
func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000", path,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping ledger: %w", err)
	}
	if _, err := db.Exec(ledgerSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &Ledger{db: db}, nil
}

// Close releases the database.
func (l *Ledger) Close() error { return l.db.Close() }

// RecordStart inserts the run row at refresh start.
func (l *Ledger) RecordStart(runID, user, workbook, sheet string) error {
	_, err := l.db.Exec(
		`INSERT OR REPLACE INTO runs (run_id, user, workbook, sheet, started_at) VALUES (?, ?, ?, ?, ?)`,
		runID, user, workbook, sheet, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// RecordFinish stamps the run's outcome.
func (l *Ledger) RecordFinish(runID, outcome string) error {
	_, err := l.db.Exec(
		`UPDATE runs SET finished_at = ?, outcome = ? WHERE run_id = ?`,
		time.Now().UTC(), outcome, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	return nil
}

// RecordArtifact notes one artifact produced by the run.
func (l *Ledger) RecordArtifact(runID, name, kind string) error {
	_, err := l.db.Exec(
		`INSERT OR REPLACE INTO run_artifacts (run_id, name, kind, created_at) VALUES (?, ?, ?, ?)`,
		runID, name, kind, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record artifact %s: %w", name, err)
	}
	return nil
}

// RunSummary is one row of the run history.
type RunSummary struct {
	RunID    string
	User     string
	Workbook string
	Sheet    string
	Outcome  string
}

// RecentRuns lists the newest runs, most recent first.
func (l *Ledger) RecentRuns(limit int) ([]RunSummary, error) {
	rows, err := l.db.Query(
		`SELECT run_id, user, workbook, sheet, COALESCE(outcome, '') FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()
	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.User, &r.Workbook, &r.Sheet, &r.Outcome); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
