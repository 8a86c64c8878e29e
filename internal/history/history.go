// Package history keeps a local SQLite log of import runs. It is an audit
// trail, not a source of truth: the JSON state file drives resume decisions,
// and history failures are reported but never fail a run.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/johndauphine/csv2pg/internal/state"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	table_name  TEXT NOT NULL,
	csv_path    TEXT NOT NULL,
	checksum    TEXT NOT NULL,
	status      TEXT NOT NULL,
	phase       TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	error       TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// Run is one recorded import run.
type Run struct {
	RunID      string
	TableName  string
	CSVPath    string
	Checksum   string
	Status     string
	Phase      string
	StartedAt  time.Time
	FinishedAt *time.Time
	Error      string
}

// Store is the SQLite-backed run log.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the run log at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	// The log is single-process; one connection avoids SQLite lock churn.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// CreateRun records the start of a run.
func (s *Store) CreateRun(st *state.ImportState) error {
	started := st.Timestamps["started"]
	if started.IsZero() {
		started = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, table_name, csv_path, checksum, status, phase, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET status = excluded.status, phase = excluded.phase`,
		st.RunID, st.TableName, st.CSVPath, st.CSVChecksum,
		string(st.Status), string(st.Phase), started.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	return nil
}

// UpdatePhase records a phase transition for an existing run.
func (s *Store) UpdatePhase(runID string, phase state.Phase, status state.Status) error {
	_, err := s.db.Exec(
		`UPDATE runs SET phase = ?, status = ? WHERE run_id = ?`,
		string(phase), string(status), runID,
	)
	if err != nil {
		return fmt.Errorf("recording phase transition: %w", err)
	}
	return nil
}

// CompleteRun records a terminal status for the run.
func (s *Store) CompleteRun(runID string, status state.Status, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE runs SET status = ?, finished_at = ?, error = ? WHERE run_id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339), nullable(errMsg), runID,
	)
	if err != nil {
		return fmt.Errorf("recording run completion: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(limit int) ([]Run, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT run_id, table_name, csv_path, checksum, status, phase, started_at, finished_at, error
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started string
		var finished, errMsg sql.NullString
		if err := rows.Scan(&r.RunID, &r.TableName, &r.CSVPath, &r.Checksum,
			&r.Status, &r.Phase, &started, &finished, &errMsg); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		if finished.Valid {
			if ts, err := time.Parse(time.RFC3339, finished.String); err == nil {
				r.FinishedAt = &ts
			}
		}
		r.Error = errMsg.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
