// Package storage provides SQLite-based persistence for worker run history.
// Uses the pure-Go modernc.org/sqlite driver to avoid CGO dependencies.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/vovakirdan/scriptworld/internal/engine"
	"github.com/vovakirdan/scriptworld/internal/entity"
)

// ErrRunNotFound is returned when a run ID has no record.
var ErrRunNotFound = errors.New("storage: run not found")

// Store manages the SQLite database connection for run history.
type Store struct {
	db *sql.DB
}

// Run is one stored worker run.
type Run struct {
	ID         int64
	RunID      string
	GroupID    string
	Bootstrap  string
	Attempt    int
	Status     entity.Status
	Iterations uint64
	Error      string
	StartedAt  time.Time
	EndedAt    time.Time
	CreatedAt  time.Time
}

// Duration returns how long the worker ran.
func (r Run) Duration() time.Duration {
	if r.EndedAt.Before(r.StartedAt) {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Open creates or opens a SQLite database at the given path.
// It creates the parent directories if needed and runs migrations.
func Open(dbPath string) (*Store, error) {
	// Expand ~ to home directory
	if dbPath != "" && dbPath[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage: cannot expand home directory: %w", err)
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: cannot create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: cannot connect to database: %w", err)
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migration failed: %w", err)
	}

	return store, nil
}

// migrate creates the database schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL UNIQUE,
			group_id TEXT NOT NULL,
			bootstrap TEXT NOT NULL,
			attempt INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			iterations INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			started_ns INTEGER NOT NULL,
			ended_ns INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_runs_group_id ON runs(group_id);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_ns DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRun implements engine.RunRecorder.
func (s *Store) SaveRun(rec engine.RunRecord) error {
	_, err := s.InsertRun(rec)
	return err
}

var _ engine.RunRecorder = (*Store)(nil)

// InsertRun records a finished run and returns its row ID.
func (s *Store) InsertRun(rec engine.RunRecord) (int64, error) {
	var errText sql.NullString
	if rec.Error != "" {
		errText = sql.NullString{String: rec.Error, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO runs (run_id, group_id, bootstrap, attempt, status, iterations, error, started_ns, ended_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.GroupID, rec.Bootstrap, rec.Attempt, string(rec.Status),
		int64(rec.Iterations), errText, rec.StartedAt.UnixNano(), rec.EndedAt.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("storage: cannot save run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage: cannot get inserted ID: %w", err)
	}
	return id, nil
}

const runColumns = `id, run_id, group_id, bootstrap, attempt, status, iterations, error, started_ns, ended_ns, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		r          Run
		status     string
		iterations int64
		errText    sql.NullString
		startedNS  int64
		endedNS    int64
		createdAt  any
	)
	if err := row.Scan(&r.ID, &r.RunID, &r.GroupID, &r.Bootstrap, &r.Attempt, &status,
		&iterations, &errText, &startedNS, &endedNS, &createdAt); err != nil {
		return Run{}, err
	}
	r.Status = entity.Status(status)
	r.Iterations = uint64(iterations)
	r.Error = errText.String
	r.StartedAt = time.Unix(0, startedNS)
	r.EndedAt = time.Unix(0, endedNS)
	r.CreatedAt = parseDatetime(createdAt)
	return r, nil
}

// parseDatetime handles both time.Time and string column values.
func parseDatetime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse("2006-01-02 15:04:05", t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

func (s *Store) queryRuns(query string, args ...any) ([]Run, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return runs, nil
}

// RecentRuns returns the latest runs across all groups, newest first.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryRuns(
		`SELECT `+runColumns+` FROM runs ORDER BY started_ns DESC, id DESC LIMIT ?`,
		limit,
	)
}

// GroupRuns returns the latest runs of one group, newest first.
func (s *Store) GroupRuns(groupID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryRuns(
		`SELECT `+runColumns+` FROM runs WHERE group_id = ? ORDER BY started_ns DESC, id DESC LIMIT ?`,
		groupID, limit,
	)
}

// RunByID looks up a run by its run ID.
func (s *Store) RunByID(runID string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: cannot get run: %w", err)
	}
	return &r, nil
}

// ClearRuns deletes the history of one group, or every group when groupID is
// empty.
func (s *Store) ClearRuns(groupID string) error {
	var err error
	if groupID == "" {
		_, err = s.db.Exec("DELETE FROM runs")
	} else {
		_, err = s.db.Exec("DELETE FROM runs WHERE group_id = ?", groupID)
	}
	if err != nil {
		return fmt.Errorf("storage: cannot clear runs: %w", err)
	}
	return nil
}

// GroupStats contains aggregated run statistics for a group.
type GroupStats struct {
	GroupID         string
	Runs            int
	Failures        int
	Kills           int
	TotalIterations int64
	LastStarted     time.Time
}

// AllGroupStats returns statistics for every group with recorded runs.
func (s *Store) AllGroupStats() (map[string]*GroupStats, error) {
	rows, err := s.db.Query(
		`SELECT group_id,
		        COUNT(*),
		        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
		        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
		        COALESCE(SUM(iterations), 0),
		        MAX(started_ns)
		 FROM runs
		 GROUP BY group_id`,
		string(entity.StatusFailed), string(entity.StatusKilled),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot get group stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]*GroupStats)
	for rows.Next() {
		var gs GroupStats
		var last int64
		if err := rows.Scan(&gs.GroupID, &gs.Runs, &gs.Failures, &gs.Kills, &gs.TotalIterations, &last); err != nil {
			return nil, fmt.Errorf("storage: cannot scan stats row: %w", err)
		}
		gs.LastStarted = time.Unix(0, last)
		stats[gs.GroupID] = &gs
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return stats, nil
}
