package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"mmfplace/internal/database/migrations"
	"mmfplace/internal/place"
)

// MemoryPath opens a private in-memory index.
const MemoryPath = ":memory:"

const metaHashAlgorithm = "hash_algorithm"

// Run status values stored in the runs table.
const (
	RunStatusRunning  = "running"
	RunStatusSuccess  = "success"
	RunStatusFailed   = "failed"
	RunStatusCanceled = "canceled"
)

// Run is one recorded invocation of the placement pipeline.
type Run struct {
	ID         int64
	RunID      string
	Input      string
	Output     string
	DryRun     bool
	Status     string
	Summary    string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// SQLiteIndex implements place.Index on a single SQLite file.
type SQLiteIndex struct {
	db    *sql.DB
	clock place.Clock
	path  string
}

// NewSQLiteIndex opens the index at path, creating and migrating it when
// needed. path can be MemoryPath. A nil clock uses the system clock.
func NewSQLiteIndex(path string, clock place.Clock) (*SQLiteIndex, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	if clock == nil {
		clock = place.SystemClock{}
	}
	return &SQLiteIndex{db: db, clock: clock, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection.
// The pool is limited to one connection: it serializes writers and keeps an
// in-memory database alive for the lifetime of the handle.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// Content records

func (s *SQLiteIndex) Lookup(hash string) (*place.ContentRecord, error) {
	var parts string
	rec := &place.ContentRecord{Hash: hash}
	err := s.db.QueryRow("SELECT parts, earliest FROM contents WHERE hash = ?", hash).Scan(&parts, &rec.Earliest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up %s: %w", hash, err)
	}
	if err := json.Unmarshal([]byte(parts), &rec.PathParts); err != nil {
		return nil, fmt.Errorf("decoding parts of %s: %w", hash, err)
	}
	return rec, nil
}

func (s *SQLiteIndex) Insert(rec *place.ContentRecord) error {
	parts, err := json.Marshal(rec.PathParts)
	if err != nil {
		return fmt.Errorf("encoding parts of %s: %w", rec.Hash, err)
	}
	now := s.clock.Now().Unix()
	_, err = s.db.Exec(
		"INSERT INTO contents (hash, parts, earliest, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		rec.Hash, string(parts), rec.Earliest, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("inserting %s: %w", rec.Hash, place.ErrDuplicateKey)
		}
		return fmt.Errorf("inserting %s: %w", rec.Hash, err)
	}
	return nil
}

func (s *SQLiteIndex) Update(rec *place.ContentRecord) error {
	parts, err := json.Marshal(rec.PathParts)
	if err != nil {
		return fmt.Errorf("encoding parts of %s: %w", rec.Hash, err)
	}
	res, err := s.db.Exec(
		"UPDATE contents SET parts = ?, earliest = ?, updated_at = ? WHERE hash = ?",
		string(parts), rec.Earliest, s.clock.Now().Unix(), rec.Hash,
	)
	if err != nil {
		return fmt.Errorf("updating %s: %w", rec.Hash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating %s: %w", rec.Hash, err)
	}
	if n == 0 {
		return fmt.Errorf("updating %s: %w", rec.Hash, place.ErrNotFound)
	}
	return nil
}

// Count returns the number of content records.
func (s *SQLiteIndex) Count() (int64, error) {
	var n int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM contents").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting contents: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// Index metadata

// EnsureHashAlgorithm pins the index to one hash algorithm. The first call
// records name; later calls fail if name differs from the recorded one.
func (s *SQLiteIndex) EnsureHashAlgorithm(name string) error {
	var stored string
	err := s.db.QueryRow("SELECT value FROM index_meta WHERE key = ?", metaHashAlgorithm).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec("INSERT INTO index_meta (key, value) VALUES (?, ?)", metaHashAlgorithm, name); err != nil {
			return fmt.Errorf("recording hash algorithm: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("reading hash algorithm: %w", err)
	}
	if stored != name {
		return fmt.Errorf("index was built with hash %q, configured hash is %q", stored, name)
	}
	return nil
}

// Runs

// CreateRun records the start of a pipeline run.
func (s *SQLiteIndex) CreateRun(runID, input, output string, dryRun bool) (*Run, error) {
	started := s.clock.Now().UTC().Truncate(time.Second)
	res, err := s.db.Exec(
		"INSERT INTO runs (run_id, input, output, dry_run, status, started_at) VALUES (?, ?, ?, ?, ?, ?)",
		runID, input, output, dryRun, RunStatusRunning, started.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	return &Run{
		ID:        id,
		RunID:     runID,
		Input:     input,
		Output:    output,
		DryRun:    dryRun,
		Status:    RunStatusRunning,
		StartedAt: started,
	}, nil
}

// FinishRun stores the final status and summary of a run.
func (s *SQLiteIndex) FinishRun(id int64, status, summary string) error {
	res, err := s.db.Exec(
		"UPDATE runs SET status = ?, summary = ?, finished_at = ? WHERE id = ?",
		status, summary, s.clock.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("finishing run %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing run %d: %w", id, place.ErrNotFound)
	}
	return nil
}

// ListRuns returns up to limit runs, most recent first.
func (s *SQLiteIndex) ListRuns(limit int) ([]*Run, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, input, output, dry_run, status, summary, started_at, finished_at
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var (
			r        Run
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Input, &r.Output, &r.DryRun, &r.Status, &r.Summary, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt = time.Unix(started, 0).UTC()
		if finished.Valid {
			t := time.Unix(finished.Int64, 0).UTC()
			r.FinishedAt = &t
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Maintenance

func (s *SQLiteIndex) Path() string {
	return s.path
}

// CheckMigrations reports whether the schema matches this binary.
func (s *SQLiteIndex) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

// BackupTo writes a consistent copy of the index to destPath using VACUUM INTO.
// destPath must not exist.
func (s *SQLiteIndex) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up index: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ place.Index = (*SQLiteIndex)(nil)
