// Package store keeps a history of verification runs in SQLite, keyed by
// the digest of the record file that was checked.
package store

import (
	"crypto/sha256"
	"database/sql"
	"errors"
	"io"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3" // Import go-sqlite3 library

	"github.com/thechriswalker/egverify/verifier"
)

// ErrRunMissing is returned from Latest when a record was never verified
var ErrRunMissing = errors.New("Run Not Found")

// Run is one stored verification of a record.
type Run struct {
	ID           int64
	RecordDigest []byte
	Path         string
	At           time.Time
	Verdict      verifier.Verdict
	State        verifier.State
	Elapsed      time.Duration
	Diagnostics  []verifier.Diagnostic
}

// FromResult describes res as a run of the record at path with digest.
func FromResult(digest []byte, path string, res *verifier.Result) *Run {
	return &Run{
		RecordDigest: digest,
		Path:         path,
		At:           time.Now(),
		Verdict:      res.Verdict,
		State:        res.State,
		Elapsed:      res.Stats.Elapsed,
		Diagnostics:  res.Diagnostics,
	}
}

// Digest is the SHA-256 of the file at path.
func Digest(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// SQLiteStorage is backed by SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (creating if needed) the history at path
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	for _, ddl := range []string{`
		CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			record_digest BLOB NOT NULL,     -- sha256 of the record file
			path TEXT NOT NULL,
			epoch_seconds INTEGER NOT NULL,  -- unix timestamp in seconds
			verdict INTEGER NOT NULL,
			state INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL
		);`, `
		CREATE INDEX IF NOT EXISTS runs_by_digest ON runs (record_digest, epoch_seconds);`, `
		CREATE TABLE IF NOT EXISTS diagnostics (
			run_id INTEGER NOT NULL REFERENCES runs (id),
			seq INTEGER NOT NULL,            -- position in the sorted result
			stage INTEGER NOT NULL,
			kind INTEGER NOT NULL,
			path TEXT NOT NULL,
			message TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		);`,
	} {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Save writes the run and its diagnostics, returning the new run id.
func (s *SQLiteStorage) Save(r *Run) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	// no-op after a successful commit
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO runs (record_digest, path, epoch_seconds, verdict, state, elapsed_ms)
		          VALUES (?,             ?,    ?,             ?,       ?,     ?);
	`,
		r.RecordDigest,
		r.Path,
		r.At.Unix(),
		int(r.Verdict),
		int(r.State),
		r.Elapsed.Milliseconds(),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO diagnostics (run_id, seq, stage, kind, path, message)
		                 VALUES (?,      ?,   ?,     ?,    ?,    ?);
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for i, d := range r.Diagnostics {
		if _, err := stmt.Exec(id, i, int(d.Stage), int(d.Kind), d.Path, d.Message); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	r.ID = id
	return id, nil
}

// Runs returns up to limit runs for the record digest, newest first.
// limit <= 0 means all of them.
func (s *SQLiteStorage) Runs(digest []byte, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT id, record_digest, path, epoch_seconds, verdict, state, elapsed_ms
		FROM runs
		WHERE record_digest = ?
		ORDER BY epoch_seconds DESC, id DESC
		LIMIT ?
	`, digest, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r := &Run{}
		var epoch, elapsed int64
		var verdict, state int
		if err := rows.Scan(&r.ID, &r.RecordDigest, &r.Path, &epoch, &verdict, &state, &elapsed); err != nil {
			return nil, err
		}
		r.At = time.Unix(epoch, 0)
		r.Verdict = verifier.Verdict(verdict)
		r.State = verifier.State(state)
		r.Elapsed = time.Duration(elapsed) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, r := range runs {
		if r.Diagnostics, err = s.diagnostics(r.ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// Latest is the most recent run for the digest.
func (s *SQLiteStorage) Latest(digest []byte) (*Run, error) {
	runs, err := s.Runs(digest, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrRunMissing
	}
	return runs[0], nil
}

func (s *SQLiteStorage) diagnostics(runID int64) ([]verifier.Diagnostic, error) {
	rows, err := s.db.Query(`
		SELECT stage, kind, path, message FROM diagnostics WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []verifier.Diagnostic
	for rows.Next() {
		var d verifier.Diagnostic
		var stage, kind int
		if err := rows.Scan(&stage, &kind, &d.Path, &d.Message); err != nil {
			return nil, err
		}
		d.Stage, d.Kind = verifier.Stage(stage), verifier.Kind(kind)
		out = append(out, d)
	}
	return out, rows.Err()
}
