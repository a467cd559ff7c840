// Package history keeps a record of every development compilation in SQLite
// and prunes old entries on a schedule.
package history

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	ferrors "git.home.luguber.info/inful/devbundle/internal/foundation/errors"
)

// Record is one finished compilation.
type Record struct {
	BuildID    uuid.UUID     `json:"build_id"`
	Hash       string        `json:"hash"`
	Succeeded  bool          `json:"succeeded"`
	Errors     int           `json:"errors"`
	Warnings   int           `json:"warnings"`
	Duration   time.Duration `json:"duration_ns"`
	FinishedAt time.Time     `json:"finished_at"`
	First      bool          `json:"first"`
}

// NewRecord returns a Record with a fresh build id.
func NewRecord() Record {
	return Record{BuildID: uuid.New()}
}

// Store persists compilation records.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, ferrors.StorageError("open sqlite database").WithCause(err).WithContext("path", dbPath).Build()
	}
	// Every pooled connection to ":memory:" would see its own database.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, ferrors.StorageError("initialize history schema").WithCause(err).WithContext("path", dbPath).Build()
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS compilations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL UNIQUE,
		hash TEXT NOT NULL,
		succeeded INTEGER NOT NULL,
		errors INTEGER NOT NULL,
		warnings INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		first INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_compilations_finished_at ON compilations(finished_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append inserts rec. A zero BuildID is replaced with a new one and a zero
// FinishedAt with the current time.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.BuildID == uuid.Nil {
		rec.BuildID = uuid.New()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO compilations (build_id, hash, succeeded, errors, warnings, duration_ns, finished_at, first)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.BuildID.String(), rec.Hash, boolInt(rec.Succeeded), rec.Errors, rec.Warnings,
		int64(rec.Duration), rec.FinishedAt.UnixNano(), boolInt(rec.First),
	)
	if err != nil {
		return ferrors.StorageError("insert compilation record").WithCause(err).WithContext("build_id", rec.BuildID.String()).Build()
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT build_id, hash, succeeded, errors, warnings, duration_ns, finished_at, first
		 FROM compilations ORDER BY finished_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, ferrors.StorageError("query compilation records").WithCause(err).Build()
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var (
			rec                      Record
			id                       string
			succeeded, first         int
			durationNS, finishedAtNS int64
		)
		if err := rows.Scan(&id, &rec.Hash, &succeeded, &rec.Errors, &rec.Warnings, &durationNS, &finishedAtNS, &first); err != nil {
			return nil, ferrors.StorageError("scan compilation record").WithCause(err).Build()
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, ferrors.StorageError("parse build id").WithCause(err).WithContext("build_id", id).Build()
		}
		rec.BuildID = parsed
		rec.Succeeded = succeeded != 0
		rec.First = first != 0
		rec.Duration = time.Duration(durationNS)
		rec.FinishedAt = time.Unix(0, finishedAtNS)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, ferrors.StorageError("iterate compilation records").WithCause(err).Build()
	}
	return out, nil
}

// Prune deletes records finished before olderThan and reports how many were removed.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM compilations WHERE finished_at < ?", olderThan.UnixNano())
	if err != nil {
		return 0, ferrors.StorageError("prune compilation records").WithCause(err).Build()
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, ferrors.StorageError("count pruned records").WithCause(err).Build()
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
