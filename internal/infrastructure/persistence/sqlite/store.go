// Package sqlite implements the study and progression ports on a single
// SQLite file. It serves single-node deployments and integration tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sio4242/Godsaeng-project/internal/domain/progression"
	"github.com/sio4242/Godsaeng-project/internal/domain/shared"
	"github.com/sio4242/Godsaeng-project/internal/domain/study"
)

// Store implements study.Repository, study.UnitOfWork and progression.Repository.
//
// The pool holds one connection, so units of work run strictly one after
// another; this stands in for the row locks the PostgreSQL store takes.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the database file at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create data directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_txlock=immediate"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// SQLite doesn't support multiple writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: apply schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS progression_ledgers (
		user_id TEXT PRIMARY KEY,
		level INTEGER NOT NULL DEFAULT 1 CHECK (level >= 1),
		exp INTEGER NOT NULL DEFAULT 0 CHECK (exp >= 0),
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS study_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		duration_seconds INTEGER,
		CHECK ((ended_at IS NULL) = (duration_seconds IS NULL)),
		CHECK (duration_seconds IS NULL OR duration_seconds >= 5)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_study_sessions_user_started
		ON study_sessions (user_id, started_at DESC)`,
}

// ─────────────────────────────────────────────────────────────────────────────
// Rows
// ─────────────────────────────────────────────────────────────────────────────

// Timestamps are stored as unix nanoseconds.
type sessionRow struct {
	ID              string        `db:"id"`
	UserID          string        `db:"user_id"`
	StartedAt       int64         `db:"started_at"`
	EndedAt         sql.NullInt64 `db:"ended_at"`
	DurationSeconds sql.NullInt64 `db:"duration_seconds"`
}

func (r sessionRow) toDomain() *study.Session {
	s := &study.Session{
		ID:        study.SessionID(r.ID),
		UserID:    r.UserID,
		StartedAt: time.Unix(0, r.StartedAt).UTC(),
	}
	if r.EndedAt.Valid {
		t := time.Unix(0, r.EndedAt.Int64).UTC()
		s.EndedAt = &t
	}
	if r.DurationSeconds.Valid {
		d := r.DurationSeconds.Int64
		s.DurationSeconds = &d
	}
	return s
}

type ledgerRow struct {
	UserID    string `db:"user_id"`
	Level     int    `db:"level"`
	Exp       int    `db:"exp"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r ledgerRow) toDomain() *progression.Ledger {
	return &progression.Ledger{
		UserID:    r.UserID,
		Level:     progression.Level(r.Level),
		Exp:       progression.Exp(r.Exp),
		UpdatedAt: time.Unix(0, r.UpdatedAt).UTC(),
	}
}

const (
	selectSession = `SELECT id, user_id, started_at, ended_at, duration_seconds FROM study_sessions`
	selectLedger  = `SELECT user_id, level, exp, updated_at FROM progression_ledgers`
)

// ─────────────────────────────────────────────────────────────────────────────
// study.Repository
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, sess *study.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO study_sessions (id, user_id, started_at) VALUES (?, ?, ?)`,
		sess.ID.String(), sess.UserID, sess.StartedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.WrapError("study", "CreateSession", shared.ErrAlreadyExists, "session id already used", err)
		}
		return shared.StorageFailure("study", "CreateSession", err)
	}
	return nil
}

func (s *Store) ListSessions(ctx context.Context, userID string, limit int) ([]*study.Session, error) {
	var rows []sessionRow
	err := s.db.SelectContext(ctx, &rows,
		selectSession+` WHERE user_id = ? ORDER BY started_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, shared.StorageFailure("study", "ListSessions", err)
	}

	sessions := make([]*study.Session, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, r.toDomain())
	}
	return sessions, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// progression.Repository
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) GetLedger(ctx context.Context, userID string) (*progression.Ledger, error) {
	var row ledgerRow
	if err := s.db.GetContext(ctx, &row, selectLedger+` WHERE user_id = ?`, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrLedgerMissing
		}
		return nil, shared.StorageFailure("progression", "GetLedger", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ProvisionLedger(ctx context.Context, userID string, at time.Time) (*progression.Ledger, bool, error) {
	fresh, err := progression.NewLedger(userID, at)
	if err != nil {
		return nil, false, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO progression_ledgers (user_id, level, exp, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		fresh.UserID, int(fresh.Level), int(fresh.Exp), at.UnixNano(), at.UnixNano(),
	)
	if err != nil {
		return nil, false, shared.StorageFailure("progression", "ProvisionLedger", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, shared.StorageFailure("progression", "ProvisionLedger", err)
	}
	if n == 1 {
		fresh.UpdatedAt = time.Unix(0, at.UnixNano()).UTC()
		return fresh, true, nil
	}

	existing, err := s.GetLedger(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// study.UnitOfWork
// ─────────────────────────────────────────────────────────────────────────────

// WithinTx runs fn in an IMMEDIATE transaction. Errors returned by fn pass
// through unchanged; failures to begin or commit are storage failures.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx study.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return shared.StorageFailure("study", "WithinTx", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &storeTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return shared.StorageFailure("study", "WithinTx", err)
	}
	return nil
}

type storeTx struct {
	tx *sqlx.Tx
}

func (t *storeTx) FindOpenSession(ctx context.Context, userID string, id study.SessionID) (*study.Session, error) {
	var row sessionRow
	err := t.tx.GetContext(ctx, &row,
		selectSession+` WHERE id = ? AND user_id = ? AND ended_at IS NULL`,
		id.String(), userID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrSessionNotFound
		}
		return nil, shared.StorageFailure("study", "FindOpenSession", err)
	}
	return row.toDomain(), nil
}

func (t *storeTx) CloseSession(ctx context.Context, sess *study.Session) error {
	if sess.EndedAt == nil || sess.DurationSeconds == nil {
		return shared.ErrInvalidSession
	}

	res, err := t.tx.ExecContext(ctx,
		`UPDATE study_sessions SET ended_at = ?, duration_seconds = ?
		 WHERE id = ? AND user_id = ? AND ended_at IS NULL`,
		sess.EndedAt.UnixNano(), *sess.DurationSeconds, sess.ID.String(), sess.UserID,
	)
	if err != nil {
		return shared.StorageFailure("study", "CloseSession", err)
	}
	return expectOneRow(res, "study", "CloseSession", shared.ErrSessionNotFound)
}

func (t *storeTx) LockLedger(ctx context.Context, userID string) (*progression.Ledger, error) {
	var row ledgerRow
	if err := t.tx.GetContext(ctx, &row, selectLedger+` WHERE user_id = ?`, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrLedgerMissing
		}
		return nil, shared.StorageFailure("progression", "LockLedger", err)
	}
	return row.toDomain(), nil
}

func (t *storeTx) SaveLedger(ctx context.Context, l *progression.Ledger) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE progression_ledgers SET level = ?, exp = ?, updated_at = ? WHERE user_id = ?`,
		int(l.Level), int(l.Exp), l.UpdatedAt.UnixNano(), l.UserID,
	)
	if err != nil {
		return shared.StorageFailure("progression", "SaveLedger", err)
	}
	return expectOneRow(res, "progression", "SaveLedger", shared.ErrLedgerMissing)
}

// expectOneRow returns missing when the statement matched no row, and a
// storage failure when the driver cannot say.
func expectOneRow(res sql.Result, domain, op string, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return shared.StorageFailure(domain, op, err)
	}
	if n != 1 {
		return missing
	}
	return nil
}

// isUniqueViolation reports a PRIMARY KEY or UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlitedriver.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
