package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sio4242/Godsaeng-project/internal/domain/progression"
	"github.com/sio4242/Godsaeng-project/internal/domain/shared"
	"github.com/sio4242/Godsaeng-project/internal/domain/study"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDY REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudyRepository implements study.Repository and study.UnitOfWork.
type StudyRepository struct {
	conn   *Connection
	txOpts TxOptions
}

// NewStudyRepository creates a new StudyRepository.
// Every unit of work waits at most conn's LockTimeout for row locks.
func NewStudyRepository(conn *Connection) *StudyRepository {
	opts := DefaultTxOptions()
	opts.LockTimeout = conn.config.LockTimeout
	return &StudyRepository{conn: conn, txOpts: opts}
}

const sessionColumns = `id, user_id, started_at, ended_at, duration_seconds`

// CreateSession inserts a new open session.
func (r *StudyRepository) CreateSession(ctx context.Context, s *study.Session) error {
	query := `
		INSERT INTO study_sessions (id, user_id, started_at)
		VALUES ($1, $2, $3)
	`

	if _, err := r.conn.Exec(ctx, query, s.ID.String(), s.UserID, s.StartedAt.UTC()); err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("study", "CreateSession", shared.ErrAlreadyExists, "session id already used", err)
		}
		return shared.StorageFailure("study", "CreateSession", err)
	}
	return nil
}

// ListSessions returns a user's sessions, newest first.
func (r *StudyRepository) ListSessions(ctx context.Context, userID string, limit int) ([]*study.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM study_sessions
		WHERE user_id = $1
		ORDER BY started_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, shared.StorageFailure("study", "ListSessions", err)
	}
	defer rows.Close()

	sessions := make([]*study.Session, 0, limit)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, shared.StorageFailure("study", "ListSessions", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StorageFailure("study", "ListSessions", err)
	}
	return sessions, nil
}

// WithinTx runs fn in a READ COMMITTED transaction with a bounded lock wait.
// Errors returned by fn pass through unchanged; failures to begin or
// commit are reported as storage failures.
func (r *StudyRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx study.Tx) error) error {
	var fnErr error
	err := r.conn.WithTx(ctx, r.txOpts, func(tx pgx.Tx) error {
		fnErr = fn(ctx, &studyTx{tx: tx})
		return fnErr
	})
	if err == nil {
		return nil
	}
	if fnErr != nil {
		return fnErr
	}
	return shared.StorageFailure("study", "WithinTx", err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Transactional view
// ─────────────────────────────────────────────────────────────────────────────

type studyTx struct {
	tx pgx.Tx
}

// FindOpenSession locks the session row. A concurrent closer blocks here,
// then sees ended_at set and finds no row.
func (t *studyTx) FindOpenSession(ctx context.Context, userID string, id study.SessionID) (*study.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM study_sessions
		WHERE id = $1 AND user_id = $2 AND ended_at IS NULL
		FOR UPDATE
	`

	s, err := scanSession(t.tx.QueryRow(ctx, query, id.String(), userID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSessionNotFound
		}
		return nil, txFailure("study", "FindOpenSession", err)
	}
	return s, nil
}

func (t *studyTx) CloseSession(ctx context.Context, s *study.Session) error {
	if s.EndedAt == nil || s.DurationSeconds == nil {
		return shared.ErrInvalidSession
	}

	query := `
		UPDATE study_sessions
		SET ended_at = $3, duration_seconds = $4
		WHERE id = $1 AND user_id = $2 AND ended_at IS NULL
	`

	tag, err := t.tx.Exec(ctx, query, s.ID.String(), s.UserID, s.EndedAt.UTC(), *s.DurationSeconds)
	if err != nil {
		return txFailure("study", "CloseSession", err)
	}
	if tag.RowsAffected() != 1 {
		return shared.ErrSessionNotFound
	}
	return nil
}

func (t *studyTx) LockLedger(ctx context.Context, userID string) (*progression.Ledger, error) {
	query := `
		SELECT user_id, level, exp, updated_at
		FROM progression_ledgers
		WHERE user_id = $1
		FOR UPDATE
	`

	l, err := scanLedger(t.tx.QueryRow(ctx, query, userID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrLedgerMissing
		}
		return nil, txFailure("progression", "LockLedger", err)
	}
	return l, nil
}

func (t *studyTx) SaveLedger(ctx context.Context, l *progression.Ledger) error {
	query := `
		UPDATE progression_ledgers
		SET level = $2, exp = $3, updated_at = $4
		WHERE user_id = $1
	`

	tag, err := t.tx.Exec(ctx, query, l.UserID, int(l.Level), int(l.Exp), l.UpdatedAt.UTC())
	if err != nil {
		return txFailure("progression", "SaveLedger", err)
	}
	if tag.RowsAffected() != 1 {
		return shared.ErrLedgerMissing
	}
	return nil
}

// txFailure tags contention errors (see IsContention) so logs can tell
// them apart from outages. Both are storage failures to callers.
func txFailure(domain, op string, err error) error {
	if IsContention(err) {
		return shared.WrapError(domain, op, shared.ErrStorageFailure, "contention with a concurrent close", err)
	}
	return shared.StorageFailure(domain, op, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanSession(row pgx.Row) (*study.Session, error) {
	var (
		id        string
		s         study.Session
		endedAt   *time.Time
		durationS *int64
	)
	if err := row.Scan(&id, &s.UserID, &s.StartedAt, &endedAt, &durationS); err != nil {
		return nil, err
	}

	s.ID = study.SessionID(id)
	s.StartedAt = s.StartedAt.UTC()
	if endedAt != nil {
		t := endedAt.UTC()
		s.EndedAt = &t
	}
	s.DurationSeconds = durationS
	return &s, nil
}

func scanLedger(row pgx.Row) (*progression.Ledger, error) {
	var (
		l     progression.Ledger
		level int
		exp   int
	)
	if err := row.Scan(&l.UserID, &level, &exp, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.Level = progression.Level(level)
	l.Exp = progression.Exp(exp)
	l.UpdatedAt = l.UpdatedAt.UTC()
	return &l, nil
}
