package study

import (
	"context"

	"github.com/sio4242/Godsaeng-project/internal/domain/progression"
)

// Repository defines the non-transactional session operations.
// This interface is implemented by the infrastructure layer.
type Repository interface {
	// CreateSession persists a new open session.
	CreateSession(ctx context.Context, session *Session) error

	// ListSessions returns the sessions of a user, newest first.
	ListSessions(ctx context.Context, userID string, limit int) ([]*Session, error)
}

// UnitOfWork runs fn inside a single storage transaction.
// The transaction commits only if fn returns nil; any error, panic or
// context cancellation rolls it back in full before WithinTx returns.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional view used to close a session.
// Rows read through the Lock/Find methods stay locked until the
// transaction ends, so concurrent closes on the same session or the same
// ledger serialize at the storage layer.
type Tx interface {
	// FindOpenSession returns the session only if it belongs to userID and
	// is still open. Returns shared.ErrSessionNotFound otherwise.
	FindOpenSession(ctx context.Context, userID string, id SessionID) (*Session, error)

	// CloseSession writes the end timestamp and duration of an open session.
	// Returns shared.ErrSessionNotFound if the row is no longer open.
	CloseSession(ctx context.Context, session *Session) error

	// LockLedger returns the user's ledger, locked for update.
	// Returns shared.ErrLedgerMissing if the ledger does not exist.
	LockLedger(ctx context.Context, userID string) (*progression.Ledger, error)

	// SaveLedger writes level and experience of a locked ledger.
	SaveLedger(ctx context.Context, ledger *progression.Ledger) error
}
