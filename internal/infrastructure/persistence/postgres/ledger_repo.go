package postgres

import (
	"context"
	"time"

	"github.com/sio4242/Godsaeng-project/internal/domain/progression"
	"github.com/sio4242/Godsaeng-project/internal/domain/shared"
)

// LedgerRepository implements progression.Repository for PostgreSQL.
type LedgerRepository struct {
	conn *Connection
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	return &LedgerRepository{conn: conn}
}

// GetLedger returns the ledger without locking it.
func (r *LedgerRepository) GetLedger(ctx context.Context, userID string) (*progression.Ledger, error) {
	query := `
		SELECT user_id, level, exp, updated_at
		FROM progression_ledgers
		WHERE user_id = $1
	`

	l, err := scanLedger(r.conn.QueryRow(ctx, query, userID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrLedgerMissing
		}
		return nil, shared.StorageFailure("progression", "GetLedger", err)
	}
	return l, nil
}

// ProvisionLedger inserts (level 1, exp 0) unless the user already has a ledger.
func (r *LedgerRepository) ProvisionLedger(ctx context.Context, userID string, at time.Time) (*progression.Ledger, bool, error) {
	fresh, err := progression.NewLedger(userID, at)
	if err != nil {
		return nil, false, err
	}

	query := `
		INSERT INTO progression_ledgers (user_id, level, exp, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id) DO NOTHING
	`

	tag, err := r.conn.Exec(ctx, query, fresh.UserID, int(fresh.Level), int(fresh.Exp), fresh.UpdatedAt.UTC())
	if err != nil {
		return nil, false, shared.StorageFailure("progression", "ProvisionLedger", err)
	}
	if tag.RowsAffected() == 1 {
		return fresh, true, nil
	}

	existing, err := r.GetLedger(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}
