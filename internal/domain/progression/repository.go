package progression

import (
	"context"
	"time"
)

// Repository defines read access and provisioning for ledgers.
// Writes caused by study sessions go through study.UnitOfWork instead.
type Repository interface {
	// GetLedger returns the ledger of a user.
	// Returns shared.ErrLedgerMissing if the ledger was never provisioned.
	GetLedger(ctx context.Context, userID string) (*Ledger, error)

	// ProvisionLedger inserts the starting ledger if absent.
	// The bool reports whether a new row was created.
	ProvisionLedger(ctx context.Context, userID string, at time.Time) (*Ledger, bool, error)
}

// Cache keeps hot ledger snapshots close to the API.
// Implementations must treat a miss as (nil, false, nil).
//
// Every Invalidate advances the user's generation. A read-through reads the
// generation before it reads the ledger and hands it to Set, which drops
// the write if the user was invalidated in between.
type Cache interface {
	Get(ctx context.Context, userID string) (*Snapshot, bool, error)
	Generation(ctx context.Context, userID string) (int64, error)
	Set(ctx context.Context, snapshot Snapshot, generation int64) error
	Invalidate(ctx context.Context, userID string) error
}
