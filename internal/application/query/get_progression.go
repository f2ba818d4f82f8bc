// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"strings"

	"github.com/sio4242/Godsaeng-project/internal/domain/progression"
	"github.com/sio4242/Godsaeng-project/internal/domain/shared"
	"github.com/sio4242/Godsaeng-project/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESSION QUERY
// Returns the character view: level, exp and the exp needed to leave the level.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressionQuery identifies whose ledger to read.
type GetProgressionQuery struct {
	UserID string
}

// Validate validates the query.
func (q GetProgressionQuery) Validate() error {
	if strings.TrimSpace(q.UserID) == "" {
		return shared.ErrInvalidUserID
	}
	return nil
}

// GetProgressionHandler reads ledgers through an optional cache.
type GetProgressionHandler struct {
	repo     progression.Repository
	cache    progression.Cache
	resolver progression.Resolver
	log      *logger.Logger
}

// NewGetProgressionHandler creates a new GetProgressionHandler.
// cache may be nil, in which case every call reads the repository.
func NewGetProgressionHandler(
	repo progression.Repository,
	cache progression.Cache,
	requirement progression.Requirement,
	log *logger.Logger,
) *GetProgressionHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetProgressionHandler{
		repo:     repo,
		cache:    cache,
		resolver: progression.NewResolver(requirement),
		log:      log.With(logger.Component("get_progression")),
	}
}

// Handle returns the user's progression snapshot.
// Returns shared.ErrLedgerMissing if the user has no ledger.
// Cache errors degrade to a repository read.
func (h *GetProgressionHandler) Handle(ctx context.Context, q GetProgressionQuery) (*progression.Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var (
		generation int64
		repopulate bool
	)
	if h.cache != nil {
		snap, ok, err := h.cache.Get(ctx, q.UserID)
		switch {
		case err != nil:
			h.log.Warn("progression cache read failed", logger.UserID(q.UserID), logger.Err(err))
		case ok:
			return snap, nil
		default:
			// Read before the ledger so a close committing in between
			// voids the write below.
			generation, err = h.cache.Generation(ctx, q.UserID)
			if err != nil {
				h.log.Debug("progression cache generation unavailable", logger.UserID(q.UserID), logger.Err(err))
			} else {
				repopulate = true
			}
		}
	}

	ledger, err := h.repo.GetLedger(ctx, q.UserID)
	if err != nil {
		return nil, shared.StorageFailure("progression", "GetProgression", err)
	}

	snap := ledger.Snapshot(h.resolver)
	if repopulate {
		if err := h.cache.Set(ctx, snap, generation); err != nil {
			h.log.Warn("progression cache write failed", logger.UserID(q.UserID), logger.Err(err))
		}
	}
	return &snap, nil
}
