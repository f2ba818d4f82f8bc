package query

import (
	"context"
	"strings"
	"time"

	"github.com/sio4242/Godsaeng-project/internal/domain/shared"
	"github.com/sio4242/Godsaeng-project/internal/domain/study"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST SESSIONS QUERY
// Study log of a user, newest first, open sessions included.
// ══════════════════════════════════════════════════════════════════════════════

const (
	DefaultSessionLimit = 20
	MaxSessionLimit     = 100
)

// ListSessionsQuery contains the list parameters.
type ListSessionsQuery struct {
	UserID string

	// Limit defaults to 20 and is capped at 100.
	Limit int
}

// Validate checks the query and normalizes the limit.
func (q *ListSessionsQuery) Validate() error {
	if strings.TrimSpace(q.UserID) == "" {
		return shared.ErrInvalidUserID
	}
	if q.Limit < 0 {
		return shared.NewDomainError("study", "ListSessions", shared.ErrInvalidInput, "limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = DefaultSessionLimit
	}
	if q.Limit > MaxSessionLimit {
		q.Limit = MaxSessionLimit
	}
	return nil
}

// SessionDTO is a read model of one study session.
type SessionDTO struct {
	ID              string     `json:"sessionId"`
	StartedAt       time.Time  `json:"startedAt"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	DurationSeconds *int64     `json:"durationSeconds,omitempty"`
	Status          string     `json:"status"`
}

// ListSessionsHandler handles ListSessionsQuery.
type ListSessionsHandler struct {
	repo study.Repository
}

// NewListSessionsHandler creates a new ListSessionsHandler.
func NewListSessionsHandler(repo study.Repository) *ListSessionsHandler {
	return &ListSessionsHandler{repo: repo}
}

// Handle returns the user's sessions.
func (h *ListSessionsHandler) Handle(ctx context.Context, q ListSessionsQuery) ([]SessionDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	sessions, err := h.repo.ListSessions(ctx, q.UserID, q.Limit)
	if err != nil {
		return nil, shared.StorageFailure("study", "ListSessions", err)
	}

	out := make([]SessionDTO, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionDTO{
			ID:              s.ID.String(),
			StartedAt:       s.StartedAt,
			EndedAt:         s.EndedAt,
			DurationSeconds: s.DurationSeconds,
			Status:          string(s.Status()),
		})
	}
	return out, nil
}
