// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sio4242/Godsaeng-project/internal/domain/shared"
	"github.com/sio4242/Godsaeng-project/internal/domain/study"
	"github.com/sio4242/Godsaeng-project/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// OPEN SESSION COMMAND
// Starts a timed study interval. Nothing else is touched until it is closed.
// ══════════════════════════════════════════════════════════════════════════════

// OpenSessionCommand contains the data to open a session.
type OpenSessionCommand struct {
	// UserID is the opaque identifier of the authenticated user.
	UserID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c OpenSessionCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return shared.ErrInvalidUserID
	}
	return nil
}

// OpenSessionResult contains the opened session.
type OpenSessionResult struct {
	SessionID study.SessionID
	StartedAt time.Time
}

// OpenSessionHandler handles the OpenSessionCommand.
type OpenSessionHandler struct {
	repo           study.Repository
	eventPublisher shared.EventPublisher
	log            *logger.Logger
	clock          func() time.Time
	newID          func() study.SessionID
}

// OpenSessionOption customizes an OpenSessionHandler.
type OpenSessionOption func(*OpenSessionHandler)

// WithOpenClock overrides the time source used for start timestamps.
func WithOpenClock(clock func() time.Time) OpenSessionOption {
	return func(h *OpenSessionHandler) { h.clock = clock }
}

// WithSessionIDs overrides session id generation.
func WithSessionIDs(gen func() study.SessionID) OpenSessionOption {
	return func(h *OpenSessionHandler) { h.newID = gen }
}

// NewOpenSessionHandler creates a new OpenSessionHandler.
// eventPublisher may be nil.
func NewOpenSessionHandler(
	repo study.Repository,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
	opts ...OpenSessionOption,
) *OpenSessionHandler {
	if log == nil {
		log = logger.Nop()
	}

	h := &OpenSessionHandler{
		repo:           repo,
		eventPublisher: eventPublisher,
		log:            log.With(logger.Component("open_session")),
		clock:          func() time.Time { return time.Now().UTC() },
		newID:          func() study.SessionID { return study.SessionID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle creates and persists a new open session.
func (h *OpenSessionHandler) Handle(ctx context.Context, cmd OpenSessionCommand) (*OpenSessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	session, err := study.NewSession(h.newID(), cmd.UserID, h.clock())
	if err != nil {
		return nil, err
	}

	if err := h.repo.CreateSession(ctx, session); err != nil {
		h.log.Error("failed to open session", logger.UserID(cmd.UserID), logger.Err(err))
		return nil, shared.StorageFailure("study", "OpenSession", err)
	}

	h.log.Info("session opened",
		logger.UserID(cmd.UserID),
		logger.SessionID(session.ID.String()),
	)

	if h.eventPublisher != nil {
		event := shared.NewSessionOpenedEvent(session.ID.String(), session.UserID, session.StartedAt)
		if cmd.CorrelationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		if err := h.eventPublisher.Publish(event); err != nil {
			h.log.Warn("failed to publish session opened", logger.Err(err))
		}
	}

	return &OpenSessionResult{
		SessionID: session.ID,
		StartedAt: session.StartedAt,
	}, nil
}
