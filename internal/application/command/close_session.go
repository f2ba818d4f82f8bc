package command

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/sio4242/Godsaeng-project/internal/domain/progression"
	"github.com/sio4242/Godsaeng-project/internal/domain/shared"
	"github.com/sio4242/Godsaeng-project/internal/domain/study"
	"github.com/sio4242/Godsaeng-project/pkg/circuitbreaker"
	"github.com/sio4242/Godsaeng-project/pkg/logger"
	"github.com/sio4242/Godsaeng-project/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLOSE SESSION COMMAND
// Ends an open session and converts its duration into experience.
// The session update and the ledger update commit together or not at all.
// ══════════════════════════════════════════════════════════════════════════════

// ClosureOutcome tells a caller what a close attempt did.
type ClosureOutcome string

const (
	// OutcomeClosed means the session is now closed.
	OutcomeClosed ClosureOutcome = "closed"

	// OutcomeBelowThreshold means the session was too short and nothing changed.
	// The session stays open.
	OutcomeBelowThreshold ClosureOutcome = "below_threshold"
)

// CloseSessionCommand contains the data to close a session.
type CloseSessionCommand struct {
	UserID    string
	SessionID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c CloseSessionCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return shared.ErrInvalidUserID
	}
	if !study.SessionID(c.SessionID).IsValid() {
		return shared.ErrInvalidSession
	}
	return nil
}

// CloseSessionResult describes a close attempt.
type CloseSessionResult struct {
	Outcome   ClosureOutcome
	SessionID study.SessionID

	// DurationSeconds is zero for OutcomeBelowThreshold.
	DurationSeconds int64

	ExpAwarded progression.Exp

	// Progression is the committed ledger state. It is nil when the award
	// was zero, in which case the ledger was never read.
	Progression *progression.Snapshot

	// PreviousLevel is the level before the award; set with Progression.
	PreviousLevel progression.Level

	LevelUpOccurred bool

	// ClosedAt is the end timestamp stored on the session.
	ClosedAt time.Time
}

// DurationMinutes is the stored duration in minutes, rounded to two decimals.
func (r *CloseSessionResult) DurationMinutes() float64 {
	return math.Round(float64(r.DurationSeconds)/60*100) / 100
}

// errBelowThreshold aborts the unit of work so nothing is written.
var errBelowThreshold = errors.New("close_session: below noise floor")

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CloseSessionHandler is the session lifecycle coordinator.
type CloseSessionHandler struct {
	uow            study.UnitOfWork
	resolver       progression.Resolver
	eventPublisher shared.EventPublisher
	log            *logger.Logger
	clock          func() time.Time
	txTimeout      time.Duration
	cache          progression.Cache
	retrier        *retry.Retrier
}

// CloseSessionHandlerConfig contains configuration for the handler.
type CloseSessionHandlerConfig struct {
	// Requirement maps a level to the exp needed to leave it.
	// Nil uses the fixed 100 per level.
	Requirement progression.Requirement

	// TxTimeout bounds the whole unit of work. Zero means no extra bound.
	TxTimeout time.Duration

	// Clock supplies the end timestamp. Nil uses time.Now in UTC.
	Clock func() time.Time

	// Cache is invalidated after every commit that changed a ledger,
	// before Handle returns. May be nil.
	Cache progression.Cache
}

// invalidateTimeout bounds the post-commit cache invalidation, retries included.
const invalidateTimeout = 2 * time.Second

// NewCloseSessionHandler creates a new CloseSessionHandler.
// eventPublisher may be nil.
func NewCloseSessionHandler(
	uow study.UnitOfWork,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
	config CloseSessionHandlerConfig,
) *CloseSessionHandler {
	if log == nil {
		log = logger.Nop()
	}
	clock := config.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &CloseSessionHandler{
		uow:            uow,
		resolver:       progression.NewResolver(config.Requirement),
		eventPublisher: eventPublisher,
		log:            log.With(logger.Component("close_session")),
		clock:          clock,
		txTimeout:      config.TxTimeout,
		cache:          config.Cache,
		retrier: retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(50*time.Millisecond),
			retry.WithMaxDelay(500*time.Millisecond),
			retry.WithRetryIf(func(err error) bool { return !circuitbreaker.IsRejected(err) }),
		),
	}
}

// Handle closes the session and awards experience in one transaction.
//
// Errors: shared.ErrSessionNotFound when no open session of the user has
// that id, shared.ErrLedgerMissing when experience is due but the user has
// no ledger, and a shared.ErrStorageFailure kind for everything the storage
// layer reports. On any error nothing was written.
func (h *CloseSessionHandler) Handle(ctx context.Context, cmd CloseSessionCommand) (*CloseSessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if h.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.txTimeout)
		defer cancel()
	}

	log := h.log.With(logger.UserID(cmd.UserID), logger.SessionID(cmd.SessionID))
	if cmd.CorrelationID != "" {
		log = log.With(logger.RequestID(cmd.CorrelationID))
	}
	id := study.SessionID(cmd.SessionID)

	var result *CloseSessionResult
	err := h.uow.WithinTx(ctx, func(ctx context.Context, tx study.Tx) error {
		result = nil

		session, err := tx.FindOpenSession(ctx, cmd.UserID, id)
		if err != nil {
			return err
		}

		endedAt := h.clock()
		m := study.MeasureDuration(session.StartedAt, endedAt)
		if m.BelowThreshold {
			result = &CloseSessionResult{Outcome: OutcomeBelowThreshold, SessionID: id}
			return errBelowThreshold
		}

		res := &CloseSessionResult{
			Outcome:         OutcomeClosed,
			SessionID:       id,
			DurationSeconds: m.Seconds,
			ExpAwarded:      progression.ExperienceFor(m.Seconds),
			ClosedAt:        endedAt,
		}

		if res.ExpAwarded > 0 {
			ledger, err := tx.LockLedger(ctx, cmd.UserID)
			if err != nil {
				return err
			}

			res.PreviousLevel = ledger.Level
			leveledUp, err := ledger.Award(h.resolver, res.ExpAwarded, endedAt)
			if err != nil {
				return err
			}
			if err := tx.SaveLedger(ctx, ledger); err != nil {
				return err
			}

			snapshot := ledger.Snapshot(h.resolver)
			res.Progression = &snapshot
			res.LevelUpOccurred = leveledUp
		}

		if err := session.Close(endedAt, m.Seconds); err != nil {
			return err
		}
		if err := tx.CloseSession(ctx, session); err != nil {
			return err
		}

		result = res
		return nil
	})

	switch {
	case errors.Is(err, errBelowThreshold):
		log.Debug("close ignored below noise floor")
		return result, nil
	case err != nil:
		err = shared.StorageFailure("study", "CloseSession", err)
		if shared.IsStorageFailure(err) {
			log.Error("failed to close session", logger.Err(err))
		} else {
			log.Info("close rejected", logger.Err(err))
		}
		return nil, err
	}

	fields := []logger.Field{
		logger.DurationSeconds(result.DurationSeconds),
		logger.ExpAmount(int(result.ExpAwarded)),
	}
	if result.Progression != nil {
		fields = append(fields, logger.CharacterLevel(result.Progression.Level))
	}
	log.Info("session closed", fields...)

	h.invalidate(ctx, cmd.UserID, result, log)
	h.publish(cmd, result, log)
	return result, nil
}

// invalidate drops the cached snapshot of a ledger the closure changed.
// The closure is committed either way, so failures are only logged; the
// entry then lives until its TTL.
func (h *CloseSessionHandler) invalidate(ctx context.Context, userID string, r *CloseSessionResult, log *logger.Logger) {
	if h.cache == nil || r.Progression == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()

	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		return h.cache.Invalidate(ctx, userID)
	})
	if err != nil {
		log.Warn("progression cache invalidation failed, snapshot may be stale", logger.Err(err))
	}
}

// publish emits events for a committed closure. Failures are only logged.
func (h *CloseSessionHandler) publish(cmd CloseSessionCommand, r *CloseSessionResult, log *logger.Logger) {
	if h.eventPublisher == nil {
		return
	}

	closed := shared.NewSessionClosedEvent(r.SessionID.String(), cmd.UserID, r.ClosedAt, r.DurationSeconds, int(r.ExpAwarded))
	if r.Progression != nil {
		closed = closed.WithLedger(r.Progression.Level, r.Progression.Exp)
	}
	events := []shared.Event{withCorrelation(closed, cmd.CorrelationID)}

	if r.LevelUpOccurred {
		up := shared.NewLevelUpEvent(cmd.UserID, int(r.PreviousLevel), r.Progression.Level, r.ClosedAt)
		events = append(events, withCorrelation(up, cmd.CorrelationID))
	}

	for _, event := range events {
		if err := h.eventPublisher.Publish(event); err != nil {
			log.Warn("failed to publish event",
				logger.String("event_type", string(event.EventType())),
				logger.Err(err),
			)
		}
	}
}

func withCorrelation(event shared.Event, id string) shared.Event {
	if id == "" {
		return event
	}
	switch e := event.(type) {
	case shared.SessionClosedEvent:
		e.BaseEvent = e.BaseEvent.WithCorrelationID(id)
		return e
	case shared.LevelUpEvent:
		e.BaseEvent = e.BaseEvent.WithCorrelationID(id)
		return e
	}
	return event
}
