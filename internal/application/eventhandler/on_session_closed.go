// Package eventhandler contains reactions to committed domain events.
// Handlers run after the producing transaction; their failures never
// change what the caller of that transaction was told.
package eventhandler

import (
	"github.com/sio4242/Godsaeng-project/internal/domain/shared"
	"github.com/sio4242/Godsaeng-project/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON SESSION CLOSED HANDLER
// Records committed closures and level-ups in the activity log.
// ═══════════════════════════════════════════════════════════════════════════

// OnSessionClosedHandler reacts to study.session_closed and progression.level_up.
type OnSessionClosedHandler struct {
	log *logger.Logger
}

// NewOnSessionClosedHandler creates the handler.
func NewOnSessionClosedHandler(log *logger.Logger) *OnSessionClosedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnSessionClosedHandler{
		log: log.With(logger.Component("on_session_closed")),
	}
}

// Register subscribes the handler to the events it consumes.
func (h *OnSessionClosedHandler) Register(bus shared.EventSubscriber) error {
	if err := bus.Subscribe(shared.EventSessionClosed, h.HandleSessionClosed); err != nil {
		return err
	}
	return bus.Subscribe(shared.EventLevelUp, h.HandleLevelUp)
}

// HandleSessionClosed logs the closure with its award.
func (h *OnSessionClosedHandler) HandleSessionClosed(event shared.Event) error {
	closed, ok := event.(shared.SessionClosedEvent)
	if !ok {
		h.log.Warn("unexpected event", logger.String("event_type", string(event.EventType())))
		return nil
	}

	fields := []logger.Field{
		logger.UserID(closed.UserID),
		logger.SessionID(closed.AggregateID()),
		logger.DurationSeconds(closed.DurationSeconds),
		logger.ExpAmount(closed.ExpAwarded),
	}
	if closed.LedgerTouched {
		fields = append(fields, logger.CharacterLevel(closed.Level))
	}
	if id := closed.CorrelationID; id != "" {
		fields = append(fields, logger.RequestID(id))
	}
	h.log.Debug("session closed", fields...)
	return nil
}

// HandleLevelUp logs the level transition.
func (h *OnSessionClosedHandler) HandleLevelUp(event shared.Event) error {
	up, ok := event.(shared.LevelUpEvent)
	if !ok {
		return nil
	}

	h.log.Info("level up",
		logger.UserID(up.AggregateID()),
		logger.Int("old_level", up.OldLevel),
		logger.CharacterLevel(up.NewLevel),
		logger.Int("levels_gained", up.NewLevel-up.OldLevel),
	)
	return nil
}
