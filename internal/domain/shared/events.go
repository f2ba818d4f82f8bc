// Package shared contains common domain types, errors and events
// used across the study and progression packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. All of them are published after the producing
// unit of work has committed.
const (
	EventSessionOpened EventType = "study.session_opened"
	EventSessionClosed EventType = "study.session_closed"
	EventLevelUp       EventType = "progression.level_up"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Study Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionOpenedEvent is emitted when a user starts the stopwatch.
type SessionOpenedEvent struct {
	BaseEvent
	UserID    string    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
}

// Payload implements Event interface.
func (e SessionOpenedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"started_at": e.StartedAt,
	}
}

// NewSessionOpenedEvent creates a new SessionOpenedEvent.
func NewSessionOpenedEvent(sessionID, userID string, startedAt time.Time) SessionOpenedEvent {
	return SessionOpenedEvent{
		BaseEvent: NewBaseEvent(EventSessionOpened, sessionID, startedAt),
		UserID:    userID,
		StartedAt: startedAt,
	}
}

// SessionClosedEvent is emitted when a session transitions to closed.
// Level and Exp are only meaningful when LedgerTouched is true.
type SessionClosedEvent struct {
	BaseEvent
	UserID          string `json:"user_id"`
	DurationSeconds int64  `json:"duration_seconds"`
	ExpAwarded      int    `json:"exp_awarded"`
	LedgerTouched   bool   `json:"ledger_touched"`
	Level           int    `json:"level"`
	Exp             int    `json:"exp"`
}

// Payload implements Event interface.
func (e SessionClosedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":          e.UserID,
		"duration_seconds": e.DurationSeconds,
		"exp_awarded":      e.ExpAwarded,
		"ledger_touched":   e.LedgerTouched,
		"level":            e.Level,
		"exp":              e.Exp,
	}
}

// NewSessionClosedEvent creates a new SessionClosedEvent.
func NewSessionClosedEvent(sessionID, userID string, endedAt time.Time, durationSeconds int64, expAwarded int) SessionClosedEvent {
	return SessionClosedEvent{
		BaseEvent:       NewBaseEvent(EventSessionClosed, sessionID, endedAt),
		UserID:          userID,
		DurationSeconds: durationSeconds,
		ExpAwarded:      expAwarded,
	}
}

// WithLedger records the ledger state the closure committed.
func (e SessionClosedEvent) WithLedger(level, exp int) SessionClosedEvent {
	e.LedgerTouched = true
	e.Level = level
	e.Exp = exp
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progression Events
// ═══════════════════════════════════════════════════════════════════════════

// LevelUpEvent is emitted when an award rolls the ledger over one or more levels.
type LevelUpEvent struct {
	BaseEvent
	OldLevel int `json:"old_level"`
	NewLevel int `json:"new_level"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"old_level":     e.OldLevel,
		"new_level":     e.NewLevel,
		"levels_gained": e.NewLevel - e.OldLevel,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent keyed by user.
func NewLevelUpEvent(userID string, oldLevel, newLevel int, at time.Time) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, userID, at),
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
