// Package study contains the study session entity, the duration rules
// applied when a session is closed, and the persistence ports the
// session lifecycle runs against.
// This is a pure domain layer with zero external dependencies.
package study

import (
	"strings"
	"time"

	"github.com/sio4242/Godsaeng-project/internal/domain/shared"
)

// SessionID is the opaque identifier generated when a session is opened.
type SessionID string

// IsValid checks if the session ID is valid.
func (s SessionID) IsValid() bool {
	return strings.TrimSpace(string(s)) != ""
}

// String returns the string representation of SessionID.
func (s SessionID) String() string {
	return string(s)
}

// Status is derived from the end timestamp; it is never stored.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Session is a single timed interval a user studied.
// It is open while EndedAt and DurationSeconds are both nil and closed
// once both are set. Closing happens at most once.
type Session struct {
	ID              SessionID
	UserID          string
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationSeconds *int64
}

// NewSession creates a new open session.
func NewSession(id SessionID, userID string, startedAt time.Time) (*Session, error) {
	if !id.IsValid() {
		return nil, shared.ErrInvalidSession
	}
	if strings.TrimSpace(userID) == "" {
		return nil, shared.ErrInvalidUserID
	}

	return &Session{
		ID:        id,
		UserID:    userID,
		StartedAt: startedAt,
	}, nil
}

// Status returns the lifecycle state of the session.
func (s *Session) Status() Status {
	if s.EndedAt != nil && s.DurationSeconds != nil {
		return StatusClosed
	}
	return StatusOpen
}

// IsOpen returns true if the session has not been closed yet.
func (s *Session) IsOpen() bool {
	return s.Status() == StatusOpen
}

// Close records the end of the session. It fails on an already closed session.
func (s *Session) Close(endedAt time.Time, durationSeconds int64) error {
	if !s.IsOpen() {
		return shared.ErrSessionClosed
	}

	s.EndedAt = &endedAt
	s.DurationSeconds = &durationSeconds
	return nil
}

// Elapsed returns the recorded duration for closed sessions and the
// running time for open ones.
func (s *Session) Elapsed(now time.Time) time.Duration {
	if s.DurationSeconds != nil {
		return time.Duration(*s.DurationSeconds) * time.Second
	}
	return now.Sub(s.StartedAt)
}
