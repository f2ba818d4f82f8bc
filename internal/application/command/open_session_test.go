package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sio4242/Godsaeng-project/internal/domain/shared"
	"github.com/sio4242/Godsaeng-project/internal/domain/study"
)

func TestOpenSession(t *testing.T) {
	h := newHarness(t)

	res, err := h.open.Handle(context.Background(), OpenSessionCommand{UserID: "u-1", CorrelationID: "req-1"})
	require.NoError(t, err)
	assert.True(t, res.SessionID.IsValid())
	assert.Equal(t, t0, res.StartedAt)

	s := h.session(t, "u-1", res.SessionID)
	assert.True(t, s.IsOpen())
	assert.Equal(t, t0, s.StartedAt)

	require.Len(t, h.pub.events, 1)
	opened, ok := h.pub.events[0].(shared.SessionOpenedEvent)
	require.True(t, ok)
	assert.Equal(t, "req-1", opened.CorrelationID)
	assert.Equal(t, res.SessionID.String(), opened.AggregateID())
}

func TestOpenSession_MultipleOpenSessionsAllowed(t *testing.T) {
	h := newHarness(t)

	a := h.openAt(t, "u-1", t0)
	b := h.openAt(t, "u-1", t0)
	assert.NotEqual(t, a, b)

	list, err := h.store.ListSessions(context.Background(), "u-1", 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestOpenSession_RequiresUser(t *testing.T) {
	h := newHarness(t)

	_, err := h.open.Handle(context.Background(), OpenSessionCommand{UserID: " "})
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)
}

type failingRepo struct{ study.Repository }

func (failingRepo) CreateSession(context.Context, *study.Session) error {
	return errors.New("disk full")
}

func TestOpenSession_StorageFailure(t *testing.T) {
	opener := NewOpenSessionHandler(failingRepo{}, nil, nil)

	_, err := opener.Handle(context.Background(), OpenSessionCommand{UserID: "u-1"})
	assert.True(t, shared.IsStorageFailure(err))
}
