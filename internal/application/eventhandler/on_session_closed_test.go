package eventhandler

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sio4242/Godsaeng-project/internal/domain/shared"
	"github.com/sio4242/Godsaeng-project/internal/infrastructure/messaging"
	"github.com/sio4242/Godsaeng-project/pkg/logger"
)

func captureLogger(buf *bytes.Buffer) *logger.Logger {
	return logger.New(logger.Options{Output: buf, Level: logger.LevelDebug})
}

func TestOnSessionClosed_LogsClosuresAndLevelUps(t *testing.T) {
	var buf bytes.Buffer
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{AsyncMode: false})
	require.NoError(t, NewOnSessionClosedHandler(captureLogger(&buf)).Register(bus))

	now := time.Now().UTC()
	closed := shared.NewSessionClosedEvent("s-2", "u-1", now, 600, 10).WithLedger(1, 10)
	closed.BaseEvent = closed.BaseEvent.WithCorrelationID("req-7")
	require.NoError(t, bus.Publish(closed))
	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("u-1", 1, 3, now)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"session_id":"s-2"`)
	assert.Contains(t, lines[0], `"exp_amount":10`)
	assert.Contains(t, lines[0], "req-7")
	assert.Contains(t, lines[1], "level up")
	assert.Contains(t, lines[1], `"levels_gained":2`)
	assert.Zero(t, bus.Metrics().Failed)
}

func TestOnSessionClosed_UnexpectedEventIsIgnored(t *testing.T) {
	h := NewOnSessionClosedHandler(nil)
	up := shared.NewLevelUpEvent("u-1", 1, 2, time.Now())

	assert.NoError(t, h.HandleSessionClosed(up))
	assert.NoError(t, h.HandleLevelUp(shared.NewSessionClosedEvent("s-1", "u-1", time.Now(), 120, 2)))
}
