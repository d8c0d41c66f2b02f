package events

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robofleet/fleetstream/storage/relational"
)

func newTestLogger(t *testing.T) (*Logger, *relational.MemoryStore) {
	t.Helper()
	store := relational.NewMemoryStore()
	return NewLogger(store, slog.Default()), store
}

func TestLoggerAppendsEvents(t *testing.T) {
	logger, store := newTestLogger(t)
	ctx := context.Background()

	logger.Info(ctx, CategoryStatus, "r1", "robot came online", map[string]any{"ip": "10.0.0.2"})
	logger.Warning(ctx, CategoryAlert, "r1", "cpu warning", nil)
	logger.Error(ctx, CategoryAlert, "r1", "cpu critical", nil)

	evts := store.Events()
	require.Len(t, evts, 3)

	assert.Equal(t, relational.LevelInfo, evts[0].Level)
	assert.Equal(t, CategoryStatus, evts[0].Category)
	assert.Equal(t, "r1", evts[0].RobotID)
	assert.NotEmpty(t, evts[0].ID)
	assert.JSONEq(t, `{"ip":"10.0.0.2"}`, string(evts[0].Payload))

	assert.Equal(t, relational.LevelWarning, evts[1].Level)
	assert.Empty(t, evts[1].Payload)
	assert.Equal(t, relational.LevelError, evts[2].Level)
}

func TestLoggerSwallowsStoreFailure(t *testing.T) {
	logger, store := newTestLogger(t)
	store.FailWith(errors.New("db down"))

	// Must not panic or propagate.
	logger.Info(context.Background(), CategoryScan, "r1", "scan processed", nil)
	assert.Empty(t, store.Events())
}
