package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionStatusString(t *testing.T) {
	tests := []struct {
		status ConnectionStatus
		want   string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{StatusCircuitOpen, "circuit_open"},
		{ConnectionStatus(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
	assert.Equal(t, time.Second, c.Backoff())
	assert.EqualValues(t, 0, c.Failures())
}

func TestClientOptions(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithMaxReconnects(3),
		WithReconnectWait(time.Second),
		WithCircuitBreakerThreshold(2),
		WithMaxBackoff(10*time.Second),
		WithName("fleetstream"),
		WithCredentials("robot", "secret"),
	)
	require.NoError(t, err)

	assert.Equal(t, 3, c.maxReconnects)
	assert.Equal(t, time.Second, c.reconnectWait)
	assert.EqualValues(t, 2, c.circuitThreshold)
	assert.Equal(t, 10*time.Second, c.maxBackoff)
	assert.Equal(t, "fleetstream", c.clientName)
}

func TestCircuitOpensAfterThreshold(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithCircuitBreakerThreshold(3),
	)
	require.NoError(t, err)

	c.recordFailure()
	c.recordFailure()
	assert.NotEqual(t, StatusCircuitOpen, c.Status())

	c.recordFailure()
	assert.Equal(t, StatusCircuitOpen, c.Status())
	assert.EqualValues(t, 3, c.Failures())
}

func TestConnectWhileCircuitOpenShortCircuits(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	c.status.Store(StatusCircuitOpen)

	assert.ErrorIs(t, c.Connect(context.Background()), ErrCircuitOpen)
}

func TestResetCircuitClearsState(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithCircuitBreakerThreshold(1),
	)
	require.NoError(t, err)

	c.recordFailure()
	require.Equal(t, StatusCircuitOpen, c.Status())

	c.resetCircuit()
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.EqualValues(t, 0, c.Failures())
	assert.Equal(t, time.Second, c.Backoff())
}

func TestBackoffDoublesUpToMax(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithCircuitBreakerThreshold(1),
		WithMaxBackoff(3*time.Second),
	)
	require.NoError(t, err)

	c.recordFailure()
	assert.Equal(t, 2*time.Second, c.Backoff())

	c.recordFailure()
	assert.Equal(t, 3*time.Second, c.Backoff())

	c.recordFailure()
	assert.Equal(t, 3*time.Second, c.Backoff())
}

func TestPublishWithoutConnection(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.ErrorIs(t, c.Publish(context.Background(), "robots.items.r1", []byte("{}")), ErrNotConnected)
}

func TestSubscribeWithoutConnection(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	err = c.Subscribe(context.Background(), "robots.sensors.*", func(string, []byte) {})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestCloseIsIdempotent(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, StatusDisconnected, c.Status())
}

func TestGetStatusSnapshot(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	c.recordFailure()
	status := c.GetStatus()
	assert.Equal(t, StatusDisconnected, status.Status)
	assert.EqualValues(t, 1, status.FailureCount)
	assert.False(t, status.LastFailureTime.IsZero())
}
