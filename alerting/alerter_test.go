package alerting

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robofleet/fleetstream/events"
	"github.com/robofleet/fleetstream/storage/relational"
)

type alerterFixture struct {
	alerter *Alerter
	store   *relational.MemoryStore
	clock   *fakeClock
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newAlerterFixture(t *testing.T, opts ...AlerterOption) *alerterFixture {
	t.Helper()
	store := relational.NewMemoryStore()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	logger := slog.Default()
	opts = append([]AlerterOption{WithClock(clock.Now)}, opts...)
	alerter := NewAlerter(store, events.NewLogger(store, logger), nil, logger, opts...)
	return &alerterFixture{alerter: alerter, store: store, clock: clock}
}

func TestRaiseCreatesAlertAndEvent(t *testing.T) {
	f := newAlerterFixture(t)
	ctx := context.Background()

	require.NoError(t, f.alerter.Raise(ctx, "r1", MetricCPU, SeverityWarning, 75, 70, "cpu"))

	alerts := f.store.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "r1", alerts[0].RobotID)
	assert.Equal(t, "warning", alerts[0].Severity)
	assert.Equal(t, "High CPU Usage", alerts[0].Title)
	assert.Equal(t, 75.0, alerts[0].Value)
	assert.Equal(t, 70.0, alerts[0].Threshold)
	assert.False(t, alerts[0].Resolved)
	assert.NotEmpty(t, alerts[0].ID)

	evts := f.store.Events()
	require.Len(t, evts, 1)
	assert.Equal(t, relational.LevelWarning, evts[0].Level)
	assert.Equal(t, events.CategoryAlert, evts[0].Category)
}

func TestRaiseCriticalLogsErrorEvent(t *testing.T) {
	f := newAlerterFixture(t)

	require.NoError(t, f.alerter.Raise(context.Background(), "r1", MetricBattery, SeverityCritical, 10, 15, "battery"))

	evts := f.store.Events()
	require.Len(t, evts, 1)
	assert.Equal(t, relational.LevelError, evts[0].Level)
}

func TestRaiseDeduplicatesWithinWindow(t *testing.T) {
	f := newAlerterFixture(t)
	ctx := context.Background()

	require.NoError(t, f.alerter.Raise(ctx, "r1", MetricCPU, SeverityWarning, 75, 70, "cpu"))
	f.clock.Advance(time.Minute)
	require.NoError(t, f.alerter.Raise(ctx, "r1", MetricCPU, SeverityWarning, 78, 70, "cpu"))

	alerts := f.store.Alerts()
	require.Len(t, alerts, 1, "repeated condition must not create a second row")
	// No-op dedup leaves the original value untouched.
	assert.Equal(t, 75.0, alerts[0].Value)
	assert.Len(t, f.store.Events(), 1)
}

func TestRaiseEscalationUpdatesInPlace(t *testing.T) {
	f := newAlerterFixture(t)
	ctx := context.Background()

	require.NoError(t, f.alerter.Raise(ctx, "r1", MetricCPU, SeverityWarning, 75, 70, "cpu"))
	f.clock.Advance(time.Minute)
	require.NoError(t, f.alerter.Raise(ctx, "r1", MetricCPU, SeverityCritical, 95, 90, "cpu"))

	alerts := f.store.Alerts()
	require.Len(t, alerts, 1, "escalation must update, not insert")
	assert.Equal(t, "critical", alerts[0].Severity)
	assert.Equal(t, 95.0, alerts[0].Value)
	assert.Equal(t, 90.0, alerts[0].Threshold)
}

func TestRaiseOutsideWindowCreatesNewRow(t *testing.T) {
	f := newAlerterFixture(t)
	ctx := context.Background()

	require.NoError(t, f.alerter.Raise(ctx, "r1", MetricCPU, SeverityWarning, 75, 70, "cpu"))
	f.clock.Advance(6 * time.Minute)
	require.NoError(t, f.alerter.Raise(ctx, "r1", MetricCPU, SeverityWarning, 76, 70, "cpu"))

	assert.Len(t, f.store.Alerts(), 2)
}

func TestRaiseCustomWindow(t *testing.T) {
	f := newAlerterFixture(t, WithDedupWindow(time.Minute))
	ctx := context.Background()

	require.NoError(t, f.alerter.Raise(ctx, "r1", MetricCPU, SeverityWarning, 75, 70, "cpu"))
	f.clock.Advance(90 * time.Second)
	require.NoError(t, f.alerter.Raise(ctx, "r1", MetricCPU, SeverityWarning, 76, 70, "cpu"))

	assert.Len(t, f.store.Alerts(), 2)
}

func TestRaiseDifferentSourcesAreIndependent(t *testing.T) {
	f := newAlerterFixture(t)
	ctx := context.Background()

	require.NoError(t, f.alerter.Raise(ctx, "r1", MetricServoTemp, SeverityWarning, 55, 50, "left_arm"))
	require.NoError(t, f.alerter.Raise(ctx, "r1", MetricServoTemp, SeverityWarning, 57, 50, "right_arm"))

	assert.Len(t, f.store.Alerts(), 2)
}

func TestRaiseNoneSeverityIsNoop(t *testing.T) {
	f := newAlerterFixture(t)

	require.NoError(t, f.alerter.Raise(context.Background(), "r1", MetricCPU, SeverityNone, 10, 0, "cpu"))
	assert.Empty(t, f.store.Alerts())
	assert.Empty(t, f.store.Events())
}

func TestRaiseStoreFailurePropagates(t *testing.T) {
	f := newAlerterFixture(t)
	f.store.FailWith(assert.AnError)

	err := f.alerter.Raise(context.Background(), "r1", MetricCPU, SeverityWarning, 75, 70, "cpu")
	assert.Error(t, err)
}
