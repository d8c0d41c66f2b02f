package relational

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertRobotKeepsIdentity(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertRobot(ctx, &Robot{RobotID: "r1", Status: "online"}))
	require.NoError(t, store.UpsertRobot(ctx, &Robot{RobotID: "r1", Status: "offline", IPAddress: "10.0.0.5"}))

	robot := store.Robot("r1")
	require.NotNil(t, robot)
	assert.Equal(t, "offline", robot.Status)
	assert.Equal(t, "10.0.0.5", robot.IPAddress)
}

func TestThresholdLookupScoping(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	robotID := "r1"

	store.SeedThreshold(&AlertThreshold{RobotID: &robotID, MetricType: "cpu", WarningValue: 60, CriticalValue: 80, Enabled: true})
	store.SeedThreshold(&AlertThreshold{MetricType: "cpu", WarningValue: 70, CriticalValue: 90, Enabled: true})
	store.SeedThreshold(&AlertThreshold{MetricType: "memory", WarningValue: 75, CriticalValue: 90, Enabled: false})

	row, err := store.FindThreshold(ctx, "r1", "cpu")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, 60.0, row.WarningValue)

	row, err = store.FindThreshold(ctx, "r2", "cpu")
	require.NoError(t, err)
	assert.Nil(t, row)

	row, err = store.FindGlobalThreshold(ctx, "cpu")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, 70.0, row.WarningValue)

	// Disabled rows are invisible.
	row, err = store.FindGlobalThreshold(ctx, "memory")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestFindUnresolvedAlertWindow(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.CreateAlert(ctx, &Alert{
		ID: "old", RobotID: "r1", AlertType: "cpu", Source: "cpu",
		CreatedAt: now.Add(-10 * time.Minute),
	}))
	require.NoError(t, store.CreateAlert(ctx, &Alert{
		ID: "recent", RobotID: "r1", AlertType: "cpu", Source: "cpu",
		CreatedAt: now.Add(-time.Minute),
	}))
	require.NoError(t, store.CreateAlert(ctx, &Alert{
		ID: "resolved", RobotID: "r1", AlertType: "cpu", Source: "cpu",
		Resolved: true, CreatedAt: now,
	}))

	found, err := store.FindUnresolvedAlert(ctx, "r1", "cpu", "cpu", now.Add(-5*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "recent", found.ID)

	found, err = store.FindUnresolvedAlert(ctx, "r1", "cpu", "battery", now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestActiveJobPicksLatest(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.CreateJob(ctx, &Job{RobotID: "r1", Status: JobCompleted, StartTime: now.Add(-time.Hour)}))
	require.NoError(t, store.CreateJob(ctx, &Job{RobotID: "r1", Status: JobActive, StartTime: now.Add(-time.Minute)}))

	job, err := store.ActiveJob(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, JobActive, job.Status)

	job, err = store.ActiveJob(ctx, "r2")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestUpdateJobPersists(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := &Job{RobotID: "r1", Status: JobActive, StartTime: time.Now().UTC()}
	require.NoError(t, store.CreateJob(ctx, job))
	require.NotZero(t, job.ID)

	job.ItemsDone = 3
	job.PercentComplete = 30
	require.NoError(t, store.UpdateJob(ctx, job))

	stored, err := store.ActiveJob(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 3, stored.ItemsDone)
	assert.Equal(t, 30.0, stored.PercentComplete)
}

func TestFailWithPropagates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("db down")
	store.FailWith(boom)

	assert.ErrorIs(t, store.UpsertRobot(ctx, &Robot{RobotID: "r1"}), boom)
	_, err := store.ActiveJob(ctx, "r1")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, store.AppendSystemEvent(ctx, &SystemEvent{}), boom)
}
