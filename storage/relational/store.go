package relational

import (
	"context"
	"time"
)

// Store is the relational read/write contract used by the engine. Lookup
// methods return (nil, nil) when no row matches; errors indicate a store
// failure, never absence.
type Store interface {
	// UpsertRobot creates or updates the registry row keyed by RobotID.
	UpsertRobot(ctx context.Context, robot *Robot) error

	// FindThreshold returns the enabled robot-specific threshold row for a
	// metric, or nil.
	FindThreshold(ctx context.Context, robotID, metricType string) (*AlertThreshold, error)

	// FindGlobalThreshold returns the enabled global (robot_id IS NULL)
	// threshold row for a metric, or nil.
	FindGlobalThreshold(ctx context.Context, metricType string) (*AlertThreshold, error)

	// FindUnresolvedAlert returns the most recent unresolved alert with the
	// given identity created at or after since, or nil.
	FindUnresolvedAlert(ctx context.Context, robotID, alertType, source string, since time.Time) (*Alert, error)

	// CreateAlert inserts a new alert row.
	CreateAlert(ctx context.Context, alert *Alert) error

	// UpdateAlert persists severity/value/threshold changes in place.
	UpdateAlert(ctx context.Context, alert *Alert) error

	// ActiveJob returns the robot's active job, or nil.
	ActiveJob(ctx context.Context, robotID string) (*Job, error)

	// CreateJob inserts a new job row and backfills its ID.
	CreateJob(ctx context.Context, job *Job) error

	// UpdateJob persists job progress changes.
	UpdateJob(ctx context.Context, job *Job) error

	// AppendSystemEvent appends one audit log entry.
	AppendSystemEvent(ctx context.Context, event *SystemEvent) error
}
