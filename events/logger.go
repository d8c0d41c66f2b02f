// Package events implements the system event logger: a side-channel that
// appends structured audit events (status changes, alerts, scans) to the
// relational store. Append failures are logged and swallowed so an audit
// outage never blocks message handling.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/robofleet/fleetstream/storage/relational"
)

// Event categories.
const (
	CategoryStatus    = "status"
	CategoryAlert     = "alert"
	CategoryScan      = "scan"
	CategoryJob       = "job"
	CategoryTelemetry = "telemetry"
	CategoryCommand   = "command"
)

// Logger appends system events to the relational store.
type Logger struct {
	store  relational.Store
	logger *slog.Logger
}

// NewLogger creates a system event logger.
func NewLogger(store relational.Store, logger *slog.Logger) *Logger {
	return &Logger{store: store, logger: logger}
}

// Info appends an info-level event.
func (l *Logger) Info(ctx context.Context, category, robotID, message string, payload map[string]any) {
	l.append(ctx, relational.LevelInfo, category, robotID, message, payload)
}

// Warning appends a warning-level event.
func (l *Logger) Warning(ctx context.Context, category, robotID, message string, payload map[string]any) {
	l.append(ctx, relational.LevelWarning, category, robotID, message, payload)
}

// Error appends an error-level event.
func (l *Logger) Error(ctx context.Context, category, robotID, message string, payload map[string]any) {
	l.append(ctx, relational.LevelError, category, robotID, message, payload)
}

func (l *Logger) append(ctx context.Context, level, category, robotID, message string, payload map[string]any) {
	event := &relational.SystemEvent{
		ID:        uuid.NewString(),
		Level:     level,
		Category:  category,
		RobotID:   robotID,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}

	if len(payload) > 0 {
		if data, err := json.Marshal(payload); err == nil {
			event.Payload = datatypes.JSON(data)
		} else {
			l.logger.Warn("Failed to marshal system event payload",
				"component", "EventLogger",
				"category", category,
				"error", err)
		}
	}

	if err := l.store.AppendSystemEvent(ctx, event); err != nil {
		l.logger.Error("Failed to append system event",
			"component", "EventLogger",
			"category", category,
			"robot_id", robotID,
			"error", err)
	}
}
