package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/robofleet/fleetstream/errors"
	"github.com/robofleet/fleetstream/events"
	"github.com/robofleet/fleetstream/metric"
	"github.com/robofleet/fleetstream/storage/relational"
)

// DefaultDedupWindow is the rolling window within which a repeated alert
// condition for the same (robot, type, source) is coalesced into one row.
const DefaultDedupWindow = 5 * time.Minute

var alertTitles = map[string]string{
	MetricCPU:          "High CPU Usage",
	MetricMemory:       "High Memory Usage",
	MetricTemperature:  "High Temperature",
	MetricBattery:      "Low Battery",
	MetricServoTemp:    "Servo Overheating",
	MetricServoVoltage: "Low Servo Voltage",
}

// Alerter raises alerts with deduplication against the relational store.
type Alerter struct {
	store       relational.Store
	events      *events.Logger
	metrics     *metric.Metrics
	logger      *slog.Logger
	dedupWindow time.Duration
	now         func() time.Time
}

// AlerterOption configures an Alerter.
type AlerterOption func(*Alerter)

// WithDedupWindow overrides the default dedup window.
func WithDedupWindow(window time.Duration) AlerterOption {
	return func(a *Alerter) {
		if window > 0 {
			a.dedupWindow = window
		}
	}
}

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) AlerterOption {
	return func(a *Alerter) {
		a.now = now
	}
}

// NewAlerter creates an alert deduplicator.
func NewAlerter(
	store relational.Store,
	eventLog *events.Logger,
	metrics *metric.Metrics,
	logger *slog.Logger,
	opts ...AlerterOption,
) *Alerter {
	a := &Alerter{
		store:       store,
		events:      eventLog,
		metrics:     metrics,
		logger:      logger,
		dedupWindow: DefaultDedupWindow,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Raise records an alert condition. An unresolved alert with the same
// (robot, type, source) inside the dedup window absorbs the condition:
// severity changes update the row in place, unchanged severity is a no-op.
// Otherwise a new row is inserted and a system event logged at WARNING or
// ERROR depending on severity.
func (a *Alerter) Raise(
	ctx context.Context,
	robotID, alertType string,
	severity Severity,
	value, threshold float64,
	source string,
) error {
	if severity == SeverityNone {
		return nil
	}

	now := a.now().UTC()
	since := now.Add(-a.dedupWindow)

	existing, err := a.store.FindUnresolvedAlert(ctx, robotID, alertType, source, since)
	if err != nil {
		return errors.Wrap(err, "Alerter", "Raise", "dedup lookup")
	}

	if existing != nil {
		if existing.Severity == string(severity) {
			if a.metrics != nil {
				a.metrics.AlertsDeduped.WithLabelValues(alertType).Inc()
			}
			return nil
		}

		existing.Severity = string(severity)
		existing.Value = value
		existing.Threshold = threshold
		existing.UpdatedAt = now
		if err := a.store.UpdateAlert(ctx, existing); err != nil {
			return errors.Wrap(err, "Alerter", "Raise", "update alert severity")
		}

		if a.metrics != nil {
			a.metrics.AlertsUpdated.WithLabelValues(alertType, string(severity)).Inc()
		}
		a.logger.Info("Alert severity changed",
			"component", "Alerter",
			"robot_id", robotID,
			"alert_type", alertType,
			"source", source,
			"severity", severity)
		return nil
	}

	alert := &relational.Alert{
		ID:        uuid.NewString(),
		RobotID:   robotID,
		AlertType: alertType,
		Severity:  string(severity),
		Source:    source,
		Title:     titleFor(alertType),
		Message:   messageFor(robotID, alertType, severity, value, threshold),
		Value:     value,
		Threshold: threshold,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateAlert(ctx, alert); err != nil {
		return errors.Wrap(err, "Alerter", "Raise", "insert alert")
	}

	if a.metrics != nil {
		a.metrics.AlertsRaised.WithLabelValues(alertType, string(severity)).Inc()
	}

	payload := map[string]any{
		"alert_id":  alert.ID,
		"source":    source,
		"value":     value,
		"threshold": threshold,
	}
	if severity == SeverityCritical {
		a.events.Error(ctx, events.CategoryAlert, robotID, alert.Message, payload)
	} else {
		a.events.Warning(ctx, events.CategoryAlert, robotID, alert.Message, payload)
	}

	a.logger.Warn("Alert raised",
		"component", "Alerter",
		"robot_id", robotID,
		"alert_type", alertType,
		"source", source,
		"severity", severity,
		"value", value,
		"threshold", threshold)
	return nil
}

func titleFor(alertType string) string {
	if title, ok := alertTitles[alertType]; ok {
		return title
	}
	return "Threshold Exceeded"
}

func messageFor(robotID, alertType string, severity Severity, value, threshold float64) string {
	direction := "above"
	if lowIsBad[alertType] {
		direction = "below"
	}
	return fmt.Sprintf("%s on %s: %s at %.2f (%s %s threshold %.2f)",
		titleFor(alertType), robotID, severity, value, direction, severity, threshold)
}
