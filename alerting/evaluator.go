// Package alerting implements threshold evaluation and alert deduplication.
// The evaluator resolves the applicable warning/critical pair for a
// (robot, metric) and classifies a value; the alerter coalesces repeated
// conditions into one alert row per dedup window.
package alerting

import (
	"context"
	"log/slog"

	"github.com/robofleet/fleetstream/storage/relational"
)

// Severity classifies a metric value against its thresholds.
type Severity string

// Severity levels in escalation order.
const (
	SeverityNone     Severity = "none"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Known metric types.
const (
	MetricCPU          = "cpu"
	MetricMemory       = "memory"
	MetricTemperature  = "temperature"
	MetricBattery      = "battery"
	MetricServoTemp    = "servo_temp"
	MetricServoVoltage = "servo_voltage"
)

type thresholdPair struct {
	warning  float64
	critical float64
}

// Built-in defaults, used when neither a robot-specific nor a global row
// exists for the metric.
var defaultThresholds = map[string]thresholdPair{
	MetricCPU:          {warning: 70, critical: 90},
	MetricMemory:       {warning: 75, critical: 90},
	MetricTemperature:  {warning: 60, critical: 75},
	MetricBattery:      {warning: 30, critical: 15},
	MetricServoTemp:    {warning: 50, critical: 70},
	MetricServoVoltage: {warning: 5.5, critical: 5.0},
}

// lowIsBad marks metrics that alert when the value drops below the
// threshold rather than rises above it.
var lowIsBad = map[string]bool{
	MetricBattery:      true,
	MetricServoVoltage: true,
}

// Evaluation is the result of a threshold check. Threshold is the boundary
// that was crossed (zero when Severity is none).
type Evaluation struct {
	Severity  Severity
	Warning   float64
	Critical  float64
	Threshold float64
}

// Evaluator resolves thresholds and classifies metric values.
type Evaluator struct {
	store  relational.Store
	logger *slog.Logger
}

// NewEvaluator creates a threshold evaluator backed by the relational store.
func NewEvaluator(store relational.Store, logger *slog.Logger) *Evaluator {
	return &Evaluator{store: store, logger: logger}
}

// Evaluate classifies value for (robotID, metricType). Resolution order:
// enabled robot-specific row, enabled global row, built-in default table.
// Unknown metrics with no configured row evaluate to none. A store failure
// degrades to the built-in defaults rather than failing the caller.
func (e *Evaluator) Evaluate(ctx context.Context, robotID, metricType string, value float64) Evaluation {
	warning, critical, ok := e.resolve(ctx, robotID, metricType)
	if !ok {
		return Evaluation{Severity: SeverityNone}
	}

	eval := Evaluation{Severity: SeverityNone, Warning: warning, Critical: critical}

	if lowIsBad[metricType] {
		switch {
		case value <= critical:
			eval.Severity = SeverityCritical
			eval.Threshold = critical
		case value <= warning:
			eval.Severity = SeverityWarning
			eval.Threshold = warning
		}
		return eval
	}

	switch {
	case value >= critical:
		eval.Severity = SeverityCritical
		eval.Threshold = critical
	case value >= warning:
		eval.Severity = SeverityWarning
		eval.Threshold = warning
	}
	return eval
}

func (e *Evaluator) resolve(ctx context.Context, robotID, metricType string) (warning, critical float64, ok bool) {
	row, err := e.store.FindThreshold(ctx, robotID, metricType)
	if err != nil {
		e.logger.Warn("Threshold lookup failed, using defaults",
			"component", "Evaluator",
			"robot_id", robotID,
			"metric_type", metricType,
			"error", err)
		return e.builtin(metricType)
	}
	if row != nil {
		return row.WarningValue, row.CriticalValue, true
	}

	row, err = e.store.FindGlobalThreshold(ctx, metricType)
	if err != nil {
		e.logger.Warn("Global threshold lookup failed, using defaults",
			"component", "Evaluator",
			"metric_type", metricType,
			"error", err)
		return e.builtin(metricType)
	}
	if row != nil {
		return row.WarningValue, row.CriticalValue, true
	}

	return e.builtin(metricType)
}

func (e *Evaluator) builtin(metricType string) (float64, float64, bool) {
	pair, ok := defaultThresholds[metricType]
	if !ok {
		return 0, 0, false
	}
	return pair.warning, pair.critical, true
}
