package alerting

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/robofleet/fleetstream/storage/relational"
)

func newEvaluator(store relational.Store) *Evaluator {
	return NewEvaluator(store, slog.Default())
}

func TestEvaluateDefaults(t *testing.T) {
	eval := newEvaluator(relational.NewMemoryStore())
	ctx := context.Background()

	tests := []struct {
		name      string
		metric    string
		value     float64
		severity  Severity
		threshold float64
	}{
		{"cpu normal", MetricCPU, 50, SeverityNone, 0},
		{"cpu warning boundary", MetricCPU, 70, SeverityWarning, 70},
		{"cpu critical boundary", MetricCPU, 90, SeverityCritical, 90},
		{"cpu above critical", MetricCPU, 99, SeverityCritical, 90},
		{"memory warning", MetricMemory, 80, SeverityWarning, 75},
		{"temperature critical", MetricTemperature, 76, SeverityCritical, 75},
		{"battery healthy", MetricBattery, 50, SeverityNone, 0},
		{"battery warning", MetricBattery, 25, SeverityWarning, 30},
		{"battery critical", MetricBattery, 15, SeverityCritical, 15},
		{"servo voltage low", MetricServoVoltage, 4.8, SeverityCritical, 5.0},
		{"servo voltage sag", MetricServoVoltage, 5.3, SeverityWarning, 5.5},
		{"servo temp hot", MetricServoTemp, 71, SeverityCritical, 70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := eval.Evaluate(ctx, "r1", tt.metric, tt.value)
			assert.Equal(t, tt.severity, result.Severity)
			assert.Equal(t, tt.threshold, result.Threshold)
		})
	}
}

func TestEvaluateUnknownMetricIsNone(t *testing.T) {
	eval := newEvaluator(relational.NewMemoryStore())
	result := eval.Evaluate(context.Background(), "r1", "humidity", 99)
	assert.Equal(t, SeverityNone, result.Severity)
}

func TestEvaluateResolutionOrder(t *testing.T) {
	store := relational.NewMemoryStore()
	robotID := "r1"
	store.SeedThreshold(&relational.AlertThreshold{
		RobotID: &robotID, MetricType: MetricCPU, WarningValue: 50, CriticalValue: 60, Enabled: true,
	})
	store.SeedThreshold(&relational.AlertThreshold{
		MetricType: MetricCPU, WarningValue: 80, CriticalValue: 95, Enabled: true,
	})

	eval := newEvaluator(store)
	ctx := context.Background()

	// Robot-specific row wins for r1.
	assert.Equal(t, SeverityCritical, eval.Evaluate(ctx, "r1", MetricCPU, 65).Severity)

	// Other robots fall through to the global row.
	assert.Equal(t, SeverityNone, eval.Evaluate(ctx, "r2", MetricCPU, 65).Severity)
	assert.Equal(t, SeverityWarning, eval.Evaluate(ctx, "r2", MetricCPU, 85).Severity)
}

func TestEvaluateDisabledRowFallsThrough(t *testing.T) {
	store := relational.NewMemoryStore()
	robotID := "r1"
	store.SeedThreshold(&relational.AlertThreshold{
		RobotID: &robotID, MetricType: MetricCPU, WarningValue: 10, CriticalValue: 20, Enabled: false,
	})

	eval := newEvaluator(store)

	// Disabled robot row is ignored; built-in cpu 70/90 applies.
	result := eval.Evaluate(context.Background(), "r1", MetricCPU, 50)
	assert.Equal(t, SeverityNone, result.Severity)
}

func TestEvaluateStoreFailureDegradesToDefaults(t *testing.T) {
	store := relational.NewMemoryStore()
	store.FailWith(assert.AnError)

	eval := newEvaluator(store)
	result := eval.Evaluate(context.Background(), "r1", MetricBattery, 10)
	assert.Equal(t, SeverityCritical, result.Severity)
}
