package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robofleet/fleetstream/alerting"
	"github.com/robofleet/fleetstream/events"
	"github.com/robofleet/fleetstream/message"
	"github.com/robofleet/fleetstream/metric"
	"github.com/robofleet/fleetstream/storage/relational"
	"github.com/robofleet/fleetstream/storage/timeseries"
)

// Handlers validates each telemetry family and writes it to the sink,
// feeding the evaluator and alerter for metrics that carry thresholds.
type Handlers struct {
	writer    *Writer
	store     relational.Store
	evaluator *alerting.Evaluator
	alerter   *alerting.Alerter
	events    *events.Logger
	metrics   *metric.Metrics
	logger    *slog.Logger
	warnings  *warnLimiter
	now       func() time.Time

	mu         sync.Mutex
	lastStatus map[string]string
}

// HandlersOption configures Handlers.
type HandlersOption func(*Handlers)

// WithHandlersClock overrides the time source, for tests.
func WithHandlersClock(now func() time.Time) HandlersOption {
	return func(h *Handlers) {
		h.now = now
	}
}

// NewHandlers creates the telemetry handler set.
func NewHandlers(
	writer *Writer,
	store relational.Store,
	evaluator *alerting.Evaluator,
	alerter *alerting.Alerter,
	eventLog *events.Logger,
	metrics *metric.Metrics,
	logger *slog.Logger,
	opts ...HandlersOption,
) *Handlers {
	h := &Handlers{
		writer:     writer,
		store:      store,
		evaluator:  evaluator,
		alerter:    alerter,
		events:     eventLog,
		metrics:    metrics,
		logger:     logger,
		warnings:   newWarnLimiter(),
		now:        time.Now,
		lastStatus: make(map[string]string),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleSensor validates a generic sensor reading and writes one point.
// Out-of-range values are flagged and written anyway; metrics without a
// schema pass through with a warning.
func (h *Handlers) HandleSensor(ctx context.Context, msg *message.Sensor) error {
	fields := map[string]any{}
	if msg.Unit != "" {
		fields["unit"] = msg.Unit
	}

	value, numeric := coerceNumeric(msg.Value)
	switch {
	case !numeric:
		fields["value_raw"] = msg.Value
		h.validationWarning("sensor_data", "non_numeric", msg.RobotID, msg.SensorType, msg.Value)
	default:
		fields["value"] = value
		schema, known := sensorSchemas[msg.SensorType]
		if !known {
			h.validationWarning("sensor_data", "unknown_metric", msg.RobotID, msg.SensorType, value)
		} else if !schema.contains(value) {
			h.validationWarning("sensor_data", "out_of_range", msg.RobotID, msg.SensorType, value)
		}
	}

	point := timeseries.Point{
		Measurement: "sensor_data",
		Tags:        map[string]string{"robot_id": msg.RobotID, "sensor_type": msg.SensorType},
		Fields:      fields,
		Timestamp:   h.timestamp(msg.Timestamp),
	}
	return h.writer.Write(ctx, []timeseries.Point{point})
}

// HandleStatus upserts the robot registry row, writes a status point and
// evaluates the host metrics bundled in system_info.
func (h *Handlers) HandleStatus(ctx context.Context, msg *message.Status) error {
	now := h.now().UTC()
	robot := &relational.Robot{
		RobotID:   msg.RobotID,
		Status:    msg.Status,
		LastSeen:  now,
		IPAddress: msg.IPAddress,
		CameraURL: msg.CameraURL,
	}
	if err := h.store.UpsertRobot(ctx, robot); err != nil {
		h.logger.Error("Robot upsert failed",
			"component", "Handlers",
			"robot_id", msg.RobotID,
			"error", err)
	} else if h.statusChanged(msg.RobotID, msg.Status) {
		h.events.Info(ctx, events.CategoryStatus, msg.RobotID, "Robot status changed", map[string]any{
			"status": msg.Status,
		})
	}

	fields := map[string]any{"status": msg.Status}
	if info := msg.SystemInfo; info != nil {
		if info.CPUPercent != nil {
			fields["cpu_percent"] = *info.CPUPercent
			h.check(ctx, msg.RobotID, alerting.MetricCPU, *info.CPUPercent, alerting.MetricCPU)
		}
		if info.MemoryPercent != nil {
			fields["memory_percent"] = *info.MemoryPercent
			h.check(ctx, msg.RobotID, alerting.MetricMemory, *info.MemoryPercent, alerting.MetricMemory)
		}
		if temp, ok := info.CPUTemp(); ok {
			fields["cpu_temperature"] = temp
			h.check(ctx, msg.RobotID, alerting.MetricTemperature, temp, alerting.MetricTemperature)
		}
	}

	point := timeseries.Point{
		Measurement: "robot_status",
		Tags:        map[string]string{"robot_id": msg.RobotID},
		Fields:      fields,
		Timestamp:   now,
	}
	return h.writer.Write(ctx, []timeseries.Point{point})
}

// HandleLocation writes a position point.
func (h *Handlers) HandleLocation(ctx context.Context, msg *message.Location) error {
	point := timeseries.Point{
		Measurement: "location",
		Tags:        map[string]string{"robot_id": msg.RobotID},
		Fields:      map[string]any{"x": msg.X, "y": msg.Y, "z": msg.Z},
		Timestamp:   h.now().UTC(),
	}
	return h.writer.Write(ctx, []timeseries.Point{point})
}

// HandleBattery clamps the battery reading into its physical range, writes
// a point and evaluates the battery threshold on the clamped percentage.
func (h *Handlers) HandleBattery(ctx context.Context, msg *message.Battery) error {
	percentage := clamp(msg.Percentage, batteryPercentMin, batteryPercentMax)
	voltage := clamp(msg.Voltage, batteryVoltageMin, batteryVoltageMax)
	if percentage != msg.Percentage || voltage != msg.Voltage {
		h.validationWarning("battery", "clamped", msg.RobotID, "battery", msg.Percentage)
	}

	point := timeseries.Point{
		Measurement: "battery",
		Tags:        map[string]string{"robot_id": msg.RobotID},
		Fields: map[string]any{
			"percentage": percentage,
			"voltage":    voltage,
			"charging":   msg.Charging,
		},
		Timestamp: h.now().UTC(),
	}
	if err := h.writer.Write(ctx, []timeseries.Point{point}); err != nil {
		return err
	}

	h.check(ctx, msg.RobotID, alerting.MetricBattery, percentage, alerting.MetricBattery)
	return nil
}

// HandleServo writes one point per servo and evaluates temperature and
// voltage thresholds per servo, tagging the alert source with the servo name
// so different joints alert independently.
func (h *Handlers) HandleServo(ctx context.Context, msg *message.Servo) error {
	points := make([]timeseries.Point, 0, len(msg.Servos))
	now := h.now().UTC()

	for key, state := range msg.Servos {
		name := servoName(key, state.ID)
		points = append(points, timeseries.Point{
			Measurement: "servo",
			Tags:        map[string]string{"robot_id": msg.RobotID, "servo": name},
			Fields: map[string]any{
				"position":       state.Position,
				"temperature":    state.Temperature,
				"voltage":        state.Voltage,
				"torque_enabled": state.TorqueEnabled,
				"alert_level":    state.AlertLevel,
			},
			Timestamp: now,
		})
	}
	if err := h.writer.Write(ctx, points); err != nil {
		return err
	}

	for key, state := range msg.Servos {
		name := servoName(key, state.ID)
		h.check(ctx, msg.RobotID, alerting.MetricServoTemp, state.Temperature, name)
		h.check(ctx, msg.RobotID, alerting.MetricServoVoltage, state.Voltage, name)
	}
	return nil
}

// HandleVision writes a detection point, deriving bbox_area when the
// payload carries a four-element bounding box.
func (h *Handlers) HandleVision(ctx context.Context, msg *message.Vision) error {
	fields := map[string]any{
		"detection": msg.Detection,
		"state":     msg.State,
		"is_locked": msg.IsLocked,
	}
	if msg.Label != "" {
		fields["label"] = msg.Label
	}
	if msg.Confidence != 0 {
		fields["confidence"] = msg.Confidence
	}
	if msg.NavigationCommand != "" {
		fields["navigation_command"] = msg.NavigationCommand
	}
	if len(msg.BBox) == 4 {
		fields["bbox_area"] = (msg.BBox[2] - msg.BBox[0]) * (msg.BBox[3] - msg.BBox[1])
	}

	point := timeseries.Point{
		Measurement: "vision",
		Tags:        map[string]string{"robot_id": msg.RobotID},
		Fields:      fields,
		Timestamp:   h.now().UTC(),
	}
	return h.writer.Write(ctx, []timeseries.Point{point})
}

// HandleLog writes a forwarded robot log line and mirrors error-level lines
// into the system event log.
func (h *Handlers) HandleLog(ctx context.Context, msg *message.RobotLog) error {
	fields := map[string]any{
		"level":   msg.Level,
		"message": msg.Message,
	}
	if msg.Source != "" {
		fields["source"] = msg.Source
	}

	point := timeseries.Point{
		Measurement: "robot_logs",
		Tags:        map[string]string{"robot_id": msg.RobotID},
		Fields:      fields,
		Timestamp:   h.now().UTC(),
	}
	if err := h.writer.Write(ctx, []timeseries.Point{point}); err != nil {
		return err
	}

	if msg.Level == "error" || msg.Level == "critical" {
		h.events.Error(ctx, events.CategoryTelemetry, msg.RobotID, msg.Message, map[string]any{
			"source": msg.Source,
			"level":  msg.Level,
		})
	}
	return nil
}

// HandleCommandResponse records the command outcome as a system event. No
// telemetry point is written for command traffic.
func (h *Handlers) HandleCommandResponse(ctx context.Context, msg *message.CommandResponse) error {
	payload := map[string]any{
		"command": msg.Command,
		"status":  msg.Status,
		"success": msg.Success,
	}
	if msg.Success {
		h.events.Info(ctx, events.CategoryCommand, msg.RobotID, "Command completed", payload)
	} else {
		h.events.Warning(ctx, events.CategoryCommand, msg.RobotID, "Command failed: "+msg.Message, payload)
	}
	return nil
}

// check evaluates one metric and raises the resulting alert condition.
func (h *Handlers) check(ctx context.Context, robotID, metricType string, value float64, source string) {
	eval := h.evaluator.Evaluate(ctx, robotID, metricType, value)
	if eval.Severity == alerting.SeverityNone {
		return
	}
	if err := h.alerter.Raise(ctx, robotID, metricType, eval.Severity, value, eval.Threshold, source); err != nil {
		h.logger.Error("Alert raise failed",
			"component", "Handlers",
			"robot_id", robotID,
			"metric_type", metricType,
			"source", source,
			"error", err)
	}
}

func (h *Handlers) validationWarning(measurement, reason, robotID, metricName string, value any) {
	if h.metrics != nil {
		h.metrics.ValidationWarnings.WithLabelValues(measurement, reason).Inc()
	}
	if h.warnings.allow() {
		h.logger.Warn("Telemetry validation warning",
			"component", "Handlers",
			"measurement", measurement,
			"reason", reason,
			"robot_id", robotID,
			"metric", metricName,
			"value", value)
	}
}

func (h *Handlers) statusChanged(robotID, status string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastStatus[robotID] == status {
		return false
	}
	h.lastStatus[robotID] = status
	return true
}

// timestamp converts a robot-reported epoch-seconds timestamp, falling back
// to the local clock when absent.
func (h *Handlers) timestamp(epoch float64) time.Time {
	if epoch > 0 {
		sec := int64(epoch)
		nsec := int64((epoch - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec).UTC()
	}
	return h.now().UTC()
}
