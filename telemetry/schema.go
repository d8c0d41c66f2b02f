package telemetry

import (
	"fmt"
	"strconv"
)

// sensorRange is the accepted [min, max] span for a known sensor metric.
type sensorRange struct {
	min, max float64
}

func (r sensorRange) contains(v float64) bool {
	return v >= r.min && v <= r.max
}

// sensorSchemas maps known sensor_type names to their valid ranges. Values
// outside the range are still written, flagged with a warning. Metrics
// absent from this table pass through unvalidated so new firmware can add
// sensor types without a deploy on this side.
var sensorSchemas = map[string]sensorRange{
	"temperature":     {min: -40, max: 125},
	"humidity":        {min: 0, max: 100},
	"cpu":             {min: 0, max: 100},
	"memory":          {min: 0, max: 100},
	"distance":        {min: 0, max: 500},
	"ultrasonic":      {min: 0, max: 500},
	"light":           {min: 0, max: 65535},
	"imu_pitch":       {min: -180, max: 180},
	"imu_roll":        {min: -180, max: 180},
	"imu_yaw":         {min: -360, max: 360},
	"signal_strength": {min: -120, max: 0},
}

// Battery clamp bounds.
const (
	batteryPercentMin = 0
	batteryPercentMax = 100
	batteryVoltageMin = 0
	batteryVoltageMax = 15
)

// coerceNumeric converts a sensor value to a float64. Robots report numbers,
// numeric strings and booleans depending on firmware version.
func coerceNumeric(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// servoName returns a stable label for a servo, preferring the map key the
// robot reported and falling back to the numeric ID.
func servoName(key string, id int) string {
	if key != "" {
		return key
	}
	return fmt.Sprintf("servo_%d", id)
}
