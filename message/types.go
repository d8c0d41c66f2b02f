// Package message defines the closed set of inbound message variants and the
// decode-and-classify step that turns a raw (subject, payload) pair into a
// strongly-typed message. Handlers never see untyped maps.
package message

import (
	"encoding/json"
	"time"
)

// Kind identifies a topic family.
type Kind int

const (
	KindUnknown Kind = iota
	KindSensor
	KindStatus
	KindLocation
	KindBattery
	KindScan
	KindJob
	KindServo
	KindVision
	KindLog
	KindCommandResponse
)

// String returns the topic-family name of the kind.
func (k Kind) String() string {
	switch k {
	case KindSensor:
		return "sensor"
	case KindStatus:
		return "status"
	case KindLocation:
		return "location"
	case KindBattery:
		return "battery"
	case KindScan:
		return "scan"
	case KindJob:
		return "job"
	case KindServo:
		return "servo"
	case KindVision:
		return "vision"
	case KindLog:
		return "log"
	case KindCommandResponse:
		return "command_response"
	default:
		return "unknown"
	}
}

// Sensor is a generic sensor reading. Value is left untyped because robots
// report both numbers and numeric strings; the validator coerces it.
type Sensor struct {
	RobotID    string  `json:"robot_id"`
	SensorType string  `json:"sensor_type"`
	Value      any     `json:"value"`
	Unit       string  `json:"unit,omitempty"`
	Timestamp  float64 `json:"timestamp,omitempty"`
}

// SystemInfo carries host metrics reported with a status update. Older robot
// firmware reports "temperature" instead of "cpu_temperature".
type SystemInfo struct {
	CPUPercent     *float64 `json:"cpu_percent,omitempty"`
	MemoryPercent  *float64 `json:"memory_percent,omitempty"`
	CPUTemperature *float64 `json:"cpu_temperature,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
}

// CPUTemp returns the CPU temperature, preferring the newer key.
func (s SystemInfo) CPUTemp() (float64, bool) {
	if s.CPUTemperature != nil {
		return *s.CPUTemperature, true
	}
	if s.Temperature != nil {
		return *s.Temperature, true
	}
	return 0, false
}

// Status is a robot presence/heartbeat update.
type Status struct {
	RobotID    string      `json:"robot_id"`
	Status     string      `json:"status"`
	IPAddress  string      `json:"ip_address,omitempty"`
	CameraURL  string      `json:"camera_url,omitempty"`
	SystemInfo *SystemInfo `json:"system_info,omitempty"`
}

// Location is a position report.
type Location struct {
	RobotID string  `json:"robot_id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
}

// Battery is a battery state report.
type Battery struct {
	RobotID    string  `json:"robot_id"`
	Percentage float64 `json:"percentage"`
	Voltage    float64 `json:"voltage"`
	Charging   bool    `json:"charging"`
}

// Scan is a QR/barcode scan event.
type Scan struct {
	RobotID   string  `json:"robot_id"`
	Code      string  `json:"code"`
	Timestamp float64 `json:"timestamp,omitempty"`
}

// JobProgress is a robot-reported job update. Percent is optional; Status
// "start"/"finish" drive the job state machine.
type JobProgress struct {
	RobotID    string   `json:"robot_id"`
	Percent    *float64 `json:"percent,omitempty"`
	Status     string   `json:"status,omitempty"`
	TotalItems int      `json:"total_items,omitempty"`
}

// ServoState is the state of a single servo.
type ServoState struct {
	ID            int     `json:"id"`
	Position      float64 `json:"position"`
	Temperature   float64 `json:"temperature"`
	Voltage       float64 `json:"voltage"`
	TorqueEnabled bool    `json:"torque_enabled"`
	AlertLevel    int     `json:"alert_level"`
}

// Servo is a bulk servo telemetry report keyed by servo name.
type Servo struct {
	RobotID string                `json:"robot_id"`
	Servos  map[string]ServoState `json:"servos"`
}

// Vision is an object-detection/vision state report.
type Vision struct {
	RobotID           string    `json:"robot_id"`
	Detection         bool      `json:"detection"`
	State             string    `json:"state"`
	Label             string    `json:"label,omitempty"`
	Confidence        float64   `json:"confidence,omitempty"`
	BBox              []float64 `json:"bbox,omitempty"`
	NavigationCommand string    `json:"navigation_command,omitempty"`
	IsLocked          bool      `json:"is_locked,omitempty"`
}

// RobotLog is a log line forwarded by a robot.
type RobotLog struct {
	RobotID string `json:"robot_id"`
	Level   string `json:"level"`
	Message string `json:"message"`
	Source  string `json:"source,omitempty"`
}

// CommandResponse is a robot's reply to an operator command.
type CommandResponse struct {
	RobotID string `json:"robot_id"`
	Command string `json:"command"`
	Status  string `json:"status,omitempty"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ScanReply is the outbound payload published on the per-robot items subject
// after a scan lookup.
type ScanReply struct {
	RobotID   string          `json:"robot_id"`
	Code      string          `json:"code"`
	Found     bool            `json:"found"`
	Item      json.RawMessage `json:"item"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}

// Inbound is a classified, decoded message ready for dispatch. Payload holds
// a pointer to one of the variant structs above, discriminated by Kind.
type Inbound struct {
	Kind     Kind
	RobotID  string
	Subject  string
	Payload  any
	Received time.Time
}
