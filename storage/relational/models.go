// Package relational defines the relational store contract for robots,
// alerts, thresholds, jobs, and system events, plus its GORM and in-memory
// implementations. The relational store is the source of truth; any
// in-memory caches elsewhere are best-effort only.
package relational

import (
	"time"

	"gorm.io/datatypes"
)

// Alert severities.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Job statuses.
const (
	JobActive    = "active"
	JobCompleted = "completed"
)

// System event levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Robot is the fleet registry row upserted by the status handler.
type Robot struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	RobotID   string    `gorm:"uniqueIndex;size:64" json:"robot_id"`
	Status    string    `gorm:"size:32" json:"status"`
	LastSeen  time.Time `json:"last_seen"`
	IPAddress string    `gorm:"size:64" json:"ip_address,omitempty"`
	CameraURL string    `gorm:"size:256" json:"camera_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AlertThreshold holds a warning/critical pair for a metric. RobotID nil
// means the row is the global default for that metric. Rows are mutated by
// the external CRUD layer and read on every threshold check.
type AlertThreshold struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	RobotID       *string   `gorm:"index:idx_threshold_robot_metric;size:64" json:"robot_id"`
	MetricType    string    `gorm:"index:idx_threshold_robot_metric;size:32" json:"metric_type"`
	WarningValue  float64   `json:"warning_value"`
	CriticalValue float64   `json:"critical_value"`
	Enabled       bool      `gorm:"default:true" json:"enabled"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Alert is one raised alert condition. Never auto-resolved by the engine;
// resolution is an external human action.
type Alert struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	RobotID      string    `gorm:"index:idx_alert_dedup;size:64" json:"robot_id"`
	AlertType    string    `gorm:"index:idx_alert_dedup;size:32" json:"alert_type"`
	Severity     string    `gorm:"size:16" json:"severity"`
	Source       string    `gorm:"index:idx_alert_dedup;size:64" json:"source"`
	Title        string    `gorm:"size:128" json:"title"`
	Message      string    `gorm:"type:text" json:"message"`
	Value        float64   `json:"value"`
	Threshold    float64   `json:"threshold"`
	Acknowledged bool      `gorm:"default:false" json:"acknowledged"`
	Resolved     bool      `gorm:"default:false;index:idx_alert_dedup" json:"resolved"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Job is a robot-scoped unit of work. At most one active job per robot at
// any time; Start force-completes any prior active job.
type Job struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	RobotID         string     `gorm:"index:idx_job_robot_status;size:64" json:"robot_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	ItemsTotal      int        `json:"items_total"`
	ItemsDone       int        `json:"items_done"`
	PercentComplete float64    `json:"percent_complete"`
	LastItem        string     `gorm:"size:128" json:"last_item,omitempty"`
	Status          string     `gorm:"index:idx_job_robot_status;size:16" json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SystemEvent is one structured audit log entry, consumed by the external
// CRUD/search layer.
type SystemEvent struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	Level     string         `gorm:"index;size:16" json:"level"`
	Category  string         `gorm:"index;size:32" json:"category"`
	RobotID   string         `gorm:"index;size:64" json:"robot_id,omitempty"`
	Message   string         `gorm:"type:text" json:"message"`
	Payload   datatypes.JSON `json:"payload,omitempty"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}
