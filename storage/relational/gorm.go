package relational

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/robofleet/fleetstream/errors"
)

// GormStore implements Store on top of GORM with the Postgres driver.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the database and migrates the engine's tables.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "GormStore", "NewGormStore", "open database")
	}

	if err := db.AutoMigrate(&Robot{}, &AlertThreshold{}, &Alert{}, &Job{}, &SystemEvent{}); err != nil {
		return nil, errors.WrapFatal(err, "GormStore", "NewGormStore", "migrate schema")
	}

	return &GormStore{db: db}, nil
}

// NewGormStoreFromDB wraps an already-opened gorm.DB, running the schema
// migration against it. Callers that manage the connection themselves, for
// example to share a pool or scope a transaction, build the store this way.
func NewGormStoreFromDB(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&Robot{}, &AlertThreshold{}, &Alert{}, &Job{}, &SystemEvent{}); err != nil {
		return nil, errors.WrapFatal(err, "GormStore", "NewGormStoreFromDB", "migrate schema")
	}
	return &GormStore{db: db}, nil
}

// UpsertRobot creates or updates the registry row keyed by RobotID.
func (s *GormStore) UpsertRobot(ctx context.Context, robot *Robot) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "robot_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "last_seen", "ip_address", "camera_url", "updated_at"}),
	}).Create(robot).Error
	if err != nil {
		return errors.WrapTransient(err, "GormStore", "UpsertRobot", "upsert robot")
	}
	return nil
}

// FindThreshold returns the enabled robot-specific threshold row, or nil.
func (s *GormStore) FindThreshold(ctx context.Context, robotID, metricType string) (*AlertThreshold, error) {
	var row AlertThreshold
	err := s.db.WithContext(ctx).
		Where("robot_id = ? AND metric_type = ? AND enabled = ?", robotID, metricType, true).
		First(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "GormStore", "FindThreshold", "query threshold")
	}
	return &row, nil
}

// FindGlobalThreshold returns the enabled global threshold row, or nil.
func (s *GormStore) FindGlobalThreshold(ctx context.Context, metricType string) (*AlertThreshold, error) {
	var row AlertThreshold
	err := s.db.WithContext(ctx).
		Where("robot_id IS NULL AND metric_type = ? AND enabled = ?", metricType, true).
		First(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "GormStore", "FindGlobalThreshold", "query threshold")
	}
	return &row, nil
}

// FindUnresolvedAlert returns the most recent matching unresolved alert, or nil.
func (s *GormStore) FindUnresolvedAlert(
	ctx context.Context, robotID, alertType, source string, since time.Time,
) (*Alert, error) {
	var row Alert
	err := s.db.WithContext(ctx).
		Where("robot_id = ? AND alert_type = ? AND source = ? AND resolved = ? AND created_at >= ?",
			robotID, alertType, source, false, since).
		Order("created_at DESC").
		First(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "GormStore", "FindUnresolvedAlert", "query alert")
	}
	return &row, nil
}

// CreateAlert inserts a new alert row.
func (s *GormStore) CreateAlert(ctx context.Context, alert *Alert) error {
	if err := s.db.WithContext(ctx).Create(alert).Error; err != nil {
		return errors.WrapTransient(err, "GormStore", "CreateAlert", "insert alert")
	}
	return nil
}

// UpdateAlert persists alert changes in place.
func (s *GormStore) UpdateAlert(ctx context.Context, alert *Alert) error {
	if err := s.db.WithContext(ctx).Save(alert).Error; err != nil {
		return errors.WrapTransient(err, "GormStore", "UpdateAlert", "update alert")
	}
	return nil
}

// ActiveJob returns the robot's active job, or nil.
func (s *GormStore) ActiveJob(ctx context.Context, robotID string) (*Job, error) {
	var row Job
	err := s.db.WithContext(ctx).
		Where("robot_id = ? AND status = ?", robotID, JobActive).
		Order("start_time DESC").
		First(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "GormStore", "ActiveJob", "query job")
	}
	return &row, nil
}

// CreateJob inserts a new job row.
func (s *GormStore) CreateJob(ctx context.Context, job *Job) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return errors.WrapTransient(err, "GormStore", "CreateJob", "insert job")
	}
	return nil
}

// UpdateJob persists job progress changes.
func (s *GormStore) UpdateJob(ctx context.Context, job *Job) error {
	if err := s.db.WithContext(ctx).Save(job).Error; err != nil {
		return errors.WrapTransient(err, "GormStore", "UpdateJob", "update job")
	}
	return nil
}

// AppendSystemEvent appends one audit log entry.
func (s *GormStore) AppendSystemEvent(ctx context.Context, event *SystemEvent) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return errors.WrapTransient(err, "GormStore", "AppendSystemEvent", "insert event")
	}
	return nil
}
