package relational

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a thread-safe in-memory Store used by tests. It mirrors the
// GormStore's lookup semantics, including (nil, nil) on absence.
type MemoryStore struct {
	mu sync.Mutex

	robots     map[string]*Robot
	thresholds []*AlertThreshold
	alerts     []*Alert
	jobs       []*Job
	events     []*SystemEvent

	nextJobID uint
	fail      error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		robots:    make(map[string]*Robot),
		nextJobID: 1,
	}
}

// FailWith makes every subsequent call return err. Pass nil to heal.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// SeedThreshold inserts a threshold row for test setup.
func (s *MemoryStore) SeedThreshold(row *AlertThreshold) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *row
	s.thresholds = append(s.thresholds, &cp)
}

// UpsertRobot creates or updates the registry row keyed by RobotID.
func (s *MemoryStore) UpsertRobot(_ context.Context, robot *Robot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	cp := *robot
	if existing, ok := s.robots[robot.RobotID]; ok {
		cp.ID = existing.ID
		cp.CreatedAt = existing.CreatedAt
	}
	cp.UpdatedAt = time.Now().UTC()
	s.robots[robot.RobotID] = &cp
	return nil
}

// Robot returns a copy of the registry row, or nil.
func (s *MemoryStore) Robot(robotID string) *Robot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.robots[robotID]; ok {
		cp := *r
		return &cp
	}
	return nil
}

// FindThreshold returns the enabled robot-specific threshold row, or nil.
func (s *MemoryStore) FindThreshold(_ context.Context, robotID, metricType string) (*AlertThreshold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	for _, row := range s.thresholds {
		if row.RobotID != nil && *row.RobotID == robotID && row.MetricType == metricType && row.Enabled {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

// FindGlobalThreshold returns the enabled global threshold row, or nil.
func (s *MemoryStore) FindGlobalThreshold(_ context.Context, metricType string) (*AlertThreshold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	for _, row := range s.thresholds {
		if row.RobotID == nil && row.MetricType == metricType && row.Enabled {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

// FindUnresolvedAlert returns the most recent matching unresolved alert, or nil.
func (s *MemoryStore) FindUnresolvedAlert(
	_ context.Context, robotID, alertType, source string, since time.Time,
) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}

	var candidates []*Alert
	for _, a := range s.alerts {
		if a.RobotID == robotID && a.AlertType == alertType && a.Source == source &&
			!a.Resolved && !a.CreatedAt.Before(since) {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	cp := *candidates[0]
	return &cp, nil
}

// CreateAlert inserts a new alert row.
func (s *MemoryStore) CreateAlert(_ context.Context, alert *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	cp := *alert
	s.alerts = append(s.alerts, &cp)
	return nil
}

// UpdateAlert persists alert changes in place.
func (s *MemoryStore) UpdateAlert(_ context.Context, alert *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	for i, a := range s.alerts {
		if a.ID == alert.ID {
			cp := *alert
			s.alerts[i] = &cp
			return nil
		}
	}
	cp := *alert
	s.alerts = append(s.alerts, &cp)
	return nil
}

// Alerts returns copies of all alert rows.
func (s *MemoryStore) Alerts() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Alert, len(s.alerts))
	for i, a := range s.alerts {
		out[i] = *a
	}
	return out
}

// ActiveJob returns the robot's active job, or nil.
func (s *MemoryStore) ActiveJob(_ context.Context, robotID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	var latest *Job
	for _, j := range s.jobs {
		if j.RobotID == robotID && j.Status == JobActive {
			if latest == nil || j.StartTime.After(latest.StartTime) {
				latest = j
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// CreateJob inserts a new job row and assigns its ID.
func (s *MemoryStore) CreateJob(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	job.ID = s.nextJobID
	s.nextJobID++
	cp := *job
	s.jobs = append(s.jobs, &cp)
	return nil
}

// UpdateJob persists job progress changes.
func (s *MemoryStore) UpdateJob(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	for i, j := range s.jobs {
		if j.ID == job.ID {
			cp := *job
			s.jobs[i] = &cp
			return nil
		}
	}
	cp := *job
	s.jobs = append(s.jobs, &cp)
	return nil
}

// Jobs returns copies of all job rows.
func (s *MemoryStore) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.jobs))
	for i, j := range s.jobs {
		out[i] = *j
	}
	return out
}

// AppendSystemEvent appends one audit log entry.
func (s *MemoryStore) AppendSystemEvent(_ context.Context, event *SystemEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	cp := *event
	s.events = append(s.events, &cp)
	return nil
}

// Events returns copies of all system events.
func (s *MemoryStore) Events() []SystemEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SystemEvent, len(s.events))
	for i, e := range s.events {
		out[i] = *e
	}
	return out
}
