// Package jobs tracks per-robot job progress. A robot has at most one
// active job at a time; starting a new job force-completes the previous
// one. Item and progress events implicitly start a job when none is
// active, via an explicit ensureActiveJob transition so the side effect
// is testable on its own.
package jobs

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/robofleet/fleetstream/errors"
	"github.com/robofleet/fleetstream/events"
	"github.com/robofleet/fleetstream/metric"
	"github.com/robofleet/fleetstream/storage/relational"
)

// historyLimit caps the in-memory item history kept per robot. The
// history is a UI convenience, not authoritative, and is lost on restart.
const historyLimit = 200

// Tracker is the job state machine. The relational store is the source
// of truth; the per-robot lock arena serializes read-modify-write
// sequences for a single robot while letting different robots proceed
// in parallel.
type Tracker struct {
	store   relational.Store
	events  *events.Logger
	metrics *metric.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	history map[string][]string
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerClock overrides the time source, for tests.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates a job progress tracker.
func NewTracker(
	store relational.Store,
	eventLog *events.Logger,
	metrics *metric.Metrics,
	logger *slog.Logger,
	opts ...TrackerOption,
) *Tracker {
	t := &Tracker{
		store:   store,
		events:  eventLog,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
		history: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// robotLock returns the mutex guarding one robot's job state.
func (t *Tracker) robotLock(robotID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[robotID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[robotID] = l
	}
	return l
}

// Start begins a new job for the robot. Any prior active job is
// force-completed first.
func (t *Tracker) Start(ctx context.Context, robotID string, totalItems int) error {
	l := t.robotLock(robotID)
	l.Lock()
	defer l.Unlock()

	if err := t.completeActive(ctx, robotID); err != nil {
		return err
	}

	job := &relational.Job{
		RobotID:    robotID,
		StartTime:  t.now().UTC(),
		ItemsTotal: totalItems,
		Status:     relational.JobActive,
	}
	if err := t.store.CreateJob(ctx, job); err != nil {
		return errors.Wrap(err, "Tracker", "Start", "create job")
	}

	t.mu.Lock()
	t.history[robotID] = nil
	t.mu.Unlock()

	t.recordTransition("start")
	t.logger.Info("Job started",
		"component", "Tracker",
		"robot_id", robotID,
		"job_id", job.ID,
		"items_total", totalItems)
	t.events.Info(ctx, events.CategoryJob, robotID, "Job started", map[string]any{
		"job_id":      job.ID,
		"items_total": totalItems,
	})
	return nil
}

// RecordItem counts one processed item against the robot's active job,
// implicitly starting a job with unknown total when none is active.
func (t *Tracker) RecordItem(ctx context.Context, robotID, item string) error {
	l := t.robotLock(robotID)
	l.Lock()
	defer l.Unlock()

	job, err := t.ensureActiveJob(ctx, robotID)
	if err != nil {
		return err
	}

	job.ItemsDone++
	job.LastItem = item
	if job.ItemsTotal > 0 {
		job.PercentComplete = round2(float64(job.ItemsDone) / float64(job.ItemsTotal) * 100)
	}
	if err := t.store.UpdateJob(ctx, job); err != nil {
		return errors.Wrap(err, "Tracker", "RecordItem", "update job")
	}

	t.mu.Lock()
	h := append(t.history[robotID], item)
	if len(h) > historyLimit {
		h = h[len(h)-historyLimit:]
	}
	t.history[robotID] = h
	t.mu.Unlock()

	t.recordTransition("item")
	t.logger.Debug("Job item recorded",
		"component", "Tracker",
		"robot_id", robotID,
		"item", item,
		"items_done", job.ItemsDone,
		"percent", job.PercentComplete)
	return nil
}

// SetProgress overwrites the active job's completion percentage,
// implicitly starting a job when none is active. The value is taken as
// reported, without clamping.
func (t *Tracker) SetProgress(ctx context.Context, robotID string, percent float64) error {
	l := t.robotLock(robotID)
	l.Lock()
	defer l.Unlock()

	job, err := t.ensureActiveJob(ctx, robotID)
	if err != nil {
		return err
	}

	job.PercentComplete = percent
	if err := t.store.UpdateJob(ctx, job); err != nil {
		return errors.Wrap(err, "Tracker", "SetProgress", "update job")
	}

	t.recordTransition("progress")
	return nil
}

// Finish completes the robot's active job, forcing percent to 100.
// No-op when no job is active.
func (t *Tracker) Finish(ctx context.Context, robotID string) error {
	l := t.robotLock(robotID)
	l.Lock()
	defer l.Unlock()

	job, err := t.store.ActiveJob(ctx, robotID)
	if err != nil {
		return errors.Wrap(err, "Tracker", "Finish", "load active job")
	}
	if job == nil {
		return nil
	}

	end := t.now().UTC()
	job.EndTime = &end
	job.PercentComplete = 100
	job.Status = relational.JobCompleted
	if err := t.store.UpdateJob(ctx, job); err != nil {
		return errors.Wrap(err, "Tracker", "Finish", "update job")
	}

	t.recordTransition("finish")
	t.logger.Info("Job finished",
		"component", "Tracker",
		"robot_id", robotID,
		"job_id", job.ID,
		"items_done", job.ItemsDone)
	t.events.Info(ctx, events.CategoryJob, robotID, "Job finished", map[string]any{
		"job_id":     job.ID,
		"items_done": job.ItemsDone,
	})
	return nil
}

// History returns a copy of the robot's in-memory item history.
func (t *Tracker) History(robotID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.history[robotID]
	out := make([]string, len(h))
	copy(out, h)
	return out
}

// ensureActiveJob loads the robot's active job, creating one with an
// unknown item total when none exists. Callers hold the robot lock.
func (t *Tracker) ensureActiveJob(ctx context.Context, robotID string) (*relational.Job, error) {
	job, err := t.store.ActiveJob(ctx, robotID)
	if err != nil {
		return nil, errors.Wrap(err, "Tracker", "ensureActiveJob", "load active job")
	}
	if job != nil {
		return job, nil
	}

	job = &relational.Job{
		RobotID:   robotID,
		StartTime: t.now().UTC(),
		Status:    relational.JobActive,
	}
	if err := t.store.CreateJob(ctx, job); err != nil {
		return nil, errors.Wrap(err, "Tracker", "ensureActiveJob", "create job")
	}

	t.recordTransition("implicit_start")
	t.logger.Info("Job implicitly started",
		"component", "Tracker",
		"robot_id", robotID,
		"job_id", job.ID)
	return job, nil
}

// completeActive force-completes the robot's active job if one exists.
// Callers hold the robot lock.
func (t *Tracker) completeActive(ctx context.Context, robotID string) error {
	job, err := t.store.ActiveJob(ctx, robotID)
	if err != nil {
		return errors.Wrap(err, "Tracker", "completeActive", "load active job")
	}
	if job == nil {
		return nil
	}

	end := t.now().UTC()
	job.EndTime = &end
	job.Status = relational.JobCompleted
	if err := t.store.UpdateJob(ctx, job); err != nil {
		return errors.Wrap(err, "Tracker", "completeActive", "update job")
	}

	t.recordTransition("force_complete")
	t.logger.Warn("Prior active job force-completed",
		"component", "Tracker",
		"robot_id", robotID,
		"job_id", job.ID)
	return nil
}

func (t *Tracker) recordTransition(transition string) {
	if t.metrics != nil {
		t.metrics.JobTransitions.WithLabelValues(transition).Inc()
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
