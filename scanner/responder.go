// Package scanner answers robot scan events. A scanned code is resolved
// against the item catalog and the result published back on the robot's
// items subject. Every scan counts as one processed job item, found or not.
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/robofleet/fleetstream/catalog"
	"github.com/robofleet/fleetstream/errors"
	"github.com/robofleet/fleetstream/events"
	"github.com/robofleet/fleetstream/jobs"
	"github.com/robofleet/fleetstream/message"
	"github.com/robofleet/fleetstream/metric"
)

// DefaultPublishTimeout bounds the reply publish.
const DefaultPublishTimeout = 5 * time.Second

// Publisher sends a payload on a subject. Satisfied by the NATS client.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// SubjectResolver maps a robot ID to its reply subject.
type SubjectResolver interface {
	ReplySubject(robotID string) string
}

// Responder handles scan events end to end: catalog lookup, job item
// accounting, reply publish and system event.
type Responder struct {
	catalog  catalog.Catalog
	tracker  *jobs.Tracker
	pub      Publisher
	subjects SubjectResolver
	events   *events.Logger
	metrics  *metric.Metrics
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time
}

// ResponderOption configures a Responder.
type ResponderOption func(*Responder)

// WithPublishTimeout overrides the reply publish timeout.
func WithPublishTimeout(d time.Duration) ResponderOption {
	return func(r *Responder) {
		r.timeout = d
	}
}

// WithResponderClock overrides the time source, for tests.
func WithResponderClock(now func() time.Time) ResponderOption {
	return func(r *Responder) {
		r.now = now
	}
}

// NewResponder creates a scan responder.
func NewResponder(
	cat catalog.Catalog,
	tracker *jobs.Tracker,
	pub Publisher,
	subjects SubjectResolver,
	eventLog *events.Logger,
	metrics *metric.Metrics,
	logger *slog.Logger,
	opts ...ResponderOption,
) *Responder {
	r := &Responder{
		catalog:  cat,
		tracker:  tracker,
		pub:      pub,
		subjects: subjects,
		events:   eventLog,
		metrics:  metrics,
		logger:   logger,
		timeout:  DefaultPublishTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleScan resolves the scanned code and publishes the outcome. The job
// item is recorded whether or not the code is known; an unknown code still
// counts as one processed item, with a minimal code-only stub.
func (r *Responder) HandleScan(ctx context.Context, msg *message.Scan) error {
	item, found := r.catalog.Lookup(ctx, msg.Code)

	reply := message.ScanReply{
		RobotID:   msg.RobotID,
		Code:      msg.Code,
		Found:     found,
		Timestamp: r.now().UTC(),
	}

	var itemLabel string
	if found {
		reply.Message = fmt.Sprintf("Item %s: %s", msg.Code, item.Name)
		raw, err := json.Marshal(item)
		if err != nil {
			return errors.WrapInvalid(err, "Responder", "HandleScan", "encode item")
		}
		reply.Item = raw
		itemLabel = item.Name
	} else {
		reply.Message = fmt.Sprintf("Unknown item code %s", msg.Code)
		reply.Item = json.RawMessage("null")
		itemLabel = msg.Code
	}

	if r.metrics != nil {
		outcome := "miss"
		if found {
			outcome = "hit"
		}
		r.metrics.ScanLookups.WithLabelValues(outcome).Inc()
	}

	if err := r.tracker.RecordItem(ctx, msg.RobotID, itemLabel); err != nil {
		r.logger.Error("Scan item not recorded",
			"component", "Responder",
			"robot_id", msg.RobotID,
			"code", msg.Code,
			"error", err)
	}

	// The system event is appended even when the reply publish fails, so
	// every scan leaves a record.
	pubErr := r.publish(ctx, msg.RobotID, reply)

	r.events.Info(ctx, events.CategoryScan, msg.RobotID, reply.Message, map[string]any{
		"code":  msg.Code,
		"found": found,
	})
	return pubErr
}

func (r *Responder) publish(ctx context.Context, robotID string, reply message.ScanReply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return errors.WrapInvalid(err, "Responder", "publish", "encode reply")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	subject := r.subjects.ReplySubject(robotID)
	if err := r.pub.Publish(ctx, subject, data); err != nil {
		return errors.WrapTransient(err, "Responder", "publish", "publish reply")
	}

	r.logger.Debug("Scan reply published",
		"component", "Responder",
		"robot_id", robotID,
		"subject", subject,
		"found", reply.Found)
	return nil
}
