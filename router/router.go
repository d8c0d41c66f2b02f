// Package router dispatches classified inbound messages to their handlers
// through a partitioned worker pool. Partitioning by robot ID preserves
// per-robot ordering while different robots are handled in parallel.
// Malformed payloads and unknown subjects are logged and dropped here;
// nothing that arrives on the wire can take the router down.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robofleet/fleetstream/jobs"
	"github.com/robofleet/fleetstream/message"
	"github.com/robofleet/fleetstream/metric"
	"github.com/robofleet/fleetstream/pkg/worker"
	"github.com/robofleet/fleetstream/scanner"
	"github.com/robofleet/fleetstream/telemetry"
)

// Defaults for the worker pool and handler deadline.
const (
	DefaultPartitions     = 4
	DefaultQueueSize      = 1024
	DefaultHandlerTimeout = 10 * time.Second
)

// Router wires the transport callback to the domain handlers.
type Router struct {
	classifier *message.Classifier
	telemetry  *telemetry.Handlers
	tracker    *jobs.Tracker
	scanner    *scanner.Responder
	metrics    *metric.Metrics
	logger     *slog.Logger

	pool           *worker.Pool[*message.Inbound]
	handlerTimeout time.Duration
}

// Option configures a Router.
type Option func(*config)

type config struct {
	partitions     int
	queueSize      int
	handlerTimeout time.Duration
}

// WithPartitions sets the number of worker partitions.
func WithPartitions(n int) Option {
	return func(c *config) {
		c.partitions = n
	}
}

// WithQueueSize sets the per-partition queue capacity.
func WithQueueSize(n int) Option {
	return func(c *config) {
		c.queueSize = n
	}
}

// WithHandlerTimeout bounds the time one message may spend in a handler.
func WithHandlerTimeout(d time.Duration) Option {
	return func(c *config) {
		c.handlerTimeout = d
	}
}

// NewRouter creates a message router.
func NewRouter(
	classifier *message.Classifier,
	telemetryHandlers *telemetry.Handlers,
	tracker *jobs.Tracker,
	scanResponder *scanner.Responder,
	metrics *metric.Metrics,
	logger *slog.Logger,
	opts ...Option,
) *Router {
	cfg := config{
		partitions:     DefaultPartitions,
		queueSize:      DefaultQueueSize,
		handlerTimeout: DefaultHandlerTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Router{
		classifier:     classifier,
		telemetry:      telemetryHandlers,
		tracker:        tracker,
		scanner:        scanResponder,
		metrics:        metrics,
		logger:         logger,
		handlerTimeout: cfg.handlerTimeout,
	}
	r.pool = worker.NewPool(cfg.partitions, cfg.queueSize, r.process)
	return r
}

// Start launches the worker pool.
func (r *Router) Start(ctx context.Context) error {
	return r.pool.Start(ctx)
}

// Stop drains the worker pool.
func (r *Router) Stop(timeout time.Duration) error {
	return r.pool.Stop(timeout)
}

// Stats exposes the pool counters, for the health endpoint.
func (r *Router) Stats() worker.PoolStats {
	return r.pool.Stats()
}

// HandleMessage is the transport callback. It classifies and decodes the
// raw message and hands it to the pool; it never blocks the network loop
// and never returns an error to the transport.
func (r *Router) HandleMessage(subject string, payload []byte) {
	inbound, err := r.classifier.Decode(subject, payload)
	if err != nil {
		reason := "malformed_payload"
		if kind, _, ok := r.classifier.Classify(subject); !ok || kind == message.KindUnknown {
			reason = "unknown_topic"
		}
		if r.metrics != nil {
			r.metrics.MessagesDropped.WithLabelValues(reason).Inc()
		}
		r.logger.Warn("Message dropped",
			"component", "Router",
			"subject", subject,
			"reason", reason,
			"error", err)
		return
	}

	if r.metrics != nil {
		r.metrics.MessagesReceived.WithLabelValues(inbound.Kind.String()).Inc()
	}

	if err := r.pool.Submit(inbound.RobotID, inbound); err != nil {
		if r.metrics != nil {
			r.metrics.MessagesDropped.WithLabelValues("queue_full").Inc()
		}
		r.logger.Warn("Message dropped, queue full",
			"component", "Router",
			"subject", subject,
			"robot_id", inbound.RobotID,
			"error", err)
	}
}

// process runs one message through its handler with panic recovery and a
// bounded deadline. Handler failures are logged and the message dropped;
// the pool keeps consuming.
func (r *Router) process(ctx context.Context, inbound *message.Inbound) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
			r.observe(inbound, time.Time{}, err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.handlerTimeout)
	defer cancel()

	start := time.Now()
	err = r.dispatch(ctx, inbound)
	r.observe(inbound, start, err)
	return err
}

func (r *Router) dispatch(ctx context.Context, inbound *message.Inbound) error {
	switch msg := inbound.Payload.(type) {
	case *message.Sensor:
		return r.telemetry.HandleSensor(ctx, msg)
	case *message.Status:
		return r.telemetry.HandleStatus(ctx, msg)
	case *message.Location:
		return r.telemetry.HandleLocation(ctx, msg)
	case *message.Battery:
		return r.telemetry.HandleBattery(ctx, msg)
	case *message.Scan:
		return r.scanner.HandleScan(ctx, msg)
	case *message.JobProgress:
		return r.handleJob(ctx, inbound.RobotID, msg)
	case *message.Servo:
		return r.telemetry.HandleServo(ctx, msg)
	case *message.Vision:
		return r.telemetry.HandleVision(ctx, msg)
	case *message.RobotLog:
		return r.telemetry.HandleLog(ctx, msg)
	case *message.CommandResponse:
		return r.telemetry.HandleCommandResponse(ctx, msg)
	default:
		return fmt.Errorf("no handler for kind %s", inbound.Kind)
	}
}

// handleJob drives the job state machine from a progress message. Status
// verbs take precedence; a bare percent updates the active job.
func (r *Router) handleJob(ctx context.Context, robotID string, msg *message.JobProgress) error {
	switch msg.Status {
	case "start", "started":
		return r.tracker.Start(ctx, robotID, msg.TotalItems)
	case "finish", "finished", "complete", "completed", "done":
		return r.tracker.Finish(ctx, robotID)
	}
	if msg.Percent != nil {
		return r.tracker.SetProgress(ctx, robotID, *msg.Percent)
	}
	r.logger.Warn("Job message without status or percent",
		"component", "Router",
		"robot_id", robotID)
	return nil
}

func (r *Router) observe(inbound *message.Inbound, start time.Time, err error) {
	kind := inbound.Kind.String()
	if r.metrics != nil {
		if !start.IsZero() {
			r.metrics.HandlerDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		}
		status := "ok"
		if err != nil {
			status = "error"
		}
		r.metrics.MessagesProcessed.WithLabelValues(kind, status).Inc()
	}
	if err != nil {
		r.logger.Error("Handler failed",
			"component", "Router",
			"kind", kind,
			"subject", inbound.Subject,
			"robot_id", inbound.RobotID,
			"error", err)
	}
}
