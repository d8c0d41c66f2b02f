// Package telemetry validates inbound robot payloads and writes normalized
// points to the time-series sink. Validation favors completeness: out-of-range
// values are flagged and written anyway, unknown metrics pass through with a
// warning. Only battery readings are clamped, because they feed alerting
// directly.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/robofleet/fleetstream/errors"
	"github.com/robofleet/fleetstream/metric"
	"github.com/robofleet/fleetstream/storage/timeseries"
)

// DefaultWriteTimeout bounds a single sink write.
const DefaultWriteTimeout = 5 * time.Second

// Writer appends points to the sink with a bounded timeout. Failed writes
// are logged and abandoned; callers drop the message rather than retry.
type Writer struct {
	sink    timeseries.Sink
	metrics *metric.Metrics
	logger  *slog.Logger
	timeout time.Duration
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriteTimeout overrides the per-write timeout.
func WithWriteTimeout(d time.Duration) WriterOption {
	return func(w *Writer) {
		w.timeout = d
	}
}

// NewWriter creates a sink writer.
func NewWriter(sink timeseries.Sink, metrics *metric.Metrics, logger *slog.Logger, opts ...WriterOption) *Writer {
	w := &Writer{
		sink:    sink,
		metrics: metrics,
		logger:  logger,
		timeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write appends points to the sink. The measurement label of the first
// point is used for metrics and logging.
func (w *Writer) Write(ctx context.Context, points []timeseries.Point) error {
	if len(points) == 0 {
		return nil
	}
	measurement := points[0].Measurement

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.sink.WritePoints(ctx, points); err != nil {
		if w.metrics != nil {
			w.metrics.SinkErrors.WithLabelValues(measurement).Inc()
		}
		w.logger.Error("Sink write failed",
			"component", "Writer",
			"measurement", measurement,
			"points", len(points),
			"error", err)
		return errors.WrapTransient(err, "Writer", "Write", "write points")
	}

	if w.metrics != nil {
		w.metrics.PointsWritten.WithLabelValues(measurement).Add(float64(len(points)))
	}
	return nil
}

// warnLimiter throttles validation warning logs so one noisy sensor cannot
// flood the log. Metrics still count every warning.
type warnLimiter struct {
	limiter *rate.Limiter
}

func newWarnLimiter() *warnLimiter {
	return &warnLimiter{limiter: rate.NewLimiter(rate.Every(time.Second), 10)}
}

func (l *warnLimiter) allow() bool {
	return l.limiter.Allow()
}
