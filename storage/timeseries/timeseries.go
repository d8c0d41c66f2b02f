// Package timeseries defines the append-only telemetry sink contract and its
// implementations. Points are never deduplicated: writing the same point
// twice produces two records.
package timeseries

import (
	"context"
	"time"
)

// Point is one normalized, timestamped telemetry record.
type Point struct {
	Measurement string            `bson:"measurement" json:"measurement"`
	Tags        map[string]string `bson:"tags" json:"tags"`
	Fields      map[string]any    `bson:"fields" json:"fields"`
	Timestamp   time.Time         `bson:"timestamp" json:"timestamp"`
}

// Sink is the write contract for the time-series store. Writes that fail are
// abandoned by callers; the sink does not retry internally.
type Sink interface {
	// WritePoints appends points to the store.
	WritePoints(ctx context.Context, points []Point) error

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}
