package timeseries

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/robofleet/fleetstream/errors"
)

// MongoSink writes telemetry points into a MongoDB time-series collection.
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
}

// MongoConfig configures the Mongo sink.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
	Logger     *slog.Logger
}

// NewMongoSink connects to MongoDB and ensures the time-series collection
// and its indexes exist.
func NewMongoSink(ctx context.Context, cfg MongoConfig) (*MongoSink, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.WrapTransient(err, "MongoSink", "NewMongoSink", "connect")
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.WrapTransient(err, "MongoSink", "NewMongoSink", "ping")
	}

	db := client.Database(cfg.Database)

	tsOptions := options.CreateCollection().SetTimeSeriesOptions(
		options.TimeSeries().
			SetTimeField("timestamp").
			SetMetaField("tags").
			SetGranularity("seconds"),
	)

	createCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	// Idempotent: creation fails with NamespaceExists on restart, which is
	// fine.
	_ = db.CreateCollection(createCtx, cfg.Collection, tsOptions)
	collection := db.Collection(cfg.Collection)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "tags.robot_id", Value: 1}, {Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "measurement", Value: 1}, {Key: "timestamp", Value: 1}}},
	}
	if _, err := collection.Indexes().CreateMany(createCtx, indexes); err != nil {
		// Not fatal for an append-only sink, but queries will be slow.
		cfg.Logger.Warn("Telemetry index creation failed",
			"component", "MongoSink",
			"collection", cfg.Collection,
			"error", err)
	}

	return &MongoSink{
		client:     client,
		collection: collection,
		timeout:    cfg.Timeout,
	}, nil
}

// WritePoints appends points with a bounded timeout so a hung sink cannot
// stall the caller indefinitely.
func (s *MongoSink) WritePoints(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	docs := make([]any, len(points))
	for i, p := range points {
		docs[i] = p
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.InsertMany().SetOrdered(false)
	if _, err := s.collection.InsertMany(writeCtx, docs, opts); err != nil {
		return errors.WrapTransient(err, "MongoSink", "WritePoints", "insert points")
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *MongoSink) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return errors.WrapTransient(err, "MongoSink", "Close", "disconnect")
	}
	return nil
}
