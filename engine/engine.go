// Package engine wires the ingestion pipeline together: transport, router,
// telemetry handlers, alerting, job tracking, scan responses and the
// metrics/health listener. It owns the lifecycle of all of them.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/robofleet/fleetstream/alerting"
	"github.com/robofleet/fleetstream/catalog"
	"github.com/robofleet/fleetstream/config"
	"github.com/robofleet/fleetstream/events"
	"github.com/robofleet/fleetstream/jobs"
	"github.com/robofleet/fleetstream/message"
	"github.com/robofleet/fleetstream/metric"
	"github.com/robofleet/fleetstream/natsclient"
	"github.com/robofleet/fleetstream/pkg/retry"
	"github.com/robofleet/fleetstream/router"
	"github.com/robofleet/fleetstream/scanner"
	"github.com/robofleet/fleetstream/storage/relational"
	"github.com/robofleet/fleetstream/storage/timeseries"
	"github.com/robofleet/fleetstream/telemetry"
)

const shutdownGrace = 10 * time.Second

// Engine is the composition root of the ingestion pipeline.
type Engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *metric.Registry

	nats       *natsclient.Client
	sink       timeseries.Sink
	store      relational.Store
	classifier *message.Classifier
	router     *router.Router
	httpServer *http.Server
}

// Option overrides a dependency, used by tests to inject fakes.
type Option func(*deps)

type deps struct {
	sink    timeseries.Sink
	store   relational.Store
	catalog catalog.Catalog
	nats    *natsclient.Client
}

// WithSink injects a time-series sink.
func WithSink(sink timeseries.Sink) Option {
	return func(d *deps) {
		d.sink = sink
	}
}

// WithStore injects a relational store.
func WithStore(store relational.Store) Option {
	return func(d *deps) {
		d.store = store
	}
}

// WithCatalog injects an item catalog.
func WithCatalog(cat catalog.Catalog) Option {
	return func(d *deps) {
		d.catalog = cat
	}
}

// WithNATSClient injects a transport client.
func WithNATSClient(client *natsclient.Client) Option {
	return func(d *deps) {
		d.nats = client
	}
}

// New builds the engine from configuration. Dependencies not injected via
// options are constructed from their config sections; the Mongo and
// Postgres connections are established here.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	var d deps
	for _, opt := range opts {
		opt(&d)
	}

	registry := metric.NewRegistry()
	metrics := registry.Metrics

	if d.sink == nil {
		sink, err := timeseries.NewMongoSink(ctx, timeseries.MongoConfig{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
			Timeout:    cfg.Mongo.Timeout.Std(),
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("time-series sink: %w", err)
		}
		d.sink = sink
	}

	if d.store == nil {
		store, err := relational.NewGormStore(cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("relational store: %w", err)
		}
		d.store = store
	}

	if d.catalog == nil {
		if cfg.Catalog.Path != "" {
			cat, err := catalog.LoadFile(cfg.Catalog.Path)
			if err != nil {
				return nil, fmt.Errorf("item catalog: %w", err)
			}
			logger.Info("Item catalog loaded",
				"component", "Engine",
				"path", cfg.Catalog.Path,
				"items", cat.Size())
			d.catalog = cat
		} else {
			d.catalog = catalog.NewStaticCatalog(nil)
		}
	}

	if d.nats == nil {
		client, err := natsclient.NewClient(cfg.NATS.URL,
			natsclient.WithName("fleetstream"),
			natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
			natsclient.WithReconnectWait(cfg.NATS.ReconnectWait.Std()),
			natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password),
			natsclient.WithToken(cfg.NATS.Token),
			natsclient.WithLogger(logger),
			natsclient.WithMetrics(metrics),
		)
		if err != nil {
			return nil, fmt.Errorf("nats client: %w", err)
		}
		d.nats = client
	}

	classifier := message.NewClassifier(cfg.NATS.SubjectPrefix)
	eventLog := events.NewLogger(d.store, logger)
	evaluator := alerting.NewEvaluator(d.store, logger)
	alerter := alerting.NewAlerter(d.store, eventLog, metrics, logger,
		alerting.WithDedupWindow(cfg.Alerting.DedupWindow.Std()))
	tracker := jobs.NewTracker(d.store, eventLog, metrics, logger)
	handlers := telemetry.NewHandlers(
		telemetry.NewWriter(d.sink, metrics, logger),
		d.store, evaluator, alerter, eventLog, metrics, logger,
	)
	responder := scanner.NewResponder(
		d.catalog, tracker, d.nats, classifier, eventLog, metrics, logger,
	)

	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		nats:       d.nats,
		sink:       d.sink,
		store:      d.store,
		classifier: classifier,
	}
	e.router = router.NewRouter(classifier, handlers, tracker, responder, metrics, logger,
		router.WithPartitions(cfg.Router.Partitions),
		router.WithQueueSize(cfg.Router.QueueSize),
		router.WithHandlerTimeout(cfg.Router.HandlerTimeout.Std()),
	)
	e.httpServer = &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           e.buildHTTPHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return e, nil
}

// Run connects to the broker, subscribes to all robot subjects and serves
// metrics until ctx is cancelled, then shuts everything down in order.
func (e *Engine) Run(ctx context.Context) error {
	connect := func() error {
		return e.nats.Connect(ctx)
	}
	if err := retry.Do(ctx, retry.Persistent(), connect); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	if err := e.router.Start(ctx); err != nil {
		return fmt.Errorf("start router: %w", err)
	}

	for _, subject := range e.classifier.Subscriptions() {
		if err := e.nats.Subscribe(ctx, subject, e.router.HandleMessage); err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
	}
	e.logger.Info("Engine started",
		"component", "Engine",
		"subjects", len(e.classifier.Subscriptions()),
		"listen_addr", e.cfg.HTTP.ListenAddr)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := e.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http listener: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		e.shutdown()
		return nil
	})

	return g.Wait()
}

// shutdown tears the pipeline down back to front: stop accepting HTTP,
// close the transport so no new messages arrive, drain the pool, then
// close the stores.
func (e *Engine) shutdown() {
	e.logger.Info("Engine shutting down", "component", "Engine")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := e.httpServer.Shutdown(ctx); err != nil {
		e.logger.Error("HTTP shutdown failed", "component", "Engine", "error", err)
	}
	if err := e.nats.Close(ctx); err != nil {
		e.logger.Error("NATS close failed", "component", "Engine", "error", err)
	}
	if err := e.router.Stop(shutdownGrace); err != nil {
		e.logger.Error("Router stop failed", "component", "Engine", "error", err)
	}
	if err := e.sink.Close(ctx); err != nil {
		e.logger.Error("Sink close failed", "component", "Engine", "error", err)
	}

	e.logger.Info("Engine stopped", "component", "Engine")
}
