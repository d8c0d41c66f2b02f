package engine

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthResponse is the /healthz body.
type healthResponse struct {
	Status     string `json:"status"`
	NATS       string `json:"nats"`
	Submitted  int64  `json:"messages_submitted"`
	Processed  int64  `json:"messages_processed"`
	Failed     int64  `json:"messages_failed"`
	Dropped    int64  `json:"messages_dropped"`
	QueueDepth int    `json:"queue_depth"`
}

func (e *Engine) buildHTTPHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(
		e.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		stats := e.router.Stats()
		resp := healthResponse{
			Status:     "ok",
			NATS:       e.nats.Status().String(),
			Submitted:  stats.Submitted,
			Processed:  stats.Processed,
			Failed:     stats.Failed,
			Dropped:    stats.Dropped,
			QueueDepth: stats.QueueDepth,
		}
		code := http.StatusOK
		if !e.nats.IsHealthy() {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	})

	return r
}
