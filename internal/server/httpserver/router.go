package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/volodymyrd/echarlar/internal/storage"
	"github.com/volodymyrd/echarlar/internal/telemetry/logger"
)

// Health check paths.
const (
	PathHealth = "/healthz"
	PathReady  = "/readyz"
)

// RouterConfig configures the operational router.
type RouterConfig struct {
	// MetricsPath is the path Prometheus metrics are served on.
	MetricsPath string

	// Registry gathers the exposed metrics and receives the router's own.
	Registry *prometheus.Registry

	// Store is probed by the readiness check.
	Store storage.Store

	Logger logger.Logger

	// RateLimit and RateBurst configure per-client rate limiting.
	RateLimit float64
	RateBurst int
}

// NewRouter returns the handler for metrics and health endpoints.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	mux := http.NewServeMux()
	metrics := promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{
		Registry: cfg.Registry,
		ErrorLog: slog.NewLogLogger(slogOf(log).Handler(), slog.LevelError),
	})
	mux.Handle(cfg.MetricsPath, promhttp.InstrumentMetricHandler(cfg.Registry, metrics))
	mux.HandleFunc(PathHealth, handleHealth)
	mux.Handle(PathReady, readyHandler(cfg.Store))

	return Chain(mux,
		RequestID(log),
		AccessLog(),
		Recover(),
		RateLimit(cfg.RateLimit, cfg.RateBurst),
	)
}
