package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calmcp/calendar-mcp/internal/instrumentation"
)

const (
	// DefaultMetricsAddr is the default listen address for the metrics port.
	DefaultMetricsAddr = ":9090"

	metricsReadTimeout  = 10 * time.Second
	metricsWriteTimeout = 10 * time.Second
	metricsIdleTimeout  = 60 * time.Second
)

// MetricsServerConfig configures the dedicated metrics listener.
type MetricsServerConfig struct {
	// Addr is the bind address, e.g. ":9090".
	Addr string

	// Enabled determines whether the metrics server should be started.
	Enabled bool

	// InstrumentationProvider must carry a prometheus pull reader; the
	// scrape endpoint has nothing to serve otherwise.
	InstrumentationProvider *instrumentation.Provider
}

// MetricsServer exposes /metrics on its own port, separate from the MCP
// transport, so scrape traffic never mixes with tool traffic and the
// metrics port can be firewalled independently.
type MetricsServer struct {
	httpServer *http.Server
	addr       string
}

// NewMetricsServer validates the configuration and builds the server.
// It refuses a provider without a prometheus reader: an OTLP-only
// configuration pushes its metrics and has nothing to scrape.
func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	if config.Addr == "" {
		config.Addr = DefaultMetricsAddr
	}

	if config.InstrumentationProvider == nil {
		return nil, fmt.Errorf("instrumentation provider is required for metrics server")
	}
	if !config.InstrumentationProvider.Enabled() {
		return nil, fmt.Errorf("instrumentation provider is not enabled")
	}
	if !config.InstrumentationProvider.HasPrometheusReader() {
		return nil, fmt.Errorf("metrics server requires the prometheus exporter (got a push-based exporter)")
	}

	return &MetricsServer{
		addr: config.Addr,
	}, nil
}

// Start serves the scrape endpoint. Blocking; run in a goroutine for
// non-blocking operation.
func (s *MetricsServer) Start() error {
	mux := http.NewServeMux()

	// The otel prometheus reader registers into the default registry,
	// which promhttp.Handler serves.
	mux.Handle("/metrics", promhttp.Handler())

	// Liveness for the metrics listener itself; the MCP transport has
	// its own probes.
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadTimeout,
		WriteTimeout:      metricsWriteTimeout,
		IdleTimeout:       metricsIdleTimeout,
	}

	slog.Info("starting metrics server", "addr", s.addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains the metrics listener.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		slog.Info("shutting down metrics server")
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Addr returns the configured bind address.
func (s *MetricsServer) Addr() string {
	return s.addr
}
