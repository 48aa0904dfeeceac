package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/ajitpratap0/mcp-conformance/pkg/logging"
)

// MetricsConfig configures the metrics provider
type MetricsConfig struct {
	// Service identification
	ServiceName    string
	ServiceVersion string

	// Exposition. An empty ListenAddr disables the HTTP endpoint; an empty
	// PushGatewayURL disables Push.
	ListenAddr     string // e.g. ":9090"
	MetricsPath    string // default: /metrics
	PushGatewayURL string
	PushJob        string // default: mcpcheck

	// Metric options
	Namespace        string    // Prometheus namespace (default: mcpcheck)
	HistogramBuckets []float64 // Custom histogram buckets for latency in milliseconds

	// Labels to add to all metrics
	ConstLabels prometheus.Labels

	Logger logging.Logger
}

// MetricsProvider records what the harness observes during a run
type MetricsProvider interface {
	// RecordRequest records one JSON-RPC call and its outcome
	RecordRequest(ctx context.Context, method, status string, duration time.Duration)
	// RecordStep records a finished run step by kind and outcome
	RecordStep(ctx context.Context, kind, outcome string, duration time.Duration)
	// RecordMessage records a frame crossing the channel
	RecordMessage(ctx context.Context, direction string, bytes int)
	// RecordConnectionState marks state as the current connection state
	RecordConnectionState(ctx context.Context, state string)
	// RecordRunState marks state as the current run state
	RecordRunState(ctx context.Context, state string)

	Start(ctx context.Context) error
	// Push sends the collected metrics to the Pushgateway, grouped by run id
	Push(ctx context.Context, runID string) error
	Shutdown(ctx context.Context) error
}

// Connection states reported through RecordConnectionState.
const (
	ConnectionStateConnecting   = "connecting"
	ConnectionStateConnected    = "connected"
	ConnectionStateDisconnected = "disconnected"
)

var connectionStates = []string{ConnectionStateConnecting, ConnectionStateConnected, ConnectionStateDisconnected}

// PrometheusMetricsProvider implements MetricsProvider using Prometheus. Each
// provider owns its registry so several runs can live in one process.
type PrometheusMetricsProvider struct {
	config   MetricsConfig
	registry *prometheus.Registry
	logger   logging.Logger

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	stepTotal       *prometheus.CounterVec
	messageTotal    *prometheus.CounterVec
	messageBytes    *prometheus.CounterVec
	connectionState *prometheus.GaugeVec
	runState        *prometheus.GaugeVec

	mu        sync.Mutex
	server    *http.Server
	listener  net.Listener
	runStates map[string]struct{}
}

// NewMetricsProvider creates a new Prometheus metrics provider
func NewMetricsProvider(config MetricsConfig) (*PrometheusMetricsProvider, error) {
	if config.Namespace == "" {
		config.Namespace = "mcpcheck"
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.PushJob == "" {
		config.PushJob = "mcpcheck"
	}
	if config.HistogramBuckets == nil {
		config.HistogramBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}
	}
	if config.Logger == nil {
		config.Logger = logging.NewNop()
	}

	constLabels := prometheus.Labels{}
	for k, v := range config.ConstLabels {
		constLabels[k] = v
	}
	if config.ServiceName != "" {
		constLabels["service"] = config.ServiceName
	}
	if config.ServiceVersion != "" {
		constLabels["version"] = config.ServiceVersion
	}
	config.ConstLabels = constLabels

	provider := &PrometheusMetricsProvider{
		config:    config,
		registry:  prometheus.NewRegistry(),
		logger:    config.Logger.WithFields(logging.String(logging.ComponentKey, "metrics")),
		runStates: make(map[string]struct{}),
	}
	provider.initializeMetrics()

	if err := provider.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return provider, nil
}

func (p *PrometheusMetricsProvider) initializeMetrics() {
	ns := p.config.Namespace
	labels := p.config.ConstLabels

	p.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   ns,
			Name:        "request_duration_milliseconds",
			Help:        "Duration of JSON-RPC calls in milliseconds",
			Buckets:     p.config.HistogramBuckets,
			ConstLabels: labels,
		},
		[]string{"method", "status"},
	)

	p.requestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "request_total",
			Help:        "Total number of JSON-RPC calls",
			ConstLabels: labels,
		},
		[]string{"method", "status"},
	)

	p.stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   ns,
			Name:        "step_duration_milliseconds",
			Help:        "Duration of run steps in milliseconds",
			Buckets:     p.config.HistogramBuckets,
			ConstLabels: labels,
		},
		[]string{"kind"},
	)

	p.stepTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "step_total",
			Help:        "Total number of run steps by outcome",
			ConstLabels: labels,
		},
		[]string{"kind", "outcome"},
	)

	p.messageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "message_total",
			Help:        "Frames sent and received",
			ConstLabels: labels,
		},
		[]string{"direction"},
	)

	p.messageBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "message_bytes_total",
			Help:        "Bytes sent and received",
			ConstLabels: labels,
		},
		[]string{"direction"},
	)

	p.connectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "connection_state",
			Help:        "Current connection state (1 for the active state)",
			ConstLabels: labels,
		},
		[]string{"state"},
	)

	p.runState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "run_state",
			Help:        "Current run state (1 for the active state)",
			ConstLabels: labels,
		},
		[]string{"state"},
	)
}

func (p *PrometheusMetricsProvider) registerMetrics() error {
	collectors := []prometheus.Collector{
		p.requestDuration,
		p.requestTotal,
		p.stepDuration,
		p.stepTotal,
		p.messageTotal,
		p.messageBytes,
		p.connectionState,
		p.runState,
	}

	for _, collector := range collectors {
		if err := p.registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns the provider's registry
func (p *PrometheusMetricsProvider) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusMetricsProvider) RecordRequest(ctx context.Context, method, status string, duration time.Duration) {
	p.requestDuration.WithLabelValues(method, status).Observe(float64(duration.Milliseconds()))
	p.requestTotal.WithLabelValues(method, status).Inc()
}

func (p *PrometheusMetricsProvider) RecordStep(ctx context.Context, kind, outcome string, duration time.Duration) {
	p.stepDuration.WithLabelValues(kind).Observe(float64(duration.Milliseconds()))
	p.stepTotal.WithLabelValues(kind, outcome).Inc()
}

func (p *PrometheusMetricsProvider) RecordMessage(ctx context.Context, direction string, bytes int) {
	p.messageTotal.WithLabelValues(direction).Inc()
	p.messageBytes.WithLabelValues(direction).Add(float64(bytes))
}

func (p *PrometheusMetricsProvider) RecordConnectionState(ctx context.Context, state string) {
	for _, s := range connectionStates {
		p.connectionState.WithLabelValues(s).Set(0)
	}
	p.connectionState.WithLabelValues(state).Set(1)
}

func (p *PrometheusMetricsProvider) RecordRunState(ctx context.Context, state string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for s := range p.runStates {
		p.runState.WithLabelValues(s).Set(0)
	}
	p.runStates[state] = struct{}{}
	p.runState.WithLabelValues(state).Set(1)
}

// Start serves the registry over HTTP when a listen address is configured.
// The listener is bound before Start returns so a bad address is reported to
// the caller.
func (p *PrometheusMetricsProvider) Start(ctx context.Context) error {
	if p.config.ListenAddr == "" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.server != nil {
		return nil
	}

	listener, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", p.config.ListenAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(p.config.MetricsPath, promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))

	p.listener = listener
	p.server = &http.Server{
		Handler:           logging.HTTPMiddleware(p.logger)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func(srv *http.Server) {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.WithError(err).Error("Metrics server stopped")
		}
	}(p.server)

	p.logger.Info("Serving metrics",
		logging.String("addr", listener.Addr().String()),
		logging.String("path", p.config.MetricsPath))
	return nil
}

// Addr returns the bound metrics address, or "" when not serving
func (p *PrometheusMetricsProvider) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Push sends the registry to the configured Pushgateway. It is a no-op when
// no gateway is configured.
func (p *PrometheusMetricsProvider) Push(ctx context.Context, runID string) error {
	if p.config.PushGatewayURL == "" {
		return nil
	}

	pusher := push.New(p.config.PushGatewayURL, p.config.PushJob).Gatherer(p.registry)
	if runID != "" {
		pusher = pusher.Grouping("run_id", runID)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", p.config.PushGatewayURL, err)
	}

	p.logger.Debug("Pushed metrics", logging.String("gateway", p.config.PushGatewayURL))
	return nil
}

// Shutdown gracefully shuts down the metrics server
func (p *PrometheusMetricsProvider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	srv := p.server
	p.server = nil
	p.listener = nil
	p.mu.Unlock()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// NoopMetricsProvider discards everything
type NoopMetricsProvider struct{}

// NewNoopMetricsProvider returns a provider that records nothing
func NewNoopMetricsProvider() MetricsProvider {
	return NoopMetricsProvider{}
}

func (NoopMetricsProvider) RecordRequest(context.Context, string, string, time.Duration) {}
func (NoopMetricsProvider) RecordStep(context.Context, string, string, time.Duration)    {}
func (NoopMetricsProvider) RecordMessage(context.Context, string, int)                   {}
func (NoopMetricsProvider) RecordConnectionState(context.Context, string)                {}
func (NoopMetricsProvider) RecordRunState(context.Context, string)                       {}
func (NoopMetricsProvider) Start(context.Context) error                                  { return nil }
func (NoopMetricsProvider) Push(context.Context, string) error                           { return nil }
func (NoopMetricsProvider) Shutdown(context.Context) error                               { return nil }
