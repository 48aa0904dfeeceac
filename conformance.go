package conformance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ajitpratap0/mcp-conformance/pkg/auth"
	"github.com/ajitpratap0/mcp-conformance/pkg/client"
	"github.com/ajitpratap0/mcp-conformance/pkg/config"
	"github.com/ajitpratap0/mcp-conformance/pkg/harness"
	"github.com/ajitpratap0/mcp-conformance/pkg/logging"
	"github.com/ajitpratap0/mcp-conformance/pkg/observability"
	"github.com/ajitpratap0/mcp-conformance/pkg/transport"
)

// Version of the harness, announced as the service version in metrics and
// traces
const Version = "1.0.0"

// ServiceName identifies the harness in metrics and traces
const ServiceName = "mcpcheck"

// These exports give direct access to the pieces Run wires together
var (
	// LoadConfig reads the configuration from MCPCHECK_ variables
	LoadConfig = config.Load

	// DefaultScenario returns the BrewSource scenario
	DefaultScenario = harness.DefaultScenario

	// LoadScenario reads a YAML scenario file
	LoadScenario = harness.LoadScenario

	// NewSequencer creates a sequencer over an existing client
	NewSequencer = harness.NewSequencer
)

const shutdownTimeout = 10 * time.Second

// Option customises Run
type Option func(*runOptions)

type runOptions struct {
	logOutput   io.Writer
	stdin       io.Reader
	stdout      io.Writer
	runID       string
	spanExports sdktrace.SpanExporter
}

// WithLogOutput sets where logs are written. Defaults to os.Stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *runOptions) {
		o.logOutput = w
	}
}

// WithStdio sets the streams of the stdio transport
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(o *runOptions) {
		o.stdin = in
		o.stdout = out
	}
}

// WithRunID fixes the run id instead of generating one
func WithRunID(runID string) Option {
	return func(o *runOptions) {
		o.runID = runID
	}
}

// WithSpanExporter enables tracing with exporter regardless of the OTLP
// settings
func WithSpanExporter(exporter sdktrace.SpanExporter) Option {
	return func(o *runOptions) {
		o.spanExports = exporter
	}
}

// Run executes one conformance run as configured by cfg and writes the
// report to out. The report is returned even when the run aborts; the error
// is the fatal error that ended it or a setup failure.
func Run(ctx context.Context, cfg *config.Config, out io.Writer, options ...Option) (*harness.Report, error) {
	opts := runOptions{logOutput: os.Stderr}
	for _, option := range options {
		option(&opts)
	}
	if opts.runID == "" {
		opts.runID = uuid.NewString()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg, opts.logOutput)
	if err != nil {
		return nil, err
	}
	ctx = logging.ContextWithRunID(ctx, opts.runID)

	creds, err := auth.New(auth.Config{
		Token:        cfg.AuthToken,
		APIKey:       cfg.APIKey,
		APIKeyHeader: cfg.APIKeyHeader,
	})
	if err != nil {
		return nil, err
	}

	scenario := harness.DefaultScenario()
	if cfg.ScenarioFile != "" {
		if scenario, err = harness.LoadScenario(cfg.ScenarioFile); err != nil {
			return nil, err
		}
	}

	metrics, err := newMetrics(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	tracer, err := newTracer(cfg, opts.spanExports)
	if err != nil {
		shutdownMetrics(ctx, metrics, logger)
		return nil, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := metrics.Push(shutdownCtx, opts.runID); err != nil {
			logger.WithError(err).Warn("Failed to push metrics")
		}
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
		shutdownMetrics(ctx, metrics, logger)
	}()

	header := http.Header{}
	if creds != nil && cfg.Transport == string(transport.TransportTypeWebSocket) {
		creds.Apply(header)
	}
	tr, err := transport.NewTransport(transportConfig(cfg, header, opts, logger),
		transport.WithLogger(logger),
		transport.WithFrameRecorder(metrics),
		transport.WithMiddleware(observability.NewTransportMiddleware(tracer, metrics)),
	)
	if err != nil {
		return nil, err
	}
	defer tr.Close()

	caller := client.New(tr,
		client.WithName(scenario.Client.Name),
		client.WithVersion(scenario.Client.Version),
		client.WithProtocolVersion(scenario.ProtocolVersion),
		client.WithCallTimeout(cfg.CallTimeout),
		client.WithLogger(logger),
		client.WithTracer(tracer),
		client.WithMetrics(metrics),
	)

	sequencer := harness.NewSequencer(caller, scenario,
		harness.WithPolicy(harness.Policy{
			AbortOnHandshakeFailure: cfg.AbortOnHandshakeFailure,
			AbortOnDiscoveryFailure: cfg.AbortOnDiscoveryFailure,
		}),
		harness.WithConnect(func(ctx context.Context) error {
			// the server joins the run's trace through the handshake headers
			tracer.InjectHeader(ctx, header)
			logger.WithContext(ctx).Debug("Connecting",
				logging.String("endpoint", endpoint(cfg)),
				logging.Any("headers", auth.Redact(header, creds)),
			)
			return tr.Connect(ctx)
		}),
		harness.WithRunID(opts.runID),
		harness.WithEndpoint(endpoint(cfg)),
		harness.WithLogger(logger),
		harness.WithTracer(tracer),
		harness.WithMetrics(metrics),
		harness.WithReporter(newReporter(cfg, out)),
	)
	return sequencer.Run(ctx)
}

// ExitCode maps the outcome of Run to a process exit status: 1 when the run
// could not start or a fatal error ended it, 0 otherwise
func ExitCode(report *harness.Report, err error) int {
	if err != nil || report == nil {
		return 1
	}
	return 0
}

func newLogger(cfg *config.Config, w io.Writer) (logging.Logger, error) {
	level, err := cfg.ParsedLogLevel()
	if err != nil {
		return nil, err
	}

	var formatter logging.Formatter = logging.NewTextFormatter()
	if cfg.LogFormat == "json" {
		formatter = logging.NewJSONFormatter()
	}
	logger := logging.New(w, formatter)
	logger.SetLevel(level)
	return logger, nil
}

func newMetrics(ctx context.Context, cfg *config.Config, logger logging.Logger) (observability.MetricsProvider, error) {
	if cfg.MetricsAddr == "" && cfg.PushgatewayURL == "" {
		return observability.NewNoopMetricsProvider(), nil
	}

	provider, err := observability.NewMetricsProvider(observability.MetricsConfig{
		ServiceName:    ServiceName,
		ServiceVersion: Version,
		ListenAddr:     cfg.MetricsAddr,
		PushGatewayURL: cfg.PushgatewayURL,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	if err := provider.Start(ctx); err != nil {
		return nil, err
	}
	return provider, nil
}

func shutdownMetrics(ctx context.Context, metrics observability.MetricsProvider, logger logging.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to stop metrics server")
	}
}

// newTracer returns nil, which records nothing, when tracing is not
// configured
func newTracer(cfg *config.Config, exporter sdktrace.SpanExporter) (*observability.TracingProvider, error) {
	if cfg.OTLPEndpoint == "" && exporter == nil {
		return nil, nil
	}

	exporterType := observability.ExporterTypeOTLPGRPC
	if cfg.OTLPProtocol == "http" {
		exporterType = observability.ExporterTypeOTLPHTTP
	}
	tracer, err := observability.NewTracingProvider(observability.TracingConfig{
		ServiceName:    ServiceName,
		ServiceVersion: Version,
		ExporterType:   exporterType,
		Endpoint:       cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
		Exporter:       exporter,
		SampleRate:     cfg.TraceSampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start tracing: %w", err)
	}
	return tracer, nil
}

func transportConfig(cfg *config.Config, header http.Header, opts runOptions, logger logging.Logger) transport.TransportConfig {
	tcfg := transport.DefaultTransportConfig(transport.TransportType(cfg.Transport))
	tcfg.Connection.DialTimeout = cfg.DialTimeout
	tcfg.Observability.LogFrames = logger.GetLevel() <= logging.DebugLevel

	switch tcfg.Type {
	case transport.TransportTypeWebSocket:
		tcfg.Endpoint = cfg.Endpoint
		tcfg.Header = header
	case transport.TransportTypeStdio:
		tcfg.StdioReader = opts.stdin
		tcfg.StdioWriter = opts.stdout
	}
	return tcfg
}

func endpoint(cfg *config.Config) string {
	if cfg.Transport == string(transport.TransportTypeStdio) {
		return "stdio"
	}
	return cfg.Endpoint
}

func newReporter(cfg *config.Config, out io.Writer) harness.Reporter {
	if cfg.ReportFormat == "json" {
		return harness.NewJSONReporter(out)
	}
	return harness.NewTextReporter(out)
}
