package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	mcperrors "github.com/ajitpratap0/mcp-conformance/pkg/errors"
	"github.com/ajitpratap0/mcp-conformance/pkg/logging"
)

// Transport is a persistent, bidirectional channel carrying one JSON-RPC
// message per frame.
type Transport interface {
	// Connect establishes the channel. It fails with a connection error when
	// the endpoint is unreachable.
	Connect(ctx context.Context) error

	// Send serialises msg to JSON and writes it as one frame. A []byte or
	// json.RawMessage is written unchanged.
	Send(ctx context.Context, msg interface{}) error

	// Receive blocks until the next complete frame arrives, the channel
	// fails or ctx is done. Context errors are returned unwrapped so the
	// caller can tell its own deadline from a lost channel.
	Receive(ctx context.Context) ([]byte, error)

	// Close releases the channel. It is safe to call more than once and on
	// a transport that never connected.
	Close() error
}

// ErrClosed is the cause reported when a closed transport is used.
var ErrClosed = errors.New("transport closed")

// TransportType identifies the base transport implementation
type TransportType string

const (
	TransportTypeWebSocket TransportType = "websocket"
	TransportTypeStdio     TransportType = "stdio"
)

// DefaultEndpoint is the websocket endpoint used when none is configured
const DefaultEndpoint = "ws://localhost:8080/mcp"

// TransportConfig configures a transport
type TransportConfig struct {
	// Type of transport to create
	Type TransportType `json:"type"`

	// Endpoint is the websocket URL
	Endpoint string `json:"endpoint,omitempty"`

	// Header is sent with the websocket handshake
	Header http.Header `json:"-"`

	// Stdio streams; default to os.Stdin and os.Stdout
	StdioReader io.Reader `json:"-"`
	StdioWriter io.Writer `json:"-"`

	Connection    ConnectionConfig    `json:"connection"`
	Observability ObservabilityConfig `json:"observability"`
}

// ConnectionConfig for connection management
type ConnectionConfig struct {
	// DialTimeout bounds the websocket handshake
	DialTimeout time.Duration `json:"dial_timeout"`
	// WriteTimeout bounds a single frame write when ctx has no deadline
	WriteTimeout time.Duration `json:"write_timeout"`
	// CloseTimeout bounds the wait for the read pump on Close
	CloseTimeout time.Duration `json:"close_timeout"`
	// ReadLimit is the largest frame accepted, in bytes
	ReadLimit int64 `json:"read_limit"`
	// QueueSize is the number of frames buffered between the read pump and
	// Receive
	QueueSize int `json:"queue_size"`
}

// ObservabilityConfig for frame logging and metrics
type ObservabilityConfig struct {
	EnableLogging bool `json:"enable_logging"`
	EnableMetrics bool `json:"enable_metrics"`
	// LogFrames includes frame payloads in debug logs
	LogFrames bool `json:"log_frames"`
	// MaxLoggedFrame truncates logged payloads
	MaxLoggedFrame int `json:"max_logged_frame"`
}

// DefaultTransportConfig returns a configuration with sensible defaults
func DefaultTransportConfig(transportType TransportType) TransportConfig {
	config := TransportConfig{
		Type: transportType,
		Connection: ConnectionConfig{
			DialTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			CloseTimeout: time.Second,
			ReadLimit:    16 << 20,
			QueueSize:    64,
		},
		Observability: ObservabilityConfig{
			EnableLogging:  true,
			EnableMetrics:  true,
			LogFrames:      true,
			MaxLoggedFrame: 512,
		},
	}
	if transportType == TransportTypeWebSocket {
		config.Endpoint = DefaultEndpoint
	}
	return config
}

// Option customises NewTransport
type Option func(*buildOptions)

type buildOptions struct {
	logger     logging.Logger
	recorder   FrameRecorder
	middleware []Middleware
}

// WithLogger sets the logger used by the transport and its middleware
func WithLogger(logger logging.Logger) Option {
	return func(o *buildOptions) {
		o.logger = logger
	}
}

// WithFrameRecorder sets where frame metrics are recorded
func WithFrameRecorder(recorder FrameRecorder) Option {
	return func(o *buildOptions) {
		o.recorder = recorder
	}
}

// WithMiddleware appends middleware outside the built-in observability layer
func WithMiddleware(middleware ...Middleware) Option {
	return func(o *buildOptions) {
		o.middleware = append(o.middleware, middleware...)
	}
}

// NewTransport creates a transport from config and wraps it with middleware.
// The first WithMiddleware entry is the outermost layer.
func NewTransport(config TransportConfig, opts ...Option) (Transport, error) {
	options := buildOptions{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&options)
	}

	config = withDefaults(config)
	if err := validateTransportConfig(config); err != nil {
		return nil, err
	}

	var base Transport
	switch config.Type {
	case TransportTypeWebSocket:
		base = newWebSocketTransport(config, options.logger)
	case TransportTypeStdio:
		base = newStdioTransport(config, options.logger)
	}

	middleware := append([]Middleware{}, options.middleware...)
	if config.Observability.EnableLogging || (config.Observability.EnableMetrics && options.recorder != nil) {
		middleware = append(middleware, NewObservabilityMiddleware(config, options.logger, options.recorder))
	}

	return ChainMiddleware(middleware...).Wrap(base), nil
}

func withDefaults(config TransportConfig) TransportConfig {
	if config.Type == "" {
		config.Type = TransportTypeWebSocket
	}
	defaults := DefaultTransportConfig(config.Type)
	if config.Type == TransportTypeWebSocket && config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Connection.DialTimeout == 0 {
		config.Connection.DialTimeout = defaults.Connection.DialTimeout
	}
	if config.Connection.WriteTimeout == 0 {
		config.Connection.WriteTimeout = defaults.Connection.WriteTimeout
	}
	if config.Connection.CloseTimeout == 0 {
		config.Connection.CloseTimeout = defaults.Connection.CloseTimeout
	}
	if config.Connection.ReadLimit == 0 {
		config.Connection.ReadLimit = defaults.Connection.ReadLimit
	}
	if config.Connection.QueueSize == 0 {
		config.Connection.QueueSize = defaults.Connection.QueueSize
	}
	if config.Observability.MaxLoggedFrame == 0 {
		config.Observability.MaxLoggedFrame = defaults.Observability.MaxLoggedFrame
	}
	return config
}

func validateTransportConfig(config TransportConfig) error {
	switch config.Type {
	case TransportTypeWebSocket:
		u, err := url.Parse(config.Endpoint)
		if err != nil {
			return mcperrors.InvalidTransportConfiguration(string(config.Type), "endpoint", err.Error())
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return mcperrors.InvalidTransportConfiguration(string(config.Type), "endpoint", "scheme must be ws or wss")
		}
		if u.Host == "" {
			return mcperrors.InvalidTransportConfiguration(string(config.Type), "endpoint", "missing host")
		}
	case TransportTypeStdio:
	default:
		return mcperrors.InvalidTransportConfiguration(string(config.Type), "type", "unknown transport type")
	}

	if config.Connection.DialTimeout < 0 || config.Connection.WriteTimeout < 0 {
		return mcperrors.InvalidTransportConfiguration(string(config.Type), "connection", "timeouts must not be negative")
	}
	return nil
}
