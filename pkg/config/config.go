// Package config loads the harness configuration from MCPCHECK_ prefixed
// environment variables.
package config

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	mcperrors "github.com/ajitpratap0/mcp-conformance/pkg/errors"
	"github.com/ajitpratap0/mcp-conformance/pkg/logging"
)

// Prefix is prepended to every variable name
const Prefix = "mcpcheck"

// Config holds the harness configuration. Every field can be set through
// the environment variable named in its envconfig tag, prefixed MCPCHECK_.
type Config struct {
	// Channel
	Endpoint    string        `envconfig:"ENDPOINT" default:"ws://localhost:8080/mcp" desc:"websocket URL of the MCP server"`
	Transport   string        `envconfig:"TRANSPORT" default:"websocket" desc:"websocket or stdio"`
	DialTimeout time.Duration `envconfig:"DIAL_TIMEOUT" default:"10s" desc:"bound on the websocket handshake"`
	CallTimeout time.Duration `envconfig:"CALL_TIMEOUT" default:"30s" desc:"bound on the wait for each response"`

	// Credentials sent with the websocket handshake
	AuthToken    string `envconfig:"AUTH_TOKEN" desc:"bearer token"`
	APIKey       string `envconfig:"API_KEY" desc:"API key, exclusive with AUTH_TOKEN"`
	APIKeyHeader string `envconfig:"API_KEY_HEADER" default:"X-API-Key"`

	// Run
	ScenarioFile            string `envconfig:"SCENARIO_FILE" desc:"YAML scenario; the BrewSource scenario when empty"`
	AbortOnHandshakeFailure bool   `envconfig:"ABORT_ON_HANDSHAKE_FAILURE" default:"false"`
	AbortOnDiscoveryFailure bool   `envconfig:"ABORT_ON_DISCOVERY_FAILURE" default:"true"`

	// Output
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info" desc:"debug, info, warn or error"`
	LogFormat    string `envconfig:"LOG_FORMAT" default:"text" desc:"text or json"`
	ReportFormat string `envconfig:"REPORT_FORMAT" default:"text" desc:"text or json"`

	// Metrics
	MetricsAddr    string `envconfig:"METRICS_ADDR" desc:"serve /metrics on this address during the run"`
	PushgatewayURL string `envconfig:"PUSHGATEWAY_URL" desc:"push metrics here when the run ends"`

	// Tracing
	OTLPEndpoint    string  `envconfig:"OTLP_ENDPOINT" desc:"OTLP collector; tracing is off when empty"`
	OTLPProtocol    string  `envconfig:"OTLP_PROTOCOL" default:"grpc" desc:"grpc or http"`
	OTLPInsecure    bool    `envconfig:"OTLP_INSECURE" default:"true"`
	TraceSampleRate float64 `envconfig:"TRACE_SAMPLE_RATE" default:"1.0"`
}

// Load reads the configuration from the environment and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, mcperrors.ValidationError(fmt.Sprintf("failed to process environment: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown transports, formats and protocols, endpoints that
// are not websocket URLs and non-positive timeouts
func (c *Config) Validate() error {
	switch c.Transport {
	case "websocket":
		u, err := url.Parse(c.Endpoint)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return invalid("ENDPOINT", fmt.Sprintf("%q is not a ws:// or wss:// URL", c.Endpoint))
		}
	case "stdio":
	default:
		return invalid("TRANSPORT", fmt.Sprintf("unknown transport %q", c.Transport))
	}

	if c.AuthToken != "" && c.APIKey != "" {
		return invalid("API_KEY", "cannot be combined with "+strings.ToUpper(Prefix)+"_AUTH_TOKEN")
	}
	if c.DialTimeout <= 0 {
		return invalid("DIAL_TIMEOUT", "must be positive")
	}
	if c.CallTimeout <= 0 {
		return invalid("CALL_TIMEOUT", "must be positive")
	}
	if _, err := c.ParsedLogLevel(); err != nil {
		return invalid("LOG_LEVEL", err.Error())
	}
	if !oneOf(c.LogFormat, "text", "json") {
		return invalid("LOG_FORMAT", fmt.Sprintf("unknown format %q", c.LogFormat))
	}
	if !oneOf(c.ReportFormat, "text", "json") {
		return invalid("REPORT_FORMAT", fmt.Sprintf("unknown format %q", c.ReportFormat))
	}
	if c.OTLPEndpoint != "" && !oneOf(c.OTLPProtocol, "grpc", "http") {
		return invalid("OTLP_PROTOCOL", fmt.Sprintf("unknown protocol %q", c.OTLPProtocol))
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return invalid("TRACE_SAMPLE_RATE", "must be between 0 and 1")
	}
	if c.PushgatewayURL != "" {
		if u, err := url.Parse(c.PushgatewayURL); err != nil || u.Host == "" {
			return invalid("PUSHGATEWAY_URL", fmt.Sprintf("%q is not a URL", c.PushgatewayURL))
		}
	}
	return nil
}

// ParsedLogLevel returns the configured log level
func (c *Config) ParsedLogLevel() (logging.Level, error) {
	return logging.ParseLevel(c.LogLevel)
}

// Usage writes the table of recognised variables to w
func Usage(w io.Writer) error {
	var cfg Config
	return envconfig.Usagef(Prefix, &cfg, w, envconfig.DefaultTableFormat)
}

func invalid(variable, why string) error {
	return mcperrors.ValidationError(fmt.Sprintf("invalid %s_%s: %s", strings.ToUpper(Prefix), variable, why))
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
