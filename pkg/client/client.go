package client

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	mcperrors "github.com/ajitpratap0/mcp-conformance/pkg/errors"
	"github.com/ajitpratap0/mcp-conformance/pkg/logging"
	"github.com/ajitpratap0/mcp-conformance/pkg/observability"
	"github.com/ajitpratap0/mcp-conformance/pkg/protocol"
	"github.com/ajitpratap0/mcp-conformance/pkg/transport"
)

// Defaults announced during the handshake
const (
	DefaultName        = "brewsource-test-client"
	DefaultVersion     = "1.0.0"
	DefaultCallTimeout = 30 * time.Second
)

// Call statuses recorded in request metrics
const (
	StatusSuccess          = "success"
	StatusApplicationError = "application_error"
	StatusProtocolError    = "protocol_error"
	StatusCorrelationError = "correlation_error"
	StatusTimeout          = "timeout"
	StatusConnectionError  = "connection_error"
	StatusCancelled        = "cancelled"
)

// Client issues JSON-RPC calls over one transport. Calls are serialised:
// a request is only sent once the response to the previous one has arrived.
type Client struct {
	transport       transport.Transport
	name            string
	version         string
	protocolVersion string
	capabilities    protocol.ClientCapabilities
	callTimeout     time.Duration
	logger          logging.Logger
	tracer          *observability.TracingProvider
	metrics         observability.MetricsProvider

	mu         sync.Mutex // one request in flight
	nextID     int64
	lastID     int64
	serverInfo *protocol.ServerInfo
}

// ClientOption defines options for creating a client
type ClientOption func(*Client)

// WithName sets the client name
func WithName(name string) ClientOption {
	return func(c *Client) {
		c.name = name
	}
}

// WithVersion sets the client version
func WithVersion(version string) ClientOption {
	return func(c *Client) {
		c.version = version
	}
}

// WithProtocolVersion sets the protocol revision requested in the handshake
func WithProtocolVersion(version string) ClientOption {
	return func(c *Client) {
		c.protocolVersion = version
	}
}

// WithCapabilities sets the capabilities announced in the handshake
func WithCapabilities(capabilities protocol.ClientCapabilities) ClientOption {
	return func(c *Client) {
		c.capabilities = capabilities
	}
}

// WithCallTimeout bounds the wait for each response. Zero disables the bound.
func WithCallTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.callTimeout = timeout
	}
}

// WithLogger sets the client logger
func WithLogger(logger logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTracer records a client span per call
func WithTracer(tracer *observability.TracingProvider) ClientOption {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// WithMetrics records request metrics per call
func WithMetrics(metrics observability.MetricsProvider) ClientOption {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// New creates a client on a connected transport
func New(t transport.Transport, options ...ClientOption) *Client {
	c := &Client{
		transport:       t,
		name:            DefaultName,
		version:         DefaultVersion,
		protocolVersion: protocol.ProtocolRevision,
		capabilities:    protocol.DefaultClientCapabilities(),
		callTimeout:     DefaultCallTimeout,
		logger:          logging.NewNop(),
		metrics:         observability.NewNoopMetricsProvider(),
	}

	for _, option := range options {
		option(c)
	}
	c.logger = c.logger.WithFields(logging.String(logging.ComponentKey, "client"))
	return c
}

// LastID returns the id of the most recent request, 0 before the first call
func (c *Client) LastID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastID
}

// ServerInfo returns the server identity from the last successful handshake
func (c *Client) ServerInfo() *protocol.ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// Call sends one request and waits for its response. The response may carry
// a JSON-RPC error object; the returned error is set only when no well-formed
// matching response was obtained.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.lastID = id

	ctx, span := c.tracer.StartMethodSpan(ctx, method, id)
	defer span.End()

	start := time.Now()
	resp, err := c.roundTrip(ctx, id, method, params)
	duration := time.Since(start)

	c.metrics.RecordRequest(ctx, method, status(resp, err), duration)
	logger := c.logger.WithContext(ctx).WithFields(
		logging.String("method", method),
		logging.Int64("id", id),
		logging.Duration("duration", duration),
	)

	if err != nil {
		err = annotate(ctx, err, id, method)
		c.tracer.RecordError(ctx, err)
		logger.WithError(err).Debug("Call failed")
		return nil, err
	}

	if resp.Error != nil {
		c.tracer.SetAttributes(ctx,
			attribute.Int("rpc.jsonrpc.error_code", int(resp.Error.Code)),
			attribute.String("rpc.jsonrpc.error_message", resp.Error.Message),
		)
		logger.Debug("Call returned error object",
			logging.Int("code", int(resp.Error.Code)),
			logging.String("message", resp.Error.Message))
		return resp, nil
	}

	logger.Debug("Call succeeded")
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, id int64, method string, params interface{}) (*protocol.Response, error) {
	req, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return nil, mcperrors.MessageEncodeError("client", err)
	}

	callCtx := ctx
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	if err := c.transport.Send(callCtx, req); err != nil {
		return nil, c.waitError(ctx, callCtx, err, id, method)
	}

	for {
		frame, err := c.transport.Receive(callCtx)
		if err != nil {
			return nil, c.waitError(ctx, callCtx, err, id, method)
		}

		switch {
		case protocol.IsNotification(frame):
			notification, _ := protocol.PeekMethod(frame)
			c.logger.WithContext(ctx).Debug("Skipping server notification", logging.String("notification", notification))
			continue
		case protocol.IsRequest(frame):
			if err := c.rejectServerRequest(callCtx, frame); err != nil {
				return nil, c.waitError(ctx, callCtx, err, id, method)
			}
			continue
		}

		resp, err := protocol.ParseResponse(frame)
		if err != nil {
			return nil, mcperrors.ProtocolViolation(method, id, frame, err)
		}
		if !resp.MatchesID(id) {
			return nil, mcperrors.CorrelationMismatch(method, id, resp.IDString())
		}
		return resp, nil
	}
}

// rejectServerRequest answers a server-initiated request with method not
// found, since the harness implements no client-side methods
func (c *Client) rejectServerRequest(ctx context.Context, frame []byte) error {
	method, id := protocol.PeekMethod(frame)
	c.logger.WithContext(ctx).Info("Rejecting server request",
		logging.String("server_method", method),
		logging.String("server_id", string(id)))
	return c.transport.Send(ctx, mcperrors.MethodNotFoundResponse(method, id))
}

// waitError classifies a failed Send or Receive. The call's own deadline is a
// timeout; a done parent context is a cancellation or the caller's deadline.
func (c *Client) waitError(ctx, callCtx context.Context, err error, id int64, method string) error {
	if ctx.Err() != nil {
		return mcperrors.ConvertStandardError(ctx.Err())
	}
	if callCtx.Err() != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		return mcperrors.ResponseTimeout(method, id, c.callTimeout)
	}
	return mcperrors.ConvertStandardError(err)
}

// Initialize performs the handshake. A server error object is returned as an
// application error.
func (c *Client) Initialize(ctx context.Context) (*protocol.InitializeResult, error) {
	params := protocol.InitializeParams{
		ProtocolVersion: c.protocolVersion,
		Capabilities:    c.capabilities,
		ClientInfo: protocol.ClientInfo{
			Name:    c.name,
			Version: c.version,
		},
	}

	resp, err := c.Call(ctx, protocol.MethodInitialize, params)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, annotate(ctx, mcperrors.FromJSONRPCError(resp.Error), c.LastID(), protocol.MethodInitialize)
	}

	result, err := protocol.DecodeInitializeResult(resp.Result)
	if err != nil {
		return nil, annotate(ctx, mcperrors.UnexpectedShape(protocol.MethodInitialize, err), c.LastID(), protocol.MethodInitialize)
	}

	c.mu.Lock()
	c.serverInfo = result.ServerInfo
	c.mu.Unlock()
	return result, nil
}

// ListTools requests the advertised tools
func (c *Client) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	resp, err := c.Call(ctx, protocol.MethodListTools, nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, annotate(ctx, mcperrors.FromJSONRPCError(resp.Error), c.LastID(), protocol.MethodListTools)
	}

	result, err := protocol.DecodeListToolsResult(resp.Result)
	if err != nil {
		return nil, annotate(ctx, mcperrors.UnexpectedShape(protocol.MethodListTools, err), c.LastID(), protocol.MethodListTools)
	}
	return result.Tools, nil
}

// CallTool invokes a tool. A result flagged isError is returned as is; the
// caller decides how to treat it.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*protocol.CallToolResult, error) {
	if arguments == nil {
		arguments = map[string]interface{}{}
	}

	resp, err := c.Call(ctx, protocol.MethodCallTool, protocol.CallToolParams{
		Name:      name,
		Arguments: arguments,
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, annotate(ctx, mcperrors.FromJSONRPCError(resp.Error), c.LastID(), protocol.MethodCallTool)
	}

	result, err := protocol.DecodeCallToolResult(resp.Result)
	if err != nil {
		return nil, annotate(ctx, mcperrors.UnexpectedShape(protocol.MethodCallTool, err), c.LastID(), protocol.MethodCallTool)
	}
	return result, nil
}

// annotate records the run, request and method on an MCPError, keeping the
// component and operation set where it was raised
func annotate(ctx context.Context, err error, id int64, method string) error {
	mcpErr, ok := mcperrors.AsMCPError(err)
	if !ok {
		return err
	}

	var errCtx mcperrors.Context
	if existing := mcpErr.Context(); existing != nil {
		errCtx = *existing
	}
	errCtx.RunID = logging.RunIDFromContext(ctx)
	errCtx.RequestID = strconv.FormatInt(id, 10)
	errCtx.Method = method
	if errCtx.Component == "" {
		errCtx.Component = "client"
		errCtx.Operation = "call"
	}
	return mcpErr.WithContext(&errCtx)
}

func status(resp *protocol.Response, err error) string {
	switch {
	case err == nil && resp != nil && resp.Error != nil:
		return StatusApplicationError
	case err == nil:
		return StatusSuccess
	case mcperrors.IsTimeoutError(err):
		return StatusTimeout
	case mcperrors.IsConnectionError(err):
		return StatusConnectionError
	case mcperrors.IsCorrelationError(err):
		return StatusCorrelationError
	case mcperrors.IsCancelled(err):
		return StatusCancelled
	default:
		return StatusProtocolError
	}
}
