package observability

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	mcperrors "github.com/ajitpratap0/mcp-conformance/pkg/errors"
	"github.com/ajitpratap0/mcp-conformance/pkg/transport"
)

// TransportMiddleware traces the channel lifecycle and reports connection
// state. Frames become "message" events on the span active in the caller's
// context, normally the span of the JSON-RPC call being made.
type TransportMiddleware struct {
	tracer  *TracingProvider
	metrics MetricsProvider
}

// NewTransportMiddleware creates the middleware. Either provider may be nil.
func NewTransportMiddleware(tracer *TracingProvider, metrics MetricsProvider) transport.Middleware {
	if metrics == nil {
		metrics = NewNoopMetricsProvider()
	}
	return &TransportMiddleware{
		tracer:  tracer,
		metrics: metrics,
	}
}

// Wrap implements the Middleware interface
func (m *TransportMiddleware) Wrap(next transport.Transport) transport.Transport {
	return &tracedTransport{
		Passthrough: transport.Passthrough{Next: next},
		middleware:  m,
	}
}

type tracedTransport struct {
	transport.Passthrough
	middleware *TransportMiddleware

	sent     atomic.Int64
	received atomic.Int64
}

func (t *tracedTransport) Connect(ctx context.Context) error {
	m := t.middleware
	m.metrics.RecordConnectionState(ctx, ConnectionStateConnecting)

	ctx, span := m.tracer.StartSpan(ctx, "mcp.transport.connect", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	if err := t.Passthrough.Connect(ctx); err != nil {
		m.tracer.RecordError(ctx, err)
		m.metrics.RecordConnectionState(ctx, ConnectionStateDisconnected)
		return err
	}

	m.metrics.RecordConnectionState(ctx, ConnectionStateConnected)
	return nil
}

func (t *tracedTransport) Send(ctx context.Context, msg interface{}) error {
	m := t.middleware

	if err := t.Passthrough.Send(ctx, msg); err != nil {
		m.tracer.RecordError(ctx, err)
		t.markLost(ctx, err)
		return err
	}

	attrs := []attribute.KeyValue{
		attribute.String("message.type", "SENT"),
		attribute.Int64("message.id", t.sent.Add(1)),
	}
	if size := frameSize(msg); size >= 0 {
		attrs = append(attrs, attribute.Int("message.uncompressed_size", size))
	}
	m.tracer.AddEvent(ctx, "message", attrs...)
	return nil
}

func (t *tracedTransport) Receive(ctx context.Context) ([]byte, error) {
	m := t.middleware

	data, err := t.Passthrough.Receive(ctx)
	if err != nil {
		t.markLost(ctx, err)
		return nil, err
	}

	m.tracer.AddEvent(ctx, "message",
		attribute.String("message.type", "RECEIVED"),
		attribute.Int64("message.id", t.received.Add(1)),
		attribute.Int("message.uncompressed_size", len(data)),
	)
	return data, nil
}

func (t *tracedTransport) Close() error {
	err := t.Passthrough.Close()
	t.middleware.metrics.RecordConnectionState(context.Background(), ConnectionStateDisconnected)
	return err
}

// markLost reports the channel down when err is a channel failure
func (t *tracedTransport) markLost(ctx context.Context, err error) {
	if mcperrors.IsConnectionError(err) {
		t.middleware.metrics.RecordConnectionState(ctx, ConnectionStateDisconnected)
	}
}

// frameSize returns the encoded size of msg, or -1 when it does not encode
func frameSize(msg interface{}) int {
	switch m := msg.(type) {
	case []byte:
		return len(m)
	case json.RawMessage:
		return len(m)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return -1
	}
	return len(data)
}
