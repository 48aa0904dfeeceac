package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/ajitpratap0/mcp-conformance/pkg/errors"
	"github.com/ajitpratap0/mcp-conformance/pkg/transport"
)

// scriptedTransport replays frames and then reports the channel lost
type scriptedTransport struct {
	connectErr error
	frames     [][]byte
}

func (s *scriptedTransport) Connect(ctx context.Context) error { return s.connectErr }

func (s *scriptedTransport) Send(ctx context.Context, msg interface{}) error { return nil }

func (s *scriptedTransport) Receive(ctx context.Context) ([]byte, error) {
	if len(s.frames) == 0 {
		return nil, mcperrors.ConnectionLost("scripted", "", transport.ErrClosed)
	}
	frame := s.frames[0]
	s.frames = s.frames[1:]
	return frame, nil
}

func (s *scriptedTransport) Close() error { return nil }

func TestTransportMiddlewareEvents(t *testing.T) {
	tp, exporter := newTestTracer(t, TracingConfig{})
	metrics, err := NewMetricsProvider(MetricsConfig{})
	require.NoError(t, err)

	base := &scriptedTransport{frames: [][]byte{[]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)}}
	wrapped := NewTransportMiddleware(tp, metrics).Wrap(base)

	ctx := context.Background()
	require.NoError(t, wrapped.Connect(ctx))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.connectionState.WithLabelValues(ConnectionStateConnected)))

	callCtx, span := tp.StartMethodSpan(ctx, "tools/list", 1)
	require.NoError(t, wrapped.Send(callCtx, []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)))
	_, err = wrapped.Receive(callCtx)
	require.NoError(t, err)
	span.End()

	// the script is exhausted, so the channel is reported lost
	_, err = wrapped.Receive(ctx)
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.connectionState.WithLabelValues(ConnectionStateDisconnected)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.connectionState.WithLabelValues(ConnectionStateConnected)))

	require.NoError(t, wrapped.Close())
	require.NoError(t, tp.ForceFlush(ctx))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "mcp.transport.connect", spans[0].Name)

	call := spans[1]
	require.Len(t, call.Events, 2)
	for i, want := range []string{"SENT", "RECEIVED"} {
		assert.Equal(t, "message", call.Events[i].Name)
		kind, ok := attrValue(call.Events[i].Attributes, "message.type")
		require.True(t, ok)
		assert.Equal(t, want, kind.AsString())
	}
	size, ok := attrValue(call.Events[0].Attributes, "message.uncompressed_size")
	require.True(t, ok)
	assert.Equal(t, int64(58), size.AsInt64())

	require.NoError(t, tp.Shutdown(ctx))
}

func TestTransportMiddlewareConnectFailure(t *testing.T) {
	tp, exporter := newTestTracer(t, TracingConfig{})
	metrics, err := NewMetricsProvider(MetricsConfig{})
	require.NoError(t, err)

	base := &scriptedTransport{connectErr: mcperrors.ConnectionFailed("scripted", "ws://localhost:1/mcp", nil)}
	wrapped := NewTransportMiddleware(tp, metrics).Wrap(base)

	err = wrapped.Connect(context.Background())
	assert.True(t, mcperrors.IsConnectionError(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.connectionState.WithLabelValues(ConnectionStateDisconnected)))

	require.NoError(t, tp.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "Error", spans[0].Status.Code.String())
	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestTransportMiddlewareWithoutProviders(t *testing.T) {
	wrapped := NewTransportMiddleware(nil, nil).Wrap(&scriptedTransport{frames: [][]byte{[]byte(`{}`)}})

	require.NoError(t, wrapped.Connect(context.Background()))
	require.NoError(t, wrapped.Send(context.Background(), map[string]string{"jsonrpc": "2.0"}))
	frame, err := wrapped.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(frame))
	assert.NoError(t, wrapped.Close())
}
