package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetricsProviderRecords(t *testing.T) {
	provider, err := NewMetricsProvider(MetricsConfig{ServiceName: "mcpcheck", ServiceVersion: "test"})
	require.NoError(t, err)

	ctx := context.Background()
	provider.RecordRequest(ctx, "tools/call", "success", 12*time.Millisecond)
	provider.RecordRequest(ctx, "tools/call", "success", 30*time.Millisecond)
	provider.RecordRequest(ctx, "tools/call", "application_error", 5*time.Millisecond)
	provider.RecordStep(ctx, "tool", "passed", 40*time.Millisecond)
	provider.RecordMessage(ctx, "sent", 120)
	provider.RecordMessage(ctx, "sent", 80)

	assert.Equal(t, 2.0, testutil.ToFloat64(provider.requestTotal.WithLabelValues("tools/call", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(provider.requestTotal.WithLabelValues("tools/call", "application_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(provider.stepTotal.WithLabelValues("tool", "passed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(provider.messageTotal.WithLabelValues("sent")))
	assert.Equal(t, 200.0, testutil.ToFloat64(provider.messageBytes.WithLabelValues("sent")))

	expected := `
# HELP mcpcheck_step_total Total number of run steps by outcome
# TYPE mcpcheck_step_total counter
mcpcheck_step_total{kind="tool",outcome="passed",service="mcpcheck",version="test"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(provider.Registry(), strings.NewReader(expected), "mcpcheck_step_total"))
}

func TestPrometheusMetricsProviderStates(t *testing.T) {
	provider, err := NewMetricsProvider(MetricsConfig{Namespace: "test"})
	require.NoError(t, err)

	ctx := context.Background()
	provider.RecordConnectionState(ctx, ConnectionStateConnecting)
	provider.RecordConnectionState(ctx, ConnectionStateConnected)

	assert.Equal(t, 0.0, testutil.ToFloat64(provider.connectionState.WithLabelValues(ConnectionStateConnecting)))
	assert.Equal(t, 1.0, testutil.ToFloat64(provider.connectionState.WithLabelValues(ConnectionStateConnected)))
	assert.Equal(t, 0.0, testutil.ToFloat64(provider.connectionState.WithLabelValues(ConnectionStateDisconnected)))

	provider.RecordRunState(ctx, "ready")
	provider.RecordRunState(ctx, "executing")
	provider.RecordRunState(ctx, "done")

	assert.Equal(t, 0.0, testutil.ToFloat64(provider.runState.WithLabelValues("ready")))
	assert.Equal(t, 0.0, testutil.ToFloat64(provider.runState.WithLabelValues("executing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(provider.runState.WithLabelValues("done")))
}

func TestPrometheusMetricsProviderServes(t *testing.T) {
	provider, err := NewMetricsProvider(MetricsConfig{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, provider.Start(ctx))
	defer provider.Shutdown(ctx)

	// a second Start keeps the running server
	require.NoError(t, provider.Start(ctx))

	provider.RecordRequest(ctx, "initialize", "success", time.Millisecond)

	addr := provider.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `mcpcheck_request_total{method="initialize",status="success"} 1`)

	require.NoError(t, provider.Shutdown(ctx))
	assert.Empty(t, provider.Addr())
}

func TestPrometheusMetricsProviderStartBadAddr(t *testing.T) {
	provider, err := NewMetricsProvider(MetricsConfig{ListenAddr: "256.0.0.1:bad"})
	require.NoError(t, err)
	assert.Error(t, provider.Start(context.Background()))
}

func TestPrometheusMetricsProviderPush(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
	)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		method = r.Method
		path = r.URL.Path
		mu.Unlock()
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	provider, err := NewMetricsProvider(MetricsConfig{PushGatewayURL: gateway.URL})
	require.NoError(t, err)

	provider.RecordStep(context.Background(), "handshake", "passed", time.Millisecond)
	require.NoError(t, provider.Push(context.Background(), "run-42"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/mcpcheck/run_id/run-42", path)
}

func TestPrometheusMetricsProviderPushFailure(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer gateway.Close()

	provider, err := NewMetricsProvider(MetricsConfig{PushGatewayURL: gateway.URL})
	require.NoError(t, err)

	provider.RecordStep(context.Background(), "handshake", "passed", time.Millisecond)
	err = provider.Push(context.Background(), "run-42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), gateway.URL)
}

func TestPrometheusMetricsProviderPushDisabled(t *testing.T) {
	provider, err := NewMetricsProvider(MetricsConfig{})
	require.NoError(t, err)
	assert.NoError(t, provider.Push(context.Background(), "run-42"))
	assert.NoError(t, provider.Start(context.Background()))
	assert.Empty(t, provider.Addr())
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNoopMetricsProvider(t *testing.T) {
	provider := NewNoopMetricsProvider()
	ctx := context.Background()

	provider.RecordRequest(ctx, "initialize", "success", time.Millisecond)
	provider.RecordStep(ctx, "handshake", "passed", time.Millisecond)
	provider.RecordMessage(ctx, "sent", 10)
	provider.RecordConnectionState(ctx, ConnectionStateConnected)
	provider.RecordRunState(ctx, "done")

	assert.NoError(t, provider.Start(ctx))
	assert.NoError(t, provider.Push(ctx, "run"))
	assert.NoError(t, provider.Shutdown(ctx))
}
