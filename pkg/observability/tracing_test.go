package observability

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T, config TracingConfig) (*TracingProvider, *tracetest.InMemoryExporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	config.Exporter = exporter
	tp, err := NewTracingProvider(config)
	require.NoError(t, err)
	return tp, exporter
}

func spanNames(spans tracetest.SpanStubs) []string {
	names := make([]string, 0, len(spans))
	for _, span := range spans {
		names = append(names, span.Name)
	}
	return names
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracingProviderSpanHierarchy(t *testing.T) {
	tp, exporter := newTestTracer(t, TracingConfig{ServiceName: "mcpcheck-test"})
	ctx := context.Background()

	runCtx, runSpan := tp.StartRunSpan(ctx, "run-1", "brewsource", "ws://localhost:8080/mcp")
	stepCtx, stepSpan := tp.StartStepSpan(runCtx, 2, "bjcp lookup", "tool")
	callCtx, callSpan := tp.StartMethodSpan(stepCtx, "tools/call", 3)
	tp.AddEvent(callCtx, "response", attribute.Int("bytes", 42))
	tp.RecordError(callCtx, errors.New("boom"))
	callSpan.End()
	stepSpan.End()
	runSpan.End()

	require.NoError(t, tp.ForceFlush(ctx))
	spans := exporter.GetSpans()
	require.Len(t, spans, 3)
	assert.Equal(t, []string{"mcp.tools/call", "mcpcheck.step.tool", "mcpcheck.run"}, spanNames(spans))

	call, step, run := spans[0], spans[1], spans[2]
	assert.Equal(t, step.SpanContext.SpanID(), call.Parent.SpanID())
	assert.Equal(t, run.SpanContext.SpanID(), step.Parent.SpanID())
	assert.Equal(t, run.SpanContext.TraceID(), call.SpanContext.TraceID())

	id, ok := attrValue(call.Attributes, "rpc.jsonrpc.request_id")
	require.True(t, ok)
	assert.Equal(t, int64(3), id.AsInt64())

	runID, ok := attrValue(run.Attributes, "mcpcheck.run_id")
	require.True(t, ok)
	assert.Equal(t, "run-1", runID.AsString())

	assert.Equal(t, codes.Error, call.Status.Code)
	assert.Equal(t, "boom", call.Status.Description)
	require.Len(t, call.Events, 2)
	assert.Equal(t, "response", call.Events[0].Name)

	service, ok := attrValue(call.Resource.Attributes(), "service.name")
	require.True(t, ok)
	assert.Equal(t, "mcpcheck-test", service.AsString())

	require.NoError(t, tp.Shutdown(ctx))
	require.NoError(t, tp.Shutdown(ctx))
}

func TestTracingProviderMethodSampling(t *testing.T) {
	tp, exporter := newTestTracer(t, TracingConfig{NeverSample: []string{"initialize"}})
	ctx := context.Background()

	_, dropped := tp.StartMethodSpan(ctx, "initialize", 1)
	assert.False(t, dropped.IsRecording())
	dropped.End()

	_, kept := tp.StartMethodSpan(ctx, "tools/list", 2)
	assert.True(t, kept.IsRecording())
	kept.End()

	require.NoError(t, tp.ForceFlush(ctx))
	assert.Equal(t, []string{"mcp.tools/list"}, spanNames(exporter.GetSpans()))
	require.NoError(t, tp.Shutdown(ctx))
}

func TestTracingProviderInjectHeader(t *testing.T) {
	tp, _ := newTestTracer(t, TracingConfig{})
	defer tp.Shutdown(context.Background())

	ctx, span := tp.StartRunSpan(context.Background(), "run-1", "brewsource", "ws://localhost:8080/mcp")
	defer span.End()

	header := http.Header{}
	tp.InjectHeader(ctx, header)

	traceparent := header.Get("traceparent")
	require.NotEmpty(t, traceparent)
	assert.Contains(t, traceparent, span.SpanContext().TraceID().String())
}

func TestNilTracingProvider(t *testing.T) {
	var tp *TracingProvider
	ctx := context.Background()

	ctx, span := tp.StartRunSpan(ctx, "run-1", "brewsource", "ws://localhost:8080/mcp")
	assert.False(t, span.IsRecording())
	ctx, span = tp.StartMethodSpan(ctx, "initialize", 1)
	assert.False(t, span.IsRecording())

	tp.RecordError(ctx, errors.New("ignored"))
	tp.AddEvent(ctx, "ignored")

	header := http.Header{}
	tp.InjectHeader(ctx, header)
	assert.Empty(t, header)

	assert.NoError(t, tp.ForceFlush(ctx))
	assert.NoError(t, tp.Shutdown(ctx))
}

func TestNewTracingProviderUnknownExporter(t *testing.T) {
	_, err := NewTracingProvider(TracingConfig{ExporterType: "zipkin"})
	assert.Error(t, err)
}
