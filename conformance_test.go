package conformance

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	mcperrors "github.com/ajitpratap0/mcp-conformance/pkg/errors"
	"github.com/ajitpratap0/mcp-conformance/pkg/config"
	"github.com/ajitpratap0/mcp-conformance/pkg/harness"
	"github.com/ajitpratap0/mcp-conformance/pkg/mcptest"
	"github.com/ajitpratap0/mcp-conformance/pkg/protocol"
)

func testConfig(endpoint string) *config.Config {
	return &config.Config{
		Endpoint:                endpoint,
		Transport:               "websocket",
		DialTimeout:             5 * time.Second,
		CallTimeout:             2 * time.Second,
		AbortOnDiscoveryFailure: true,
		LogLevel:                "debug",
		LogFormat:               "json",
		ReportFormat:            "text",
		OTLPProtocol:            "grpc",
		OTLPInsecure:            true,
		TraceSampleRate:         1,
	}
}

func TestRunDefaultScenario(t *testing.T) {
	server := mcptest.NewServer()
	defer server.Close()

	exporter := keepSpans{tracetest.NewInMemoryExporter()}
	var out, logs bytes.Buffer
	report, err := Run(context.Background(), testConfig(server.URL), &out,
		WithLogOutput(&logs),
		WithRunID("run-1"),
		WithSpanExporter(exporter),
	)
	require.NoError(t, err)
	assert.Equal(t, 0, ExitCode(report, err))

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, server.URL, report.Endpoint)
	assert.Equal(t, harness.StateDone, report.State)
	assert.Equal(t, harness.Summary{Total: 5, Passed: 5}, report.Summary())
	assert.Contains(t, out.String(), "brewsource: 5 passed, 0 failed, 0 warnings, 0 skipped (done)")

	// every log line is JSON carrying the run id
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
	}
	assert.Contains(t, logs.String(), `"run_id":"run-1"`)

	// the server joins the trace through the handshake
	assert.NotEmpty(t, server.Header().Get("Traceparent"))

	names := make(map[string]bool)
	for _, span := range exporter.GetSpans() {
		names[span.Name] = true
	}
	for _, name := range []string{"mcpcheck.run", "mcpcheck.step.tool", "mcp.transport.connect", "mcp.tools/call"} {
		assert.True(t, names[name], "missing span %s", name)
	}
}

// keepSpans survives the shutdown at the end of Run, which would otherwise
// reset the in-memory exporter
type keepSpans struct {
	*tracetest.InMemoryExporter
}

func (keepSpans) Shutdown(context.Context) error {
	return nil
}

func TestRunFatalError(t *testing.T) {
	server := mcptest.NewServer(mcptest.WithToolReply("search_beers", mcptest.Reply{Close: true}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.ReportFormat = "json"
	var out bytes.Buffer
	report, err := Run(context.Background(), cfg, &out, WithLogOutput(io.Discard))
	require.Error(t, err)
	assert.True(t, mcperrors.IsConnectionError(err))
	assert.Equal(t, 1, ExitCode(report, err))

	var decoded struct {
		State   string          `json:"state"`
		Summary harness.Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "aborted", decoded.State)
	assert.Equal(t, harness.Summary{Total: 5, Passed: 3, Failed: 1, Skipped: 1}, decoded.Summary)
}

func TestRunUnreachableEndpoint(t *testing.T) {
	server := mcptest.NewServer()
	url := server.URL
	server.Close()

	var out bytes.Buffer
	report, err := Run(context.Background(), testConfig(url), &out, WithLogOutput(io.Discard))
	require.Error(t, err)
	assert.True(t, mcperrors.IsConnectionError(err))
	require.NotNil(t, report)
	assert.Equal(t, harness.StateAborted, report.State)
	assert.Equal(t, 5, report.Summary().Skipped)
	assert.Contains(t, out.String(), "run aborted:")
}

func TestRunToolErrorKeepsExitCodeZero(t *testing.T) {
	server := mcptest.NewServer(mcptest.WithToolError("bjcp_lookup", protocol.MethodNotFound, "Tool not found: bjcp_lookup"))
	defer server.Close()

	report, err := Run(context.Background(), testConfig(server.URL), io.Discard, WithLogOutput(io.Discard))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary().Failed)
	assert.Equal(t, 0, ExitCode(report, err))
}

func TestRunInvalidSetup(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		cfg := testConfig("ws://localhost:8080/mcp")
		cfg.Transport = "grpc"

		report, err := Run(context.Background(), cfg, io.Discard, WithLogOutput(io.Discard))
		require.Error(t, err)
		assert.Nil(t, report)
		assert.True(t, mcperrors.IsCategory(err, mcperrors.CategoryValidation))
		assert.Equal(t, 1, ExitCode(report, err))
	})

	t.Run("scenario file", func(t *testing.T) {
		cfg := testConfig("ws://localhost:8080/mcp")
		cfg.ScenarioFile = filepath.Join(t.TempDir(), "missing.yaml")

		report, err := Run(context.Background(), cfg, io.Discard, WithLogOutput(io.Discard))
		require.Error(t, err)
		assert.Nil(t, report)
	})
}

func TestRunSendsCredentials(t *testing.T) {
	server := mcptest.NewServer()
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.AuthToken = "brew-secret"
	var logs bytes.Buffer
	_, err := Run(context.Background(), cfg, io.Discard, WithLogOutput(&logs))
	require.NoError(t, err)

	assert.Equal(t, "Bearer brew-secret", server.Header().Get("Authorization"))
	assert.Empty(t, server.Header().Get("Traceparent"), "no trace without tracing")
	assert.NotContains(t, logs.String(), "brew-secret")
	assert.Contains(t, logs.String(), "[REDACTED]")
}

func TestRunScenarioFile(t *testing.T) {
	server := mcptest.NewServer()
	defer server.Close()

	path := filepath.Join(t.TempDir(), "styles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: styles
client:
  name: style-checker
  version: 0.1.0
steps:
  - name: american ipa
    tool: bjcp_lookup
    arguments:
      style_code: 21A
    expect:
      contains: ["American IPA"]
`), 0o600))

	cfg := testConfig(server.URL)
	cfg.ScenarioFile = path
	report, err := Run(context.Background(), cfg, io.Discard, WithLogOutput(io.Discard))
	require.NoError(t, err)
	assert.Equal(t, "styles", report.Scenario)
	assert.Equal(t, harness.Summary{Total: 3, Passed: 3}, report.Summary())

	var init protocol.InitializeParams
	require.NoError(t, json.Unmarshal(server.Requests()[0].Params, &init))
	assert.Equal(t, "style-checker", init.ClientInfo.Name)
	assert.Equal(t, "0.1.0", init.ClientInfo.Version)
}

func TestRunOverStdio(t *testing.T) {
	toServerR, toServerW := io.Pipe()
	fromServerR, fromServerW := io.Pipe()
	t.Cleanup(func() {
		toServerW.Close()
		fromServerW.Close()
	})
	go serveStdio(toServerR, fromServerW)

	cfg := testConfig("")
	cfg.Transport = "stdio"
	var out bytes.Buffer
	report, err := Run(context.Background(), cfg, &out,
		WithLogOutput(io.Discard),
		WithStdio(fromServerR, toServerW),
	)
	require.NoError(t, err)
	assert.Equal(t, "stdio", report.Endpoint)
	assert.Equal(t, harness.Summary{Total: 5, Passed: 5}, report.Summary())
}

// serveStdio answers newline-delimited requests like a BrewSource server
func serveStdio(in io.Reader, out io.Writer) {
	texts := mcptest.BrewSourceTexts()
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		var req protocol.Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			return
		}

		var result interface{}
		switch req.Method {
		case protocol.MethodInitialize:
			result = protocol.InitializeResult{
				ProtocolVersion: protocol.ProtocolRevision,
				ServerInfo:      &protocol.ServerInfo{Name: "BrewSource MCP Server", Version: "1.0.0"},
			}
		case protocol.MethodListTools:
			result = protocol.ListToolsResult{Tools: mcptest.BrewSourceTools()}
		case protocol.MethodCallTool:
			var params protocol.CallToolParams
			_ = json.Unmarshal(req.Params, &params)
			result = mcptest.TextResult(texts[params.Name])
		}

		resp, err := protocol.NewResponse(req.ID, result)
		if err != nil {
			return
		}
		data, _ := json.Marshal(resp)
		if _, err := out.Write(append(data, '\n')); err != nil {
			return
		}
	}
}
