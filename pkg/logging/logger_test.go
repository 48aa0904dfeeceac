package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mcperrors "github.com/ajitpratap0/mcp-conformance/pkg/errors"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())
	logger.SetLevel(DebugLevel)

	logger.Debug("Frame received", String("method", "tools/list"))
	logger.Info("Step passed", Int("step", 3))
	logger.Warn("Keyword missing", Bool("fold", true))
	logger.Error("Step failed", ErrorField(errors.New("method not found")))

	output := buf.String()

	for _, want := range []string{
		"Frame received", "Step passed", "Keyword missing", "Step failed",
		"method=tools/list", "step=3", "fold=true", "error=method not found",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output:\n%s", want, output)
		}
	}
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())
	logger.SetLevel(WarnLevel)

	logger.Debug("Debug message")
	logger.Info("Info message")
	logger.Warn("Warning message")
	logger.Error("Error message")

	output := buf.String()

	if strings.Contains(output, "Debug message") {
		t.Error("Debug message should be filtered out")
	}
	if strings.Contains(output, "Info message") {
		t.Error("Info message should be filtered out")
	}
	if !strings.Contains(output, "Warning message") {
		t.Error("Warning message should be present")
	}
	if !strings.Contains(output, "Error message") {
		t.Error("Error message should be present")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{" warning ", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()
	logger.Error("nothing to see")
	if logger.GetLevel() <= FatalLevel {
		t.Errorf("nop logger level %v should be above every level", logger.GetLevel())
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, NewTextFormatter())

	logger := base.WithFields(
		String("endpoint", "ws://localhost:8080/mcp"),
		String("transport", "websocket"),
	)
	logger.Info("Connected", String("scenario", "brewsource"))

	output := buf.String()
	for _, want := range []string{"endpoint=ws://localhost:8080/mcp", "transport=websocket", "scenario=brewsource"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output", want)
		}
	}

	buf.Reset()
	base.Info("Plain")
	if strings.Contains(buf.String(), "transport=") {
		t.Error("WithFields must not modify the parent logger")
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())

	ctx := ContextWithRunID(context.Background(), "3f2a9c1e-1111-2222-3333-444455556666")
	ctx = ContextWithRequestID(ctx, "2")

	logger.WithContext(ctx).Info("Request sent")

	output := buf.String()
	if !strings.Contains(output, "[3f2a9c1e]") {
		t.Errorf("Expected short run id in output: %s", output)
	}
	if !strings.Contains(output, "#2 ") {
		t.Errorf("Expected request id in output: %s", output)
	}
	if strings.Contains(output, "run_id=") {
		t.Error("run id should only appear in the header")
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())

	mcpErr := mcperrors.CorrelationMismatch("tools/call", 3, "4").
		WithContext(&mcperrors.Context{
			RequestID: "3",
			Step:      "bjcp lookup",
			Component: "client",
			Operation: "call",
		})

	// the error is found through fmt wrapping
	logger.WithError(fmt.Errorf("step failed: %w", mcpErr)).Error("Operation failed")

	output := buf.String()
	for _, want := range []string{
		"error=",
		"error_code=-32902",
		"error_category=correlation",
		"error_name=CorrelationMismatch",
		"#3 ",
		`step="bjcp lookup"`,
		"client/call:",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output:\n%s", want, output)
		}
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewJSONFormatter())

	logger.Info("Tools discovered",
		String(RunIDKey, "run-1"),
		Int("count", 3),
		Int64("request_id_num", 2),
		Bool("ok", true),
		Duration("duration", 5*time.Millisecond),
		Any("tools", []string{"bjcp_lookup", "search_beers"}),
		ErrorField(errors.New("none")),
	)

	var entry map[string]interface{}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Failed to parse JSON output: %v", err)
	}

	if entry["level"] != "INFO" {
		t.Errorf("Expected level INFO, got %v", entry["level"])
	}
	if entry["message"] != "Tools discovered" {
		t.Errorf("Expected message, got %v", entry["message"])
	}
	if entry[RunIDKey] != "run-1" {
		t.Errorf("Expected run_id in JSON, got %v", entry[RunIDKey])
	}
	if entry["count"] != float64(3) {
		t.Errorf("Expected count=3, got %v", entry["count"])
	}
	if entry["error"] != "none" {
		t.Errorf("Expected error string, got %v", entry["error"])
	}
	if _, ok := entry["duration"].(float64); !ok {
		t.Error("Expected duration as number")
	}
	if tools, ok := entry["tools"].([]interface{}); !ok || len(tools) != 2 {
		t.Errorf("Expected tools array, got %v", entry["tools"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("Expected timestamp field")
	}
}

func TestConcurrentWritesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, &JSONFormatter{DisableTimestamp: true})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			child := logger.WithFields(Int("worker", n))
			for j := 0; j < 50; j++ {
				child.Info("tick")
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 400 {
		t.Fatalf("Expected 400 lines, got %d", len(lines))
	}
	for _, line := range lines {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Interleaved line %q: %v", line, err)
		}
	}
}

func TestHTTPMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, &TextFormatter{DisableColors: true, DisableTimestamp: true})
	logger.SetLevel(DebugLevel)

	handler := HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RequestIDFromContext(r.Context()) == "" {
			t.Error("Expected request id in handler context")
		}
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("X-Request-ID", "scrape-1")
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") != "scrape-1" {
		t.Errorf("Expected request id echoed, got %q", rec.Header().Get("X-Request-ID"))
	}
	if !strings.Contains(buf.String(), "[DEBUG] #scrape-1 HTTP request completed") {
		t.Errorf("Expected debug completion line, got:\n%s", buf.String())
	}

	buf.Reset()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))
	if !strings.Contains(buf.String(), "[WARN]") || !strings.Contains(buf.String(), "status=404") {
		t.Errorf("Expected failed request at warn level, got:\n%s", buf.String())
	}
}
