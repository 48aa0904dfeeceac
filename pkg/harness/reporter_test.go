package harness

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/ajitpratap0/mcp-conformance/pkg/errors"
	"github.com/ajitpratap0/mcp-conformance/pkg/protocol"
)

func sampleReport() *Report {
	lost := mcperrors.ConnectionLost("websocket", "ws://localhost:8080/mcp", nil)

	steps := []StepResult{
		{Name: "handshake", Kind: KindHandshake, Method: protocol.MethodInitialize, RequestID: 1,
			Server: &protocol.ServerInfo{Name: "BrewSource MCP Server", Version: "1.0.0"}},
		{Name: "discovery", Kind: KindDiscovery, Method: protocol.MethodListTools, RequestID: 2,
			Tools: []string{"bjcp_lookup", "search_beers"}},
		{Name: "bjcp lookup", Kind: KindTool, Method: protocol.MethodCallTool, Tool: "bjcp_lookup", RequestID: 3,
			Text: "**21A - American IPA**\n\nCategory: IPA"},
		{Name: "beer search", Kind: KindTool, Method: protocol.MethodCallTool, Tool: "search_beers", RequestID: 4},
		{Name: "brewery search", Kind: KindTool, Method: protocol.MethodCallTool, Tool: "find_breweries"},
	}
	for i := range steps {
		steps[i].Index = i
		steps[i].Duration = 3 * time.Millisecond
	}
	steps[2].warn(mcperrors.ContentWarning("bjcp_lookup", []string{"Hazy"}, steps[2].Text))
	steps[3].fail(lost)
	for i := 0; i < 3; i++ {
		steps[i].settle()
	}
	steps[4].Outcome = OutcomeSkipped
	steps[4].Duration = 0

	return &Report{
		RunID:      "run-7",
		Scenario:   "brewsource",
		State:      StateAborted,
		Steps:      steps,
		Duration:   15 * time.Millisecond,
		Fatal:      lost,
		FatalError: newFailure(lost),
	}
}

func TestTextReporter(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewTextReporter(&buf)
	report := sampleReport()
	for _, step := range report.Steps {
		reporter.StepFinished(step)
	}
	reporter.RunFinished(report)

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "PASS  1. handshake (initialize) 3ms", lines[0])
	assert.Equal(t, "      server: BrewSource MCP Server 1.0.0", lines[1])
	assert.Equal(t, "PASS  2. discovery (tools/list) 3ms", lines[2])
	assert.Equal(t, "      2 tools: bjcp_lookup, search_beers", lines[3])

	assert.Contains(t, out, "WARN  3. bjcp lookup (bjcp_lookup) 3ms")
	assert.Contains(t, out, `warning: [content -32850 ContentMismatch] bjcp_lookup result contains none of "Hazy"`)
	assert.Contains(t, out, "result: **21A - American IPA** Category: IPA")
	assert.Contains(t, out, "FAIL  4. beer search (search_beers) 3ms")
	assert.Contains(t, out, "error: [connection -32502 ConnectionLost]")
	assert.Contains(t, out, "SKIP  5. brewery search (find_breweries)\n")
	assert.Contains(t, out, "run aborted: [connection")
	assert.Equal(t, "brewsource: 2 passed, 1 failed, 1 warnings, 1 skipped (aborted) in 15ms", lines[len(lines)-1])
}

func TestJSONReporter(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewJSONReporter(&buf)
	report := sampleReport()
	for _, step := range report.Steps {
		reporter.StepFinished(step)
	}
	assert.Zero(t, buf.Len())
	reporter.RunFinished(report)

	var decoded struct {
		RunID   string  `json:"run_id"`
		State   string  `json:"state"`
		Summary Summary `json:"summary"`
		Fatal   Failure `json:"fatal"`
		Steps   []struct {
			Name     string    `json:"name"`
			Outcome  string    `json:"outcome"`
			Error    *Failure  `json:"error"`
			Warnings []Failure `json:"warnings"`
		} `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, "run-7", decoded.RunID)
	assert.Equal(t, "aborted", decoded.State)
	assert.Equal(t, Summary{Total: 5, Passed: 2, Failed: 1, Warnings: 1, Skipped: 1}, decoded.Summary)
	assert.Equal(t, "connection", decoded.Fatal.Category)
	require.Len(t, decoded.Steps, 5)
	assert.Equal(t, "warning", decoded.Steps[2].Outcome)
	assert.Len(t, decoded.Steps[2].Warnings, 1)
	require.NotNil(t, decoded.Steps[3].Error)
	assert.Equal(t, mcperrors.CodeContentMismatch, decoded.Steps[2].Warnings[0].Code)
	assert.Equal(t, "ContentMismatch", decoded.Steps[2].Warnings[0].Name)
	assert.Equal(t, "ConnectionLost", decoded.Fatal.Name)
}

func TestFailureString(t *testing.T) {
	server := newFailure(mcperrors.FromJSONRPCError(&protocol.Error{Code: -32001, Message: "rate limited"}))
	assert.Empty(t, server.Name)
	assert.Equal(t, "[application -32001] rate limited", server.String())

	notFound := newFailure(mcperrors.FromJSONRPCError(&protocol.Error{Code: protocol.MethodNotFound, Message: "Tool not found: bjcp_lookup"}))
	assert.Equal(t, "[application -32601 MethodNotFound] Tool not found: bjcp_lookup", notFound.String())

	plain := newFailure(errors.New("boom"))
	assert.Equal(t, "InternalError", plain.Name)
}

func TestExcerptKeepsRunesWhole(t *testing.T) {
	text := strings.Repeat("a", textExcerpt-1) + "é, a Märzen"
	got := excerpt(text)
	assert.True(t, utf8.ValidString(got), "%q", got)
	assert.Equal(t, strings.Repeat("a", textExcerpt-1)+"...", got)

	assert.True(t, utf8.ValidString(excerpt(strings.Repeat("ü", textExcerpt))))
	assert.Equal(t, "21A American IPA", excerpt("21A\n  American IPA"))
}

func TestReportSummary(t *testing.T) {
	report := sampleReport()
	assert.Equal(t, "2 passed, 1 failed, 1 warnings, 1 skipped", report.Summary().String())
	assert.False(t, report.Passed())

	_, ok := report.Step("beer search")
	assert.True(t, ok)
	_, ok = report.Step("hop search")
	assert.False(t, ok)
}
