// Package conformance checks that a server speaks the Model Context Protocol
// correctly over a persistent JSON-RPC 2.0 channel.
//
// A run opens one channel, performs the initialize handshake, lists the
// advertised tools and then calls a fixed sequence of tools, verifying that
// every reply is a well-formed success or error envelope correlated to its
// request. This package wires the sub-packages into a single Run call; they
// can also be used on their own.
//
// # Overview
//
// The harness consists of several sub-packages:
//
//   - pkg/transport: The channel, over websocket or stdio
//   - pkg/client: One-request-at-a-time JSON-RPC caller with correlation checks
//   - pkg/harness: Scenarios, the step sequencer and reports
//   - pkg/protocol: JSON-RPC envelopes and the MCP messages a run uses
//   - pkg/errors: The error taxonomy deciding whether a run continues
//   - pkg/config: Environment configuration
//   - pkg/observability: Prometheus metrics and OpenTelemetry traces
//   - pkg/mcptest: An in-process MCP server for tests
//
// # Running the Default Scenario
//
//	import (
//	    "context"
//	    "os"
//
//	    "github.com/ajitpratap0/mcp-conformance"
//	)
//
//	func main() {
//	    cfg, err := conformance.LoadConfig()
//	    if err != nil {
//	        // Handle error
//	    }
//
//	    report, err := conformance.Run(context.Background(), cfg, os.Stdout)
//	    os.Exit(conformance.ExitCode(report, err))
//	}
//
// # Failure Handling
//
// A lost channel or an expired call timeout ends the run: the current step
// fails and every later step is reported as skipped. Protocol, correlation
// and application errors fail only the step that produced them. A reply
// that lacks the expected keywords is reported as a warning.
//
// # Scenario Files
//
// MCPCHECK_SCENARIO_FILE names a YAML scenario replacing the built-in one:
//
//	name: brewsource
//	steps:
//	  - name: bjcp lookup
//	    tool: bjcp_lookup
//	    arguments:
//	      style_code: 21A
//	    expect:
//	      contains: ["American IPA", "21A"]
//	    validate: true
package conformance
