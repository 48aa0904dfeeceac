// Package transport provides the persistent, bidirectional channel the
// conformance harness talks to an MCP server over.
//
// # Supported Transport Types
//
// WebSocketTransport:
//   - Default, dials ws://localhost:8080/mcp
//   - One JSON-RPC message per text frame
//
// StdioTransport:
//   - Newline-delimited JSON over a reader/writer pair
//   - Used when the server runs as a child process
//
// Both share one design: a read pump goroutine owns the read side and queues
// complete frames for Receive, so a caller whose deadline expires never
// leaves the connection mid-frame. Writes are serialised by a mutex.
//
// # Usage
//
//	config := transport.DefaultTransportConfig(transport.TransportTypeWebSocket)
//	config.Endpoint = "ws://localhost:8080/mcp"
//	t, err := transport.NewTransport(config, transport.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer t.Close()
//	if err := t.Connect(ctx); err != nil {
//		return err
//	}
//
// # Errors
//
// An unreachable endpoint yields a ConnectionFailed error; a channel that
// closes or fails afterwards yields ConnectionLost. Both are in the
// connection category of package errors and are fatal for a run. Receive
// returns the caller's context error unwrapped.
//
// # Middleware
//
// NewTransport wraps the base transport with the ObservabilityMiddleware
// (frame logging and counting) and any middleware passed with
// WithMiddleware. Middleware embed Passthrough and override the calls they
// decorate.
package transport
