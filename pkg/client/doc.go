// Package client issues MCP requests over a single transport, one request in
// flight at a time.
//
// The client assigns request ids starting at 1, sends each request and then
// reads frames until the matching response arrives:
//
//   - server notifications are logged and skipped
//   - server-initiated requests are answered with -32601 and skipped
//   - a frame that is not a well-formed response is a protocol error
//   - a response whose id differs from the pending id is a correlation error
//   - no response within the call timeout is a timeout error
//
// Creating a client on a connected transport:
//
//	t, err := transport.NewTransport(transport.DefaultTransportConfig(transport.TransportTypeWebSocket))
//	if err != nil {
//	    return err
//	}
//	if err := t.Connect(ctx); err != nil {
//	    return err
//	}
//	defer t.Close()
//
//	c := client.New(t,
//	    client.WithName("brewsource-test-client"),
//	    client.WithCallTimeout(10*time.Second),
//	)
//
//	if _, err := c.Initialize(ctx); err != nil {
//	    return err
//	}
//	tools, err := c.ListTools(ctx)
//
// Errors are MCPErrors from pkg/errors; use IsFatal to tell a broken channel
// or an expired wait from a failure confined to one call.
package client
