// Package protocol defines the JSON-RPC 2.0 envelopes and the subset of MCP
// message types exercised by the conformance harness.
//
// # Package Organization
//
//   - jsonrpc.go: request/response/notification envelopes, error codes,
//     envelope validation and id correlation
//   - mcp.go: method names, protocol revision, initialize types
//   - tools.go: tool descriptors and tools/list, tools/call payloads
//
// # Envelope Rules
//
// A request always carries an integer id and an object params member. A
// well-formed response carries exactly one of result or error; a response
// whose result member is the JSON literal null still counts as a result.
// Responses are matched to requests by comparing the raw id bytes, so
// {"id":3} matches request 3 while {"id":"3"} and {"id":3.0} do not.
//
// # Example Exchange
//
//	--> {"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"bjcp_lookup","arguments":{"style_code":"21A"}}}
//	<-- {"jsonrpc":"2.0","id":3,"result":{"content":[{"type":"text","text":"21A American IPA..."}]}}
package protocol
