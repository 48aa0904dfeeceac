package errors

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/ajitpratap0/mcp-conformance/pkg/protocol"
)

// FromJSONRPCError converts an error object returned by the server into an
// application error, keeping the server's code, message and data.
func FromJSONRPCError(jsonrpcErr *protocol.Error) MCPError {
	if jsonrpcErr == nil {
		return nil
	}
	return ApplicationError(int(jsonrpcErr.Code), jsonrpcErr.Message, jsonrpcErr.Data)
}

// MethodNotFoundResponse builds the reply sent to a server-initiated request
// the harness does not implement.
func MethodNotFoundResponse(method string, id []byte) *protocol.Response {
	return protocol.NewErrorResponse(
		id,
		protocol.MethodNotFound,
		fmt.Sprintf("method not found: %s", method),
		nil,
	)
}

// ConvertStandardError classifies context errors so the run reacts to them
// like any other harness failure. Other errors are returned unchanged.
func ConvertStandardError(err error) error {
	if err == nil || IsMCPError(err) {
		return err
	}

	switch {
	case stderrors.Is(err, context.Canceled):
		return Cancelled("run", err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return WrapError(err, CodeResponseTimeout, "Deadline exceeded", CategoryTimeout, SeverityCritical)
	}
	return err
}
