package errors

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ProtocolErrorData describes a frame that broke the JSON-RPC contract
type ProtocolErrorData struct {
	Method    string `json:"method,omitempty"`
	RequestID int64  `json:"request_id,omitempty"`
	Frame     string `json:"frame,omitempty"`
	Reason    string `json:"reason"`
}

// CorrelationErrorData records the pending id and the id the server echoed
type CorrelationErrorData struct {
	Method   string `json:"method,omitempty"`
	Expected int64  `json:"expected"`
	Received string `json:"received"`
}

// ContentErrorData describes a non-fatal observation about a tool result
type ContentErrorData struct {
	Tool     string   `json:"tool"`
	Expected []string `json:"expected,omitempty"`
	Excerpt  string   `json:"excerpt,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

const maxExcerpt = 120

func excerpt(s string) string {
	if len(s) <= maxExcerpt {
		return s
	}
	cut := maxExcerpt
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// ProtocolViolation creates an error for a frame that is not valid JSON or not
// a well-formed response envelope
func ProtocolViolation(method string, requestID int64, frame []byte, cause error) MCPError {
	return WrapError(
		cause,
		CodeProtocolError,
		fmt.Sprintf("Malformed response to %s (id %d): %s", method, requestID, reason(cause, "unknown")),
		CategoryProtocol,
		SeverityError,
	).WithData(&ProtocolErrorData{
		Method:    method,
		RequestID: requestID,
		Frame:     excerpt(string(frame)),
		Reason:    reason(cause, "unknown"),
	})
}

// UnexpectedShape creates an error for a well-formed result that lacks the
// members the method requires
func UnexpectedShape(method string, cause error) MCPError {
	return WrapError(
		cause,
		CodeUnexpectedShape,
		fmt.Sprintf("Unexpected %s result: %s", method, reason(cause, "unknown")),
		CategoryProtocol,
		SeverityError,
	).WithData(&ProtocolErrorData{
		Method: method,
		Reason: reason(cause, "unknown"),
	})
}

// CorrelationMismatch creates an error for a response whose id is not
// byte-identical to the pending request id
func CorrelationMismatch(method string, expected int64, received string) MCPError {
	return NewErrorf(CodeCorrelationMismatch, CategoryCorrelation, SeverityError,
		"Response id %s does not match pending %s request id %d", received, method, expected,
	).WithData(&CorrelationErrorData{
		Method:   method,
		Expected: expected,
		Received: received,
	})
}

// ApplicationError creates an error for a well-formed error reply. The code
// and message are the server's own.
func ApplicationError(code int, message string, data interface{}) MCPError {
	err := NewError(code, message, CategoryApplication, SeverityError)
	if data != nil {
		err = err.WithData(data)
	}
	return err
}

// ToolReportedError creates an error for a tool result flagged isError.
func ToolReportedError(tool, text string) MCPError {
	return NewErrorf(CodeToolReportedError, CategoryApplication, SeverityError,
		"Tool %s reported an error: %s", tool, excerpt(text),
	).WithData(&ContentErrorData{
		Tool:    tool,
		Excerpt: excerpt(text),
		Reason:  "isError",
	})
}

// ContentWarning creates a warning for a result text that contains none of
// the expected keywords
func ContentWarning(tool string, expected []string, text string) MCPError {
	return NewError(
		CodeContentMismatch,
		fmt.Sprintf("%s result contains none of %s", tool, strings.Join(quoteAll(expected), ", ")),
		CategoryContent,
		SeverityWarning,
	).WithData(&ContentErrorData{
		Tool:     tool,
		Expected: expected,
		Excerpt:  excerpt(text),
	})
}

// SchemaWarning creates a warning for arguments that do not satisfy the
// tool's advertised input schema
func SchemaWarning(tool string, cause error) MCPError {
	return WrapErrorf(cause, CodeSchemaViolation, CategoryContent, SeverityWarning,
		"Arguments for %s violate its input schema", tool,
	).WithData(&ContentErrorData{
		Tool:   tool,
		Reason: reason(cause, "invalid"),
	})
}

// ToolNotAdvertised creates a warning for a call to a tool that tools/list
// did not return
func ToolNotAdvertised(tool string) MCPError {
	return NewErrorf(CodeToolNotAdvertised, CategoryContent, SeverityWarning,
		"Tool %s was not advertised by the server", tool,
	).WithData(&ContentErrorData{Tool: tool})
}

// VersionMismatch creates a warning for a handshake answered with another
// protocol revision
func VersionMismatch(requested, negotiated string) MCPError {
	return NewErrorf(CodeVersionMismatch, CategoryContent, SeverityWarning,
		"Server negotiated protocol %q, requested %q", negotiated, requested)
}

// ValidationError creates an error for invalid configuration or scenarios
func ValidationError(message string) MCPError {
	return NewError(CodeValidationError, message, CategoryValidation, SeverityError)
}

// Cancelled creates an error for a run stopped by its caller
func Cancelled(operation string, cause error) MCPError {
	return WrapErrorf(cause, CodeOperationCancelled, CategoryCancelled, SeverityInfo, "%s cancelled", operation)
}

func quoteAll(values []string) []string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return quoted
}

// IsConnectionError reports whether err is an unreachable endpoint or a lost
// channel.
func IsConnectionError(err error) bool {
	return IsCategory(err, CategoryConnection)
}

// IsTimeoutError reports whether err is an expired call timeout.
func IsTimeoutError(err error) bool {
	return IsCategory(err, CategoryTimeout)
}

func IsProtocolError(err error) bool {
	return IsCategory(err, CategoryProtocol)
}

func IsCorrelationError(err error) bool {
	return IsCategory(err, CategoryCorrelation)
}

func IsApplicationError(err error) bool {
	return IsCategory(err, CategoryApplication)
}

func IsContentWarning(err error) bool {
	return IsCategory(err, CategoryContent)
}

func IsCancelled(err error) bool {
	return IsCategory(err, CategoryCancelled)
}

// IsFatal reports whether err ends the run. Connection, timeout and
// cancellation errors do; everything else only affects the current step.
func IsFatal(err error) bool {
	return IsConnectionError(err) || IsTimeoutError(err) || IsCancelled(err)
}
