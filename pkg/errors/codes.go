package errors

// JSON-RPC 2.0 Standard Error Codes
const (
	// ParseError indicates invalid JSON was received by the server
	CodeParseError int = -32700

	// InvalidRequest indicates the JSON sent is not a valid Request object
	CodeInvalidRequest int = -32600

	// MethodNotFound indicates the method does not exist / is not available
	CodeMethodNotFound int = -32601

	// InvalidParams indicates invalid method parameter(s)
	CodeInvalidParams int = -32602

	// InternalError indicates internal JSON-RPC error
	CodeInternalError int = -32603
)

// Harness error codes. They never appear on the wire; they identify the
// failures the harness itself detects.
const (
	// Operation Errors (-32300 to -32399)
	CodeOperationCancelled int = -32300 // Run cancelled by the caller
	CodeResponseTimeout    int = -32301 // No response within the call timeout

	// Transport Errors (-32500 to -32599)
	CodeTransportError   int = -32500 // Generic transport error
	CodeConnectionFailed int = -32501 // Failed to establish connection
	CodeConnectionLost   int = -32502 // Connection lost during operation

	// Validation Errors (-32750 to -32799)
	CodeValidationError int = -32750 // Invalid configuration or scenario
	CodeSchemaViolation int = -32751 // Arguments violate the advertised input schema

	// Content Errors (-32850 to -32899)
	CodeContentMismatch   int = -32850 // Result text lacks every expected keyword
	CodeToolNotAdvertised int = -32851 // Called tool missing from tools/list
	CodeToolReportedError int = -32852 // Tool result flagged isError

	// Protocol Errors (-32900 to -32999)
	CodeProtocolError       int = -32900 // Malformed frame or envelope
	CodeVersionMismatch     int = -32901 // Server answered with another revision
	CodeCorrelationMismatch int = -32902 // Response id differs from the pending id
	CodeUnexpectedShape     int = -32903 // Result lacks a required member
)

var errorCodeNames = map[int]string{
	// JSON-RPC standard errors, as returned by a server
	CodeParseError:     "ParseError",
	CodeInvalidRequest: "InvalidRequest",
	CodeMethodNotFound: "MethodNotFound",
	CodeInvalidParams:  "InvalidParams",
	CodeInternalError:  "InternalError",

	CodeOperationCancelled: "OperationCancelled",
	CodeResponseTimeout:    "ResponseTimeout",

	CodeTransportError:   "TransportError",
	CodeConnectionFailed: "ConnectionFailed",
	CodeConnectionLost:   "ConnectionLost",

	CodeValidationError: "ValidationError",
	CodeSchemaViolation: "SchemaViolation",

	CodeContentMismatch:   "ContentMismatch",
	CodeToolNotAdvertised: "ToolNotAdvertised",
	CodeToolReportedError: "ToolReportedError",

	CodeProtocolError:       "ProtocolError",
	CodeVersionMismatch:     "VersionMismatch",
	CodeCorrelationMismatch: "CorrelationMismatch",
	CodeUnexpectedShape:     "UnexpectedShape",
}

// GetErrorCodeName returns the registered name of code. Codes a server
// defined for itself have no name and yield "".
func GetErrorCodeName(code int) string {
	return errorCodeNames[code]
}
