package errors

import (
	"fmt"
	"net/url"
	"time"
)

// ConnectionErrorData contains structured data for connection-related errors
type ConnectionErrorData struct {
	Transport string `json:"transport"`
	Endpoint  string `json:"endpoint,omitempty"`
	Operation string `json:"operation,omitempty"`
	Connected bool   `json:"connected"`
	Reason    string `json:"reason,omitempty"`
}

// TimeoutErrorData describes a bounded wait that expired
type TimeoutErrorData struct {
	Method    string        `json:"method"`
	RequestID int64         `json:"request_id"`
	Timeout   time.Duration `json:"timeout"`
}

func reason(cause error, fallback string) string {
	if cause == nil {
		return fallback
	}
	return cause.Error()
}

// ConnectionFailed creates an error for an endpoint that could not be reached
func ConnectionFailed(transport, endpoint string, cause error) MCPError {
	message := fmt.Sprintf("Failed to connect via %s", transport)
	if endpoint != "" {
		message = fmt.Sprintf("Failed to connect to %s via %s", endpoint, transport)
	}
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	host := endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		host = u.Host
	}

	return WrapError(
		cause,
		CodeConnectionFailed,
		message,
		CategoryConnection,
		SeverityCritical,
	).WithData(&ConnectionErrorData{
		Transport: transport,
		Endpoint:  host,
		Operation: "connect",
		Connected: false,
		Reason:    reason(cause, "unreachable"),
	})
}

// ConnectionLost creates an error for a channel that closed or failed after
// it was established
func ConnectionLost(transport, endpoint string, cause error) MCPError {
	message := fmt.Sprintf("Lost connection via %s", transport)
	if endpoint != "" {
		message = fmt.Sprintf("Lost connection to %s via %s", endpoint, transport)
	}
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	return WrapError(
		cause,
		CodeConnectionLost,
		message,
		CategoryConnection,
		SeverityCritical,
	).WithData(&ConnectionErrorData{
		Transport: transport,
		Endpoint:  endpoint,
		Connected: false,
		Reason:    reason(cause, "closed"),
	})
}

// TransportNotRunning creates an error for operations on a transport that was
// never connected or has been closed
func TransportNotRunning(transport string) MCPError {
	return NewError(
		CodeTransportError,
		fmt.Sprintf("%s transport is not running", transport),
		CategoryConnection,
		SeverityError,
	).WithData(&ConnectionErrorData{
		Transport: transport,
		Connected: false,
		Reason:    "not running",
	})
}

// MessageEncodeError creates an error for an outgoing message that could not
// be serialised. Nothing was written, so the channel is still usable.
func MessageEncodeError(transport string, cause error) MCPError {
	return WrapError(
		cause,
		CodeProtocolError,
		fmt.Sprintf("Failed to encode message for %s: %s", transport, reason(cause, "unknown")),
		CategoryProtocol,
		SeverityError,
	)
}

// InvalidTransportConfiguration creates an error for invalid transport configurations
func InvalidTransportConfiguration(transport, parameter, why string) MCPError {
	return NewError(
		CodeValidationError,
		fmt.Sprintf("Invalid %s transport configuration for parameter '%s': %s", transport, parameter, why),
		CategoryValidation,
		SeverityError,
	)
}

// ResponseTimeout creates an error for a request that got no response within
// the call timeout
func ResponseTimeout(method string, requestID int64, timeout time.Duration) MCPError {
	message := fmt.Sprintf("No response to %s (id %d)", method, requestID)
	if timeout > 0 {
		message = fmt.Sprintf("%s within %v", message, timeout)
	}

	return NewError(
		CodeResponseTimeout,
		message,
		CategoryTimeout,
		SeverityCritical,
	).WithData(&TimeoutErrorData{
		Method:    method,
		RequestID: requestID,
		Timeout:   timeout,
	})
}
