package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

const (
	// JSONRPCVersion is the supported JSON-RPC version
	JSONRPCVersion = "2.0"
)

// ErrorCode represents standard JSON-RPC 2.0 error codes
type ErrorCode int

// Standard error codes as per JSON-RPC 2.0 specification
const (
	ParseError     ErrorCode = -32700
	InvalidRequest ErrorCode = -32600
	MethodNotFound ErrorCode = -32601
	InvalidParams  ErrorCode = -32602
	InternalError  ErrorCode = -32603
)

// Envelope validation failures reported by Response.Validate.
var (
	ErrInvalidVersion   = errors.New("jsonrpc member is not \"2.0\"")
	ErrMissingOutcome   = errors.New("response carries neither result nor error")
	ErrAmbiguousOutcome = errors.New("response carries both result and error")
	ErrMissingID        = errors.New("response carries no id")
)

var emptyObject = json.RawMessage(`{}`)

// JSONRPCMessage represents a JSON-RPC 2.0 message
type JSONRPCMessage struct {
	JSONRPC string `json:"jsonrpc"`
}

// Request represents a JSON-RPC 2.0 request issued by the harness.
// IDs are caller-assigned integers.
type Request struct {
	JSONRPCMessage
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// NewRequest creates a new JSON-RPC 2.0 request. A nil params value is sent
// as an empty object.
func NewRequest(id int64, method string, params interface{}) (*Request, error) {
	paramsJSON := emptyObject
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		if !bytes.Equal(raw, []byte("null")) {
			paramsJSON = raw
		}
	}

	return &Request{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Method:         method,
		Params:         paramsJSON,
	}, nil
}

// Response represents a JSON-RPC 2.0 response. ID keeps the raw bytes sent by
// the peer so correlation can be byte-exact; Result is nil when the member
// is absent and the literal null when the peer sent null.
type Response struct {
	JSONRPCMessage
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// NewResponse creates a new JSON-RPC 2.0 success response
func NewResponse(id int64, result interface{}) (*Response, error) {
	resultJSON := json.RawMessage("null")
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
		resultJSON = raw
	}

	return &Response{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             FormatID(id),
		Result:         resultJSON,
	}, nil
}

// NewErrorResponse creates a new JSON-RPC 2.0 error response
func NewErrorResponse(id json.RawMessage, code ErrorCode, message string, data interface{}) *Response {
	return &Response{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// ParseResponse decodes a single response envelope and validates it.
func ParseResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := resp.Validate(); err != nil {
		return &resp, err
	}
	return &resp, nil
}

// Validate checks the envelope invariants: version, id present and exactly
// one of result or error.
func (r *Response) Validate() error {
	if r.JSONRPC != JSONRPCVersion {
		return ErrInvalidVersion
	}
	if len(r.ID) == 0 {
		return ErrMissingID
	}
	hasResult := len(r.Result) > 0
	hasError := r.Error != nil
	switch {
	case hasResult && hasError:
		return ErrAmbiguousOutcome
	case !hasResult && !hasError:
		return ErrMissingOutcome
	}
	return nil
}

// IsError reports whether the response carries an error object.
func (r *Response) IsError() bool {
	return r.Error != nil
}

// MatchesID reports whether the response id is byte-identical to the
// canonical encoding of id.
func (r *Response) MatchesID(id int64) bool {
	return bytes.Equal(bytes.TrimSpace(r.ID), FormatID(id))
}

// IDString returns the raw id as sent by the peer, for diagnostics.
func (r *Response) IDString() string {
	if len(r.ID) == 0 {
		return "<none>"
	}
	return string(r.ID)
}

// DecodeResult unmarshals the result member into v.
func (r *Response) DecodeResult(v interface{}) error {
	if len(r.Result) == 0 {
		return ErrMissingOutcome
	}
	return json.Unmarshal(r.Result, v)
}

// FormatID renders an integer id the way it appears on the wire.
func FormatID(id int64) json.RawMessage {
	return json.RawMessage(strconv.FormatInt(id, 10))
}

// Notification represents a JSON-RPC 2.0 notification
type Notification struct {
	JSONRPCMessage
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Error represents a JSON-RPC 2.0 error object
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// probe is the minimal shape used to classify an incoming frame.
type probe struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
}

func probeMessage(data []byte) (probe, bool) {
	var p probe
	if err := json.Unmarshal(data, &p); err != nil {
		return p, false
	}
	return p, true
}

func hasID(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// IsRequest checks if a raw JSON message is a peer-initiated request
func IsRequest(data []byte) bool {
	p, ok := probeMessage(data)
	return ok && p.JSONRPC == JSONRPCVersion && hasID(p.ID) && p.Method != ""
}

// IsNotification checks if a raw JSON message is a JSON-RPC 2.0 notification
func IsNotification(data []byte) bool {
	p, ok := probeMessage(data)
	return ok && p.JSONRPC == JSONRPCVersion && !hasID(p.ID) && p.Method != ""
}

// PeekMethod returns the method and raw id of a peer-initiated message.
func PeekMethod(data []byte) (string, json.RawMessage) {
	p, _ := probeMessage(data)
	return p.Method, p.ID
}
