package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// ProtocolRevision is the MCP revision announced during the handshake
	ProtocolRevision = "2024-11-05"

	// Lifecycle
	MethodInitialize = "initialize"

	// Tools
	MethodListTools = "tools/list"
	MethodCallTool  = "tools/call"
)

// InitializeParams defines the parameters for the initialize request
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      ClientInfo         `json:"clientInfo"`
}

// ClientCapabilities advertises what the client supports.
type ClientCapabilities struct {
	Roots    *RootsCapability    `json:"roots,omitempty"`
	Sampling *SamplingCapability `json:"sampling,omitempty"`
}

// RootsCapability describes the client's roots support.
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// SamplingCapability is an empty marker object.
type SamplingCapability struct{}

// ClientInfo identifies the client to the server
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the server's handshake reply. Capabilities are kept raw
// since servers disagree on their shape and the harness only reports them.
type InitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion,omitempty"`
	Capabilities    json.RawMessage `json:"capabilities,omitempty"`
	ServerInfo      *ServerInfo     `json:"serverInfo,omitempty"`
}

// ServerInfo contains information about the server
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// DefaultClientCapabilities returns the capability set the harness announces.
func DefaultClientCapabilities() ClientCapabilities {
	return ClientCapabilities{
		Roots:    &RootsCapability{ListChanged: true},
		Sampling: &SamplingCapability{},
	}
}

// ErrNullResult is returned when a method that needs a result object gets
// "result": null. The envelope itself is well-formed.
var ErrNullResult = errors.New("result is null")

// DecodeInitializeResult decodes an initialize result, which must be an
// object.
func DecodeInitializeResult(raw json.RawMessage) (*InitializeResult, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, fmt.Errorf("result is not an object: %w", err)
	}
	if members == nil {
		return nil, ErrNullResult
	}

	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("malformed initialize result: %w", err)
	}
	return &result, nil
}
