// Package mcptest provides an in-process MCP server speaking JSON-RPC over
// websocket, for testing clients and the conformance harness without a real
// server. Its default tools and answers mirror the BrewSource server.
package mcptest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ajitpratap0/mcp-conformance/pkg/protocol"
)

// Path is where the server accepts websocket connections
const Path = "/mcp"

// Request is a request received by the server
type Request struct {
	ID     json.RawMessage
	Method string
	Params json.RawMessage
}

// ToolCall decodes the params of a tools/call request
func (r Request) ToolCall() (protocol.CallToolParams, error) {
	var params protocol.CallToolParams
	err := json.Unmarshal(r.Params, &params)
	return params, err
}

// Reply is what the server does with one request. Exactly one of Result,
// Error, Raw, Close or Silent is normally set; a zero Reply answers with a
// null result.
type Reply struct {
	Result interface{}
	Error  *protocol.Error
	// Raw is written verbatim instead of a response envelope
	Raw []byte
	// Close drops the connection instead of answering
	Close bool
	// Silent sends nothing, leaving the client to time out
	Silent bool
	// Delay postpones the answer
	Delay time.Duration
}

// HandlerFunc computes the reply to a request
type HandlerFunc func(req Request) Reply

// Server is a scriptable MCP server
type Server struct {
	// URL is the ws:// address of the MCP endpoint
	URL string

	httpServer *httptest.Server
	upgrader   websocket.Upgrader

	mu             sync.Mutex
	tools          []protocol.Tool
	toolReplies    map[string]Reply
	handlers       map[string]HandlerFunc
	before         map[string][][]byte
	idOffset       int64
	closeOnConnect bool
	serverInfo     protocol.ServerInfo
	requests       []Request
	header         http.Header
	replies        []json.RawMessage
	conns          map[*websocket.Conn]struct{}
}

// Option configures a Server
type Option func(*Server)

// WithTools replaces the advertised tools
func WithTools(tools ...protocol.Tool) Option {
	return func(s *Server) {
		s.tools = append([]protocol.Tool{}, tools...)
	}
}

// WithToolText makes a tool answer with a single text content element
func WithToolText(name, text string) Option {
	return WithToolReply(name, Reply{Result: TextResult(text)})
}

// WithToolError makes a tool answer with a JSON-RPC error envelope
func WithToolError(name string, code protocol.ErrorCode, message string) Option {
	return WithToolReply(name, Reply{Error: &protocol.Error{Code: code, Message: message}})
}

// WithToolReply sets the reply for calls to one tool
func WithToolReply(name string, reply Reply) Option {
	return func(s *Server) {
		s.toolReplies[name] = reply
	}
}

// WithHandler overrides the handling of a method
func WithHandler(method string, handler HandlerFunc) Option {
	return func(s *Server) {
		s.handlers[method] = handler
	}
}

// WithBefore sends frames, such as notifications or server-initiated
// requests, ahead of every answer to method
func WithBefore(method string, frames ...[]byte) Option {
	return func(s *Server) {
		s.before[method] = append(s.before[method], frames...)
	}
}

// WithIDOffset answers every request with its id plus offset
func WithIDOffset(offset int64) Option {
	return func(s *Server) {
		s.idOffset = offset
	}
}

// WithCloseOnConnect accepts the websocket handshake and closes immediately
func WithCloseOnConnect() Option {
	return func(s *Server) {
		s.closeOnConnect = true
	}
}

// WithServerInfo sets the serverInfo of the initialize result
func WithServerInfo(name, version string) Option {
	return func(s *Server) {
		s.serverInfo = protocol.ServerInfo{Name: name, Version: version}
	}
}

// NewServer starts a server. Call Close when done.
func NewServer(opts ...Option) *Server {
	s := &Server{
		tools:       BrewSourceTools(),
		toolReplies: make(map[string]Reply),
		handlers:    make(map[string]HandlerFunc),
		before:      make(map[string][][]byte),
		serverInfo:  protocol.ServerInfo{Name: "BrewSource MCP Server", Version: "1.0.0"},
		conns:       make(map[*websocket.Conn]struct{}),
	}
	for name, text := range BrewSourceTexts() {
		s.toolReplies[name] = Reply{Result: TextResult(text)}
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.serveWebSocket)
	s.httpServer = httptest.NewServer(mux)
	s.URL = "ws" + strings.TrimPrefix(s.httpServer.URL, "http") + Path
	return s
}

// Close drops open connections and stops the server
func (s *Server) Close() {
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.httpServer.Close()
}

// Requests returns the requests received so far, in order
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request{}, s.requests...)
}

// Methods returns the method of every request received so far
func (s *Server) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	methods := make([]string, 0, len(s.requests))
	for _, req := range s.requests {
		methods = append(methods, req.Method)
	}
	return methods
}

// Header returns the headers of the most recent websocket handshake
func (s *Server) Header() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header.Clone()
}

// Replies returns the frames the client sent in answer to server-initiated
// requests
func (s *Server) Replies() []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]json.RawMessage{}, s.replies...)
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.header = r.Header.Clone()
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.mu.Lock()
	closeNow := s.closeOnConnect
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	if closeNow {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "closing"))
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			resp := protocol.NewErrorResponse(json.RawMessage("null"), protocol.ParseError, "Parse error", nil)
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
			continue
		}

		if msg.Method == "" {
			s.mu.Lock()
			s.replies = append(s.replies, json.RawMessage(data))
			s.mu.Unlock()
			continue
		}

		req := Request{ID: msg.ID, Method: msg.Method, Params: msg.Params}
		s.mu.Lock()
		s.requests = append(s.requests, req)
		before := s.before[req.Method]
		s.mu.Unlock()

		// notifications get no answer
		if len(req.ID) == 0 {
			continue
		}

		for _, frame := range before {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}

		reply := s.reply(req)
		if reply.Delay > 0 {
			time.Sleep(reply.Delay)
		}
		switch {
		case reply.Close:
			return
		case reply.Silent:
			continue
		}

		frame, err := s.encodeReply(req, reply)
		if err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
}

func (s *Server) reply(req Request) Reply {
	s.mu.Lock()
	handler, ok := s.handlers[req.Method]
	s.mu.Unlock()
	if ok {
		return handler(req)
	}

	switch req.Method {
	case protocol.MethodInitialize:
		s.mu.Lock()
		info := s.serverInfo
		s.mu.Unlock()
		return Reply{Result: map[string]interface{}{
			"protocolVersion": protocol.ProtocolRevision,
			"capabilities": map[string]interface{}{
				"tools":     map[string]interface{}{"listChanged": false},
				"resources": map[string]interface{}{"subscribe": false, "listChanged": false},
			},
			"serverInfo": info,
		}}
	case protocol.MethodListTools:
		s.mu.Lock()
		tools := append([]protocol.Tool{}, s.tools...)
		s.mu.Unlock()
		return Reply{Result: protocol.ListToolsResult{Tools: tools}}
	case protocol.MethodCallTool:
		params, err := req.ToolCall()
		if err != nil {
			return Reply{Error: &protocol.Error{Code: protocol.InvalidParams, Message: "Invalid tool call parameters"}}
		}
		s.mu.Lock()
		reply, ok := s.toolReplies[params.Name]
		s.mu.Unlock()
		if !ok {
			return Reply{Error: &protocol.Error{
				Code:    protocol.MethodNotFound,
				Message: fmt.Sprintf("Tool not found: %s", params.Name),
			}}
		}
		return reply
	default:
		return Reply{Error: &protocol.Error{Code: protocol.MethodNotFound, Message: "Method not found"}}
	}
}

func (s *Server) encodeReply(req Request, reply Reply) ([]byte, error) {
	if reply.Raw != nil {
		return reply.Raw, nil
	}

	id := req.ID
	s.mu.Lock()
	offset := s.idOffset
	s.mu.Unlock()
	if offset != 0 {
		var n int64
		if err := json.Unmarshal(req.ID, &n); err == nil {
			id = protocol.FormatID(n + offset)
		}
	}

	if reply.Error != nil {
		return json.Marshal(protocol.NewErrorResponse(id, reply.Error.Code, reply.Error.Message, reply.Error.Data))
	}

	result, err := json.Marshal(reply.Result)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&protocol.Response{
		JSONRPCMessage: protocol.JSONRPCMessage{JSONRPC: protocol.JSONRPCVersion},
		ID:             id,
		Result:         result,
	})
}

// TextResult builds a tools/call result with one text element
func TextResult(text string) protocol.CallToolResult {
	return protocol.CallToolResult{Content: []protocol.Content{protocol.NewTextContent(text)}}
}

// Notification renders a server notification frame
func Notification(method string, params interface{}) []byte {
	notification := protocol.Notification{
		JSONRPCMessage: protocol.JSONRPCMessage{JSONRPC: protocol.JSONRPCVersion},
		Method:         method,
	}
	if params != nil {
		notification.Params, _ = json.Marshal(params)
	}
	data, _ := json.Marshal(notification)
	return data
}

// ServerRequest renders a server-initiated request frame
func ServerRequest(id, method string) []byte {
	data, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": protocol.JSONRPCVersion,
		"id":      id,
		"method":  method,
		"params":  map[string]interface{}{},
	})
	return data
}
