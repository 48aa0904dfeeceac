package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Content types carried in a tool result.
const (
	ContentTypeText  = "text"
	ContentTypeImage = "image"
)

// Tool represents a tool advertised by the server
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ListToolsResult defines the response for listing tools
type ListToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// CallToolParams defines parameters for calling a tool
type CallToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// CallToolResult defines the response for tool calls
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content is one element of a tool result.
type Content struct {
	Type     string  `json:"type,omitempty"`
	Text     *string `json:"text,omitempty"`
	Data     string  `json:"data,omitempty"`
	MimeType string  `json:"mimeType,omitempty"`
}

// Errors reported when a result does not have the shape the harness needs.
var (
	ErrMissingTools   = errors.New("result has no tools list")
	ErrUnnamedTool    = errors.New("tool entry has no name")
	ErrEmptyContent   = errors.New("result content is empty")
	ErrMissingText    = errors.New("first content element has no text")
	ErrMissingContent = errors.New("result has no content list")
)

// DecodeListToolsResult decodes a tools/list result, requiring a tools array
// whose entries all carry a non-empty name.
func DecodeListToolsResult(raw json.RawMessage) (*ListToolsResult, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, fmt.Errorf("result is not an object: %w", err)
	}
	toolsRaw, ok := members["tools"]
	if !ok || string(toolsRaw) == "null" {
		return nil, ErrMissingTools
	}

	var result ListToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("malformed tools list: %w", err)
	}
	for i, tool := range result.Tools {
		if tool.Name == "" {
			return nil, fmt.Errorf("tools[%d]: %w", i, ErrUnnamedTool)
		}
	}
	return &result, nil
}

// DecodeCallToolResult decodes a tools/call result, requiring a content array.
func DecodeCallToolResult(raw json.RawMessage) (*CallToolResult, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, fmt.Errorf("result is not an object: %w", err)
	}
	contentRaw, ok := members["content"]
	if !ok || string(contentRaw) == "null" {
		return nil, ErrMissingContent
	}

	var result CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("malformed tool result: %w", err)
	}
	return &result, nil
}

// FirstText returns the text payload of the first content element.
func (r *CallToolResult) FirstText() (string, error) {
	if len(r.Content) == 0 {
		return "", ErrEmptyContent
	}
	if r.Content[0].Text == nil {
		return "", ErrMissingText
	}
	return *r.Content[0].Text, nil
}

// NewTextContent builds a text content element.
func NewTextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: &text}
}
