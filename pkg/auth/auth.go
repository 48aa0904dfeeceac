// Package auth attaches credentials to the websocket handshake of a run.
// It supports bearer tokens and API keys; the server decides whether they
// are valid.
package auth

import (
	"net/http"
	"strings"

	mcperrors "github.com/ajitpratap0/mcp-conformance/pkg/errors"
)

// DefaultAPIKeyHeader carries an API key when no header is configured
const DefaultAPIKeyHeader = "X-API-Key"

const redacted = "[REDACTED]"

// Credentials are applied to the handshake request headers
type Credentials interface {
	// Type returns the authentication type identifier ("bearer", "apikey")
	Type() string

	// Apply sets the credential headers on h
	Apply(h http.Header)
}

// Config selects at most one kind of credential
type Config struct {
	Token        string
	APIKey       string
	APIKeyHeader string
}

// New returns the credentials described by config, or nil when none are
// configured
func New(config Config) (Credentials, error) {
	token := strings.TrimSpace(config.Token)
	apiKey := strings.TrimSpace(config.APIKey)

	switch {
	case token != "" && apiKey != "":
		return nil, mcperrors.ValidationError("configure either a bearer token or an API key, not both")
	case token != "":
		return NewBearerToken(token), nil
	case apiKey != "":
		return NewAPIKey(apiKey, config.APIKeyHeader), nil
	}
	return nil, nil
}

// BearerToken sends Authorization: Bearer <token>
type BearerToken struct {
	token string
}

// NewBearerToken accepts the token with or without its "Bearer " prefix
func NewBearerToken(token string) *BearerToken {
	token = strings.TrimSpace(token)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return &BearerToken{token: token}
}

func (b *BearerToken) Type() string {
	return "bearer"
}

func (b *BearerToken) Apply(h http.Header) {
	h.Set("Authorization", "Bearer "+b.token)
}

// APIKey sends the key in a single header
type APIKey struct {
	key    string
	header string
}

// NewAPIKey creates API key credentials sent in header, DefaultAPIKeyHeader
// when empty
func NewAPIKey(key, header string) *APIKey {
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	return &APIKey{key: key, header: http.CanonicalHeaderKey(header)}
}

func (k *APIKey) Type() string {
	return "apikey"
}

func (k *APIKey) Apply(h http.Header) {
	h.Set(k.header, k.key)
}

// Header returns the canonical name of the header carrying the key
func (k *APIKey) Header() string {
	return k.header
}

// Redact returns a copy of h safe to log: credential headers are masked
func Redact(h http.Header, creds Credentials) http.Header {
	out := h.Clone()
	if out == nil {
		return http.Header{}
	}
	if out.Get("Authorization") != "" {
		out.Set("Authorization", redacted)
	}
	if key, ok := creds.(*APIKey); ok && out.Get(key.header) != "" {
		out.Set(key.header, redacted)
	}
	return out
}
