package auth

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/ajitpratap0/mcp-conformance/pkg/errors"
)

func TestNew(t *testing.T) {
	creds, err := New(Config{})
	require.NoError(t, err)
	assert.Nil(t, creds)

	creds, err = New(Config{Token: "abc123"})
	require.NoError(t, err)
	assert.Equal(t, "bearer", creds.Type())

	creds, err = New(Config{APIKey: "mcp_0011", APIKeyHeader: "x-brewsource-key"})
	require.NoError(t, err)
	assert.Equal(t, "apikey", creds.Type())
	assert.Equal(t, "X-Brewsource-Key", creds.(*APIKey).Header())

	_, err = New(Config{Token: "abc123", APIKey: "mcp_0011"})
	require.Error(t, err)
	assert.True(t, mcperrors.IsCategory(err, mcperrors.CategoryValidation))
}

func TestBearerTokenApply(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"abc123", "Bearer abc123"},
		{"Bearer abc123", "Bearer abc123"},
		{"bearer   abc123 ", "Bearer abc123"},
	}

	for _, tt := range tests {
		h := http.Header{}
		NewBearerToken(tt.token).Apply(h)
		assert.Equal(t, tt.want, h.Get("Authorization"), "token %q", tt.token)
	}
}

func TestAPIKeyApply(t *testing.T) {
	h := http.Header{}
	NewAPIKey("mcp_0011", "").Apply(h)
	assert.Equal(t, "mcp_0011", h.Get(DefaultAPIKeyHeader))
	assert.Empty(t, h.Get("Authorization"))
}

func TestRedact(t *testing.T) {
	key := NewAPIKey("mcp_0011", "")
	h := http.Header{}
	key.Apply(h)
	h.Set("Traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")

	safe := Redact(h, key)
	assert.Equal(t, "[REDACTED]", safe.Get(DefaultAPIKeyHeader))
	assert.Equal(t, h.Get("Traceparent"), safe.Get("Traceparent"))
	assert.Equal(t, "mcp_0011", h.Get(DefaultAPIKeyHeader), "original untouched")

	h = http.Header{}
	NewBearerToken("abc123").Apply(h)
	assert.Equal(t, "[REDACTED]", Redact(h, nil).Get("Authorization"))
	assert.NotNil(t, Redact(nil, nil))
}
