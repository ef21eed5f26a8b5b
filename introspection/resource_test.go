package introspection_test

import (
	"encoding/json"
	"testing"

	"github.com/jrsteele09/go-mcp-auth/introspection"
	"github.com/stretchr/testify/require"
)

func TestResourceAllowed(t *testing.T) {
	tests := []struct {
		resource string
		audience string
		want     bool
	}{
		{"http://host:8001", "http://host:8001", true},
		{"http://host:8001", "http://host:8001/", true},
		{"http://host:8001/", "http://host:8001", true},
		{"http://host:8001/mcp", "http://host:8001", true},
		{"http://host:8001/mcp/tools", "http://host:8001/mcp", true},
		{"http://HOST:8001/mcp", "http://host:8001/mcp/", true},
		{"https://host/mcp", "https://host:443", true},
		{"http://host:8001", "http://host:8001/sub", false},
		{"http://host:8001/mcpx", "http://host:8001/mcp", false},
		{"http://host:8001", "https://host:8001", false},
		{"http://host:8001", "http://host:8002", false},
		{"http://host:8001", "http://other:8001", false},
		{"http://host:8001", "rs-client", false},
		{"http://host:8001", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.resource+" in "+tt.audience, func(t *testing.T) {
			require.Equal(t, tt.want, introspection.ResourceAllowed(tt.resource, tt.audience))
		})
	}
}

func TestCanonicalResourceURL(t *testing.T) {
	require.Equal(t, "http://localhost:8001", introspection.CanonicalResourceURL("http://localhost:8001/"))
	require.Equal(t, "http://localhost:8001/mcp", introspection.CanonicalResourceURL("HTTP://LocalHost:8001/mcp/?x=1#frag"))
	require.Equal(t, "https://example.com", introspection.CanonicalResourceURL("https://example.com:443"))
	require.Equal(t, "not a url", introspection.CanonicalResourceURL("not a url"))
}

func TestAudienceUnmarshal(t *testing.T) {
	tests := map[string]introspection.Audience{
		`{"aud":"http://a"}`:             {"http://a"},
		`{"aud":["http://a","http://b"]}`: {"http://a", "http://b"},
		`{"aud":["http://a",7]}`:          {"http://a"},
		`{"aud":null}`:                    nil,
		`{"aud":""}`:                      nil,
		`{"aud":42}`:                      nil,
		`{}`:                              nil,
	}
	for raw, want := range tests {
		t.Run(raw, func(t *testing.T) {
			var data introspection.TokenIntrospection
			require.NoError(t, json.Unmarshal([]byte(raw), &data))
			if want == nil {
				require.Empty(t, data.Aud)
				return
			}
			require.Equal(t, want, data.Aud)
		})
	}
}
