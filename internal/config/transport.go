package config

import (
	"fmt"

	apperrors "github.com/jrsteele09/go-mcp-auth/internal/errors"
)

// Transport selects the wire transport of the MCP session layer.
type Transport string

const (
	TransportSSE            Transport = "sse"
	TransportStreamableHTTP Transport = "streamable-http"
)

// ParseTransport accepts both the server spelling (streamable-http) and the client
// spelling (streamable_http).
func ParseTransport(s string) (Transport, error) {
	switch s {
	case "sse":
		return TransportSSE, nil
	case "streamable-http", "streamable_http":
		return TransportStreamableHTTP, nil
	}
	return "", fmt.Errorf("%w: unknown transport %q (want sse or streamable-http)", apperrors.ErrMisconfigured, s)
}

// Path is the HTTP path the MCP endpoint is mounted on.
func (t Transport) Path() string {
	if t == TransportSSE {
		return "/sse"
	}
	return "/mcp"
}
