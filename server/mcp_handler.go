package server

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/jrsteele09/go-mcp-auth/internal/config"
	"github.com/jrsteele09/go-mcp-auth/introspection"
	mcpauth "github.com/modelcontextprotocol/go-sdk/auth"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	serverVersion = "0.1.0"

	// unexpiringTokenLifetime bounds tokens whose introspection response carried no exp.
	unexpiringTokenLifetime = time.Minute
)

// MCPServer exposes the MCP server so callers can add tools with mcp.AddTool before serving.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func newMCPServer(name string) *mcp.Server {
	return mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: serverVersion,
	}, nil)
}

// MCP serves the MCP server on the configured transport. It must run behind RequireAuth,
// whose verified token is handed to tool handlers as RequestExtra.TokenInfo.
func (s *Server) MCP() http.Handler {
	getServer := func(*http.Request) *mcp.Server { return s.mcp }

	var transport http.Handler
	if s.config.GetTransport() == config.TransportSSE {
		transport = mcp.NewSSEHandler(getServer, nil)
	} else {
		transport = mcp.NewStreamableHTTPHandler(getServer, nil)
	}

	return mcpauth.RequireBearerToken(s.verifiedTokenInfo, &mcpauth.RequireBearerTokenOptions{
		ResourceMetadataURL: s.ResourceMetadataURL(),
	})(transport)
}

func (s *Server) verifiedTokenInfo(ctx context.Context, _ string, _ *http.Request) (*mcpauth.TokenInfo, error) {
	token, ok := TokenFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: request did not pass token verification", mcpauth.ErrInvalidToken)
	}
	return TokenInfo(token, s.now()), nil
}

// TokenInfo converts a verified token into the SDK's view of it.
func TokenInfo(token *introspection.VerifiedToken, now time.Time) *mcpauth.TokenInfo {
	expiry := token.Expiry()
	if expiry.IsZero() {
		expiry = now.Add(unexpiringTokenLifetime)
	}
	userID := token.Subject()
	if userID == "" {
		userID = token.ClientID
	}
	return &mcpauth.TokenInfo{
		Scopes:     slices.Clone(token.Scopes),
		Expiration: expiry,
		UserID:     userID,
		Extra: map[string]any{
			"client_id": token.ClientID,
			"claims":    token.Claims,
		},
	}
}
