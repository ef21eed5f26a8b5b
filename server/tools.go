package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var ErrToolForbidden = errors.New("token lacks the scopes required by this tool")

const (
	ToolGetTime      = "get_time"
	ToolGetTimeAdmin = "get_time_but_you_are_an_admin"

	// ScopeAdmin is needed on top of the route scopes to call the admin tool.
	ScopeAdmin = "admin"
)

type timeToolInput struct{}

// TimeResult is the structured output of the time tools.
type TimeResult struct {
	CurrentTime string  `json:"current_time"`
	Timezone    string  `json:"timezone"`
	Timestamp   float64 `json:"timestamp"`
	Formatted   string  `json:"formatted"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolGetTime,
		Description: "Return the current server time",
	}, s.handleGetTimeTool)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolGetTimeAdmin,
		Description: "Return the current server time to callers holding the admin scope",
	}, RequireToolScopes(s.handleGetTimeTool, ScopeAdmin))
}

func (s *Server) handleGetTimeTool(_ context.Context, _ *mcp.CallToolRequest, _ timeToolInput) (*mcp.CallToolResult, TimeResult, error) {
	now := s.now().UTC()
	out := TimeResult{
		CurrentTime: now.Format("2006-01-02T15:04:05.000000"),
		Timezone:    "UTC",
		Timestamp:   float64(now.UnixMicro()) / 1e6,
		Formatted:   now.Format(time.DateTime),
	}
	text, err := json.Marshal(out)
	if err != nil {
		return nil, TimeResult{}, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
	}, out, nil
}

// RequireToolScopes wraps a tool handler so it only runs for tokens holding every given scope.
// A refusal is reported to the caller as a tool error.
func RequireToolScopes[In, Out any](next mcp.ToolHandlerFor[In, Out], scopes ...string) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input In) (*mcp.CallToolResult, Out, error) {
		if !requestHasScopes(req, scopes) {
			var zero Out
			return nil, zero, fmt.Errorf("%w: requires %s", ErrToolForbidden, strings.Join(scopes, " "))
		}
		return next(ctx, req, input)
	}
}

func requestHasScopes(req *mcp.CallToolRequest, scopes []string) bool {
	if req == nil || req.Extra == nil || req.Extra.TokenInfo == nil {
		return false
	}
	for _, scope := range scopes {
		if !slices.Contains(req.Extra.TokenInfo.Scopes, scope) {
			return false
		}
	}
	return true
}
