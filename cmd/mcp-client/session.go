package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-mcp-auth/internal/config"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const clientVersion = "0.1.0"

// session is an MCP client session. The HTTP client is expected to attach the bearer token.
type session struct {
	client    *mcp.Client
	transport mcp.Transport
	cs        *mcp.ClientSession
}

func newSession(endpoint string, transport config.Transport, httpClient *http.Client) *session {
	s := &session{
		client: mcp.NewClient(&mcp.Implementation{Name: "mcp-client", Version: clientVersion}, nil),
	}
	if transport == config.TransportSSE {
		s.transport = &mcp.SSEClientTransport{Endpoint: endpoint, HTTPClient: httpClient}
	} else {
		s.transport = &mcp.StreamableClientTransport{Endpoint: endpoint, HTTPClient: httpClient}
	}
	return s
}

func (s *session) initialize(ctx context.Context) error {
	cs, err := s.client.Connect(ctx, s.transport, nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	s.cs = cs
	return nil
}

func (s *session) id() string {
	if s.cs == nil {
		return ""
	}
	return s.cs.ID()
}

func (s *session) close() error {
	if s.cs == nil {
		return nil
	}
	return s.cs.Close()
}

func (s *session) listTools(ctx context.Context) ([]*mcp.Tool, error) {
	res, err := s.cs.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, err
	}
	return res.Tools, nil
}

func (s *session) callTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	return s.cs.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
}

// interactiveLoop reads list, call <tool> [json] and quit commands until quit or EOF.
func interactiveLoop(ctx context.Context, s *session, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "\nInteractive Client (commands: list, call <tool> [json], quit)")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "mcp> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "quit":
			return nil
		case line == "list":
			tools, err := s.listTools(ctx)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			if len(tools) == 0 {
				fmt.Fprintln(out, "No tools available")
				continue
			}
			fmt.Fprintln(out, "\nAvailable tools:")
			for _, t := range tools {
				fmt.Fprintf(out, "- %s: %s\n", t.Name, t.Description)
			}
		case strings.HasPrefix(line, "call "):
			name, args, err := parseCall(line)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			result, err := s.callTool(ctx, name, args)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			if result.IsError {
				fmt.Fprintf(out, "Tool '%s' failed:\n", name)
			} else {
				fmt.Fprintf(out, "\nTool '%s' result:\n", name)
			}
			for _, c := range result.Content {
				if text, ok := c.(*mcp.TextContent); ok {
					fmt.Fprintln(out, text.Text)
				}
			}
		case line == "":
		default:
			fmt.Fprintln(out, "Unknown command")
		}
	}
}

func parseCall(line string) (string, map[string]any, error) {
	parts := strings.SplitN(strings.TrimSpace(strings.TrimPrefix(line, "call ")), " ", 2)
	name := parts[0]
	if name == "" {
		return "", nil, errors.New("usage: call <tool> [json]")
	}
	args := map[string]any{}
	if len(parts) == 2 && strings.TrimSpace(parts[1]) != "" {
		if err := json.Unmarshal([]byte(parts[1]), &args); err != nil {
			return "", nil, fmt.Errorf("invalid JSON args: %w", err)
		}
	}
	return name, args, nil
}
