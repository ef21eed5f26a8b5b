// Package server is the resource server's HTTP surface: the OAuth2 relay routes, protected
// resource metadata, the bearer-protected MCP endpoint and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-mcp-auth/internal/config"
	apperrors "github.com/jrsteele09/go-mcp-auth/internal/errors"
	"github.com/jrsteele09/go-mcp-auth/introspection"
	"github.com/jrsteele09/go-mcp-auth/oauthmodel"
	"github.com/jrsteele09/go-mcp-auth/upstream"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

// TokenVerifier checks a bearer token. A nil token with a nil error means "not acceptable".
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*introspection.VerifiedToken, error)
}

// Relay forwards OAuth2 traffic to the authorization server.
type Relay interface {
	Exchange(ctx context.Context, form url.Values) (*upstream.Response, error)
	Register(ctx context.Context, metadata any) (oauthmodel.Registration, bool, error)
	AuthorizeURL(query url.Values) string
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	verifier TokenVerifier
	relay    Relay
	metrics  *Metrics
	mcp      *mcp.Server
	now      func() time.Time
}

func New(cfg config.Config, verifier TokenVerifier, relay Relay, metrics *Metrics) (*Server, error) {
	if verifier == nil || relay == nil {
		return nil, fmt.Errorf("[Server New] %w: token verifier and relay are required", apperrors.ErrMisconfigured)
	}
	if metrics == nil {
		var err error
		if metrics, err = NewMetrics(nil); err != nil {
			return nil, fmt.Errorf("[Server New] failed to register metrics: %w", err)
		}
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		verifier: verifier,
		relay:    relay,
		metrics:  metrics,
		mcp:      newMCPServer(cfg.GetAppName()),
		now:      time.Now,
	}

	s.registerTools()
	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// ResourceMetadataURL is where clients discover which authorization server protects us.
func (s *Server) ResourceMetadataURL() string {
	return strings.TrimSuffix(s.config.GetServerURL(), "/") + RouteProtectedResourceMetadata
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", colouredMethod(method), path)
}

func colouredMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}
