package server

import (
	"net/http"
)

func (s *Server) initRoutes() {
	// OAuth2 relay routes
	s.RegisterRouteHandler("POST "+RouteRegister, ChainMiddleware(s.Register(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthorize, ChainMiddleware(s.Authorize(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteToken, ChainMiddleware(s.Token(), s.APIMiddleware()...))

	// RFC 9728 discovery, at the root and suffixed with the protected path
	mcpPath := s.config.GetTransport().Path()
	s.RegisterRouteHandler("GET "+RouteProtectedResourceMetadata, ChainMiddleware(s.ProtectedResourceMetadata(""), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteProtectedResourceMetadata+mcpPath, ChainMiddleware(s.ProtectedResourceMetadata(mcpPath), s.APIMiddleware()...))

	// MCP (bearer protected). GET opens the event stream, DELETE ends a streamable session.
	mcpHandler := s.MCP()
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
		s.RegisterRouteHandler(method+" "+mcpPath, ChainMiddleware(mcpHandler.ServeHTTP, s.ProtectedMiddleware()...))
	}

	s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics.Handler())

	// CORS preflight for every route
	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, s.APIMiddleware()...))
}
