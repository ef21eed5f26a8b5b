package server

// Route path constants
const (
	// OAuth2 relay routes
	RouteRegister  = "/register"
	RouteAuthorize = "/authorize"
	RouteToken     = "/token"

	// Discovery
	RouteProtectedResourceMetadata = "/.well-known/oauth-protected-resource"

	// Operations
	RouteMetrics = "/metrics"
)
