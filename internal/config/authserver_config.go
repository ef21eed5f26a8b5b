package config

import "strings"

const (
	authServerURLEnvVar         = envPrefix + "GRAVITEE_AM_URL"
	introspectionEndpointEnvVar = envPrefix + "GRAVITEE_AM_INTROSPECTION_ENDPOINT"
	userInfoEndpointEnvVar      = envPrefix + "GRAVITEE_AM_USERINFO_ENDPOINT"
	registrationEndpointEnvVar  = envPrefix + "GRAVITEE_AM_REGISTRATION_ENDPOINT"
	authorizeEndpointEnvVar     = envPrefix + "GRAVITEE_AM_AUTHORIZATION_ENDPOINT"
	tokenEndpointEnvVar         = envPrefix + "GRAVITEE_AM_TOKEN_ENDPOINT"

	DefaultAuthServerURL = "http://localhost:8083"
)

// AuthServerConfig locates the endpoints of the remote authorization server.
type AuthServerConfig interface {
	GetAuthServerURL() string
	GetIntrospectionEndpoint() string
	GetUserInfoEndpoint() string
	GetRegistrationEndpoint() string
	GetAuthorizationEndpoint() string
	GetTokenEndpoint() string
}

// AuthServer holds explicit endpoint overrides. Empty endpoints are derived from BaseURL.
type AuthServer struct {
	BaseURL               string
	IntrospectionEndpoint string
	UserInfoEndpoint      string
	RegistrationEndpoint  string
	AuthorizationEndpoint string
	TokenEndpoint         string
}

var _ AuthServerConfig = AuthServer{}

func loadAuthServer() AuthServer {
	return AuthServer{
		BaseURL:               GetEnv(authServerURLEnvVar, DefaultAuthServerURL),
		IntrospectionEndpoint: GetEnv(introspectionEndpointEnvVar, ""),
		UserInfoEndpoint:      GetEnv(userInfoEndpointEnvVar, ""),
		RegistrationEndpoint:  GetEnv(registrationEndpointEnvVar, ""),
		AuthorizationEndpoint: GetEnv(authorizeEndpointEnvVar, ""),
		TokenEndpoint:         GetEnv(tokenEndpointEnvVar, ""),
	}
}

func (a AuthServer) GetAuthServerURL() string {
	return strings.TrimRight(a.BaseURL, "/")
}

func (a AuthServer) GetIntrospectionEndpoint() string {
	return a.endpoint(a.IntrospectionEndpoint, "/oauth/introspect")
}

func (a AuthServer) GetUserInfoEndpoint() string {
	return a.endpoint(a.UserInfoEndpoint, "/oidc/userinfo")
}

func (a AuthServer) GetRegistrationEndpoint() string {
	return a.endpoint(a.RegistrationEndpoint, "/oidc/register")
}

func (a AuthServer) GetAuthorizationEndpoint() string {
	return a.endpoint(a.AuthorizationEndpoint, "/oauth/authorize")
}

func (a AuthServer) GetTokenEndpoint() string {
	return a.endpoint(a.TokenEndpoint, "/oauth/token")
}

func (a AuthServer) endpoint(override, path string) string {
	if override != "" {
		return override
	}
	return a.GetAuthServerURL() + path
}
