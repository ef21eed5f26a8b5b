package config

import (
	"fmt"
	"net/url"

	"github.com/joho/godotenv"
	apperrors "github.com/jrsteele09/go-mcp-auth/internal/errors"
	"github.com/jrsteele09/go-mcp-auth/internal/httpclient"
)

type Config interface {
	EnvConfig
	AuthServerConfig
	SecurityConfig
	CorsConfig
}

type EnvConfig interface {
	GetHost() string
	GetPort() int
	GetAddr() string
	GetServerURL() string
	GetAppName() string
	GetEnv() string
	GetTransport() Transport
	GetCredentialsPath() string
	GetLogLevel() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

// Settings is the resource server configuration. Values come from the environment
// (prefix MCP_RESOURCE_) and may be overridden by command line flags before Validate.
type Settings struct {
	EnvVars
	AuthServer
	Security
	Cors
}

var _ Config = (*Settings)(nil)

// Load reads a .env file when present and then the process environment.
func Load() *Settings {
	_ = godotenv.Load()

	return &Settings{
		EnvVars:    loadEnvVars(),
		AuthServer: loadAuthServer(),
		Security:   loadSecurity(),
		Cors:       loadCors(),
	}
}

// Validate rejects settings the server cannot start with.
func (s *Settings) Validate() error {
	if _, err := ParseTransport(string(s.Transport)); err != nil {
		return err
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", apperrors.ErrMisconfigured, s.Port)
	}
	if err := validateHTTPURL("server url", s.GetServerURL()); err != nil {
		return err
	}
	if err := validateHTTPURL("authorization server url", s.BaseURL); err != nil {
		return err
	}
	if err := validateHTTPURL("userinfo endpoint", s.GetUserInfoEndpoint()); err != nil {
		return err
	}
	if err := httpclient.CheckEndpoint(s.GetIntrospectionEndpoint()); err != nil {
		return fmt.Errorf("introspection endpoint: %w", err)
	}
	if s.GetCredentialsPath() == "" {
		return fmt.Errorf("%w: credentials path is empty", apperrors.ErrMisconfigured)
	}
	return nil
}

func validateHTTPURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %s %q: %v", apperrors.ErrMisconfigured, name, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s %q must be an absolute http(s) URL", apperrors.ErrMisconfigured, name, raw)
	}
	return nil
}
