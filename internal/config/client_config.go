package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultCallbackPort    = 3030
	DefaultCallbackTimeout = 300 * time.Second
)

// ClientSettings configures the command line MCP client.
type ClientSettings struct {
	Port            int
	Transport       Transport
	CallbackPort    int
	CallbackTimeout time.Duration
	Scopes          []string
}

// LoadClient reads the client settings from a .env file and the environment.
func LoadClient() ClientSettings {
	_ = godotenv.Load()

	return ClientSettings{
		Port:            getEnvInt("MCP_SERVER_PORT", defaultPort),
		Transport:       Transport(GetEnv("MCP_TRANSPORT_TYPE", "streamable_http")),
		CallbackPort:    getEnvInt("MCP_CALLBACK_PORT", DefaultCallbackPort),
		CallbackTimeout: getEnvDuration("MCP_CALLBACK_TIMEOUT", DefaultCallbackTimeout),
		Scopes:          getEnvList("MCP_SCOPES", defaultRequiredScopes),
	}
}

// GetBaseURL is the resource server root, where /register, /authorize and /token live.
func (c ClientSettings) GetBaseURL() string {
	return fmt.Sprintf("http://localhost:%d", c.Port)
}

// GetServerURL is the MCP endpoint for the selected transport.
func (c ClientSettings) GetServerURL() string {
	t, err := ParseTransport(string(c.Transport))
	if err != nil {
		t = TransportStreamableHTTP
	}
	return c.GetBaseURL() + t.Path()
}
