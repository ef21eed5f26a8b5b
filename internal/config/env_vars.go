package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	envPrefix = "MCP_RESOURCE_"

	hostEnvVar            = envPrefix + "HOST"
	portEnvVar            = envPrefix + "PORT"
	serverURLEnvVar       = envPrefix + "SERVER_URL"
	transportEnvVar       = envPrefix + "TRANSPORT"
	credentialsFileEnvVar = envPrefix + "CREDENTIALS_FILE"
	appNameVar            = "APP_NAME"
	logLevelVar           = "MCP_LOG_LEVEL"

	defaultPort = 8001
)

type EnvVars struct {
	Host            string
	Port            int
	ServerURL       string // derived from Host and Port when empty
	AppName         string
	Env             string
	Transport       Transport
	CredentialsPath string
	LogLevel        string
}

var _ EnvConfig = EnvVars{}

func loadEnvVars() EnvVars {
	return EnvVars{
		Host:            GetEnv(hostEnvVar, "localhost"),
		Port:            getEnvInt(portEnvVar, defaultPort),
		ServerURL:       GetEnv(serverURLEnvVar, ""),
		AppName:         GetEnv(appNameVar, "MCP Resource Server"),
		Env:             GetEnv("ENV", "DEV"),
		Transport:       Transport(GetEnv(transportEnvVar, string(TransportStreamableHTTP))),
		CredentialsPath: GetEnv(credentialsFileEnvVar, DefaultCredentialsPath()),
		LogLevel:        GetEnv(logLevelVar, "info"),
	}
}

func (e EnvVars) GetHost() string {
	return e.Host
}

func (e EnvVars) GetPort() int {
	return e.Port
}

// GetAddr returns the listen address for the HTTP server
func (e EnvVars) GetAddr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// GetServerURL returns the public URL of this resource server. It is the RFC 8707
// resource identifier tokens must be bound to.
func (e EnvVars) GetServerURL() string {
	if e.ServerURL != "" {
		return e.ServerURL
	}
	return fmt.Sprintf("http://%s:%d", e.Host, e.Port)
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return e.Env
}

func (e EnvVars) GetTransport() Transport {
	t, err := ParseTransport(string(e.Transport))
	if err != nil {
		return TransportStreamableHTTP
	}
	return t
}

func (e EnvVars) GetCredentialsPath() string {
	return e.CredentialsPath
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

// DefaultCredentialsPath is the per-user location of the persisted client registration.
func DefaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".mcp_server", "client_credentials.json")
	}
	return filepath.Join(home, ".mcp_server", "client_credentials.json")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(envVar string, defaultValue int) int {
	if value := os.Getenv(envVar); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(envVar string, defaultValue bool) bool {
	if value := os.Getenv(envVar); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(envVar); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma or space separated variable, dropping empty entries.
func getEnvList(envVar string, defaultValue []string) []string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' '
	})
	if len(fields) == 0 {
		return defaultValue
	}
	return fields
}
