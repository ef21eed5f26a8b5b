// Package httpclient builds the HTTP client used for every call to the authorization server.
package httpclient

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-mcp-auth/internal/errors"
)

const (
	DialTimeout     = 5 * time.Second
	RequestTimeout  = 10 * time.Second
	MaxConnsPerHost = 10
	MaxIdleConns    = 5
)

// New returns a client with bounded timeouts, a capped connection pool and certificate
// verification always on. There is no option to relax any of these.
//
// Redirects are never followed: requests carry the client secret, and a redirect target has
// not passed CheckEndpoint. The 3xx response is returned to the caller as is.
func New() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	dialer := &net.Dialer{Timeout: DialTimeout, KeepAlive: 30 * time.Second}
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = DialTimeout
	transport.ResponseHeaderTimeout = RequestTimeout
	transport.MaxConnsPerHost = MaxConnsPerHost
	transport.MaxIdleConns = MaxIdleConns
	transport.MaxIdleConnsPerHost = MaxIdleConns
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	return &http.Client{
		Transport: transport,
		Timeout:   RequestTimeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// CheckEndpoint accepts https URLs, and http URLs only when the host is a loopback address.
func CheckEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: endpoint %q: %v", apperrors.ErrMisconfigured, raw, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: endpoint %q has no host", apperrors.ErrMisconfigured, raw)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return nil
	case "http":
		if IsLoopbackHost(u.Hostname()) {
			return nil
		}
		return fmt.Errorf("%w: plaintext endpoint %q is not a loopback address", apperrors.ErrMisconfigured, raw)
	}
	return fmt.Errorf("%w: endpoint %q has unsupported scheme %q", apperrors.ErrMisconfigured, raw, u.Scheme)
}

// IsLoopbackHost reports whether host is localhost or a literal loopback IP.
func IsLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
