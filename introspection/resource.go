package introspection

import (
	"net"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-mcp-auth/internal/httpclient"
)

// CheckEndpoint rejects introspection endpoints that are neither https nor loopback http.
func CheckEndpoint(endpoint string) error {
	return httpclient.CheckEndpoint(endpoint)
}

// CanonicalResourceURL normalises a server URL into its RFC 8707 resource identifier:
// lower-case scheme and host, no default port, no query or fragment, no trailing slash.
func CanonicalResourceURL(serverURL string) string {
	u, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil || u.Host == "" {
		return serverURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = canonicalHost(u)
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String()
}

// ResourceAllowed reports whether the resource URL is covered by an audience entry. Scheme,
// host and port must be equal and the resource path must equal the audience path or sit
// beneath it. Paths are compared segment-wise, so /mcp does not cover /mcpx.
func ResourceAllowed(resource, audience string) bool {
	r, err := url.Parse(strings.TrimSpace(resource))
	if err != nil || r.Host == "" {
		return false
	}
	a, err := url.Parse(strings.TrimSpace(audience))
	if err != nil || a.Host == "" {
		return false
	}

	if !strings.EqualFold(r.Scheme, a.Scheme) {
		return false
	}
	if canonicalHost(r) != canonicalHost(a) {
		return false
	}
	return strings.HasPrefix(withTrailingSlash(r.Path), withTrailingSlash(a.Path))
}

func withTrailingSlash(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

func canonicalHost(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	switch {
	case port == "":
	case port == "80" && strings.EqualFold(u.Scheme, "http"):
		port = ""
	case port == "443" && strings.EqualFold(u.Scheme, "https"):
		port = ""
	}
	if port == "" {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return net.JoinHostPort(host, port)
}
