package httpclient_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	apperrors "github.com/jrsteele09/go-mcp-auth/internal/errors"
	"github.com/jrsteele09/go-mcp-auth/internal/httpclient"
	"github.com/stretchr/testify/require"
)

func TestCheckEndpoint(t *testing.T) {
	allowed := []string{
		"https://am.example.com/oauth/introspect",
		"http://localhost:8083/oauth/introspect",
		"http://127.0.0.1:8083/oauth/introspect",
		"http://[::1]:8083/oauth/introspect",
	}
	for _, u := range allowed {
		t.Run(u, func(t *testing.T) {
			require.NoError(t, httpclient.CheckEndpoint(u))
		})
	}

	rejected := []string{
		"ftp://am.example.com/oauth/introspect",
		"http://am.example.com/oauth/introspect",
		"http://localhost.evil.com/oauth/introspect",
		"http://10.0.0.1/oauth/introspect",
		"/oauth/introspect",
		"://bad",
	}
	for _, u := range rejected {
		t.Run(u, func(t *testing.T) {
			err := httpclient.CheckEndpoint(u)
			require.Error(t, err)
			require.ErrorIs(t, err, apperrors.ErrMisconfigured)
		})
	}
}

func TestNewClientIsBounded(t *testing.T) {
	c := httpclient.New()
	require.Equal(t, httpclient.RequestTimeout, c.Timeout)

	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	require.Equal(t, httpclient.MaxConnsPerHost, tr.MaxConnsPerHost)
	require.Equal(t, httpclient.MaxIdleConns, tr.MaxIdleConnsPerHost)
	require.NotNil(t, tr.TLSClientConfig)
	require.False(t, tr.TLSClientConfig.InsecureSkipVerify)
}

func TestNewDoesNotFollowRedirects(t *testing.T) {
	var followed atomic.Int32
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		followed.Add(1)
	}))
	t.Cleanup(target.Close)

	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/steal", http.StatusTemporaryRedirect)
	}))
	t.Cleanup(redirector.Close)

	resp, err := httpclient.New().Post(redirector.URL, "application/x-www-form-urlencoded", strings.NewReader("client_secret=s"))
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	require.Equal(t, target.URL+"/steal", resp.Header.Get("Location"))
	require.Zero(t, followed.Load())
}
