package server_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-mcp-auth/internal/errors"
	"github.com/jrsteele09/go-mcp-auth/introspection"
	"github.com/jrsteele09/go-mcp-auth/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *server.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNewMetricsSharesRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()

	first, err := server.NewMetrics(registry)
	require.NoError(t, err)
	second, err := server.NewMetrics(registry)
	require.NoError(t, err)

	second.ObserveVerification(introspection.OutcomeVerified, 10*time.Millisecond)
	second.ObserveRelay("token", 0, time.Millisecond)
	first.ObserveRequest(http.MethodGet, "GET /mcp", http.StatusOK, time.Millisecond)
	second.ObserveRequest(http.MethodGet, "GET /mcp", http.StatusOK, time.Millisecond)

	body := scrape(t, first)
	require.Contains(t, body, `mcp_resource_token_verifications_total{outcome="verified"} 1`)
	require.Contains(t, body, `mcp_resource_upstream_requests_total{route="token",status="unreachable"} 1`)
	require.Contains(t, body, `mcp_resource_http_requests_total{method="GET",route="GET /mcp",status="200"} 2`)
}

func TestNewMetricsRejectsClashingCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mcp_resource",
		Name:      "token_verifications_total",
		Help:      "Something else entirely",
	}, []string{"reason"}))

	_, err := server.NewMetrics(registry)
	require.ErrorIs(t, err, apperrors.ErrMisconfigured)
}
