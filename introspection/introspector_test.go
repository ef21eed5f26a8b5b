package introspection_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-mcp-auth/credentials"
	apperrors "github.com/jrsteele09/go-mcp-auth/internal/errors"
	"github.com/jrsteele09/go-mcp-auth/introspection"
	"github.com/jrsteele09/go-mcp-auth/oauthmodel"
	"github.com/stretchr/testify/require"
)

const serverURL = "http://localhost:8001"

// fakeAuthServer serves introspection and userinfo responses and records what it received.
type fakeAuthServer struct {
	*httptest.Server
	introspection   map[string]any
	introspectCode  int
	userInfo        map[string]any
	userInfoCode    int
	introspectCalls atomic.Int32
	userInfoCalls   atomic.Int32

	mu       sync.Mutex
	lastForm map[string]string
	lastAuth string
}

func newFakeAuthServer(t *testing.T) *fakeAuthServer {
	t.Helper()
	f := &fakeAuthServer{
		introspection: map[string]any{
			"active": true,
			"scope":  "openid full_profile",
			"exp":    1999999999,
			"aud":    "http://localhost:8001",
		},
		introspectCode: http.StatusOK,
		userInfo:       map[string]any{"sub": "user-1", "email": "a@graviteesource.com"},
		userInfoCode:   http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/introspect", func(w http.ResponseWriter, r *http.Request) {
		f.introspectCalls.Add(1)
		_ = r.ParseForm()
		f.mu.Lock()
		f.lastForm = map[string]string{
			"token":         r.PostForm.Get("token"),
			"client_id":     r.PostForm.Get("client_id"),
			"client_secret": r.PostForm.Get("client_secret"),
		}
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.introspectCode)
		_ = json.NewEncoder(w).Encode(f.introspection)
	})
	mux.HandleFunc("GET /oidc/userinfo", func(w http.ResponseWriter, r *http.Request) {
		f.userInfoCalls.Add(1)
		f.mu.Lock()
		f.lastAuth = r.Header.Get("Authorization")
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.userInfoCode)
		_ = json.NewEncoder(w).Encode(f.userInfo)
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeAuthServer) config(strict bool) introspection.Config {
	return introspection.Config{
		IntrospectionEndpoint: f.URL + "/oauth/introspect",
		UserInfoEndpoint:      f.URL + "/oidc/userinfo",
		ServerURL:             serverURL,
		StrictResource:        strict,
	}
}

func registeredStore(t *testing.T) *credentials.Store {
	t.Helper()
	store := credentials.NewStore(credentials.NewInMemoryRepo())
	require.NoError(t, store.Set(oauthmodel.Registration{"client_id": "rs-client", "client_secret": "rs-secret"}))
	return store
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []introspection.Outcome
}

func (o *recordingObserver) ObserveVerification(outcome introspection.Outcome, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) last() introspection.Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.outcomes) == 0 {
		return ""
	}
	return o.outcomes[len(o.outcomes)-1]
}

func TestVerifyEndToEnd(t *testing.T) {
	as := newFakeAuthServer(t)
	obs := &recordingObserver{}
	v := introspection.New(as.config(true), registeredStore(t), introspection.WithObserver(obs))

	tok, err := v.Verify(context.Background(), "access-token-1")
	require.NoError(t, err)
	require.NotNil(t, tok)

	require.Equal(t, "access-token-1", tok.Token)
	require.ElementsMatch(t, []string{"openid", "full_profile"}, tok.Scopes)
	require.NotNil(t, tok.ExpiresAt)
	require.Equal(t, int64(1999999999), *tok.ExpiresAt)
	require.Equal(t, "a@graviteesource.com", tok.Claims["email"])
	require.Equal(t, "user-1", tok.Subject())
	require.Equal(t, introspection.Audience{"http://localhost:8001"}, tok.Resource)
	require.Equal(t, "rs-client", tok.ClientID, "falls back to the configured client")
	require.True(t, tok.HasScopes("openid", "full_profile"))
	require.False(t, tok.HasScopes("admin"))
	require.Equal(t, introspection.OutcomeVerified, obs.last())

	as.mu.Lock()
	require.Equal(t, map[string]string{
		"token":         "access-token-1",
		"client_id":     "rs-client",
		"client_secret": "rs-secret",
	}, as.lastForm)
	require.Equal(t, "Bearer access-token-1", as.lastAuth)
	as.mu.Unlock()
}

func TestVerifyUsesIntrospectedClientID(t *testing.T) {
	as := newFakeAuthServer(t)
	as.introspection["client_id"] = "issuing-client"
	v := introspection.New(as.config(false), registeredStore(t))

	tok, err := v.Verify(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, "issuing-client", tok.ClientID)
}

func TestVerifyInactiveToken(t *testing.T) {
	as := newFakeAuthServer(t)
	as.introspection = map[string]any{
		"active": false,
		"scope":  "openid full_profile",
		"aud":    serverURL,
	}
	obs := &recordingObserver{}
	v := introspection.New(as.config(true), registeredStore(t), introspection.WithObserver(obs))

	tok, err := v.Verify(context.Background(), "tok")
	require.NoError(t, err)
	require.Nil(t, tok)
	require.Equal(t, int32(0), as.userInfoCalls.Load())
	require.Equal(t, introspection.OutcomeInactive, obs.last())
}

func TestVerifyIntrospectionNon200(t *testing.T) {
	as := newFakeAuthServer(t)
	as.introspectCode = http.StatusUnauthorized
	v := introspection.New(as.config(false), registeredStore(t))

	tok, err := v.Verify(context.Background(), "tok")
	require.NoError(t, err)
	require.Nil(t, tok)
}

func TestVerifyUserInfoFailure(t *testing.T) {
	as := newFakeAuthServer(t)
	as.userInfoCode = http.StatusUnauthorized
	obs := &recordingObserver{}
	v := introspection.New(as.config(false), registeredStore(t), introspection.WithObserver(obs))

	tok, err := v.Verify(context.Background(), "tok")
	require.NoError(t, err)
	require.Nil(t, tok)
	require.Equal(t, introspection.OutcomeUserInfoError, obs.last())
}

func TestVerifyStrictAudience(t *testing.T) {
	tests := []struct {
		name string
		aud  any
		ok   bool
	}{
		{"absent", nil, false},
		{"non matching string", "http://other:8001", false},
		{"sub path of server", "http://localhost:8001/sub", false},
		{"list without match", []string{"http://other:8001", "rs-client"}, false},
		{"exact string", "http://localhost:8001", true},
		{"trailing slash", "http://localhost:8001/", true},
		{"list with match", []string{"http://other:8001", "http://localhost:8001/"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			as := newFakeAuthServer(t)
			if tt.aud == nil {
				delete(as.introspection, "aud")
			} else {
				as.introspection["aud"] = tt.aud
			}
			v := introspection.New(as.config(true), registeredStore(t))

			tok, err := v.Verify(context.Background(), "tok")
			require.NoError(t, err)
			if tt.ok {
				require.NotNil(t, tok)
			} else {
				require.Nil(t, tok)
				require.Equal(t, int32(0), as.userInfoCalls.Load())
			}
		})
	}
}

func TestVerifyNonStrictIgnoresAudience(t *testing.T) {
	as := newFakeAuthServer(t)
	as.introspection["aud"] = "http://elsewhere"
	v := introspection.New(as.config(false), registeredStore(t))

	tok, err := v.Verify(context.Background(), "tok")
	require.NoError(t, err)
	require.NotNil(t, tok)
}

func TestVerifyRejectsUnsafeEndpointWithoutNetworkCall(t *testing.T) {
	as := newFakeAuthServer(t)
	for _, endpoint := range []string{
		"ftp://am.example.com/oauth/introspect",
		"http://am.example.com/oauth/introspect",
	} {
		t.Run(endpoint, func(t *testing.T) {
			cfg := as.config(false)
			cfg.IntrospectionEndpoint = endpoint
			obs := &recordingObserver{}
			var transportCalls atomic.Int32
			client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				transportCalls.Add(1)
				return nil, context.Canceled
			})}
			v := introspection.New(cfg, registeredStore(t), introspection.WithHTTPClient(client), introspection.WithObserver(obs))

			tok, err := v.Verify(context.Background(), "tok")
			require.NoError(t, err)
			require.Nil(t, tok)
			require.Equal(t, int32(0), transportCalls.Load())
			require.Equal(t, introspection.OutcomeUnsafeEndpoint, obs.last())
		})
	}
}

func TestVerifyWithoutCredentialsIsMisconfigured(t *testing.T) {
	as := newFakeAuthServer(t)
	v := introspection.New(as.config(false), credentials.NewStore(credentials.NewInMemoryRepo()))

	tok, err := v.Verify(context.Background(), "tok")
	require.Nil(t, tok)
	require.ErrorIs(t, err, apperrors.ErrMisconfigured)
	require.Equal(t, int32(0), as.introspectCalls.Load())
}

func TestVerifyUpstreamUnreachable(t *testing.T) {
	as := newFakeAuthServer(t)
	cfg := as.config(false)
	as.Close()

	v := introspection.New(cfg, registeredStore(t))
	tok, err := v.Verify(context.Background(), "tok")
	require.NoError(t, err)
	require.Nil(t, tok)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestVerifyDoesNotFollowIntrospectionRedirects(t *testing.T) {
	var leaked atomic.Int32
	elsewhere := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		leaked.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"active":true}`))
	}))
	t.Cleanup(elsewhere.Close)

	redirecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, elsewhere.URL+"/steal", http.StatusTemporaryRedirect)
	}))
	t.Cleanup(redirecting.Close)

	obs := &recordingObserver{}
	v := introspection.New(introspection.Config{
		IntrospectionEndpoint: redirecting.URL + "/oauth/introspect",
		UserInfoEndpoint:      redirecting.URL + "/oidc/userinfo",
		ServerURL:             serverURL,
	}, registeredStore(t), introspection.WithObserver(obs))

	tok, err := v.Verify(context.Background(), "tok")
	require.NoError(t, err)
	require.Nil(t, tok)
	require.Zero(t, leaked.Load(), "client secret must not be replayed to the redirect target")
	require.Equal(t, introspection.OutcomeUpstreamError, obs.last())
}

func TestCheckReportsRejectionReason(t *testing.T) {
	t.Run("inactive", func(t *testing.T) {
		as := newFakeAuthServer(t)
		as.introspection = map[string]any{"active": false}
		_, err := introspection.New(as.config(false), registeredStore(t)).Check(context.Background(), "tok")
		require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
	})

	t.Run("audience mismatch", func(t *testing.T) {
		as := newFakeAuthServer(t)
		as.introspection["aud"] = "http://other.example:9000"
		_, err := introspection.New(as.config(true), registeredStore(t)).Check(context.Background(), "tok")
		require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
	})

	t.Run("unreachable", func(t *testing.T) {
		as := newFakeAuthServer(t)
		cfg := as.config(false)
		as.Close()
		_, err := introspection.New(cfg, registeredStore(t)).Check(context.Background(), "tok")
		require.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
		require.NotErrorIs(t, err, apperrors.ErrTokenInvalid)
	})

	t.Run("verified", func(t *testing.T) {
		as := newFakeAuthServer(t)
		tok, err := introspection.New(as.config(true), registeredStore(t)).Check(context.Background(), "tok")
		require.NoError(t, err)
		require.NotNil(t, tok)
	})
}
