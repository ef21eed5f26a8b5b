package upstream_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/go-mcp-auth/credentials"
	apperrors "github.com/jrsteele09/go-mcp-auth/internal/errors"
	"github.com/jrsteele09/go-mcp-auth/oauthmodel"
	"github.com/jrsteele09/go-mcp-auth/upstream"
	"github.com/stretchr/testify/require"
)

type fakeAuthServer struct {
	*httptest.Server
	registerCalls atomic.Int32
	tokenStatus   int
	tokenBody     string
	tokenType     string
	registerCode  int

	mu        sync.Mutex
	tokenForm url.Values
}

func newFakeAuthServer(t *testing.T) *fakeAuthServer {
	t.Helper()
	f := &fakeAuthServer{
		tokenStatus:  http.StatusOK,
		tokenBody:    `{"access_token":"at","token_type":"Bearer","expires_in":3600}`,
		tokenType:    "application/json",
		registerCode: http.StatusCreated,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		f.tokenForm = r.PostForm
		f.mu.Unlock()
		w.Header().Set("Content-Type", f.tokenType)
		w.WriteHeader(f.tokenStatus)
		_, _ = w.Write([]byte(f.tokenBody))
	})
	mux.HandleFunc("POST /oidc/register", func(w http.ResponseWriter, r *http.Request) {
		f.registerCalls.Add(1)
		var md map[string]any
		_ = json.NewDecoder(r.Body).Decode(&md)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.registerCode)
		if f.registerCode >= 400 {
			_, _ = w.Write([]byte(`{"error":"invalid_client_metadata"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"client_id":                 "new-client",
			"client_secret":             "new-secret",
			"registration_access_token": "rat",
			"registration_client_uri":   f.URL + "/oidc/register/new-client",
			"client_name":               md["client_name"],
		})
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeAuthServer) lastTokenForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenForm
}

func newProxy(f *fakeAuthServer, store *credentials.Store) *upstream.Proxy {
	return upstream.New(upstream.Config{
		TokenEndpoint:         f.URL + "/oauth/token",
		RegistrationEndpoint:  f.URL + "/oidc/register",
		AuthorizationEndpoint: f.URL + "/oauth/authorize",
	}, store)
}

func storeWith(t *testing.T, clientID, secret string) *credentials.Store {
	t.Helper()
	store := credentials.NewStore(credentials.NewInMemoryRepo())
	require.NoError(t, store.Set(oauthmodel.Registration{"client_id": clientID, "client_secret": secret}))
	return store
}

func TestExchangeInjectsSecretForActiveClient(t *testing.T) {
	as := newFakeAuthServer(t)
	p := newProxy(as, storeWith(t, "active", "stored-secret"))

	resp, err := p.Exchange(context.Background(), url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {"c1"},
		"client_id":     {"active"},
		"client_secret": {"caller-secret"},
		"code_verifier": {"v"},
	})
	require.NoError(t, err)
	require.True(t, resp.OK())
	require.True(t, resp.JSON)
	require.JSONEq(t, as.tokenBody, string(resp.Body))

	form := as.lastTokenForm()
	require.Equal(t, []string{"stored-secret"}, form["client_secret"])
	require.Equal(t, "c1", form.Get("code"))
	require.Equal(t, "v", form.Get("code_verifier"))
}

func TestExchangeStripsSecretForOtherClients(t *testing.T) {
	as := newFakeAuthServer(t)
	p := newProxy(as, storeWith(t, "active", "stored-secret"))

	for _, form := range []url.Values{
		{"grant_type": {"refresh_token"}, "refresh_token": {"r"}, "client_id": {"someone-else"}, "client_secret": {"caller-secret"}},
		{"grant_type": {"refresh_token"}, "refresh_token": {"r"}, "client_secret": {"caller-secret"}},
	} {
		_, err := p.Exchange(context.Background(), form)
		require.NoError(t, err)
		require.False(t, as.lastTokenForm().Has("client_secret"))
	}
}

func TestExchangeWithoutRegisteredClient(t *testing.T) {
	as := newFakeAuthServer(t)
	p := newProxy(as, credentials.NewStore(credentials.NewInMemoryRepo()))

	_, err := p.Exchange(context.Background(), url.Values{"client_id": {"x"}, "client_secret": {"y"}})
	require.NoError(t, err)
	require.False(t, as.lastTokenForm().Has("client_secret"))
}

func TestExchangeRelaysUpstreamErrors(t *testing.T) {
	t.Run("json error body", func(t *testing.T) {
		as := newFakeAuthServer(t)
		as.tokenStatus = http.StatusBadRequest
		as.tokenBody = `{"error":"invalid_grant"}`
		p := newProxy(as, storeWith(t, "a", "s"))

		resp, err := p.Exchange(context.Background(), url.Values{"client_id": {"a"}})
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.True(t, resp.JSON)
		require.JSONEq(t, `{"error":"invalid_grant"}`, string(resp.Body))
	})

	t.Run("non json error body", func(t *testing.T) {
		as := newFakeAuthServer(t)
		as.tokenStatus = http.StatusServiceUnavailable
		as.tokenBody = "<html>maintenance</html>"
		as.tokenType = "text/html"
		p := newProxy(as, storeWith(t, "a", "s"))

		resp, err := p.Exchange(context.Background(), url.Values{"client_id": {"a"}})
		require.NoError(t, err)
		require.False(t, resp.JSON)
		require.Equal(t, map[string]any{
			"error":   "HTTP error: 503",
			"details": "<html>maintenance</html>",
		}, resp.ErrorBody())
	})

	t.Run("unreachable", func(t *testing.T) {
		as := newFakeAuthServer(t)
		p := newProxy(as, storeWith(t, "a", "s"))
		as.Close()

		_, err := p.Exchange(context.Background(), url.Values{"client_id": {"a"}})
		require.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
	})
}

func TestRegisterOnceAndStripSecret(t *testing.T) {
	as := newFakeAuthServer(t)
	store := credentials.NewStore(credentials.NewInMemoryRepo())
	p := newProxy(as, store)

	reg, existed, err := p.Register(context.Background(), map[string]any{"client_name": "bob's client"})
	require.NoError(t, err)
	require.False(t, existed)
	require.Equal(t, "new-client", reg.ClientID())
	require.NotContains(t, reg, "client_secret")
	require.NotContains(t, reg, "registration_access_token")
	require.NotContains(t, reg, "registration_client_uri")
	require.Equal(t, "bob's client", reg["client_name"])

	creds, ok := store.Get()
	require.True(t, ok)
	require.Equal(t, "new-secret", creds.ClientSecret)

	reg, existed, err = p.Register(context.Background(), map[string]any{"client_name": "second"})
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, "new-client", reg.ClientID())
	require.Equal(t, int32(1), as.registerCalls.Load())
}

func TestRegisterUpstreamRejection(t *testing.T) {
	as := newFakeAuthServer(t)
	as.registerCode = http.StatusBadRequest
	store := credentials.NewStore(credentials.NewInMemoryRepo())
	p := newProxy(as, store)

	_, _, err := p.Register(context.Background(), map[string]any{})
	var statusErr *upstream.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	require.True(t, statusErr.JSON)

	_, ok := store.Get()
	require.False(t, ok)
}

func TestAuthorizeURL(t *testing.T) {
	p := upstream.New(upstream.Config{AuthorizationEndpoint: "http://am/oauth/authorize"}, credentials.NewStore(credentials.NewInMemoryRepo()))

	u := p.AuthorizeURL(url.Values{"client_id": {"c"}, "state": {"s 1"}})
	require.Equal(t, "http://am/oauth/authorize?client_id=c&state=s+1", u)
	require.Equal(t, "http://am/oauth/authorize", p.AuthorizeURL(url.Values{}))
}

func TestExchangeDoesNotFollowRedirects(t *testing.T) {
	var leaked atomic.Int32
	elsewhere := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		leaked.Add(1)
	}))
	t.Cleanup(elsewhere.Close)

	redirecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, elsewhere.URL+"/steal", http.StatusPermanentRedirect)
	}))
	t.Cleanup(redirecting.Close)

	p := upstream.New(upstream.Config{TokenEndpoint: redirecting.URL + "/oauth/token"}, storeWith(t, "active", "stored-secret"))
	resp, err := p.Exchange(context.Background(), url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {"r"},
		"client_id":     {"active"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusPermanentRedirect, resp.StatusCode)
	require.Zero(t, leaked.Load())
}
