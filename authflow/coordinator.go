// Package authflow drives the client side of the OAuth2 authorization code flow with PKCE
// against an MCP resource server, using a loopback callback listener for the redirect.
package authflow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-mcp-auth/callback"
	apperrors "github.com/jrsteele09/go-mcp-auth/internal/errors"
	"github.com/jrsteele09/go-mcp-auth/oauthmodel"
	"github.com/pkg/browser"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Opener navigates the user's browser to a URL.
type Opener func(url string) error

type Option func(*Coordinator)

func WithListener(l *callback.Listener) Option {
	return func(c *Coordinator) {
		c.listener = l
	}
}

func WithCallbackTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithOpener(o Opener) Option {
	return func(c *Coordinator) {
		c.opener = o
	}
}

// WithOutput sets where user-facing messages, such as the authorization URL, are printed.
func WithOutput(w io.Writer) Option {
	return func(c *Coordinator) {
		c.out = w
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Coordinator) {
		c.client = client
	}
}

func WithClientName(name string) Option {
	return func(c *Coordinator) {
		c.clientName = name
	}
}

// Coordinator runs one authorization flow at a time. It owns the callback listener and
// always stops it once the flow has an outcome.
type Coordinator struct {
	baseURL    string
	scopes     []string
	listener   *callback.Listener
	timeout    time.Duration
	opener     Opener
	out        io.Writer
	client     *http.Client
	clientName string
}

// NewCoordinator takes the MCP endpoint URL (for example http://localhost:8001/mcp). The
// transport path is stripped to find the server's /register, /authorize and /token routes.
func NewCoordinator(serverURL string, scopes []string, opts ...Option) *Coordinator {
	c := &Coordinator{
		baseURL:    baseURL(serverURL),
		scopes:     append([]string(nil), scopes...),
		listener:   callback.New(callback.DefaultPort),
		timeout:    callback.DefaultTimeout,
		opener:     browser.OpenURL,
		out:        os.Stdout,
		client:     &http.Client{Timeout: 30 * time.Second},
		clientName: currentUser() + "'s client",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func baseURL(serverURL string) string {
	u := strings.TrimRight(serverURL, "/")
	for _, suffix := range []string{"/mcp", "/sse"} {
		u = strings.TrimSuffix(u, suffix)
	}
	return u
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "mcp"
}

// BaseURL is the resource server root. It is also the RFC 8707 resource the token is requested for.
func (c *Coordinator) BaseURL() string {
	return c.baseURL
}

func (c *Coordinator) RedirectURI() string {
	return c.listener.RedirectURI()
}

// Metadata is the dynamic client registration request for this client.
func (c *Coordinator) Metadata() oauthmodel.ClientMetadata {
	return oauthmodel.ClientMetadata{
		ApplicationType:         "mcp",
		ClientName:              c.clientName,
		RedirectURIs:            []string{c.RedirectURI()},
		GrantTypes:              []oauthmodel.GrantType{oauthmodel.AuthorizationCodeGrant, oauthmodel.RefreshTokenGrant},
		ResponseTypes:           []oauthmodel.ResponseType{oauthmodel.CodeResponseType},
		Scope:                   strings.Join(c.scopes, " "),
		TokenEndpointAuthMethod: oauthmodel.ClientSecretPost,
		ForcePKCE:               true,
		ForceS256:               true,
	}
}

// OAuth2Config targets the resource server's relay routes. The client secret is left empty:
// the relay attaches it for the registered client.
func (c *Coordinator) OAuth2Config(clientID string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: clientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.baseURL + "/authorize",
			TokenURL:  c.baseURL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: c.RedirectURI(),
		Scopes:      c.scopes,
	}
}

// AuthCodeURL builds the authorization request with a fresh PKCE verifier and state.
func (c *Coordinator) AuthCodeURL(clientID string) (authURL, verifier, state string) {
	verifier = oauth2.GenerateVerifier()
	state = uuid.NewString()
	authURL = c.OAuth2Config(clientID).AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("resource", c.baseURL),
	)
	return authURL, verifier, state
}

// Redirect prints the authorization URL and tries to open it in a browser. Failing to open
// the browser is not an error; the user can follow the printed URL.
func (c *Coordinator) Redirect(authURL string) {
	fmt.Fprintf(c.out, "Opening browser for authorization: %s\n", authURL)
	if c.opener == nil {
		return
	}
	if err := c.opener(authURL); err != nil {
		log.Warn().Err(err).Msg("Could not open browser")
		fmt.Fprintln(c.out, "Could not open a browser, open the URL above to continue.")
	}
}

// Callback waits for the redirect and stops the listener whatever the outcome.
func (c *Coordinator) Callback(ctx context.Context) (code, state string, err error) {
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if stopErr := c.listener.Stop(stopCtx); stopErr != nil {
			log.Err(stopErr).Msg("Error stopping callback listener")
		}
	}()

	res, err := c.listener.WaitForResult(ctx, c.timeout)
	if err != nil {
		return "", "", err
	}
	return res.Code, res.State, nil
}

// Authorize runs the full flow: listen, redirect, wait, check state, and exchange the code
// for a token through the resource server's /token relay.
func (c *Coordinator) Authorize(ctx context.Context, clientID string) (*oauth2.Token, error) {
	if err := c.listener.Start(); err != nil {
		return nil, fmt.Errorf("[authflow Authorize] %w", err)
	}

	// Port 0 listeners only know their port while running
	redirectURI := c.RedirectURI()
	authURL, verifier, state := c.AuthCodeURL(clientID)
	c.Redirect(authURL)

	code, gotState, err := c.Callback(ctx)
	if err != nil {
		return nil, fmt.Errorf("[authflow Authorize] %w", err)
	}
	if gotState != state {
		return nil, fmt.Errorf("[authflow Authorize] %w", apperrors.ErrStateMismatch)
	}

	cfg := c.OAuth2Config(clientID)
	cfg.RedirectURL = redirectURI

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, c.client)
	token, err := cfg.Exchange(exchangeCtx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("[authflow Authorize] token exchange: %w", err)
	}
	return token, nil
}
