// Package introspection verifies bearer tokens against a remote authorization server using
// RFC 7662 token introspection, RFC 8707 resource binding and the OIDC userinfo endpoint.
package introspection

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-mcp-auth/credentials"
	apperrors "github.com/jrsteele09/go-mcp-auth/internal/errors"
	"github.com/jrsteele09/go-mcp-auth/internal/httpclient"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const maxIntrospectionBody = 1 << 20

type Config struct {
	IntrospectionEndpoint string
	UserInfoEndpoint      string
	// ServerURL is this resource server's public URL; tokens must be bound to it in strict mode.
	ServerURL      string
	StrictResource bool
}

// CredentialSource supplies the client credentials used to authenticate introspection calls.
type CredentialSource interface {
	Get() (credentials.ClientCredentials, bool)
}

// Outcome classifies a verification attempt for metrics.
type Outcome string

const (
	OutcomeVerified         Outcome = "verified"
	OutcomeInactive         Outcome = "inactive"
	OutcomeAudienceMismatch Outcome = "audience_mismatch"
	OutcomeUnsafeEndpoint   Outcome = "unsafe_endpoint"
	OutcomeUpstreamError    Outcome = "upstream_error"
	OutcomeUserInfoError    Outcome = "userinfo_error"
	OutcomeMisconfigured    Outcome = "misconfigured"
)

// Observer is notified once per Verify call.
type Observer interface {
	ObserveVerification(outcome Outcome, elapsed time.Duration)
}

type Option func(*Introspector)

// WithHTTPClient replaces the bounded default client. Intended for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(i *Introspector) {
		i.client = c
	}
}

func WithObserver(o Observer) Option {
	return func(i *Introspector) {
		i.observer = o
	}
}

// Introspector is safe for concurrent use. The only state shared between calls is the
// read-only credential source.
type Introspector struct {
	cfg         Config
	resourceURL string
	creds       CredentialSource
	client      *http.Client
	provider    *oidc.Provider
	observer    Observer
}

func New(cfg Config, creds CredentialSource, opts ...Option) *Introspector {
	i := &Introspector{
		cfg:         cfg,
		resourceURL: CanonicalResourceURL(cfg.ServerURL),
		creds:       creds,
		client:      httpclient.New(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.provider = (&oidc.ProviderConfig{UserInfoURL: cfg.UserInfoEndpoint}).NewProvider(context.Background())
	return i
}

// ResourceURL is the canonical resource identifier tokens are checked against.
func (i *Introspector) ResourceURL() string {
	return i.resourceURL
}

var errNoCredentials = fmt.Errorf("%w: no client credentials loaded for introspection", apperrors.ErrMisconfigured)

// Verify returns the verified token, or nil when the token is not acceptable for any reason.
// An error is returned only when the server has no client credentials to introspect with.
func (i *Introspector) Verify(ctx context.Context, token string) (*VerifiedToken, error) {
	verified, err := i.Check(ctx, token)
	if err != nil {
		if apperrors.Is(err, errNoCredentials) {
			return nil, err
		}
		return nil, nil
	}
	return verified, nil
}

// Check is Verify with the reason for a rejection. Tokens the authorization server does not
// accept for this resource fail with ErrTokenInvalid, unreachable servers with
// ErrUpstreamUnavailable and configuration problems with ErrMisconfigured.
func (i *Introspector) Check(ctx context.Context, token string) (*VerifiedToken, error) {
	start := time.Now()

	creds, ok := i.creds.Get()
	if !ok || creds.ClientID == "" || creds.ClientSecret == "" {
		i.observe(OutcomeMisconfigured, start)
		return nil, fmt.Errorf("[introspection Check] %w", errNoCredentials)
	}

	if err := CheckEndpoint(i.cfg.IntrospectionEndpoint); err != nil {
		log.Error().Err(err).Msg("Rejecting introspection endpoint with unsafe scheme")
		i.observe(OutcomeUnsafeEndpoint, start)
		return nil, fmt.Errorf("[introspection Check] %w", err)
	}

	data, err := i.introspect(ctx, token, creds)
	if err != nil {
		log.Warn().Err(err).Msg("Token introspection failed")
		i.observe(OutcomeUpstreamError, start)
		return nil, fmt.Errorf("[introspection Check] %w", err)
	}
	if !data.Active {
		i.observe(OutcomeInactive, start)
		return nil, fmt.Errorf("[introspection Check] %w: token is not active", apperrors.ErrTokenInvalid)
	}

	if i.cfg.StrictResource && !i.resourceAllowed(data.Aud) {
		err := fmt.Errorf("[introspection Check] %w: audience %v does not cover %s", apperrors.ErrTokenInvalid, []string(data.Aud), i.resourceURL)
		log.Warn().Err(err).Msg("Token resource validation failed")
		i.observe(OutcomeAudienceMismatch, start)
		return nil, err
	}

	claims, err := i.userInfo(ctx, token)
	if err != nil {
		log.Warn().Err(err).Msg("Userinfo request failed")
		i.observe(OutcomeUserInfoError, start)
		return nil, fmt.Errorf("[introspection Check] userinfo: %w", err)
	}

	clientID := data.ClientID
	if clientID == "" {
		clientID = creds.ClientID
	}

	i.observe(OutcomeVerified, start)
	return &VerifiedToken{
		Token:     token,
		ClientID:  clientID,
		Scopes:    uniqueScopes(data.Scope),
		ExpiresAt: data.Exp,
		Resource:  data.Aud,
		Claims:    claims,
	}, nil
}

func (i *Introspector) introspect(ctx context.Context, token string, creds credentials.ClientCredentials) (*TokenIntrospection, error) {
	form := url.Values{
		"token":         {token},
		"client_id":     {creds.ClientID},
		"client_secret": {creds.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.cfg.IntrospectionEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxIntrospectionBody))
		return nil, fmt.Errorf("introspection returned status %d", resp.StatusCode)
	}

	var data TokenIntrospection
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxIntrospectionBody)).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode introspection response: %w", err)
	}
	return &data, nil
}

func (i *Introspector) userInfo(ctx context.Context, token string) (map[string]any, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	info, err := i.provider.UserInfo(oidc.ClientContext(ctx, i.client), ts)
	if err != nil {
		return nil, err
	}

	claims := map[string]any{}
	if err := info.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decode userinfo claims: %w", err)
	}
	return claims, nil
}

// resourceAllowed fails closed: no audience, or no configured server URL, is a mismatch.
func (i *Introspector) resourceAllowed(aud Audience) bool {
	if i.cfg.ServerURL == "" || i.resourceURL == "" {
		return false
	}
	for _, a := range aud {
		if ResourceAllowed(i.resourceURL, a) {
			return true
		}
	}
	return false
}

func (i *Introspector) observe(outcome Outcome, start time.Time) {
	if i.observer != nil {
		i.observer.ObserveVerification(outcome, time.Since(start))
	}
}
