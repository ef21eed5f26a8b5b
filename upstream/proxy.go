// Package upstream relays token exchange and client registration requests to the
// authorization server on behalf of MCP clients.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-mcp-auth/credentials"
	apperrors "github.com/jrsteele09/go-mcp-auth/internal/errors"
	"github.com/jrsteele09/go-mcp-auth/internal/httpclient"
	"github.com/jrsteele09/go-mcp-auth/oauthmodel"
	"github.com/rs/zerolog/log"
)

const (
	RouteToken    = "token"
	RouteRegister = "register"
)

type Config struct {
	TokenEndpoint         string
	RegistrationEndpoint  string
	AuthorizationEndpoint string
}

// Observer is notified of every upstream call. Status is 0 when the server was unreachable.
type Observer interface {
	ObserveRelay(route string, status int, elapsed time.Duration)
}

type Option func(*Proxy)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Proxy) {
		p.client = c
	}
}

func WithObserver(o Observer) Option {
	return func(p *Proxy) {
		p.observer = o
	}
}

type Proxy struct {
	cfg      Config
	store    *credentials.Store
	client   *http.Client
	observer Observer
}

func New(cfg Config, store *credentials.Store, opts ...Option) *Proxy {
	p := &Proxy{
		cfg:    cfg,
		store:  store,
		client: httpclient.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Exchange forwards a form-encoded token request. A client_secret supplied by the caller is
// always dropped; the stored secret is attached only when client_id names the active client.
func (p *Proxy) Exchange(ctx context.Context, form url.Values) (*Response, error) {
	out := url.Values{}
	for k, v := range form {
		out[k] = append([]string(nil), v...)
	}
	out.Del("client_secret")

	if creds, ok := p.store.Get(); ok && creds.ClientID != "" && out.Get("client_id") == creds.ClientID {
		out.Set("client_secret", creds.ClientSecret)
	} else if form.Has("client_secret") {
		log.Warn().Str("client_id", form.Get("client_id")).Msg("Dropped client secret for unrecognised client")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenEndpoint, strings.NewReader(out.Encode()))
	if err != nil {
		return nil, fmt.Errorf("[upstream Exchange] %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	return p.do(req, RouteToken)
}

// Register performs dynamic client registration at most once. When a client is already
// registered the existing record is returned with existed set and nothing is sent upstream.
// The returned record never contains the client secret.
func (p *Proxy) Register(ctx context.Context, metadata any) (reg oauthmodel.Registration, existed bool, err error) {
	reg, existed, err = p.store.LoadOrRegister(ctx, func(ctx context.Context) (oauthmodel.Registration, error) {
		return p.register(ctx, metadata)
	})
	if err != nil {
		if reg == nil {
			return nil, false, err
		}
		// Registered upstream and active in memory, but not persisted
		log.Err(err).Str("client_id", reg.ClientID()).Msg("Client registration not persisted")
	}
	if existed {
		log.Info().Str("client_id", reg.ClientID()).Msg("Client already registered, skipping registration")
	}
	return reg.WithoutSecret(), existed, nil
}

func (p *Proxy) register(ctx context.Context, metadata any) (oauthmodel.Registration, error) {
	body, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("[upstream Register] encode metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.RegistrationEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("[upstream Register] %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.do(req, RouteRegister)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &StatusError{Response: *resp}
	}

	var reg oauthmodel.Registration
	if err := json.Unmarshal(resp.Body, &reg); err != nil {
		return nil, fmt.Errorf("[upstream Register] %w: decode registration: %v", apperrors.ErrUpstreamUnavailable, err)
	}
	if reg.ClientID() == "" {
		return nil, fmt.Errorf("[upstream Register] %w", oauthmodel.ErrMissingClientID)
	}
	return reg, nil
}

// AuthorizeURL is the authorization server's authorize endpoint carrying the given query.
func (p *Proxy) AuthorizeURL(query url.Values) string {
	encoded := query.Encode()
	if encoded == "" {
		return p.cfg.AuthorizationEndpoint
	}
	sep := "?"
	if strings.Contains(p.cfg.AuthorizationEndpoint, "?") {
		sep = "&"
	}
	return p.cfg.AuthorizationEndpoint + sep + encoded
}

func (p *Proxy) do(req *http.Request, route string) (*Response, error) {
	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.observe(route, 0, start)
		return nil, fmt.Errorf("[upstream %s] %w: %v", route, apperrors.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	p.observe(route, resp.StatusCode, start)
	if resp.StatusCode >= 500 {
		log.Warn().Str("route", route).Int("status", resp.StatusCode).Msg("Authorization server error")
	}
	return readResponse(resp)
}

func (p *Proxy) observe(route string, status int, start time.Time) {
	if p.observer != nil {
		p.observer.ObserveRelay(route, status, time.Since(start))
	}
}
