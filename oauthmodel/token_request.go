package oauthmodel

import (
	"fmt"
	"net/url"
	"strings"
)

// TokenRequest holds the parameters of a form-encoded request to the /token endpoint.
// Supports the authorization_code and refresh_token grants.
type TokenRequest struct {
	GrantType GrantType

	// ClientID identifies the OAuth2 client making the request.
	ClientID string

	// ClientSecret is never trusted from the caller; the relay decides whether one is attached.
	ClientSecret string

	// Code is the authorization code received on the loopback callback.
	// Required for the authorization_code grant.
	Code string

	// CodeVerifier is the PKCE verifier matching the code_challenge sent to /authorize.
	CodeVerifier string

	RedirectURI string

	// RefreshToken is required for the refresh_token grant.
	RefreshToken string
}

// TokenRequestFromForm reads the token request parameters from a parsed form.
func TokenRequestFromForm(form url.Values) TokenRequest {
	return TokenRequest{
		GrantType:    GrantType(strings.TrimSpace(form.Get("grant_type"))),
		ClientID:     form.Get("client_id"),
		ClientSecret: form.Get("client_secret"),
		Code:         form.Get("code"),
		CodeVerifier: form.Get("code_verifier"),
		RedirectURI:  form.Get("redirect_uri"),
		RefreshToken: form.Get("refresh_token"),
	}
}

// Validate checks the grant type is one the relay forwards and its required parameter is present.
func (r TokenRequest) Validate() error {
	if !r.GrantType.Supported() {
		return fmt.Errorf("%w: %q", ErrUnsupportedGrantType, r.GrantType)
	}
	switch r.GrantType {
	case AuthorizationCodeGrant:
		if r.Code == "" {
			return fmt.Errorf("%w: code", ErrMissingParameter)
		}
	case RefreshTokenGrant:
		if r.RefreshToken == "" {
			return fmt.Errorf("%w: refresh_token", ErrMissingParameter)
		}
	}
	return nil
}
