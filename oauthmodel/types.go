package oauthmodel

// ResponseType represents the OAuth 2.0 response type requested at the authorization endpoint.
type ResponseType string

const (
	// CodeResponseType is the only response type this client registers for.
	CodeResponseType ResponseType = "code"
)

// CodeMethodType represents the PKCE code challenge method.
type CodeMethodType string

const (
	// CodeMethodTypeS256 sends code_challenge = BASE64URL(SHA256(code_verifier)).
	CodeMethodTypeS256 CodeMethodType = "S256"
	// CodeMethodTypePlain sends the verifier itself. Registered clients are forced onto S256.
	CodeMethodTypePlain CodeMethodType = "plain"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	AuthorizationCodeGrant GrantType = "authorization_code"
	RefreshTokenGrant      GrantType = "refresh_token"
)

// Supported reports whether the token relay forwards this grant type.
func (g GrantType) Supported() bool {
	return g == AuthorizationCodeGrant || g == RefreshTokenGrant
}

// TokenEndpointAuthMethod is how a client authenticates at the token endpoint (RFC 7591 §2).
type TokenEndpointAuthMethod string

const (
	ClientSecretPost  TokenEndpointAuthMethod = "client_secret_post"
	ClientSecretBasic TokenEndpointAuthMethod = "client_secret_basic"
)
