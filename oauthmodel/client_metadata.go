package oauthmodel

// ClientMetadata is the dynamic client registration request (RFC 7591) sent by the MCP client.
// The forcePKCE and forceS256CodeChallengeMethod members are Gravitee AM extensions.
type ClientMetadata struct {
	ApplicationType         string                  `json:"applicationType"`
	ClientName              string                  `json:"client_name"`
	RedirectURIs            []string                `json:"redirect_uris"`
	GrantTypes              []GrantType             `json:"grant_types"`
	ResponseTypes           []ResponseType          `json:"response_types"`
	Scope                   string                  `json:"scope"`
	TokenEndpointAuthMethod TokenEndpointAuthMethod `json:"token_endpoint_auth_method"`
	ForcePKCE               bool                    `json:"forcePKCE"`
	ForceS256               bool                    `json:"forceS256CodeChallengeMethod"`
}
