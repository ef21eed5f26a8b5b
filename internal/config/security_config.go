package config

type SecurityConfig interface {
	GetOAuthStrict() bool
	GetRequiredScopes() []string
}

type Security struct {
	// OAuthStrict enables RFC 8707 resource (audience) validation of introspected tokens.
	OAuthStrict    bool
	RequiredScopes []string
}

var _ SecurityConfig = Security{}

var defaultRequiredScopes = []string{"openid", "full_profile"}

func loadSecurity() Security {
	return Security{
		OAuthStrict:    getEnvBool(envPrefix+"OAUTH_STRICT", false),
		RequiredScopes: getEnvList(envPrefix+"REQUIRED_SCOPES", defaultRequiredScopes),
	}
}

func (s Security) GetOAuthStrict() bool {
	return s.OAuthStrict
}

func (s Security) GetRequiredScopes() []string {
	return append([]string(nil), s.RequiredScopes...)
}
