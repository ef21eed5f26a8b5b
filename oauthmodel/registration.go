package oauthmodel

import "maps"

// Registration keys with meaning to this module. Every other member of the registration
// response is carried through untouched.
const (
	KeyClientID                = "client_id"
	KeyClientSecret            = "client_secret"
	KeyRegistrationAccessToken = "registration_access_token"
	KeyRegistrationClientURI   = "registration_client_uri"
)

// Registration is a client record returned by an RFC 7591 registration endpoint.
type Registration map[string]any

func (r Registration) ClientID() string {
	s, _ := r[KeyClientID].(string)
	return s
}

func (r Registration) ClientSecret() string {
	s, _ := r[KeyClientSecret].(string)
	return s
}

// Clone returns a shallow copy so callers cannot mutate a stored record.
func (r Registration) Clone() Registration {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// WithoutManagementArtifacts drops the one-time registration management token and URI.
// These must never be persisted.
func (r Registration) WithoutManagementArtifacts() Registration {
	c := r.Clone()
	delete(c, KeyRegistrationAccessToken)
	delete(c, KeyRegistrationClientURI)
	return c
}

// WithoutSecret drops the client secret, for records echoed back over the registration relay.
func (r Registration) WithoutSecret() Registration {
	c := r.Clone()
	delete(c, KeyClientSecret)
	return c
}
