package introspection

import (
	"encoding/json"

	"github.com/jrsteele09/go-mcp-auth/internal/utils"
)

// TokenIntrospection is the RFC 7662 introspection response. When Active is false the
// other members may be absent.
type TokenIntrospection struct {
	Active    bool     `json:"active"`
	Scope     string   `json:"scope,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`
	Username  string   `json:"username,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
	Exp       *int64   `json:"exp,omitempty"`
	Iat       *int64   `json:"iat,omitempty"`
	Sub       *string  `json:"sub,omitempty"`
	Iss       *string  `json:"iss,omitempty"`
	Aud       Audience `json:"aud,omitempty"`
	Jti       string   `json:"jti,omitempty"`
}

// Audience is the aud member, which may be absent, a single string or a list of strings.
type Audience []string

func (a *Audience) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		if single == "" {
			*a = nil
		} else {
			*a = Audience{single}
		}
		return nil
	}

	var list []any
	if err := json.Unmarshal(b, &list); err == nil {
		*a = utils.ToStringSlice(list)
		return nil
	}

	// Any other shape carries no usable audience
	*a = nil
	return nil
}
