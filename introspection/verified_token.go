package introspection

import (
	"slices"
	"time"

	"github.com/jrsteele09/go-mcp-auth/internal/utils"
)

// VerifiedToken is built fresh for every verified request and never cached.
type VerifiedToken struct {
	Token     string
	ClientID  string
	Scopes    []string
	ExpiresAt *int64
	Resource  Audience
	Claims    map[string]any
}

// HasScopes reports whether every required scope was granted.
func (v *VerifiedToken) HasScopes(required ...string) bool {
	for _, s := range required {
		if !slices.Contains(v.Scopes, s) {
			return false
		}
	}
	return true
}

// Subject returns the sub claim from userinfo, if present.
func (v *VerifiedToken) Subject() string {
	s, _ := v.Claims["sub"].(string)
	return s
}

// Expiry returns the expiry as a time, or the zero time when the token has none.
func (v *VerifiedToken) Expiry() time.Time {
	if v.ExpiresAt == nil {
		return time.Time{}
	}
	return time.Unix(utils.Value(v.ExpiresAt), 0)
}

func uniqueScopes(scope string) []string {
	scopes := utils.SplitScopes(scope)
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
