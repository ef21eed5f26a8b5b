package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-mcp-auth/internal/errors"
	"github.com/jrsteele09/go-mcp-auth/introspection"
	"github.com/jrsteele09/go-mcp-auth/oauthmodel"
	"github.com/rs/zerolog"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyToken stores the *introspection.VerifiedToken. Handlers read it with TokenFromContext.
const ContextKeyToken ContextKey = "verified_token"

// RequireAuth validates the bearer token in the Authorization header through the token
// verifier and stores the verified token in the request context.
func (s *Server) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context())

		token, ok := bearerToken(r)
		if !ok {
			s.writeBearerChallenge(w, oauthmodel.ErrorCodeInvalidToken, "Missing or malformed bearer token", http.StatusUnauthorized)
			return
		}

		verified, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrMisconfigured) {
				logger.Error().Err(err).Msg("Cannot verify tokens: resource server has no registered client credentials")
			} else {
				logger.Err(err).Msg("Token verification failed")
			}
			writeJSONError(w, oauthmodel.ErrorCodeServerError, "Token verification is unavailable", http.StatusInternalServerError)
			return
		}
		if verified == nil {
			s.writeBearerChallenge(w, oauthmodel.ErrorCodeInvalidToken, "The access token is invalid, expired or not issued for this resource", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyToken, verified)
		ctx = logger.With().Str("client_id", verified.ClientID).Str("sub", verified.Subject()).Logger().WithContext(ctx)

		next(w, r.WithContext(ctx))
	}
}

// RequireScope rejects verified tokens that lack any of the given scopes.
// Must be chained after RequireAuth.
func (s *Server) RequireScope(scopes ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token, ok := TokenFromContext(r.Context())
			if !ok {
				s.writeBearerChallenge(w, oauthmodel.ErrorCodeInvalidToken, "Authentication required", http.StatusUnauthorized)
				return
			}
			if !token.HasScopes(scopes...) {
				zerolog.Ctx(r.Context()).Warn().Strs("required", scopes).Strs("granted", token.Scopes).Msg("Insufficient scope")
				s.writeBearerChallenge(w, oauthmodel.ErrorCodeInsufficientScope,
					fmt.Sprintf("Required scopes: %s", strings.Join(scopes, " ")), http.StatusForbidden, scopes...)
				return
			}
			next(w, r)
		}
	}
}

// TokenFromContext returns the token verified by RequireAuth.
func TokenFromContext(ctx context.Context) (*introspection.VerifiedToken, bool) {
	token, ok := ctx.Value(ContextKeyToken).(*introspection.VerifiedToken)
	return token, ok && token != nil
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// writeBearerChallenge writes an RFC 6750 error with a WWW-Authenticate header pointing
// clients at the protected resource metadata.
func (s *Server) writeBearerChallenge(w http.ResponseWriter, code, description string, status int, scopes ...string) {
	challenge := fmt.Sprintf(`Bearer error=%q, error_description=%q`, code, description)
	if len(scopes) > 0 {
		challenge += fmt.Sprintf(`, scope=%q`, strings.Join(scopes, " "))
	}
	challenge += fmt.Sprintf(`, resource_metadata=%q`, s.ResourceMetadataURL())
	w.Header().Set("WWW-Authenticate", challenge)
	writeJSONError(w, code, description, status)
}
