package server

import (
	"encoding/json"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-mcp-auth/internal/errors"
	"github.com/jrsteele09/go-mcp-auth/introspection"
	"github.com/jrsteele09/go-mcp-auth/oauthmodel"
	"github.com/jrsteele09/go-mcp-auth/upstream"
	"github.com/rs/zerolog"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"

	maxRequestBody = 1 << 20
)

// ProtectedResourceMetadata serves the RFC 9728 document naming the authorization server
// that issues tokens for this resource. resourcePath is the path the well-known URI was
// suffixed with, and is appended to the resource identifier.
func (s *Server) ProtectedResourceMetadata(resourcePath string) http.HandlerFunc {
	resource := introspection.CanonicalResourceURL(strings.TrimSuffix(s.config.GetServerURL(), "/") + resourcePath)
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, oauthmodel.ProtectedResourceMetadata{
			Resource:               resource,
			AuthorizationServers:   []string{s.config.GetAuthServerURL()},
			ScopesSupported:        s.config.GetRequiredScopes(),
			BearerMethodsSupported: []string{"header"},
		})
	}
}

// Register performs RFC 7591 dynamic client registration through the authorization server.
// Only one client is ever registered; later calls return the existing registration.
// The client secret stays on the resource server.
func (s *Server) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context())

		var metadata map[string]any
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&metadata); err != nil {
			writeJSONError(w, oauthmodel.ErrorCodeInvalidRequest, "Request body must be a JSON client metadata document", http.StatusBadRequest)
			return
		}

		reg, existed, err := s.relay.Register(r.Context(), metadata)
		if err != nil {
			var statusErr *upstream.StatusError
			switch {
			case apperrors.As(err, &statusErr):
				logger.Warn().Int("status", statusErr.StatusCode).Msg("Authorization server rejected client registration")
				relayResponse(w, &statusErr.Response)
			case apperrors.Is(err, apperrors.ErrUpstreamUnavailable), apperrors.Is(err, oauthmodel.ErrMissingClientID):
				logger.Err(err).Msg("Client registration failed")
				writeJSONError(w, oauthmodel.ErrorCodeBadGateway, err.Error(), http.StatusBadGateway)
			default:
				logger.Err(err).Msg("Client registration failed")
				writeJSONError(w, oauthmodel.ErrorCodeServerError, "Client registration failed", http.StatusInternalServerError)
			}
			return
		}

		status := http.StatusCreated
		if existed {
			status = http.StatusOK
		} else {
			logger.Info().Str("client_id", reg.ClientID()).Msg("Registered client with the authorization server")
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, status, reg)
	}
}

// Authorize redirects the browser to the authorization server with the query unchanged.
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, s.relay.AuthorizeURL(r.URL.Query()), http.StatusFound)
	}
}

// Token relays a token request to the authorization server and returns its answer as is.
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context())

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, oauthmodel.ErrorCodeInvalidRequest, "Invalid form body", http.StatusBadRequest)
			return
		}

		if err := oauthmodel.TokenRequestFromForm(r.PostForm).Validate(); err != nil {
			code := oauthmodel.ErrorCodeInvalidRequest
			if apperrors.Is(err, oauthmodel.ErrUnsupportedGrantType) {
				code = oauthmodel.ErrorCodeUnsupportedGrantType
			}
			writeJSONError(w, code, err.Error(), http.StatusBadRequest)
			return
		}

		resp, err := s.relay.Exchange(r.Context(), r.PostForm)
		if err != nil {
			logger.Err(err).Msg("Token exchange failed")
			writeJSONError(w, oauthmodel.ErrorCodeBadGateway, "Authorization server is unreachable", http.StatusBadGateway)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		if resp.OK() && !resp.JSON {
			logger.Warn().Int("status", resp.StatusCode).Msg("Authorization server returned a non JSON token response")
			writeJSONError(w, oauthmodel.ErrorCodeBadGateway, "Authorization server returned an invalid token response", http.StatusBadGateway)
			return
		}
		relayResponse(w, resp)
	}
}

// relayResponse writes JSON upstream bodies verbatim and wraps anything else.
func relayResponse(w http.ResponseWriter, resp *upstream.Response) {
	if resp.JSON {
		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(resp.Body)
		return
	}
	writeJSON(w, resp.StatusCode, resp.ErrorBody())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

func isJSONContent(contentType string) bool {
	return contentType == "" || strings.HasPrefix(strings.ToLower(contentType), "application/json")
}
