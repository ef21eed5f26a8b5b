package oauthmodel

import (
	"errors"
	"fmt"

	apperrors "github.com/jrsteele09/go-mcp-auth/internal/errors"
)

// Token request validation errors are invalid requests.
var (
	ErrUnsupportedGrantType = fmt.Errorf("%w: unsupported grant type", apperrors.ErrInvalidRequest)
	ErrMissingParameter     = fmt.Errorf("%w: missing required parameter", apperrors.ErrInvalidRequest)
)

var ErrMissingClientID = errors.New("registration response has no client_id")

// OAuth error codes written in {"error": ...} response bodies.
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidToken         = "invalid_token"
	ErrorCodeInsufficientScope    = "insufficient_scope"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeServerError          = "server_error"
	ErrorCodeBadGateway           = "temporarily_unavailable"
)
