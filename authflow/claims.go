package authflow

import (
	jwtlib "github.com/golang-jwt/jwt/v5"
)

// PeekClaims decodes a JWT access token without verifying it, for display only. Opaque
// tokens return false.
func PeekClaims(raw string) (map[string]any, bool) {
	token, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return nil, false
	}
	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, false
	}
	return map[string]any(claims), true
}
