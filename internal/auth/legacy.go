package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// LegacyClaims are the claims of first-party HMAC tokens, still accepted as
// a fallback for sessions issued before the move to Zitadel.
type LegacyClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// ValidateLegacyToken parses and verifies an HMAC-signed token against the
// shared secret. Only HS256 is accepted.
func ValidateLegacyToken(tokenString, secret string) (*LegacyClaims, error) {
	keyFunc := func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}

	token, err := jwt.ParseWithClaims(tokenString, &LegacyClaims{}, keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid legacy token: %w", err)
	}

	claims, ok := token.Claims.(*LegacyClaims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}
