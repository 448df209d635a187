package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ParseAccessToken decodes the registered claims of an access token without
// verifying it. The backend is the only verifier of the signature.
func ParseAccessToken(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, WrapError(ErrTokenMalformed, "failed to decode access token", err, nil)
	}
	return claims, nil
}

// ExpiryFromAccessToken returns the "exp" claim of a JWT access token.
// Opaque tokens and tokens without an expiry yield the zero time.
func ExpiryFromAccessToken(token string) time.Time {
	claims, err := ParseAccessToken(token)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// Normalize fills in derived session fields. A missing expiry is taken from
// the access token when it is a JWT.
func (t Tokens) Normalize() Tokens {
	if t.ExpiresAt.IsZero() && t.AccessToken != "" {
		t.ExpiresAt = ExpiryFromAccessToken(t.AccessToken)
	}
	return t
}
