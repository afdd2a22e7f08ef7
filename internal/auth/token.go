// Package auth handles the staff bearer token on the frontend side. The
// token is issued and verified by the booking API; this package only
// decodes claims for display and expiry checks, it never validates
// signatures.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the token fields this frontend cares about.
type Claims struct {
	Subject string // staff email
	IsAdmin bool
	Expiry  time.Time
}

type tokenClaims struct {
	IsAdmin bool `json:"is_admin"`
	jwt.RegisteredClaims
}

// DecodeClaims extracts claims without signature verification. Verification
// belongs to the backend that issued the token.
func DecodeClaims(token string) (*Claims, error) {
	if token == "" {
		return nil, errors.New("empty token")
	}
	var tc tokenClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &tc); err != nil {
		return nil, err
	}
	claims := &Claims{Subject: tc.Subject, IsAdmin: tc.IsAdmin}
	if tc.ExpiresAt != nil {
		claims.Expiry = tc.ExpiresAt.Time
	}
	return claims, nil
}

// IsExpired reports whether the token is unusable: undecodable, missing an
// expiry, or past it.
func IsExpired(token string, now time.Time) bool {
	claims, err := DecodeClaims(token)
	if err != nil {
		return true
	}
	if claims.Expiry.IsZero() {
		return true
	}
	return !claims.Expiry.After(now)
}

// TimeUntilExpiry returns how long the token remains valid; zero when
// already expired or undecodable.
func TimeUntilExpiry(token string, now time.Time) time.Duration {
	claims, err := DecodeClaims(token)
	if err != nil || claims.Expiry.IsZero() {
		return 0
	}
	d := claims.Expiry.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
