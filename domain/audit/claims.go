package audit

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// userClaims is the subset of bearer-token claims the audit middleware needs to enrich
// spans and attribute persisted log rows: subject, username, and role. A token missing
// or failing to verify never crashes the middleware — the request still proceeds, just
// without user context.
type userClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// parseUserClaims verifies tokenString's HMAC signature against secret and returns its
// claims. Any verification failure (bad signature, expired, wrong algorithm) is reported
// as an error rather than panicking or returning partial claims.
func parseUserClaims(tokenString, secret string) (*userClaims, error) {
	if secret == "" {
		return nil, errors.New("jwt secret not configured")
	}

	claims := &userClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
