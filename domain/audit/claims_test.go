package audit

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret-key-for-testing-only-32-chars-min"

func signTestToken(t *testing.T, sub, username, role string, expiresIn time.Duration) string {
	t.Helper()
	claims := userClaims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestParseUserClaims_ValidToken(t *testing.T) {
	token := signTestToken(t, "00000000-0000-0000-0000-000000000001", "alice", "admin", time.Hour)

	claims, err := parseUserClaims(token, testSecret)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, "admin", claims.Role)
	require.Equal(t, "00000000-0000-0000-0000-000000000001", claims.Subject)
}

func TestParseUserClaims_ExpiredToken(t *testing.T) {
	token := signTestToken(t, "u1", "bob", "member", -time.Hour)

	_, err := parseUserClaims(token, testSecret)
	require.Error(t, err)
}

func TestParseUserClaims_WrongSecret(t *testing.T) {
	token := signTestToken(t, "u1", "bob", "member", time.Hour)

	_, err := parseUserClaims(token, "a-completely-different-secret")
	require.Error(t, err)
}

func TestParseUserClaims_MalformedToken(t *testing.T) {
	_, err := parseUserClaims("not-a-jwt", testSecret)
	require.Error(t, err)
}

func TestParseUserClaims_EmptySecretRefuses(t *testing.T) {
	token := signTestToken(t, "u1", "bob", "member", time.Hour)

	_, err := parseUserClaims(token, "")
	require.Error(t, err)
}
