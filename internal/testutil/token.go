package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// SignedToken returns an HS256 JWT carrying claims. The key is fixed; the
// client never verifies signatures.
func SignedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("bazaar-test"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// TokenExpiringAt returns a token for subject that expires at exp.
func TokenExpiringAt(t *testing.T, subject string, exp time.Time) string {
	t.Helper()
	return SignedToken(t, jwt.MapClaims{"sub": subject, "exp": exp.Unix()})
}
