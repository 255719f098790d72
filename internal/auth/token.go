// Package auth keeps the signed-in session and answers whether its bearer
// token is still usable.
package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenExpiry returns the exp claim of a JWT. The signature is not verified;
// the server remains the authority, this only avoids requests that are
// certain to be rejected. ok is false for opaque or exp-less tokens.
func TokenExpiry(token string) (exp time.Time, ok bool) {
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// TokenExpired reports whether token carries an exp claim at or before now.
// Tokens without one are treated as live.
func TokenExpired(token string, now time.Time) bool {
	exp, ok := TokenExpiry(token)
	if !ok {
		return false
	}
	return !now.Before(exp)
}

// TokenSubject returns the sub claim, used as a fallback user ID when the
// login response omits the user object.
func TokenSubject(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), claims); err != nil {
		return ""
	}
	for _, key := range []string{"sub", "id", "_id", "userId"} {
		if v, ok := claims[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
