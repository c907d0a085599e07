package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const accessTokenCookie = "access_token"

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNoSubject    = errors.New("token has no user")
)

// Claims is what a verified access token says about its holder.
type Claims struct {
	UserID uint
	Email  string
	Role   string
}

// ExtractAccessToken reads the access_token cookie, falling back to a
// bearer Authorization header.
func ExtractAccessToken(r *http.Request) string {
	if cookie, err := r.Cookie(accessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(bearer)
	}
	return ""
}

// ParseAccessToken verifies an HMAC-signed token and reads its user claims.
// Expiry is enforced when the token carries one.
func ParseAccessToken(tokenStr string, secret []byte) (*Claims, error) {
	mc := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, mc, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	uid, ok := mc["user_id"].(float64)
	if !ok || uid <= 0 {
		return nil, ErrNoSubject
	}
	c := &Claims{UserID: uint(uid)}
	c.Email, _ = mc["email"].(string)
	c.Role, _ = mc["role"].(string)
	return c, nil
}
