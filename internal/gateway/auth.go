package gateway

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier validates the signed capability token a client presents
// when connecting. The gateway binds to loopback by default, but local
// processes are not all equally trusted; a shared-secret HS256 token keeps
// the connection surface scoped to holders of the gateway secret.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier builds a verifier from the shared secret. An empty
// secret returns nil, which disables connection auth entirely.
func NewTokenVerifier(secret string) *TokenVerifier {
	if secret == "" {
		return nil
	}
	return &TokenVerifier{secret: []byte(secret)}
}

type connClaims struct {
	jwt.RegisteredClaims
}

// Issue signs a token for subject, valid for ttl. ttl == 0 issues a
// non-expiring token (local tooling convenience); a negative ttl issues a
// token that has already expired.
func (v *TokenVerifier) Issue(subject string, ttl time.Duration) (string, error) {
	claims := connClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify parses and validates token, returning its subject.
func (v *TokenVerifier) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &connClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("gateway: invalid token: %w", err)
	}
	claims, ok := parsed.Claims.(*connClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("gateway: invalid token claims")
	}
	return claims.Subject, nil
}

// bearerToken extracts the token from the Authorization header or, for
// clients that cannot set headers on a WebSocket dial, the token query
// parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
