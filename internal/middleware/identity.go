package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// OwnerIDKey is the gin context key holding the authenticated user id.
const OwnerIDKey = "owner_id"

// DeviceIDHeader carries the client-generated device fingerprint.
const DeviceIDHeader = "X-Device-ID"

// OptionalAuth parses a Bearer token when present and attaches the
// subject as owner id. Anonymous requests pass through untouched;
// booking creation is open to guests, who are gated by captcha and
// rate limits instead.
func OptionalAuth(secret, issuer string) gin.HandlerFunc {
	keyFunc := func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.Next()
			return
		}

		claims := &jwt.RegisteredClaims{}
		opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
		if issuer != "" {
			opts = append(opts, jwt.WithIssuer(issuer))
		}

		token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims, keyFunc, opts...)
		if err != nil || !token.Valid || claims.Subject == "" {
			// A bad token does not block the request, it just leaves
			// the caller anonymous.
			c.Next()
			return
		}

		c.Set(OwnerIDKey, claims.Subject)
		c.Next()
	}
}

// OwnerID returns the authenticated user id, or "" for guests.
func OwnerID(c *gin.Context) string {
	if v, ok := c.Get(OwnerIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
