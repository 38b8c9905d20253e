package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/confreg/backend/pkg/response"
)

// EdgeSealHeader carries the token minted by the edge proxy.
const EdgeSealHeader = "X-Edge-Seal"

// EdgeSeal returns a middleware that requires an HS256 token signed with secret in the
// X-Edge-Seal header. An empty secret disables the check.
func EdgeSeal(secret string) gin.HandlerFunc {
	key := []byte(secret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5*time.Second),
	)
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		raw := c.GetHeader(EdgeSealHeader)
		if raw == "" {
			response.Unauthorized(c, "Missing edge seal")
			c.Abort()
			return
		}
		var claims jwt.RegisteredClaims
		_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) { return key, nil })
		if err != nil || claims.ExpiresAt == nil {
			response.Unauthorized(c, "Invalid edge seal")
			c.Abort()
			return
		}
		c.Next()
	}
}

// MintEdgeSeal signs a seal valid for ttl. Used by the edge proxy and tests.
func MintEdgeSeal(secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    "edge",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
