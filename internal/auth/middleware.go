package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ProviderKey is the gin context key holding the authenticated provider.
const ProviderKey = "provider"

const claimsKey = "auth_claims"

// Middleware requires a provider or admin bearer token. With no secret
// configured every request passes and no provider is set.
func Middleware(j JWT) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !j.Enabled() {
			c.Next()
			return
		}
		tok := bearerToken(c.GetHeader("Authorization"))
		if tok == "" {
			abort(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := j.Verify(tok)
		if err != nil {
			abort(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Set(claimsKey, claims)
		if claims.Role == RoleProvider {
			c.Set(ProviderKey, strings.ToLower(claims.Provider))
		}
		c.Next()
	}
}

// RequireAdmin accepts the configured admin key in X-Admin-Key, or an admin
// bearer token. An empty key and a disabled JWT leave the route open.
func RequireAdmin(j JWT, adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" && !j.Enabled() {
			c.Next()
			return
		}
		if adminKey != "" {
			got := c.GetHeader("X-Admin-Key")
			if got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(adminKey)) == 1 {
				c.Next()
				return
			}
		}
		if tok := bearerToken(c.GetHeader("Authorization")); tok != "" && j.Enabled() {
			if claims, err := j.Verify(tok); err == nil && claims.Role == RoleAdmin {
				c.Set(claimsKey, claims)
				c.Next()
				return
			}
		}
		abort(c, http.StatusUnauthorized, "admin credentials required")
	}
}

// Provider returns the authenticated provider address, or "" when auth is
// disabled or the caller is an admin.
func Provider(c *gin.Context) string {
	return c.GetString(ProviderKey)
}

func ClaimsFrom(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": status, "message": message})
}

func bearerToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
