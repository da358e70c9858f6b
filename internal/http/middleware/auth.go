// README: Firebase ID-token auth. Browsers cannot set headers on a websocket
// handshake, so the token may also arrive as ?token=.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"colibri/internal/infra"
)

const (
	ctxUID   = "auth.uid"
	ctxEmail = "auth.email"
)

func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" && c.GetHeader("Authorization") == "" {
			raw = c.Query("token")
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil || token == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxUID, token.UID)
		c.Set(ctxEmail, token.Email)
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func CallerUID(c *gin.Context) string   { return c.GetString(ctxUID) }
func CallerEmail(c *gin.Context) string { return c.GetString(ctxEmail) }

// Caller is the identity a verified request speaks for: the token email, or
// the uid for accounts without one. It is "" when auth is off.
func Caller(c *gin.Context) string {
	if email := CallerEmail(c); email != "" {
		return email
	}
	return CallerUID(c)
}
