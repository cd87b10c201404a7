package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ridecoord/internal/logger"
)

const userIDKey = "uid"

// TokenVerifier verifies a caller's ID token and returns its UID.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (string, error)
}

// AuthMiddleware rejects requests without a valid bearer ID token and
// stores the caller's UID on the context.
func AuthMiddleware(verifier TokenVerifier, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header is missing"})
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header format must be Bearer {token}"})
			return
		}

		uid, err := verifier.VerifyIDToken(c.Request.Context(), parts[1])
		if err != nil || uid == "" {
			log.Warn(c.Request.Context(), "rejected id token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid id token"})
			return
		}

		c.Set(userIDKey, uid)
		c.Request = c.Request.WithContext(log.WithUserID(c.Request.Context(), uid))
		c.Next()
	}
}

// UserID returns the authenticated caller's UID, or "" if none.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
