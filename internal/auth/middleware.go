package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type contextKey string

const userContextKey contextKey = "kpcloudUser"

// ContextUser represents the authenticated principal stored in the request context.
type ContextUser struct {
	ID    string
	Email string
	Name  string
}

// AuthMiddleware validates bearer tokens and injects the authenticated user.
func AuthMiddleware(verifier Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := extractBearerToken(authHeader)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(string(userContextKey), ContextUser{
			ID:    claims.Subject,
			Email: claims.Email,
			Name:  claims.Name,
		})

		c.Next()
	}
}

// CurrentUser extracts the authenticated user from the context.
func CurrentUser(c *gin.Context) (ContextUser, bool) {
	value, exists := c.Get(string(userContextKey))
	if !exists {
		return ContextUser{}, false
	}
	user, ok := value.(ContextUser)
	return user, ok
}

// RequireUser fetches the authenticated user id.
func RequireUser(c *gin.Context) (string, ContextUser, bool) {
	user, ok := CurrentUser(c)
	if !ok || user.ID == "" {
		return "", ContextUser{}, false
	}
	return user.ID, user, true
}

// SetUser stores user as the authenticated principal.
func SetUser(c *gin.Context, user ContextUser) {
	c.Set(string(userContextKey), user)
}

func extractBearerToken(header string) string {
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
