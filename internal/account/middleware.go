package account

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kpcloud/kpcloud/internal/auth"
	"github.com/kpcloud/kpcloud/internal/logger"
	"go.uber.org/zap"
)

const accountContextKey = "kpcloudAccount"

// Middleware loads, or creates on first access, the caller's account and
// stores it in the request context.
func Middleware(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, user, ok := auth.RequireUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		acct, err := service.GetOrCreate(c.Request.Context(), Identity{
			ID:          user.ID,
			Email:       user.Email,
			DisplayName: user.Name,
		})
		if err != nil {
			logger.FromContext(c.Request.Context(), nil).Error("load account", zap.String("user_id", user.ID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "account unavailable"})
			return
		}

		SetInContext(c, acct)
		c.Next()
	}
}

// SetInContext stores acct for later handlers.
func SetInContext(c *gin.Context, acct Account) {
	c.Set(accountContextKey, acct)
}

// FromContext returns the account loaded by Middleware.
func FromContext(c *gin.Context) (Account, bool) {
	value, exists := c.Get(accountContextKey)
	if !exists {
		return Account{}, false
	}
	acct, ok := value.(Account)
	return acct, ok
}
