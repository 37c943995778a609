package quota

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kpcloud/kpcloud/internal/account"
)

// RequireClass blocks the request when the caller's account may not perform
// operations of class. The account must already be in the context.
func RequireClass(class Class) gin.HandlerFunc {
	return func(c *gin.Context) {
		acct, ok := account.FromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if err := CheckSuspension(acct, class); err != nil {
			status, body := ErrorResponse(err)
			c.AbortWithStatusJSON(status, body)
			return
		}
		c.Next()
	}
}

// ErrorResponse maps guard errors to an HTTP status and body.
func ErrorResponse(err error) (int, gin.H) {
	var exceeded *ExceededError
	var suspended *SuspendedError
	switch {
	case errors.As(err, &exceeded):
		return http.StatusRequestEntityTooLarge, gin.H{
			"error":   "quota exceeded",
			"usedGB":  exceeded.UsedGB,
			"totalGB": exceeded.TotalGB,
		}
	case errors.As(err, &suspended):
		body := gin.H{
			"error":  "account " + string(suspended.Status),
			"status": suspended.Status,
		}
		if suspended.AutoDeleteDate != nil {
			body["autoDeleteDate"] = suspended.AutoDeleteDate
		}
		return http.StatusLocked, body
	case errors.Is(err, ErrInvalidSize):
		return http.StatusBadRequest, gin.H{"error": "invalid size"}
	case errors.Is(err, ErrUsageUnavailable):
		return http.StatusServiceUnavailable, gin.H{"error": "storage usage unavailable, try again"}
	default:
		return http.StatusInternalServerError, gin.H{"error": "internal error"}
	}
}

// IsGuardError reports whether err was produced by the guard.
func IsGuardError(err error) bool {
	var exceeded *ExceededError
	var suspended *SuspendedError
	return errors.As(err, &exceeded) || errors.As(err, &suspended) ||
		errors.Is(err, ErrInvalidSize) || errors.Is(err, ErrUsageUnavailable)
}
