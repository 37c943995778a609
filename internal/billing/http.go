package billing

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kpcloud/kpcloud/internal/auth"
	"github.com/kpcloud/kpcloud/internal/logger"
	"go.uber.org/zap"
)

// RegisterRoutes mounts the storage status endpoint.
func RegisterRoutes(group *gin.RouterGroup, service *Service, usage usageSource) {
	handler := &httpHandler{service: service, usage: usage}
	group.GET("/storage", handler.storageStatus)
}

type httpHandler struct {
	service *Service
	usage   usageSource
}

func (h *httpHandler) storageStatus(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	status, err := h.service.Status(c.Request.Context(), userID, h.usage)
	if err != nil {
		logger.FromContext(c.Request.Context(), h.service.log).Error("storage status failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage status unavailable, try again"})
		return
	}
	c.JSON(http.StatusOK, status)
}
