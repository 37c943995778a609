package activity

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kpcloud/kpcloud/internal/auth"
)

// RegisterRoutes mounts the activity log under the provided router group.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.GET("/logs", handler.listLogs)
}

type httpHandler struct {
	service *Service
}

func (h *httpHandler) listLogs(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	entries, err := h.service.List(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to load activity"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries})
}
