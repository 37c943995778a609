package trash

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kpcloud/kpcloud/internal/auth"
	"github.com/kpcloud/kpcloud/internal/logger"
	"github.com/kpcloud/kpcloud/internal/objectstore"
	"go.uber.org/zap"
)

// RegisterRoutes mounts the read-only trash listing.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.GET("/trash", handler.list)
}

// RegisterMutatingRoutes mounts restore and empty, which need an account
// allowed to perform destructive operations.
func RegisterMutatingRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.POST("/trash/restore", handler.restore)
	group.DELETE("/trash", handler.empty)
}

type httpHandler struct {
	service *Service
}

type restoreRequest struct {
	Path string `json:"path" binding:"required"`
}

func (h *httpHandler) list(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	items, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		WriteError(c, h.service.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *httpHandler) restore(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req restoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}

	result, err := h.service.Restore(c.Request.Context(), userID, req.Path)
	if err != nil {
		WriteError(c, h.service.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (h *httpHandler) empty(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	result, err := h.service.EmptyTrash(c.Request.Context(), userID)
	if err != nil {
		WriteError(c, h.service.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// WriteError maps trash errors to responses. Partial failures are retryable
// and carry the summary.
func WriteError(c *gin.Context, log *zap.Logger, err error) {
	var batch *BatchError
	switch {
	case errors.Is(err, objectstore.ErrInvalidPath):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid path"})
	case errors.As(err, &batch):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": batch.Error(), "result": batch.Result})
	default:
		logger.FromContext(c.Request.Context(), log).Error("trash operation failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable, try again"})
	}
}
