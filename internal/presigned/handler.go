package presigned

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kpcloud/kpcloud/internal/auth"
	"github.com/kpcloud/kpcloud/internal/logger"
	"github.com/kpcloud/kpcloud/internal/objectstore"
	"github.com/kpcloud/kpcloud/internal/quota"
	"go.uber.org/zap"
)

// Handler serves grant endpoints.
type Handler struct {
	service *Service
	log     *zap.Logger
}

// NewHandler constructs a grant handler.
func NewHandler(service *Service, log *zap.Logger) *Handler {
	return &Handler{service: service, log: log.Named("presigned")}
}

// RegisterReadRoutes mounts download, preview and share grants.
func (h *Handler) RegisterReadRoutes(rg *gin.RouterGroup) {
	rg.GET("/files/download", h.read(PurposeDownload))
	rg.GET("/files/preview", h.read(PurposePreview))
	rg.POST("/files/share", h.share)
}

// RegisterWriteRoutes mounts upload grants.
func (h *Handler) RegisterWriteRoutes(rg *gin.RouterGroup) {
	rg.POST("/files/upload-url", h.uploadURL)
}

type shareRequest struct {
	Path string `json:"path" binding:"required"`
}

type uploadURLRequest struct {
	Path        string `json:"path" binding:"required"`
	Size        int64  `json:"size" binding:"min=0"`
	ContentType string `json:"contentType"`
}

func (h *Handler) read(purpose Purpose) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _, ok := auth.RequireUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		grant, err := h.service.IssueRead(c.Request.Context(), userID, c.Query("path"), purpose)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, grant)
	}
}

func (h *Handler) share(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}

	grant, err := h.service.IssueRead(c.Request.Context(), userID, req.Path, PurposeShare)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, grant)
}

func (h *Handler) uploadURL(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path and size are required"})
		return
	}

	grant, err := h.service.IssueUpload(c.Request.Context(), userID, req.Path, req.Size, req.ContentType)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, grant)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case quota.IsGuardError(err):
		status, body := quota.ErrorResponse(err)
		c.JSON(status, body)
	case errors.Is(err, objectstore.ErrInvalidPath), errors.Is(err, ErrFolder),
		errors.Is(err, ErrTrashTarget), errors.Is(err, ErrUnsupportedPurpose):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case objectstore.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
	default:
		logger.FromContext(c.Request.Context(), h.log).Error("grant failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable, try again"})
	}
}
