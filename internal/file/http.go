package file

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kpcloud/kpcloud/internal/auth"
	"github.com/kpcloud/kpcloud/internal/logger"
	"github.com/kpcloud/kpcloud/internal/objectstore"
	"github.com/kpcloud/kpcloud/internal/quota"
	"github.com/kpcloud/kpcloud/internal/trash"
	"go.uber.org/zap"
)

// RegisterReadRoutes mounts the listing.
func RegisterReadRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.GET("/files", handler.listFiles)
}

// RegisterDestructiveRoutes mounts folder download and delete.
func RegisterDestructiveRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.GET("/files/archive", handler.downloadArchive)
	group.DELETE("/files", handler.deleteFile)
}

// RegisterWriteRoutes mounts direct uploads.
func RegisterWriteRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.POST("/files", handler.uploadFile)
}

type httpHandler struct {
	service *Service
}

func (h *httpHandler) uploadFile(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}

	result, err := h.service.Upload(c.Request.Context(), userID, c.PostForm("path"), fileHeader)
	if err != nil {
		h.writeError(c, err, "failed to upload file")
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *httpHandler) listFiles(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	recursive, _ := strconv.ParseBool(c.Query("recursive"))
	entries, err := h.service.List(c.Request.Context(), userID, c.Query("prefix"), recursive)
	if err != nil {
		h.writeError(c, err, "failed to list files")
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *httpHandler) downloadArchive(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	archive, err := h.service.OpenArchive(c.Request.Context(), userID, c.Query("path"))
	if err != nil {
		h.writeError(c, err, "failed to build archive")
		return
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archive.Name))
	c.Status(http.StatusOK)
	if err := archive.Stream(c.Request.Context(), c.Writer); err != nil {
		// headers are gone; the client sees a truncated zip
		logger.FromContext(c.Request.Context(), h.service.log).Warn("archive stream aborted", zap.Error(err))
		_ = c.Error(err)
	}
}

func (h *httpHandler) deleteFile(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	permanent, _ := strconv.ParseBool(c.Query("permanent"))
	result, err := h.service.Delete(c.Request.Context(), userID, c.Query("path"), permanent)
	if err != nil {
		trash.WriteError(c, h.service.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (h *httpHandler) writeError(c *gin.Context, err error, message string) {
	switch {
	case quota.IsGuardError(err):
		status, body := quota.ErrorResponse(err)
		c.JSON(status, body)
	case errors.Is(err, objectstore.ErrInvalidPath), errors.Is(err, ErrNotFolder), errors.Is(err, ErrTrashTarget):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
	case errors.Is(err, ErrFileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
	default:
		logger.FromContext(c.Request.Context(), h.service.log).Error(message, zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": message})
	}
}
