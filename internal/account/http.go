package account

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kpcloud/kpcloud/internal/auth"
)

// RegisterRoutes mounts account operations under the provided router group.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.GET("/account", handler.getAccount)
	group.GET("/account/packs", handler.listPacks)
	group.POST("/account/topup", handler.topUp)
	group.PUT("/account/quota", handler.setQuota)
}

type httpHandler struct {
	service *Service
}

type topUpRequest struct {
	Pack string `json:"pack" binding:"required"`
}

type setQuotaRequest struct {
	QuotaGB int `json:"quotaGB" binding:"required"`
}

func (h *httpHandler) getAccount(c *gin.Context) {
	acct, ok := FromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account":     acct,
		"tier":        acct.Tier(),
		"monthlyCost": h.service.MonthlyCost(acct),
	})
}

func (h *httpHandler) listPacks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"packs": Packs()})
}

func (h *httpHandler) topUp(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pack is required"})
		return
	}

	acct, err := h.service.TopUp(c.Request.Context(), userID, req.Pack)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownPack):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown credit pack"})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to top up"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": acct})
}

func (h *httpHandler) setQuota(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req setQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quotaGB is required"})
		return
	}

	acct, err := h.service.SetQuota(c.Request.Context(), userID, req.QuotaGB)
	if err != nil {
		var below *BelowUsageError
		switch {
		case errors.As(err, &below):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "quota below current usage",
				"usedGB":  BytesToGB(below.UsedBytes),
				"quotaGB": below.RequestedGB,
			})
		case errors.Is(err, ErrAccountRestricted):
			body := gin.H{"error": "top up to recover before lowering the quota"}
			if current, ok := FromContext(c); ok {
				body["status"] = current.Status
			}
			c.JSON(http.StatusLocked, body)
		case errors.Is(err, ErrInvalidQuota):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quota"})
		case errors.Is(err, ErrInsufficientCredits):
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error":    "insufficient credits",
				"required": MonthlyCost(req.QuotaGB, h.service.cfg.RatePerGB),
			})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to change quota"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": acct, "monthlyCost": h.service.MonthlyCost(acct)})
}
