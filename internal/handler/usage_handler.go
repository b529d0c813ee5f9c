package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/models"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/service"
)

const usageComponent = "UsageHandler"

// UsageHandler handles metering and history API requests
type UsageHandler struct {
	entitlements service.EntitlementService
	logger       *slog.Logger
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(entitlements service.EntitlementService, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		entitlements: entitlements,
		logger:       logger,
	}
}

// UsageCheckRequest is the body of authorize and reserve requests
type UsageCheckRequest struct {
	Limit  string         `json:"limit" binding:"required"`
	Amount int64          `json:"amount"`
	FileID string         `json:"file_id"`
	Action string         `json:"action"`
	Extra  map[string]any `json:"extra"`
}

// CommitRequest is the body of a usage commit
type CommitRequest struct {
	Kind   string         `json:"kind" binding:"required"`
	Amount int64          `json:"amount"`
	FileID string         `json:"file_id"`
	Action string         `json:"action"`
	Extra  map[string]any `json:"extra"`
}

// GetUsage handles GET /me/usage?months=N
func (h *UsageHandler) GetUsage(c *gin.Context) {
	userID, ok := currentUserID(c, h.logger, usageComponent)
	if !ok {
		return
	}

	months, _ := strconv.Atoi(c.DefaultQuery("months", "0"))

	stats, err := h.entitlements.GetUsageStats(c.Request.Context(), userID, months)
	if err != nil {
		respondError(c, h.logger, usageComponent, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Authorize handles POST /me/usage/authorize
func (h *UsageHandler) Authorize(c *gin.Context) {
	userID, ok := currentUserID(c, h.logger, usageComponent)
	if !ok {
		return
	}

	var req UsageCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	kind, valid := config.ParseLimitKind(req.Limit)
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown limit", "limit": req.Limit})
		return
	}

	result, err := h.entitlements.Authorize(c.Request.Context(), userID, kind, req.Amount)
	if err != nil {
		respondError(c, h.logger, usageComponent, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Reserve handles POST /me/usage/reserve. A denied reservation answers 429 with the check result.
func (h *UsageHandler) Reserve(c *gin.Context) {
	userID, ok := currentUserID(c, h.logger, usageComponent)
	if !ok {
		return
	}

	var req UsageCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	kind, valid := config.ParseLimitKind(req.Limit)
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown limit", "limit": req.Limit})
		return
	}

	meta := service.UsageMetadata{FileID: req.FileID, Action: req.Action, Extra: req.Extra}
	result, err := h.entitlements.Reserve(c.Request.Context(), userID, kind, req.Amount, meta)
	if errors.Is(err, service.ErrQuotaExceeded) && result != nil {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":  err.Error(),
			"result": result,
		})
		return
	}
	if err != nil {
		respondError(c, h.logger, usageComponent, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Commit handles POST /me/usage/commit
func (h *UsageHandler) Commit(c *gin.Context) {
	userID, ok := currentUserID(c, h.logger, usageComponent)
	if !ok {
		return
	}

	var req CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	kind, valid := models.ParseUsageKind(req.Kind)
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown usage kind", "kind": req.Kind})
		return
	}

	meta := service.UsageMetadata{FileID: req.FileID, Action: req.Action, Extra: req.Extra}
	if err := h.entitlements.Commit(c.Request.Context(), userID, kind, req.Amount, meta); err != nil {
		respondError(c, h.logger, usageComponent, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Usage recorded"})
}

// GetBillingHistory handles GET /me/billing-history?page=1&page_size=20
func (h *UsageHandler) GetBillingHistory(c *gin.Context) {
	userID, ok := currentUserID(c, h.logger, usageComponent)
	if !ok {
		return
	}

	page, pageSize := pageParams(c)
	txns, total, err := h.entitlements.GetBillingHistory(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		respondError(c, h.logger, usageComponent, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txns,
		"total":        total,
		"page":         page,
	})
}

// GetFileHistory handles GET /me/file-history?page=1&page_size=20
func (h *UsageHandler) GetFileHistory(c *gin.Context) {
	userID, ok := currentUserID(c, h.logger, usageComponent)
	if !ok {
		return
	}

	page, pageSize := pageParams(c)
	entries, total, err := h.entitlements.GetFileHistory(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		respondError(c, h.logger, usageComponent, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   total,
		"page":    page,
	})
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))
	if page < 1 {
		page = 1
	}
	return page, pageSize
}
