package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/service"
)

const subscriptionComponent = "SubscriptionHandler"

// SubscriptionHandler handles subscription lifecycle API requests
type SubscriptionHandler struct {
	entitlements service.EntitlementService
	logger       *slog.Logger
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(entitlements service.EntitlementService, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		entitlements: entitlements,
		logger:       logger,
	}
}

// GetSubscription handles GET /me/subscription
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	userID, ok := currentUserID(c, h.logger, subscriptionComponent)
	if !ok {
		return
	}

	view, err := h.entitlements.GetSubscription(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, subscriptionComponent, err)
		return
	}

	limits, err := h.entitlements.GetPlanLimits(view.Subscription.Plan)
	if err != nil {
		limits, _ = h.entitlements.GetPlanLimits(config.PlanFree)
	}

	c.JSON(http.StatusOK, gin.H{
		"subscription": view.Subscription,
		"source":       view.Source,
		"valid":        view.Valid,
		"limits": gin.H{
			"files_per_month":     limits.FilesPerMonth,
			"max_file_size_bytes": limits.MaxFileSizeBytes,
			"storage_bytes":       limits.StorageBytes,
			"ai_operations":       limits.AIOperations,
			"api_calls":           limits.APICalls,
		},
	})
}

// ValidateSubscription handles GET /me/subscription/valid
func (h *SubscriptionHandler) ValidateSubscription(c *gin.Context) {
	userID, ok := currentUserID(c, h.logger, subscriptionComponent)
	if !ok {
		return
	}

	valid, err := h.entitlements.ValidateSubscription(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, subscriptionComponent, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

// ChangePlanRequest represents the plan change request body
type ChangePlanRequest struct {
	Plan  string `json:"plan" binding:"required"`
	Email string `json:"email"`
}

// ChangePlan handles POST /me/subscription/plan
func (h *SubscriptionHandler) ChangePlan(c *gin.Context) {
	userID, ok := currentUserID(c, h.logger, subscriptionComponent)
	if !ok {
		return
	}

	var req ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	plan, err := config.ParsePlanID(req.Plan)
	if err != nil {
		respondError(c, h.logger, subscriptionComponent, err)
		return
	}

	email := req.Email
	if email == "" {
		email = c.GetString("email")
	}

	sub, err := h.entitlements.ChangePlan(c.Request.Context(), userID, plan, service.BillingHandle{Email: email})
	if err != nil {
		respondError(c, h.logger, subscriptionComponent, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Plan changed",
		"subscription": sub,
	})
}

// CancelRequest represents the cancellation request body
type CancelRequest struct {
	Immediate bool `json:"immediate"`
}

// CancelSubscription handles POST /me/subscription/cancel
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	userID, ok := currentUserID(c, h.logger, subscriptionComponent)
	if !ok {
		return
	}

	var req CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}

	sub, err := h.entitlements.CancelSubscription(c.Request.Context(), userID, req.Immediate)
	if err != nil {
		respondError(c, h.logger, subscriptionComponent, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Subscription cancelled",
		"subscription": sub,
	})
}

// ReactivateSubscription handles POST /me/subscription/reactivate
func (h *SubscriptionHandler) ReactivateSubscription(c *gin.Context) {
	userID, ok := currentUserID(c, h.logger, subscriptionComponent)
	if !ok {
		return
	}

	sub, err := h.entitlements.ReactivateSubscription(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, subscriptionComponent, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Subscription reactivated",
		"subscription": sub,
	})
}

// GetFeatureAccess handles GET /me/features/:feature
func (h *SubscriptionHandler) GetFeatureAccess(c *gin.Context) {
	userID, ok := currentUserID(c, h.logger, subscriptionComponent)
	if !ok {
		return
	}

	feature := config.Feature(c.Param("feature"))
	allowed, err := h.entitlements.HasFeatureAccess(c.Request.Context(), userID, feature)
	if err != nil {
		respondError(c, h.logger, subscriptionComponent, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"feature": feature,
		"allowed": allowed,
	})
}
