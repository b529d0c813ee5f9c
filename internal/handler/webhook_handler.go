package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/billing"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/service"
)

const maxWebhookBodyBytes = 65536

// WebhookHandler receives billing provider events
type WebhookHandler struct {
	provider     billing.Provider
	entitlements service.EntitlementService
	logger       *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(provider billing.Provider, entitlements service.EntitlementService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		provider:     provider,
		entitlements: entitlements,
		logger:       logger,
	}
}

// HandleStripe handles POST /webhooks/stripe. Store failures answer 503 so the provider retries.
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		h.logger.Warn("⚠️ [WebhookHandler] Failed to read request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	event, err := h.provider.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, billing.ErrNotConfigured) {
			h.logger.Warn("⚠️ [WebhookHandler] Billing provider not configured")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Billing is not configured"})
			return
		}
		h.logger.Warn("⚠️ [WebhookHandler] Rejected webhook", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook"})
		return
	}

	if err := h.entitlements.ReconcileBillingEvent(c.Request.Context(), event); err != nil {
		if errors.Is(err, service.ErrStoreUnavailable) {
			h.logger.Error("❌ [WebhookHandler] Failed to reconcile event",
				"event_id", event.ID,
				"type", event.Type,
				"error", err,
			)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
			return
		}
		// Events we cannot apply are acknowledged so the provider stops retrying
		h.logger.Warn("⚠️ [WebhookHandler] Event not applied",
			"event_id", event.ID,
			"type", event.Type,
			"error", err,
		)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
