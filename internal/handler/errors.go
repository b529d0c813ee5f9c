package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/service"
)

// StatusForError maps engine errors onto HTTP status codes
func StatusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidArgument), errors.Is(err, service.ErrUnknownPlan):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrBillingFailure):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrPlanNotBillable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrReactivationNotAllowed):
		return http.StatusConflict
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes the error body. Store and unexpected errors are logged and hidden.
func respondError(c *gin.Context, logger *slog.Logger, component string, err error) {
	status := StatusForError(err)
	body := gin.H{"error": err.Error()}

	var qerr *config.QuotaError
	if errors.As(err, &qerr) {
		body["quota"] = gin.H{
			"resource": qerr.Resource,
			"limit":    qerr.Limit,
			"current":  qerr.Current,
		}
	}

	switch status {
	case http.StatusServiceUnavailable:
		logger.Error("❌ ["+component+"] Store unavailable", "error", err)
		body["error"] = "Service temporarily unavailable"
	case http.StatusInternalServerError:
		logger.Error("❌ ["+component+"] Unexpected error", "error", err)
		body["error"] = "Internal error"
	case http.StatusPaymentRequired:
		logger.Warn("⚠️ ["+component+"] Billing failure", "error", err)
		body["error"] = "Billing provider rejected the request"
	default:
		logger.Debug("⚠️ ["+component+"] Request rejected", "status", status, "error", err)
	}

	c.JSON(status, body)
}

// currentUserID reads the authenticated user set by the auth middleware
func currentUserID(c *gin.Context, logger *slog.Logger, component string) (uuid.UUID, bool) {
	value, exists := c.Get("userID")
	if !exists {
		logger.Error("❌ [" + component + "] User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return uuid.Nil, false
	}

	userID, ok := value.(uuid.UUID)
	if !ok {
		logger.Error("❌ [" + component + "] Invalid user ID type")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return uuid.Nil, false
	}
	return userID, true
}
