package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/service"
)

const throttleWindow = time.Minute

// RateLimiter throttles authenticated requests per user using the plan's requests-per-minute
type RateLimiter struct {
	throttle     database.RequestThrottle
	entitlements service.EntitlementService
	logger       *slog.Logger
}

// NewRateLimiter creates a new rate limiter. A nil throttle disables limiting.
func NewRateLimiter(throttle database.RequestThrottle, entitlements service.EntitlementService, logger *slog.Logger) *RateLimiter {
	if throttle == nil {
		logger.Warn("⚠️ [RateLimiter] No throttle store configured - rate limiting is disabled")
	}
	return &RateLimiter{
		throttle:     throttle,
		entitlements: entitlements,
		logger:       logger,
	}
}

// Limit must run after RequireAuth
func (r *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.throttle == nil {
			c.Next()
			return
		}

		value, _ := c.Get("userID")
		userID, ok := value.(uuid.UUID)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		view, err := r.entitlements.GetSubscription(c.Request.Context(), userID)
		if err != nil {
			r.logger.Error("❌ [RateLimiter] Failed to resolve subscription", "user_id", userID, "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
			return
		}

		plan := config.PlanFree
		if view.Valid {
			plan = view.Subscription.Plan
		}
		limits, err := r.entitlements.GetPlanLimits(plan)
		if err != nil {
			limits, _ = r.entitlements.GetPlanLimits(config.PlanFree)
		}
		if limits.RequestsPerMinute == config.Unlimited {
			c.Next()
			return
		}

		count, err := r.throttle.Hit(c.Request.Context(), "user:"+userID.String(), throttleWindow)
		if err != nil {
			r.logger.Error("❌ [RateLimiter] Failed to count request", "user_id", userID, "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
			return
		}

		remaining := max(0, limits.RequestsPerMinute-count)
		c.Header("X-RateLimit-Limit", strconv.FormatInt(limits.RequestsPerMinute, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > limits.RequestsPerMinute {
			r.logger.Warn("⚠️ [RateLimiter] Request limit exceeded",
				"user_id", userID,
				"count", count,
				"limit", limits.RequestsPerMinute,
			)
			c.Header("Retry-After", strconv.Itoa(int(throttleWindow.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests",
				"limit": limits.RequestsPerMinute,
			})
			return
		}

		c.Next()
	}
}
