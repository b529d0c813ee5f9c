package api

import (
	"github.com/gin-gonic/gin"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/handler"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/middleware"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/observability"
)

// Handlers groups the HTTP handlers mounted by the router
type Handlers struct {
	Plans         *handler.PlanHandler
	Subscriptions *handler.SubscriptionHandler
	Usage         *handler.UsageHandler
	Webhooks      *handler.WebhookHandler
}

func SetupRouter(
	handlers Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimiter *middleware.RateLimiter,
	metrics *observability.Metrics,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.SetTrustedProxies(nil)

	if metrics != nil {
		r.Use(metrics.GinMiddleware())
		r.GET("/metrics", metrics.Handler())
	}

	// Public routes
	r.GET("/api/v1/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/api/v1/plans", handlers.Plans.GetAllPlans)
	r.POST("/api/v1/webhooks/stripe", handlers.Webhooks.HandleStripe)

	// Protected API routes
	me := r.Group("/api/v1/me")
	me.Use(authMiddleware.RequireAuth())
	if rateLimiter != nil {
		me.Use(rateLimiter.Limit())
	}
	{
		me.GET("/subscription", handlers.Subscriptions.GetSubscription)
		me.GET("/subscription/valid", handlers.Subscriptions.ValidateSubscription)
		me.POST("/subscription/plan", handlers.Subscriptions.ChangePlan)
		me.POST("/subscription/cancel", handlers.Subscriptions.CancelSubscription)
		me.POST("/subscription/reactivate", handlers.Subscriptions.ReactivateSubscription)
		me.GET("/features/:feature", handlers.Subscriptions.GetFeatureAccess)

		me.GET("/usage", handlers.Usage.GetUsage)
		me.POST("/usage/authorize", handlers.Usage.Authorize)
		me.POST("/usage/reserve", handlers.Usage.Reserve)
		me.POST("/usage/commit", handlers.Usage.Commit)
		me.GET("/billing-history", handlers.Usage.GetBillingHistory)
		me.GET("/file-history", handlers.Usage.GetFileHistory)
	}

	return r
}
