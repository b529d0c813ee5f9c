package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/service"
)

// PlanHandler handles public plan information API requests
type PlanHandler struct {
	entitlements service.EntitlementService
}

// NewPlanHandler creates a new plan handler
func NewPlanHandler(entitlements service.EntitlementService) *PlanHandler {
	return &PlanHandler{entitlements: entitlements}
}

// GetAllPlans handles GET /plans - returns all available plans, their limits and features
func (h *PlanHandler) GetAllPlans(c *gin.Context) {
	plans := []gin.H{}

	for _, plan := range h.entitlements.ListPlans() {
		plans = append(plans, gin.H{
			"id":          plan.ID,
			"name":        plan.Name,
			"price_cents": plan.PriceCents,
			"currency":    plan.Currency,
			"purchasable": !plan.IsBillable() || plan.BillingPriceRef != "",
			"features":    plan.Features,
			"limits": gin.H{
				"files_per_month":     plan.Limits.FilesPerMonth,
				"max_file_size_bytes": plan.Limits.MaxFileSizeBytes,
				"storage_bytes":       plan.Limits.StorageBytes,
				"ai_operations":       plan.Limits.AIOperations,
				"api_calls":           plan.Limits.APICalls,
				"requests_per_minute": plan.Limits.RequestsPerMinute,
			},
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"plans": plans,
	})
}
