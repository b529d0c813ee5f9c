package servicemock

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/billing"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/models"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/service"
)

// ==================== MOCK ENTITLEMENT SERVICE ====================

// MockEntitlementService implements service.EntitlementService for testing
type MockEntitlementService struct {
	mock.Mock
}

var _ service.EntitlementService = (*MockEntitlementService)(nil)

func (m *MockEntitlementService) ListPlans() []config.PlanDefinition {
	args := m.Called()
	return args.Get(0).([]config.PlanDefinition)
}

func (m *MockEntitlementService) GetPlanLimits(plan config.PlanID) (config.PlanLimits, error) {
	args := m.Called(plan)
	return args.Get(0).(config.PlanLimits), args.Error(1)
}

func (m *MockEntitlementService) GetSubscription(ctx context.Context, userID uuid.UUID) (*service.SubscriptionView, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SubscriptionView), args.Error(1)
}

func (m *MockEntitlementService) ValidateSubscription(ctx context.Context, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockEntitlementService) HasFeatureAccess(ctx context.Context, userID uuid.UUID, feature config.Feature) (bool, error) {
	args := m.Called(ctx, userID, feature)
	return args.Bool(0), args.Error(1)
}

func (m *MockEntitlementService) Authorize(ctx context.Context, userID uuid.UUID, kind config.LimitKind, amount int64) (*service.UsageCheckResult, error) {
	args := m.Called(ctx, userID, kind, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UsageCheckResult), args.Error(1)
}

func (m *MockEntitlementService) Commit(ctx context.Context, userID uuid.UUID, kind models.UsageKind, amount int64, meta service.UsageMetadata) error {
	args := m.Called(ctx, userID, kind, amount, meta)
	return args.Error(0)
}

func (m *MockEntitlementService) Reserve(ctx context.Context, userID uuid.UUID, kind config.LimitKind, amount int64, meta service.UsageMetadata) (*service.UsageCheckResult, error) {
	args := m.Called(ctx, userID, kind, amount, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UsageCheckResult), args.Error(1)
}

func (m *MockEntitlementService) ChangePlan(ctx context.Context, userID uuid.UUID, target config.PlanID, handle service.BillingHandle) (*models.Subscription, error) {
	args := m.Called(ctx, userID, target, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockEntitlementService) CancelSubscription(ctx context.Context, userID uuid.UUID, immediate bool) (*models.Subscription, error) {
	args := m.Called(ctx, userID, immediate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockEntitlementService) ReactivateSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockEntitlementService) ReconcileBillingEvent(ctx context.Context, event *billing.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEntitlementService) GetUsageStats(ctx context.Context, userID uuid.UUID, months int) (*service.UsageStats, error) {
	args := m.Called(ctx, userID, months)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UsageStats), args.Error(1)
}

func (m *MockEntitlementService) GetBillingHistory(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]models.BillingTransaction, int64, error) {
	args := m.Called(ctx, userID, page, pageSize)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.BillingTransaction), args.Get(1).(int64), args.Error(2)
}

func (m *MockEntitlementService) GetFileHistory(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]models.FileHistory, int64, error) {
	args := m.Called(ctx, userID, page, pageSize)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.FileHistory), args.Get(1).(int64), args.Error(2)
}
