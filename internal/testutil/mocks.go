package testutil

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/billing"
)

// ==================== MOCK BILLING PROVIDER ====================

// MockProvider implements billing.Provider for testing
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) CreateCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error) {
	args := m.Called(ctx, userID, email)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) CreateSubscription(ctx context.Context, customerRef, priceRef string) (*billing.SubscriptionState, error) {
	args := m.Called(ctx, customerRef, priceRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.SubscriptionState), args.Error(1)
}

func (m *MockProvider) ChangeSubscriptionPrice(ctx context.Context, subscriptionRef, priceRef string) (*billing.SubscriptionState, error) {
	args := m.Called(ctx, subscriptionRef, priceRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.SubscriptionState), args.Error(1)
}

func (m *MockProvider) CancelSubscription(ctx context.Context, subscriptionRef string, immediate bool) (*billing.SubscriptionState, error) {
	args := m.Called(ctx, subscriptionRef, immediate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.SubscriptionState), args.Error(1)
}

func (m *MockProvider) ReactivateSubscription(ctx context.Context, subscriptionRef string) (*billing.SubscriptionState, error) {
	args := m.Called(ctx, subscriptionRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.SubscriptionState), args.Error(1)
}

func (m *MockProvider) ParseWebhook(payload []byte, signature string) (*billing.Event, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Event), args.Error(1)
}
