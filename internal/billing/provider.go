package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/models"
)

// EventType is the provider event name carried by a webhook
type EventType string

const (
	EventSubscriptionCreated  EventType = "customer.subscription.created"
	EventSubscriptionUpdated  EventType = "customer.subscription.updated"
	EventSubscriptionDeleted  EventType = "customer.subscription.deleted"
	EventInvoicePaid          EventType = "invoice.paid"
	EventInvoicePaymentFailed EventType = "invoice.payment_failed"
)

var (
	ErrNotConfigured    = errors.New("billing provider is not configured")
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

// SubscriptionState is the provider's view of a subscription after a call or event
type SubscriptionState struct {
	Ref                string
	CustomerRef        string
	ItemRef            string
	PriceRef           string
	Status             models.SubscriptionStatus
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
}

// Invoice is a charge reported by the provider
type Invoice struct {
	Ref             string
	CustomerRef     string
	SubscriptionRef string
	PriceRef        string
	AmountCents     int64
	Currency        string
	Description     string
	Created         time.Time
}

// Event is a verified webhook event. Exactly one of Subscription or Invoice is set
// for known types; both are nil for types the engine does not handle.
type Event struct {
	ID           string
	Type         EventType
	Created      time.Time
	Subscription *SubscriptionState
	Invoice      *Invoice
}

// Provider is the payments backend the engine bills through
type Provider interface {
	CreateCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error)
	CreateSubscription(ctx context.Context, customerRef, priceRef string) (*SubscriptionState, error)
	ChangeSubscriptionPrice(ctx context.Context, subscriptionRef, priceRef string) (*SubscriptionState, error)
	CancelSubscription(ctx context.Context, subscriptionRef string, immediate bool) (*SubscriptionState, error)
	ReactivateSubscription(ctx context.Context, subscriptionRef string) (*SubscriptionState, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

// unconfiguredProvider rejects every call; used when no API key is set
type unconfiguredProvider struct{}

// NewUnconfiguredProvider returns a Provider that fails with ErrNotConfigured
func NewUnconfiguredProvider() Provider {
	return unconfiguredProvider{}
}

func (unconfiguredProvider) CreateCustomer(context.Context, uuid.UUID, string) (string, error) {
	return "", ErrNotConfigured
}

func (unconfiguredProvider) CreateSubscription(context.Context, string, string) (*SubscriptionState, error) {
	return nil, ErrNotConfigured
}

func (unconfiguredProvider) ChangeSubscriptionPrice(context.Context, string, string) (*SubscriptionState, error) {
	return nil, ErrNotConfigured
}

func (unconfiguredProvider) CancelSubscription(context.Context, string, bool) (*SubscriptionState, error) {
	return nil, ErrNotConfigured
}

func (unconfiguredProvider) ReactivateSubscription(context.Context, string) (*SubscriptionState, error) {
	return nil, ErrNotConfigured
}

func (unconfiguredProvider) ParseWebhook([]byte, string) (*Event, error) {
	return nil, ErrNotConfigured
}
