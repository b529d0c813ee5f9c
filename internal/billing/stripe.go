package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/models"
)

// StripeProvider implements Provider on top of the Stripe API
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	logger        *slog.Logger
}

// NewStripeProvider creates a Stripe-backed provider
func NewStripeProvider(secretKey, webhookSecret string, logger *slog.Logger) *StripeProvider {
	return &StripeProvider{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// NewProvider picks the Stripe provider when a key is configured
func NewProvider(secretKey, webhookSecret string, logger *slog.Logger) Provider {
	if secretKey == "" {
		logger.Warn("⚠️ [Billing] STRIPE_SECRET_KEY is empty, paid plan changes are disabled")
		return NewUnconfiguredProvider()
	}
	logger.Info("✅ [Billing] Stripe provider configured")
	return NewStripeProvider(secretKey, webhookSecret, logger)
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error) {
	params := &stripe.CustomerParams{
		Metadata: map[string]string{
			"user_id": userID.String(),
		},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.Context = ctx

	cust, err := p.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}

	p.logger.Info("💳 [Billing] Created Stripe customer", "user_id", userID, "customer", cust.ID)
	return cust.ID, nil
}

func (p *StripeProvider) CreateSubscription(ctx context.Context, customerRef, priceRef string) (*SubscriptionState, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerRef),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceRef)},
		},
	}
	params.Context = ctx

	sub, err := p.api.Subscriptions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return SubscriptionStateFromStripe(sub), nil
}

func (p *StripeProvider) ChangeSubscriptionPrice(ctx context.Context, subscriptionRef, priceRef string) (*SubscriptionState, error) {
	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx

	current, err := p.api.Subscriptions.Get(subscriptionRef, getParams)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return nil, fmt.Errorf("subscription %s has no items", subscriptionRef)
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(current.Items.Data[0].ID),
				Price: stripe.String(priceRef),
			},
		},
		CancelAtPeriodEnd: stripe.Bool(false),
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx

	sub, err := p.api.Subscriptions.Update(subscriptionRef, params)
	if err != nil {
		return nil, fmt.Errorf("update subscription price: %w", err)
	}
	return SubscriptionStateFromStripe(sub), nil
}

func (p *StripeProvider) CancelSubscription(ctx context.Context, subscriptionRef string, immediate bool) (*SubscriptionState, error) {
	if immediate {
		params := &stripe.SubscriptionCancelParams{}
		params.Context = ctx

		sub, err := p.api.Subscriptions.Cancel(subscriptionRef, params)
		if err != nil {
			return nil, fmt.Errorf("cancel subscription: %w", err)
		}
		return SubscriptionStateFromStripe(sub), nil
	}

	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	params.Context = ctx

	sub, err := p.api.Subscriptions.Update(subscriptionRef, params)
	if err != nil {
		return nil, fmt.Errorf("schedule subscription cancellation: %w", err)
	}
	return SubscriptionStateFromStripe(sub), nil
}

func (p *StripeProvider) ReactivateSubscription(ctx context.Context, subscriptionRef string) (*SubscriptionState, error) {
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(false)}
	params.Context = ctx

	sub, err := p.api.Subscriptions.Update(subscriptionRef, params)
	if err != nil {
		return nil, fmt.Errorf("reactivate subscription: %w", err)
	}
	return SubscriptionStateFromStripe(sub), nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event payload
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if p.webhookSecret == "" {
		return nil, ErrNotConfigured
	}
	return ParseStripeEvent(payload, signature, p.webhookSecret)
}

// ParseStripeEvent verifies and decodes a Stripe webhook payload
func ParseStripeEvent(payload []byte, signature, secret string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if event.Data == nil {
		return nil, fmt.Errorf("%w: missing data", ErrInvalidPayload)
	}

	out := &Event{ID: event.ID, Type: EventType(event.Type)}
	if event.Created > 0 {
		out.Created = time.Unix(event.Created, 0).UTC()
	}

	switch out.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		out.Subscription = SubscriptionStateFromStripe(&sub)
	case EventInvoicePaid, EventInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		out.Invoice = invoiceFromStripe(&inv, out.Type)
	}

	return out, nil
}

// MapStripeStatus converts a Stripe subscription status into a local one
func MapStripeStatus(status stripe.SubscriptionStatus) (models.SubscriptionStatus, error) {
	switch status {
	case stripe.SubscriptionStatusActive:
		return models.StatusActive, nil
	case stripe.SubscriptionStatusTrialing:
		return models.StatusTrialing, nil
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusPaused:
		return models.StatusPastDue, nil
	case stripe.SubscriptionStatusCanceled:
		return models.StatusCancelled, nil
	case stripe.SubscriptionStatusIncomplete:
		return models.StatusPending, nil
	case stripe.SubscriptionStatusIncompleteExpired:
		return models.StatusExpired, nil
	}
	return "", fmt.Errorf("unknown stripe subscription status %q", status)
}

// SubscriptionStateFromStripe flattens a Stripe subscription
func SubscriptionStateFromStripe(sub *stripe.Subscription) *SubscriptionState {
	state := &SubscriptionState{
		Ref:                sub.ID,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CurrentPeriodStart: unixTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(sub.CurrentPeriodEnd),
	}
	if sub.Customer != nil {
		state.CustomerRef = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		state.ItemRef = item.ID
		if item.Price != nil {
			state.PriceRef = item.Price.ID
		}
	}
	status, err := MapStripeStatus(sub.Status)
	if err != nil {
		status = models.StatusPastDue
	}
	state.Status = status
	return state
}

func invoiceFromStripe(inv *stripe.Invoice, eventType EventType) *Invoice {
	out := &Invoice{
		Ref:         inv.ID,
		Currency:    string(inv.Currency),
		Description: inv.Description,
		Created:     time.Unix(inv.Created, 0).UTC(),
	}
	if eventType == EventInvoicePaid {
		out.AmountCents = inv.AmountPaid
	} else {
		out.AmountCents = inv.AmountDue
	}
	if inv.Customer != nil {
		out.CustomerRef = inv.Customer.ID
	}
	if inv.Subscription != nil {
		out.SubscriptionRef = inv.Subscription.ID
	}
	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			if line.Price != nil && line.Price.ID != "" {
				out.PriceRef = line.Price.ID
				break
			}
		}
	}
	return out
}

func unixTime(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

