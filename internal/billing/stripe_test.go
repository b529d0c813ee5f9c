package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/models"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/logger"
)

const testWebhookSecret = "whsec_test"

func signedHeader(t *testing.T, payload string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(payload),
		Secret:  testWebhookSecret,
	})
	return signed.Header
}

func TestMapStripeStatus(t *testing.T) {
	tests := []struct {
		in   stripe.SubscriptionStatus
		want models.SubscriptionStatus
	}{
		{stripe.SubscriptionStatusActive, models.StatusActive},
		{stripe.SubscriptionStatusTrialing, models.StatusTrialing},
		{stripe.SubscriptionStatusPastDue, models.StatusPastDue},
		{stripe.SubscriptionStatusUnpaid, models.StatusPastDue},
		{stripe.SubscriptionStatusPaused, models.StatusPastDue},
		{stripe.SubscriptionStatusCanceled, models.StatusCancelled},
		{stripe.SubscriptionStatusIncomplete, models.StatusPending},
		{stripe.SubscriptionStatusIncompleteExpired, models.StatusExpired},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			got, err := MapStripeStatus(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := MapStripeStatus("mystery")
	assert.Error(t, err)
}

func TestSubscriptionStateFromStripe(t *testing.T) {
	sub := &stripe.Subscription{
		ID:                 "sub_1",
		Customer:           &stripe.Customer{ID: "cus_1"},
		Status:             stripe.SubscriptionStatusActive,
		CancelAtPeriodEnd:  true,
		CurrentPeriodStart: 1767225600,
		CurrentPeriodEnd:   1769904000,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{ID: "si_1", Price: &stripe.Price{ID: "price_pro"}},
			},
		},
	}

	state := SubscriptionStateFromStripe(sub)
	assert.Equal(t, "sub_1", state.Ref)
	assert.Equal(t, "cus_1", state.CustomerRef)
	assert.Equal(t, "si_1", state.ItemRef)
	assert.Equal(t, "price_pro", state.PriceRef)
	assert.Equal(t, models.StatusActive, state.Status)
	assert.True(t, state.CancelAtPeriodEnd)
	require.NotNil(t, state.CurrentPeriodEnd)
	assert.Equal(t, time.Unix(1769904000, 0).UTC(), *state.CurrentPeriodEnd)
}

func TestSubscriptionStateFromStripe_UnknownStatusIsPastDue(t *testing.T) {
	state := SubscriptionStateFromStripe(&stripe.Subscription{ID: "sub_1", Status: "mystery"})
	assert.Equal(t, models.StatusPastDue, state.Status)
	assert.Nil(t, state.CurrentPeriodEnd)
	assert.Empty(t, state.PriceRef)
}

func TestParseStripeEvent_Subscription(t *testing.T) {
	payload := `{
		"id": "evt_1",
		"object": "event",
		"created": 1767229200,
		"type": "customer.subscription.updated",
		"data": {"object": {
			"id": "sub_1",
			"object": "subscription",
			"customer": "cus_1",
			"status": "past_due",
			"cancel_at_period_end": false,
			"current_period_start": 1767225600,
			"current_period_end": 1769904000,
			"items": {"object": "list", "data": [{"id": "si_1", "price": {"id": "price_premium"}}]}
		}}
	}`

	event, err := ParseStripeEvent([]byte(payload), signedHeader(t, payload), testWebhookSecret)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, EventSubscriptionUpdated, event.Type)
	assert.Equal(t, time.Unix(1767229200, 0).UTC(), event.Created)
	assert.Nil(t, event.Invoice)
	require.NotNil(t, event.Subscription)
	assert.Equal(t, "sub_1", event.Subscription.Ref)
	assert.Equal(t, "cus_1", event.Subscription.CustomerRef)
	assert.Equal(t, "price_premium", event.Subscription.PriceRef)
	assert.Equal(t, models.StatusPastDue, event.Subscription.Status)
}

func TestParseStripeEvent_Invoice(t *testing.T) {
	payload := `{
		"id": "evt_2",
		"object": "event",
		"type": "invoice.payment_failed",
		"data": {"object": {
			"id": "in_1",
			"object": "invoice",
			"customer": "cus_1",
			"subscription": "sub_1",
			"amount_due": 999,
			"amount_paid": 0,
			"currency": "usd",
			"created": 1767225600,
			"lines": {"object": "list", "data": [{"id": "il_1", "price": {"id": "price_pro"}}]}
		}}
	}`

	event, err := ParseStripeEvent([]byte(payload), signedHeader(t, payload), testWebhookSecret)
	require.NoError(t, err)
	assert.Equal(t, EventInvoicePaymentFailed, event.Type)
	require.NotNil(t, event.Invoice)
	assert.Equal(t, "in_1", event.Invoice.Ref)
	assert.Equal(t, "cus_1", event.Invoice.CustomerRef)
	assert.Equal(t, "sub_1", event.Invoice.SubscriptionRef)
	assert.Equal(t, "price_pro", event.Invoice.PriceRef)
	assert.Equal(t, int64(999), event.Invoice.AmountCents)
	assert.Equal(t, "usd", event.Invoice.Currency)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), event.Invoice.Created)
}

func TestParseStripeEvent_UnhandledType(t *testing.T) {
	payload := `{"id": "evt_3", "object": "event", "type": "charge.refunded", "data": {"object": {"id": "ch_1"}}}`

	event, err := ParseStripeEvent([]byte(payload), signedHeader(t, payload), testWebhookSecret)
	require.NoError(t, err)
	assert.Equal(t, EventType("charge.refunded"), event.Type)
	assert.True(t, event.Created.IsZero())
	assert.Nil(t, event.Subscription)
	assert.Nil(t, event.Invoice)
}

func TestParseStripeEvent_InvalidSignature(t *testing.T) {
	payload := `{"id": "evt_4", "object": "event", "type": "invoice.paid", "data": {"object": {"id": "in_1"}}}`

	_, err := ParseStripeEvent([]byte(payload), "t=1,v1=deadbeef", testWebhookSecret)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = ParseStripeEvent([]byte(payload), signedHeader(t, payload), "whsec_other")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = ParseStripeEvent([]byte(payload), "", testWebhookSecret)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestStripeProvider_ParseWebhookWithoutSecret(t *testing.T) {
	provider := NewStripeProvider("sk_test", "", logger.Nop())

	_, err := provider.ParseWebhook([]byte(`{}`), "t=1,v1=x")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNewProvider_WithoutKeyIsUnconfigured(t *testing.T) {
	provider := NewProvider("", "whsec", logger.Nop())
	ctx := context.Background()

	_, err := provider.CreateCustomer(ctx, uuid.New(), "a@b.c")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = provider.CreateSubscription(ctx, "cus_1", "price_pro")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = provider.CancelSubscription(ctx, "sub_1", true)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = provider.ParseWebhook(nil, "")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, ok := NewProvider("sk_test", "whsec", logger.Nop()).(*StripeProvider)
	assert.True(t, ok)
}
