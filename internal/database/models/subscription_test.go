package models

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
)

func TestSubscriptionStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to SubscriptionStatus
		allowed  bool
	}{
		{StatusPending, StatusActive, true},
		{StatusActive, StatusPastDue, true},
		{StatusActive, StatusCancelled, true},
		{StatusTrialing, StatusActive, true},
		{StatusPastDue, StatusActive, true},
		{StatusCancelled, StatusActive, true},
		{StatusExpired, StatusActive, true},
		{StatusCancelled, StatusPastDue, false},
		{StatusExpired, StatusCancelled, false},
		{StatusActive, StatusPending, false},
		{StatusActive, StatusTrialing, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestSubscriptionStatus_GrantsAccess(t *testing.T) {
	assert.True(t, StatusActive.GrantsAccess())
	assert.True(t, StatusTrialing.GrantsAccess())
	assert.False(t, StatusPastDue.GrantsAccess())
	assert.False(t, StatusPending.GrantsAccess())
	assert.False(t, StatusCancelled.GrantsAccess())
	assert.False(t, StatusExpired.GrantsAccess())
	assert.False(t, SubscriptionStatus("paused").IsKnown())
}

func TestSubscriptionStatus_Scan(t *testing.T) {
	var s SubscriptionStatus
	require.NoError(t, s.Scan([]byte("past_due")))
	assert.Equal(t, StatusPastDue, s)

	require.NoError(t, s.Scan(nil))
	assert.Equal(t, StatusActive, s)

	assert.Error(t, s.Scan(42))
}

func TestSubscription_TransitionTo(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	sub := NewDefaultSubscription(uuid.New())

	require.NoError(t, sub.TransitionTo(StatusActive, now))
	assert.Nil(t, sub.CancelledAt)

	require.NoError(t, sub.TransitionTo(StatusCancelled, now))
	assert.Equal(t, StatusCancelled, sub.Status)
	require.NotNil(t, sub.CancelledAt)
	assert.Equal(t, now, *sub.CancelledAt)

	err := sub.TransitionTo(StatusPastDue, now)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, StatusCancelled, sub.Status)

	require.NoError(t, sub.TransitionTo(StatusActive, now))
	assert.Nil(t, sub.CancelledAt)
}

func TestSubscription_ExpireIfElapsed(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	sub := &Subscription{Plan: config.PlanPro, Status: StatusActive, CurrentPeriodEnd: &future}
	assert.False(t, sub.ExpireIfElapsed(now))
	assert.Equal(t, StatusActive, sub.Status)

	sub.CurrentPeriodEnd = &past
	assert.True(t, sub.ExpireIfElapsed(now))
	assert.Equal(t, StatusExpired, sub.Status)
	assert.False(t, sub.IsValid())

	// only active subscriptions expire on read
	trialing := &Subscription{Status: StatusTrialing, CurrentPeriodEnd: &past}
	assert.False(t, trialing.ExpireIfElapsed(now))

	free := NewDefaultSubscription(uuid.New())
	assert.False(t, free.ExpireIfElapsed(now))
}

func TestSubscription_ExternalRefs(t *testing.T) {
	sub := NewDefaultSubscription(uuid.New())
	assert.Equal(t, config.PlanFree, sub.Plan)
	assert.Equal(t, 1, sub.Version)
	assert.False(t, sub.HasExternalSubscription())
	assert.Empty(t, sub.CustomerRef())
	assert.Empty(t, sub.SubscriptionRef())

	empty := ""
	sub.ExternalSubscriptionRef = &empty
	assert.False(t, sub.HasExternalSubscription())

	ref, cus := "sub_1", "cus_1"
	sub.ExternalSubscriptionRef = &ref
	sub.ExternalCustomerRef = &cus
	assert.True(t, sub.HasExternalSubscription())
	assert.Equal(t, "sub_1", sub.SubscriptionRef())
	assert.Equal(t, "cus_1", sub.CustomerRef())
}
