package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/models"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/testutil"
)

func TestSubscriptionRepository_CreateIfAbsent(t *testing.T) {
	repo := NewSubscriptionRepository(testutil.NewTestDB(t))
	ctx := context.Background()
	userID := uuid.New()

	first, created, err := repo.CreateIfAbsent(ctx, models.NewDefaultSubscription(userID))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.Equal(t, 1, first.Version)

	second, created, err := repo.CreateIfAbsent(ctx, models.NewDefaultSubscription(userID))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestSubscriptionRepository_FindNotFound(t *testing.T) {
	repo := NewSubscriptionRepository(testutil.NewTestDB(t))
	ctx := context.Background()

	_, err := repo.FindByUserID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)

	_, err = repo.FindByCustomerRef(ctx, "cus_missing")
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)

	_, err = repo.FindBySubscriptionRef(ctx, "sub_missing")
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestSubscriptionRepository_UpdateAndFindByRefs(t *testing.T) {
	repo := NewSubscriptionRepository(testutil.NewTestDB(t))
	ctx := context.Background()
	userID := uuid.New()

	sub, _, err := repo.CreateIfAbsent(ctx, models.NewDefaultSubscription(userID))
	require.NoError(t, err)

	sub.Plan = config.PlanPro
	sub.ExternalCustomerRef = testutil.StringPtr("cus_1")
	sub.ExternalSubscriptionRef = testutil.StringPtr("sub_1")
	require.NoError(t, repo.Update(ctx, sub))
	assert.Equal(t, 2, sub.Version)

	byCustomer, err := repo.FindByCustomerRef(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, byCustomer.ID)
	assert.Equal(t, config.PlanPro, byCustomer.Plan)
	assert.Equal(t, 2, byCustomer.Version)

	bySub, err := repo.FindBySubscriptionRef(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, userID, bySub.UserID)
}

func TestSubscriptionRepository_UpdateVersionConflict(t *testing.T) {
	repo := NewSubscriptionRepository(testutil.NewTestDB(t))
	ctx := context.Background()
	userID := uuid.New()

	_, _, err := repo.CreateIfAbsent(ctx, models.NewDefaultSubscription(userID))
	require.NoError(t, err)

	a, err := repo.FindByUserID(ctx, userID)
	require.NoError(t, err)
	b, err := repo.FindByUserID(ctx, userID)
	require.NoError(t, err)

	a.Plan = config.PlanPro
	require.NoError(t, repo.Update(ctx, a))

	b.Plan = config.PlanPremium
	assert.ErrorIs(t, repo.Update(ctx, b), ErrVersionConflict)

	stored, err := repo.FindByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, config.PlanPro, stored.Plan)
}

func TestSubscriptionRepository_UpdateClearsRefs(t *testing.T) {
	repo := NewSubscriptionRepository(testutil.NewTestDB(t))
	ctx := context.Background()

	sub, _, err := repo.CreateIfAbsent(ctx, models.NewDefaultSubscription(uuid.New()))
	require.NoError(t, err)

	sub.ExternalSubscriptionRef = testutil.StringPtr("sub_1")
	require.NoError(t, repo.Update(ctx, sub))

	sub.ExternalSubscriptionRef = nil
	require.NoError(t, repo.Update(ctx, sub))

	stored, err := repo.FindByUserID(ctx, sub.UserID)
	require.NoError(t, err)
	assert.Nil(t, stored.ExternalSubscriptionRef)
}
