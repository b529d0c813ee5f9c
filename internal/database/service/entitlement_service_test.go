package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/billing"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/models"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/repository"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/testutil"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	db       *gorm.DB
	svc      EntitlementService
	provider *testutil.MockProvider
	clock    *testutil.Clock
	subRepo  repository.SubscriptionRepository
	txnRepo  repository.BillingTransactionRepository
	cfg      *config.Config
}

type envOption func(*Dependencies)

func withCache(cache database.SubscriptionCache) envOption {
	return func(d *Dependencies) { d.Cache = cache }
}

func withCatalog(catalog *config.Catalog) envOption {
	return func(d *Dependencies) { d.Catalog = catalog }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	db := testutil.NewTestDB(t)
	cfg := testutil.NewTestConfig()
	provider := new(testutil.MockProvider)
	clock := testutil.NewClock(testNow)

	deps := Dependencies{
		Subscriptions: repository.NewSubscriptionRepository(db),
		Usage:         repository.NewUsageRepository(db),
		FileHistory:   repository.NewFileHistoryRepository(db),
		Transactions:  repository.NewBillingTransactionRepository(db),
		Provider:      provider,
		Clock:         clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	t.Cleanup(func() { provider.AssertExpectations(t) })

	return &testEnv{
		db:       db,
		svc:      NewEntitlementService(deps, cfg, testutil.NewTestLogger()),
		provider: provider,
		clock:    clock,
		subRepo:  deps.Subscriptions,
		txnRepo:  deps.Transactions,
		cfg:      cfg,
	}
}

func providerState(ref, customer string, status models.SubscriptionStatus, end time.Time) *billing.SubscriptionState {
	start := end.AddDate(0, -1, 0)
	return &billing.SubscriptionState{
		Ref:                ref,
		CustomerRef:        customer,
		Status:             status,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
	}
}

// subscribePro upgrades a new user to the pro plan through the provider mock
func (e *testEnv) subscribePro(t *testing.T, userID uuid.UUID) *models.Subscription {
	t.Helper()

	e.provider.On("CreateCustomer", mock.Anything, userID, "user@example.com").Return("cus_1", nil).Once()
	e.provider.On("CreateSubscription", mock.Anything, "cus_1", "price_pro").
		Return(providerState("sub_1", "cus_1", models.StatusActive, testNow.AddDate(0, 0, 30)), nil).Once()

	sub, err := e.svc.ChangePlan(context.Background(), userID, config.PlanPro, BillingHandle{Email: "user@example.com"})
	require.NoError(t, err)
	require.Equal(t, config.PlanPro, sub.Plan)
	return sub
}

// ==================== Subscription Reads ====================

func TestGetSubscription_MaterializesFreeDefault(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	view, err := env.svc.GetSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, SourceDefault, view.Source)
	assert.True(t, view.Valid)
	assert.Equal(t, config.PlanFree, view.Subscription.Plan)
	assert.Equal(t, models.StatusActive, view.Subscription.Status)

	view, err = env.svc.GetSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, SourceExisting, view.Source)
}

func TestGetSubscription_RejectsNilUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.GetSubscription(context.Background(), uuid.Nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGetSubscription_ConcurrentReadsCreateOneRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			view, err := env.svc.GetSubscription(ctx, userID)
			if assert.NoError(t, err) {
				ids[i] = view.Subscription.ID
			}
		}(i)
	}
	wg.Wait()

	stored, err := env.subRepo.FindByUserID(ctx, userID)
	require.NoError(t, err)
	for _, id := range ids {
		assert.Equal(t, stored.ID, id)
	}
}

func TestGetSubscription_LazyExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	env.subscribePro(t, userID)

	env.clock.Advance(31 * 24 * time.Hour)

	view, err := env.svc.GetSubscription(ctx, userID)
	require.NoError(t, err)
	assert.False(t, view.Valid)
	assert.Equal(t, models.StatusExpired, view.Subscription.Status)

	stored, err := env.subRepo.FindByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, stored.Status)

	// Expired subscribers fall back to the free tier
	result, err := env.svc.Authorize(ctx, userID, config.LimitFilesPerMonth, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.Limit)
}

func TestHasFeatureAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	ok, err := env.svc.HasFeatureAccess(ctx, userID, config.FeaturePDFMerge)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.svc.HasFeatureAccess(ctx, userID, config.FeatureOCR)
	require.NoError(t, err)
	assert.False(t, ok)

	env.subscribePro(t, userID)
	ok, err = env.svc.HasFeatureAccess(ctx, userID, config.FeatureOCR)
	require.NoError(t, err)
	assert.True(t, ok)

	// An expired subscriber keeps the free tier's features
	env.clock.Advance(31 * 24 * time.Hour)
	ok, err = env.svc.HasFeatureAccess(ctx, userID, config.FeatureOCR)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = env.svc.HasFeatureAccess(ctx, userID, config.FeaturePDFMerge)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetPlanLimits_UnknownPlan(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.GetPlanLimits("gold")
	assert.ErrorIs(t, err, ErrUnknownPlan)

	limits, err := env.svc.GetPlanLimits(config.PlanPro)
	require.NoError(t, err)
	assert.Equal(t, int64(500), limits.FilesPerMonth)
	assert.Len(t, env.svc.ListPlans(), 3)
}

// ==================== Metering ====================

func TestAuthorize_FreePlanLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	result, err := env.svc.Authorize(ctx, userID, config.LimitFilesPerMonth, 0)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(10), result.Remaining)

	require.NoError(t, env.svc.Commit(ctx, userID, models.UsageFileProcessed, 10, UsageMetadata{}))

	result, err = env.svc.Authorize(ctx, userID, config.LimitFilesPerMonth, 1)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, int64(0), result.Remaining)
	assert.Equal(t, int64(10), result.Current)
	assert.Equal(t, int64(10), result.Limit)
}

func TestAuthorize_UnlimitedPlan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	env.provider.On("CreateCustomer", mock.Anything, userID, "").Return("cus_9", nil).Once()
	env.provider.On("CreateSubscription", mock.Anything, "cus_9", "price_premium").
		Return(providerState("sub_9", "cus_9", models.StatusActive, testNow.AddDate(0, 0, 30)), nil).Once()
	_, err := env.svc.ChangePlan(ctx, userID, config.PlanPremium, BillingHandle{})
	require.NoError(t, err)

	result, err := env.svc.Authorize(ctx, userID, config.LimitAIOperations, 1_000_000)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, config.Unlimited, result.Remaining)
	assert.Equal(t, config.Unlimited, result.Limit)
}

func TestAuthorize_UnknownLimit(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Authorize(context.Background(), uuid.New(), "bandwidth", 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCommit_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	assert.ErrorIs(t, env.svc.Commit(ctx, uuid.Nil, models.UsageFileProcessed, 1, UsageMetadata{}), ErrInvalidArgument)
	assert.ErrorIs(t, env.svc.Commit(ctx, userID, "bogus", 1, UsageMetadata{}), ErrInvalidArgument)
	assert.ErrorIs(t, env.svc.Commit(ctx, userID, models.UsageFileProcessed, -1, UsageMetadata{}), ErrInvalidArgument)
}

func TestCommit_StorageReleaseClampsAtZero(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, env.svc.Commit(ctx, userID, models.UsageStorageUsed, 500, UsageMetadata{}))
	require.NoError(t, env.svc.Commit(ctx, userID, models.UsageStorageUsed, -800, UsageMetadata{}))

	stats, err := env.svc.GetUsageStats(ctx, userID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Usage[config.LimitStorage].Used)
}

func TestCommit_RecordsFileHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	meta := UsageMetadata{FileID: "file-1", Action: "merge", Extra: map[string]any{"pages": 12}}
	require.NoError(t, env.svc.Commit(ctx, userID, models.UsageFileProcessed, 1, meta))
	require.NoError(t, env.svc.Commit(ctx, userID, models.UsageAIOperation, 1, UsageMetadata{Action: "summary"}))

	entries, total, err := env.svc.GetFileHistory(ctx, userID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, entries, 1)
	assert.Equal(t, "merge", entries[0].Action)
	require.NotNil(t, entries[0].FileID)
	assert.Equal(t, "file-1", *entries[0].FileID)
	assert.JSONEq(t, `{"pages":12}`, entries[0].Metadata)
}

func TestReserve_StopsAtLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 5; i++ {
		result, err := env.svc.Reserve(ctx, userID, config.LimitAIOperations, 1, UsageMetadata{})
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, int64(i+1), result.Current)
	}

	result, err := env.svc.Reserve(ctx, userID, config.LimitAIOperations, 1, UsageMetadata{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	require.NotNil(t, result)
	assert.False(t, result.Allowed)
	assert.Equal(t, int64(5), result.Current)
	assert.Equal(t, int64(0), result.Remaining)

	var qerr *config.QuotaError
	require.True(t, errors.As(err, &qerr))
	assert.Equal(t, string(config.LimitAIOperations), qerr.Resource)
	assert.Equal(t, int64(5), qerr.Limit)
}

func TestReserve_ConcurrentCallersNeverOvershoot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := env.svc.Reserve(ctx, userID, config.LimitAIOperations, 1, UsageMetadata{})
			if err != nil {
				assert.ErrorIs(t, err, ErrQuotaExceeded)
				return
			}
			if result.Allowed {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), granted.Load())
	stats, err := env.svc.GetUsageStats(ctx, userID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Usage[config.LimitAIOperations].Used)
}

// ==================== Projections ====================

func TestGetUsageStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	env.clock.Set(time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, env.svc.Commit(ctx, userID, models.UsageFileProcessed, 1, UsageMetadata{}))
	env.clock.Set(time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, env.svc.Commit(ctx, userID, models.UsageFileProcessed, 2, UsageMetadata{}))
	env.clock.Set(testNow)
	require.NoError(t, env.svc.Commit(ctx, userID, models.UsageFileProcessed, 3, UsageMetadata{}))

	stats, err := env.svc.GetUsageStats(ctx, userID, 0)
	require.NoError(t, err)
	assert.Equal(t, config.PlanFree, stats.Plan)
	assert.Equal(t, "2026-03", stats.Period)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), stats.PeriodStart)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), stats.PeriodEnd)

	files := stats.Usage[config.LimitFilesPerMonth]
	assert.Equal(t, UsageLine{Used: 3, Limit: 10, Remaining: 7}, files)
	assert.Len(t, stats.Usage, len(config.LimitKinds))

	require.Len(t, stats.History, 2)
	assert.Equal(t, "2026-02", stats.History[0].MonthYear)
	assert.Equal(t, "2026-01", stats.History[1].MonthYear)

	stats, err = env.svc.GetUsageStats(ctx, userID, 1)
	require.NoError(t, err)
	require.Len(t, stats.History, 1)
	assert.Equal(t, "2026-02", stats.History[0].MonthYear)
}

func TestGetFileHistory_Pagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		env.clock.Advance(time.Minute)
		require.NoError(t, env.svc.Commit(ctx, userID, models.UsageFileProcessed, 1, UsageMetadata{Action: "split"}))
	}

	entries, total, err := env.svc.GetFileHistory(ctx, userID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, entries, 1)

	_, _, err = env.svc.GetFileHistory(ctx, uuid.Nil, 1, 10)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNormalizePage(t *testing.T) {
	page, size := normalizePage(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, defaultPageSize, size)

	_, size = normalizePage(3, 1000)
	assert.Equal(t, maxPageSize, size)
}

// ==================== Cache ====================

func newTestCache(t *testing.T, cfg *config.Config) *database.RedisClient {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := database.NewRedisClientFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), cfg, testutil.NewTestLogger())
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client
}

func TestGetSubscription_ServesFromCache(t *testing.T) {
	cache := newTestCache(t, testutil.NewTestConfig())
	env := newTestEnv(t, withCache(cache))
	ctx := context.Background()
	userID := uuid.New()

	_, err := env.svc.GetSubscription(ctx, userID)
	require.NoError(t, err)

	// A write that bypasses the service is not visible until the snapshot goes away
	stored, err := env.subRepo.FindByUserID(ctx, userID)
	require.NoError(t, err)
	stored.Plan = config.PlanPremium
	require.NoError(t, env.subRepo.Update(ctx, stored))

	view, err := env.svc.GetSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, config.PlanFree, view.Subscription.Plan)

	require.NoError(t, cache.InvalidateSubscription(ctx, userID, stored.Version))
	view, err = env.svc.GetSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, config.PlanPremium, view.Subscription.Plan)
}

func TestChangePlan_InvalidatesCache(t *testing.T) {
	cache := newTestCache(t, testutil.NewTestConfig())
	env := newTestEnv(t, withCache(cache))
	ctx := context.Background()
	userID := uuid.New()

	_, err := env.svc.GetSubscription(ctx, userID)
	require.NoError(t, err)

	env.subscribePro(t, userID)

	view, err := env.svc.GetSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, config.PlanPro, view.Subscription.Plan)
}

func TestGetSubscription_ElapsedSnapshotBypassesCache(t *testing.T) {
	cache := newTestCache(t, testutil.NewTestConfig())
	env := newTestEnv(t, withCache(cache))
	ctx := context.Background()
	userID := uuid.New()
	env.subscribePro(t, userID)

	view, err := env.svc.GetSubscription(ctx, userID)
	require.NoError(t, err)
	require.True(t, view.Valid)

	env.clock.Advance(31 * 24 * time.Hour)

	view, err = env.svc.GetSubscription(ctx, userID)
	require.NoError(t, err)
	assert.False(t, view.Valid)
	assert.Equal(t, models.StatusExpired, view.Subscription.Status)
}

// gatedCache parks the first snapshot fill after arm until release is closed
type gatedCache struct {
	database.SubscriptionCache
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
	fillErr chan error
}

func newGatedCache(inner database.SubscriptionCache) *gatedCache {
	return &gatedCache{
		SubscriptionCache: inner,
		entered:           make(chan struct{}),
		release:           make(chan struct{}),
		fillErr:           make(chan error, 1),
	}
}

func (c *gatedCache) arm() { c.armed.Store(true) }

func (c *gatedCache) SetSubscription(ctx context.Context, sub *models.Subscription) error {
	if c.armed.CompareAndSwap(true, false) {
		close(c.entered)
		<-c.release
		c.fillErr <- ctx.Err()
	}
	return c.SubscriptionCache.SetSubscription(ctx, sub)
}

func receive[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting on channel")
	}
	var zero T
	return zero
}

func TestGetSubscription_StaleFillDoesNotOutliveCancel(t *testing.T) {
	cache := newGatedCache(newTestCache(t, testutil.NewTestConfig()))
	env := newTestEnv(t, withCache(cache))
	ctx := context.Background()
	userID := uuid.New()
	env.subscribePro(t, userID)

	// A reader loads the active row and stalls before writing its snapshot
	cache.arm()
	loaded := make(chan *SubscriptionView, 1)
	go func() {
		view, err := env.svc.GetSubscription(ctx, userID)
		assert.NoError(t, err)
		loaded <- view
	}()
	receive(t, cache.entered)

	env.provider.On("CancelSubscription", mock.Anything, "sub_1", true).
		Return(providerState("sub_1", "cus_1", models.StatusCancelled, testNow), nil).Once()
	sub, err := env.svc.CancelSubscription(ctx, userID, true)
	require.NoError(t, err)
	require.Equal(t, models.StatusCancelled, sub.Status)

	close(cache.release)
	stale := receive(t, loaded)
	require.NotNil(t, stale)
	assert.Equal(t, models.StatusActive, stale.Subscription.Status)

	view, err := env.svc.GetSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, view.Subscription.Status)
	assert.False(t, view.Valid)

	result, err := env.svc.Authorize(ctx, userID, config.LimitFilesPerMonth, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.Limit)
}

func TestGetSubscription_CancelledCallerDoesNotCancelSharedLoad(t *testing.T) {
	cache := newGatedCache(newTestCache(t, testutil.NewTestConfig()))
	env := newTestEnv(t, withCache(cache))
	userID := uuid.New()

	cache.arm()
	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	defer cancelLeader()
	leaderErr := make(chan error, 1)
	go func() {
		_, err := env.svc.GetSubscription(leaderCtx, userID)
		leaderErr <- err
	}()
	receive(t, cache.entered)

	// The first caller gives up while its load is still in flight
	cancelLeader()
	assert.ErrorIs(t, receive(t, leaderErr), context.Canceled)

	followerErr := make(chan error, 1)
	go func() {
		view, err := env.svc.GetSubscription(context.Background(), userID)
		if err == nil && view.Subscription.Plan != config.PlanFree {
			err = errors.New("unexpected plan " + string(view.Subscription.Plan))
		}
		followerErr <- err
	}()

	close(cache.release)
	assert.NoError(t, receive(t, cache.fillErr))
	assert.NoError(t, receive(t, followerErr))

	view, err := env.svc.GetSubscription(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, SourceExisting, view.Source)
}

// ==================== Store Failures ====================

func (e *testEnv) closeStore(t *testing.T) {
	t.Helper()
	sqlDB, err := e.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func TestEntitlements_FailClosedWhenStoreUnavailable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	env.closeStore(t)

	view, err := env.svc.GetSubscription(ctx, userID)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Nil(t, view)

	result, err := env.svc.Authorize(ctx, userID, config.LimitFilesPerMonth, 1)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Nil(t, result)

	result, err = env.svc.Reserve(ctx, userID, config.LimitAIOperations, 1, UsageMetadata{})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Nil(t, result)

	err = env.svc.Commit(ctx, userID, models.UsageFileProcessed, 1, UsageMetadata{})
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	ok, err := env.svc.HasFeatureAccess(ctx, userID, config.FeaturePDFMerge)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.False(t, ok)
}

func TestEntitlements_CachedSnapshotDoesNotBypassStoreFailure(t *testing.T) {
	cache := newTestCache(t, testutil.NewTestConfig())
	env := newTestEnv(t, withCache(cache))
	ctx := context.Background()
	userID := uuid.New()

	_, err := env.svc.GetSubscription(ctx, userID)
	require.NoError(t, err)
	env.closeStore(t)

	result, err := env.svc.Authorize(ctx, userID, config.LimitFilesPerMonth, 1)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Nil(t, result)

	result, err = env.svc.Reserve(ctx, userID, config.LimitFilesPerMonth, 1, UsageMetadata{})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Nil(t, result)
}
