package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/billing"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/models"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/repository"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/observability"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/worker"
)

const (
	defaultStatsMonths = 6
	maxStatsMonths     = 24
	defaultPageSize    = 20
	maxPageSize        = 100
	maxWriteAttempts   = 3
)

// SubscriptionSource tells whether a subscription row existed before the read
type SubscriptionSource string

const (
	SourceExisting SubscriptionSource = "existing"
	SourceDefault  SubscriptionSource = "default"
)

// SubscriptionView is the result of resolving a user's subscription
type SubscriptionView struct {
	Subscription *models.Subscription `json:"subscription"`
	Source       SubscriptionSource   `json:"source"`
	Valid        bool                 `json:"valid"`
}

// UsageCheckResult is the answer to an authorization or reservation.
// Remaining and Limit are config.Unlimited when the plan has no ceiling.
type UsageCheckResult struct {
	Allowed   bool  `json:"allowed"`
	Remaining int64 `json:"remaining"`
	Current   int64 `json:"current"`
	Limit     int64 `json:"limit"`
}

// UsageMetadata describes the operation behind a commit
type UsageMetadata struct {
	FileID string         `json:"file_id,omitempty"`
	Action string         `json:"action,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// BillingHandle carries what the billing provider needs to create a customer
type BillingHandle struct {
	Email string
}

// UsageLine is the current-period usage of one limit
type UsageLine struct {
	Used      int64 `json:"used"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
}

// UsageStats is the usage projection of a user
type UsageStats struct {
	Plan        config.PlanID                  `json:"plan"`
	Status      models.SubscriptionStatus      `json:"status"`
	Period      string                         `json:"period"`
	PeriodStart time.Time                      `json:"period_start"`
	PeriodEnd   time.Time                      `json:"period_end"`
	Usage       map[config.LimitKind]UsageLine `json:"usage"`
	History     []models.UsageCounter          `json:"history"`
}

// EntitlementService defines the interface for plan, subscription and usage logic
type EntitlementService interface {
	// Catalog
	ListPlans() []config.PlanDefinition
	GetPlanLimits(plan config.PlanID) (config.PlanLimits, error)

	// Subscription reads
	GetSubscription(ctx context.Context, userID uuid.UUID) (*SubscriptionView, error)
	ValidateSubscription(ctx context.Context, userID uuid.UUID) (bool, error)
	HasFeatureAccess(ctx context.Context, userID uuid.UUID, feature config.Feature) (bool, error)

	// Metering
	Authorize(ctx context.Context, userID uuid.UUID, kind config.LimitKind, amount int64) (*UsageCheckResult, error)
	Commit(ctx context.Context, userID uuid.UUID, kind models.UsageKind, amount int64, meta UsageMetadata) error
	Reserve(ctx context.Context, userID uuid.UUID, kind config.LimitKind, amount int64, meta UsageMetadata) (*UsageCheckResult, error)

	// Lifecycle
	ChangePlan(ctx context.Context, userID uuid.UUID, target config.PlanID, handle BillingHandle) (*models.Subscription, error)
	CancelSubscription(ctx context.Context, userID uuid.UUID, immediate bool) (*models.Subscription, error)
	ReactivateSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	ReconcileBillingEvent(ctx context.Context, event *billing.Event) error

	// Projections
	GetUsageStats(ctx context.Context, userID uuid.UUID, months int) (*UsageStats, error)
	GetBillingHistory(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]models.BillingTransaction, int64, error)
	GetFileHistory(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]models.FileHistory, int64, error)
}

// Dependencies are the collaborators of the entitlement service.
// Cache and Pool may be nil.
type Dependencies struct {
	Subscriptions repository.SubscriptionRepository
	Usage         repository.UsageRepository
	FileHistory   repository.FileHistoryRepository
	Transactions  repository.BillingTransactionRepository
	Provider      billing.Provider
	Catalog       *config.Catalog
	Cache         database.SubscriptionCache
	Pool          *worker.Pool
	Metrics       *observability.Metrics
	Clock         func() time.Time
}

type entitlementService struct {
	subRepo     repository.SubscriptionRepository
	usageRepo   repository.UsageRepository
	historyRepo repository.FileHistoryRepository
	txnRepo     repository.BillingTransactionRepository
	provider    billing.Provider
	catalog     *config.Catalog
	cache       database.SubscriptionCache
	pool        *worker.Pool
	metrics     *observability.Metrics
	now         func() time.Time
	cfg         *config.Config
	logger      *slog.Logger
	loads       singleflight.Group
}

// NewEntitlementService creates a new entitlement service instance
func NewEntitlementService(deps Dependencies, cfg *config.Config, logger *slog.Logger) EntitlementService {
	s := &entitlementService{
		subRepo:     deps.Subscriptions,
		usageRepo:   deps.Usage,
		historyRepo: deps.FileHistory,
		txnRepo:     deps.Transactions,
		provider:    deps.Provider,
		catalog:     deps.Catalog,
		cache:       deps.Cache,
		pool:        deps.Pool,
		metrics:     deps.Metrics,
		now:         deps.Clock,
		cfg:         cfg,
		logger:      logger,
	}
	if s.catalog == nil {
		s.catalog = config.NewCatalog(cfg.PriceRefs())
	}
	if s.provider == nil {
		s.provider = billing.NewUnconfiguredProvider()
	}
	if s.metrics == nil {
		s.metrics = observability.NewTestMetrics()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ==================== Catalog ====================

func (s *entitlementService) ListPlans() []config.PlanDefinition {
	return s.catalog.Plans()
}

func (s *entitlementService) GetPlanLimits(plan config.PlanID) (config.PlanLimits, error) {
	return s.catalog.Limits(plan)
}

// effectivePlan is the plan whose limits apply right now. Invalid subscriptions
// and unknown plan ids fall back to the free tier.
func (s *entitlementService) effectivePlan(sub *models.Subscription) config.PlanDefinition {
	if sub.IsValid() {
		if def, err := s.catalog.Plan(sub.Plan); err == nil {
			return def
		}
		s.logger.Warn("⚠️ [EntitlementService] Subscription references unknown plan, using free tier",
			"user_id", sub.UserID,
			"plan", sub.Plan,
		)
	}
	def, _ := s.catalog.Plan(config.PlanFree)
	return def
}

// ==================== Subscription Reads ====================

func (s *entitlementService) GetSubscription(ctx context.Context, userID uuid.UUID) (*SubscriptionView, error) {
	if userID == uuid.Nil {
		return nil, invalidArgument("user id is required")
	}

	if sub, ok := s.cachedSubscription(ctx, userID); ok {
		s.metrics.SubscriptionReads.WithLabelValues("cache").Inc()
		return &SubscriptionView{Subscription: sub, Source: SourceExisting, Valid: sub.IsValid()}, nil
	}

	// The shared load outlives any single caller; each caller still honours its own ctx
	loads := s.loads.DoChan(userID.String(), func() (interface{}, error) {
		loadCtx, cancel := s.storeContext(context.WithoutCancel(ctx))
		defer cancel()
		return s.loadSubscription(loadCtx, userID)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-loads:
	}
	if res.Err != nil {
		return nil, res.Err
	}

	shared := res.Val.(*SubscriptionView)
	sub := *shared.Subscription
	s.metrics.SubscriptionReads.WithLabelValues(string(shared.Source)).Inc()
	return &SubscriptionView{Subscription: &sub, Source: shared.Source, Valid: sub.IsValid()}, nil
}

// loadSubscription reads or materializes the row and applies the read-triggered expiry
func (s *entitlementService) loadSubscription(ctx context.Context, userID uuid.UUID) (*SubscriptionView, error) {
	source := SourceExisting
	first := true

	sub, err := s.mutateSubscription(ctx, userID, func(sub *models.Subscription, created bool) (bool, error) {
		if first && created {
			source = SourceDefault
		}
		first = false
		if sub.ExpireIfElapsed(s.now()) {
			s.logger.Info("⌛ [EntitlementService] Subscription period elapsed, marking expired",
				"user_id", userID,
				"plan", sub.Plan,
				"period_end", sub.CurrentPeriodEnd,
			)
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	s.cacheSubscription(ctx, sub)
	return &SubscriptionView{Subscription: sub, Source: source, Valid: sub.IsValid()}, nil
}

func (s *entitlementService) ValidateSubscription(ctx context.Context, userID uuid.UUID) (bool, error) {
	view, err := s.GetSubscription(ctx, userID)
	if err != nil {
		return false, err
	}
	return view.Valid, nil
}

func (s *entitlementService) HasFeatureAccess(ctx context.Context, userID uuid.UUID, feature config.Feature) (bool, error) {
	view, err := s.GetSubscription(ctx, userID)
	if err != nil {
		return false, err
	}
	return s.effectivePlan(view.Subscription).HasFeature(feature), nil
}

// ==================== Metering ====================

func (s *entitlementService) Authorize(ctx context.Context, userID uuid.UUID, kind config.LimitKind, amount int64) (*UsageCheckResult, error) {
	limit, usageKind, err := s.resolveLimit(ctx, userID, kind)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		amount = 1
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	counter, err := s.usageRepo.Get(storeCtx, userID, models.MonthYear(s.now()))
	if err != nil {
		s.metrics.StoreErrorsTotal.WithLabelValues("usage_get").Inc()
		return nil, storeError("read usage", err)
	}

	result := evaluate(limit, counter.Get(usageKind), amount)
	s.metrics.AuthorizeTotal.WithLabelValues(string(kind), decisionLabel(result.Allowed)).Inc()

	s.logger.Debug("🔎 [EntitlementService] Authorize",
		"user_id", userID,
		"limit_kind", kind,
		"amount", amount,
		"allowed", result.Allowed,
		"current", result.Current,
		"limit", result.Limit,
	)
	return result, nil
}

func (s *entitlementService) Commit(ctx context.Context, userID uuid.UUID, kind models.UsageKind, amount int64, meta UsageMetadata) error {
	if userID == uuid.Nil {
		return invalidArgument("user id is required")
	}
	if kind.Column() == "" {
		return invalidArgument("unknown usage kind %q", kind)
	}
	if amount < 0 && !kind.AllowsNegative() {
		return invalidArgument("negative amount is only allowed for %s", models.UsageStorageUsed)
	}
	if amount == 0 {
		amount = 1
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.usageRepo.Increment(storeCtx, userID, models.MonthYear(s.now()), kind, amount); err != nil {
		s.metrics.CommitTotal.WithLabelValues(string(kind), "error").Inc()
		s.metrics.StoreErrorsTotal.WithLabelValues("usage_increment").Inc()
		s.logger.Error("❌ [EntitlementService] Failed to commit usage",
			"user_id", userID,
			"usage_kind", kind,
			"amount", amount,
			"error", err,
		)
		return storeError("commit usage", err)
	}

	s.metrics.CommitTotal.WithLabelValues(string(kind), "ok").Inc()
	if amount > 0 {
		s.metrics.CommittedAmount.WithLabelValues(string(kind)).Add(float64(amount))
	}

	if kind == models.UsageFileProcessed && meta.Action != "" {
		s.recordFileHistory(userID, meta)
	}
	return nil
}

// Reserve checks and consumes quota in a single conditional update. When the
// reservation would exceed the limit nothing is consumed and the returned error
// wraps ErrQuotaExceeded; the result is still returned for reporting.
func (s *entitlementService) Reserve(ctx context.Context, userID uuid.UUID, kind config.LimitKind, amount int64, meta UsageMetadata) (*UsageCheckResult, error) {
	limit, usageKind, err := s.resolveLimit(ctx, userID, kind)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		amount = 1
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	month := models.MonthYear(s.now())
	reserved := true
	if limit == config.Unlimited {
		err = s.usageRepo.Increment(storeCtx, userID, month, usageKind, amount)
	} else {
		reserved, err = s.usageRepo.IncrementWithinLimit(storeCtx, userID, month, usageKind, amount, limit)
	}
	if err != nil {
		s.metrics.ReserveTotal.WithLabelValues(string(kind), "error").Inc()
		s.metrics.StoreErrorsTotal.WithLabelValues("usage_reserve").Inc()
		return nil, storeError("reserve usage", err)
	}

	counter, err := s.usageRepo.Get(storeCtx, userID, month)
	if err != nil {
		s.metrics.StoreErrorsTotal.WithLabelValues("usage_get").Inc()
		return nil, storeError("read usage", err)
	}
	current := counter.Get(usageKind)

	result := evaluate(limit, current, 0)
	result.Allowed = reserved
	s.metrics.ReserveTotal.WithLabelValues(string(kind), decisionLabel(reserved)).Inc()

	if !reserved {
		s.logger.Info("🚫 [EntitlementService] Reservation denied",
			"user_id", userID,
			"limit_kind", kind,
			"amount", amount,
			"current", current,
			"limit", limit,
		)
		return result, quotaExceeded(kind, limit, current, amount)
	}

	if amount > 0 {
		s.metrics.CommittedAmount.WithLabelValues(string(usageKind)).Add(float64(amount))
	}
	if usageKind == models.UsageFileProcessed && meta.Action != "" {
		s.recordFileHistory(userID, meta)
	}
	return result, nil
}

// resolveLimit validates the limit kind and returns the limit of the user's effective plan
func (s *entitlementService) resolveLimit(ctx context.Context, userID uuid.UUID, kind config.LimitKind) (int64, models.UsageKind, error) {
	usageKind, ok := models.UsageKindForLimit(kind)
	if !ok {
		return 0, "", invalidArgument("unknown limit kind %q", kind)
	}

	view, err := s.GetSubscription(ctx, userID)
	if err != nil {
		return 0, "", err
	}

	limit, _ := s.effectivePlan(view.Subscription).Limits.For(kind)
	return limit, usageKind, nil
}

func evaluate(limit, current, amount int64) *UsageCheckResult {
	if limit == config.Unlimited {
		return &UsageCheckResult{
			Allowed:   true,
			Remaining: config.Unlimited,
			Current:   current,
			Limit:     config.Unlimited,
		}
	}
	return &UsageCheckResult{
		Allowed:   current+amount <= limit,
		Remaining: max(0, limit-current),
		Current:   current,
		Limit:     limit,
	}
}

func decisionLabel(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

// recordFileHistory appends an audit entry in the background. Failures are logged only.
func (s *entitlementService) recordFileHistory(userID uuid.UUID, meta UsageMetadata) {
	entry := &models.FileHistory{
		UserID:    userID,
		Action:    meta.Action,
		CreatedAt: s.now().UTC(),
	}
	if meta.FileID != "" {
		fileID := meta.FileID
		entry.FileID = &fileID
	}
	if len(meta.Extra) > 0 {
		if data, err := json.Marshal(meta.Extra); err == nil {
			entry.Metadata = string(data)
		}
	}

	task := func(ctx context.Context) {
		if err := s.historyRepo.Create(ctx, entry); err != nil {
			s.metrics.BackgroundTasksTotal.WithLabelValues("file_history", "error").Inc()
			s.logger.Warn("⚠️ [EntitlementService] Failed to record file history",
				"user_id", userID,
				"action", meta.Action,
				"error", err,
			)
			return
		}
		s.metrics.BackgroundTasksTotal.WithLabelValues("file_history", "ok").Inc()
	}

	if s.pool == nil || !s.pool.Submit("file_history", task) {
		ctx, cancel := s.storeContext(context.Background())
		defer cancel()
		task(ctx)
	}
}

// ==================== Projections ====================

func (s *entitlementService) GetUsageStats(ctx context.Context, userID uuid.UUID, months int) (*UsageStats, error) {
	if months <= 0 {
		months = defaultStatsMonths
	}
	if months > maxStatsMonths {
		months = maxStatsMonths
	}

	view, err := s.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	month := models.MonthYear(now)
	start, end := models.PeriodBounds(now)

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	counter, err := s.usageRepo.Get(storeCtx, userID, month)
	if err != nil {
		return nil, storeError("read usage", err)
	}

	counters, err := s.usageRepo.ListByUser(storeCtx, userID, months+1)
	if err != nil {
		return nil, storeError("list usage", err)
	}

	history := make([]models.UsageCounter, 0, months)
	for _, c := range counters {
		if c.MonthYear == month {
			continue
		}
		if len(history) == months {
			break
		}
		history = append(history, c)
	}

	plan := s.effectivePlan(view.Subscription)
	usage := make(map[config.LimitKind]UsageLine, len(config.LimitKinds))
	for _, kind := range config.LimitKinds {
		usageKind, _ := models.UsageKindForLimit(kind)
		limit, _ := plan.Limits.For(kind)
		result := evaluate(limit, counter.Get(usageKind), 0)
		usage[kind] = UsageLine{Used: result.Current, Limit: result.Limit, Remaining: result.Remaining}
	}

	return &UsageStats{
		Plan:        plan.ID,
		Status:      view.Subscription.Status,
		Period:      month,
		PeriodStart: start,
		PeriodEnd:   end,
		Usage:       usage,
		History:     history,
	}, nil
}

func (s *entitlementService) GetBillingHistory(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]models.BillingTransaction, int64, error) {
	if userID == uuid.Nil {
		return nil, 0, invalidArgument("user id is required")
	}
	page, pageSize = normalizePage(page, pageSize)

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	txns, total, err := s.txnRepo.ListByUser(storeCtx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, storeError("list billing history", err)
	}
	return txns, total, nil
}

func (s *entitlementService) GetFileHistory(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]models.FileHistory, int64, error) {
	if userID == uuid.Nil {
		return nil, 0, invalidArgument("user id is required")
	}
	page, pageSize = normalizePage(page, pageSize)

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	entries, total, err := s.historyRepo.ListByUser(storeCtx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, storeError("list file history", err)
	}
	return entries, total, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// ==================== Store & Cache Helpers ====================

func (s *entitlementService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := s.cfg.StoreTimeoutDuration(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// materialize returns the stored row, inserting the free default when absent
func (s *entitlementService) materialize(ctx context.Context, userID uuid.UUID) (*models.Subscription, bool, error) {
	sub, err := s.subRepo.FindByUserID(ctx, userID)
	if err == nil {
		return sub, false, nil
	}
	if !errors.Is(err, repository.ErrSubscriptionNotFound) {
		s.metrics.StoreErrorsTotal.WithLabelValues("subscription_get").Inc()
		return nil, false, storeError("read subscription", err)
	}

	sub, created, err := s.subRepo.CreateIfAbsent(ctx, models.NewDefaultSubscription(userID))
	if err != nil {
		s.metrics.StoreErrorsTotal.WithLabelValues("subscription_create").Inc()
		return nil, false, storeError("create subscription", err)
	}
	if created {
		s.logger.Info("🆕 [EntitlementService] Materialized default subscription", "user_id", userID)
	}
	return sub, created, nil
}

// mutateSubscription re-reads the row and applies fn until the optimistic write
// succeeds. fn returns false when nothing needs to be written.
func (s *entitlementService) mutateSubscription(
	ctx context.Context,
	userID uuid.UUID,
	fn func(sub *models.Subscription, created bool) (bool, error),
) (*models.Subscription, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		sub, created, err := s.materialize(storeCtx, userID)
		if err != nil {
			return nil, err
		}

		changed, err := fn(sub, created)
		if err != nil {
			return nil, err
		}
		if !changed {
			return sub, nil
		}

		err = s.subRepo.Update(storeCtx, sub)
		if err == nil {
			s.invalidateSubscription(userID, sub.Version)
			return sub, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			s.metrics.StoreErrorsTotal.WithLabelValues("subscription_update").Inc()
			return nil, storeError("update subscription", err)
		}

		s.logger.Debug("🔁 [EntitlementService] Subscription version conflict, retrying",
			"user_id", userID,
			"attempt", attempt,
		)
	}

	s.metrics.StoreErrorsTotal.WithLabelValues("subscription_conflict").Inc()
	return nil, storeError("update subscription", repository.ErrVersionConflict)
}

func (s *entitlementService) cachedSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, bool) {
	if s.cache == nil {
		return nil, false
	}
	sub, ok, err := s.cache.GetSubscription(ctx, userID)
	if err != nil || !ok {
		return nil, false
	}
	// A snapshot whose period already ended must go through the store to expire
	if sub.Status == models.StatusActive && sub.PeriodElapsed(s.now()) {
		return nil, false
	}
	return sub, true
}

func (s *entitlementService) cacheSubscription(ctx context.Context, sub *models.Subscription) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetSubscription(ctx, sub); err != nil {
		s.logger.Warn("⚠️ [EntitlementService] Failed to cache subscription", "user_id", sub.UserID, "error", err)
	}
}

// invalidateSubscription drops the cached snapshot, retrying in the background on failure.
// Fills carrying a version below the written one are refused by the cache.
func (s *entitlementService) invalidateSubscription(userID uuid.UUID, version int) {
	if s.cache == nil {
		return
	}

	ctx, cancel := s.storeContext(context.Background())
	defer cancel()

	if err := s.cache.InvalidateSubscription(ctx, userID, version); err == nil {
		return
	}

	retry := func(ctx context.Context) {
		if err := s.cache.InvalidateSubscription(ctx, userID, version); err != nil {
			s.metrics.BackgroundTasksTotal.WithLabelValues("cache_invalidate", "error").Inc()
			s.logger.Warn("⚠️ [EntitlementService] Failed to invalidate cached subscription",
				"user_id", userID,
				"error", err,
			)
			return
		}
		s.metrics.BackgroundTasksTotal.WithLabelValues("cache_invalidate", "ok").Inc()
	}
	if s.pool != nil {
		s.pool.Submit("cache_invalidate", retry)
	}
}
