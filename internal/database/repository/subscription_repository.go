package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/models"
)

// SubscriptionRepository defines the interface for subscription data operations
type SubscriptionRepository interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	FindByCustomerRef(ctx context.Context, customerRef string) (*models.Subscription, error)
	FindBySubscriptionRef(ctx context.Context, subscriptionRef string) (*models.Subscription, error)

	// CreateIfAbsent inserts sub unless the user already has a row.
	// The returned subscription is whichever row is stored afterwards.
	CreateIfAbsent(ctx context.Context, sub *models.Subscription) (*models.Subscription, bool, error)

	// Update writes sub when its Version still matches the stored one and bumps Version.
	Update(ctx context.Context, sub *models.Subscription) error
}

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return r.findOne(ctx, "user_id = ?", userID)
}

func (r *subscriptionRepository) FindByCustomerRef(ctx context.Context, customerRef string) (*models.Subscription, error) {
	return r.findOne(ctx, "external_customer_ref = ?", customerRef)
}

func (r *subscriptionRepository) FindBySubscriptionRef(ctx context.Context, subscriptionRef string) (*models.Subscription, error) {
	return r.findOne(ctx, "external_subscription_ref = ?", subscriptionRef)
}

func (r *subscriptionRepository) findOne(ctx context.Context, query string, arg interface{}) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where(query, arg).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) CreateIfAbsent(ctx context.Context, sub *models.Subscription) (*models.Subscription, bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(sub)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 1 {
		return sub, true, nil
	}

	// Lost the race to a concurrent insert
	stored, err := r.FindByUserID(ctx, sub.UserID)
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

func (r *subscriptionRepository) Update(ctx context.Context, sub *models.Subscription) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND version = ?", sub.ID, sub.Version).
		Updates(map[string]interface{}{
			"plan":                      sub.Plan,
			"status":                    sub.Status,
			"external_customer_ref":     sub.ExternalCustomerRef,
			"external_subscription_ref": sub.ExternalSubscriptionRef,
			"current_period_start":      sub.CurrentPeriodStart,
			"current_period_end":        sub.CurrentPeriodEnd,
			"cancel_at_period_end":      sub.CancelAtPeriodEnd,
			"cancelled_at":              sub.CancelledAt,
			"provider_event_at":         sub.ProviderEventAt,
			"version":                   sub.Version + 1,
			"updated_at":                now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	sub.Version++
	sub.UpdatedAt = now
	return nil
}

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrVersionConflict      = errors.New("subscription was modified concurrently")
)
