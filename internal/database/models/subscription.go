package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
)

// SubscriptionStatus represents the lifecycle state of a subscription
type SubscriptionStatus string

const (
	StatusPending   SubscriptionStatus = "pending"
	StatusActive    SubscriptionStatus = "active"
	StatusTrialing  SubscriptionStatus = "trialing"
	StatusPastDue   SubscriptionStatus = "past_due"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusExpired   SubscriptionStatus = "expired"
)

// ErrInvalidTransition is returned when a status change is not allowed
var ErrInvalidTransition = errors.New("invalid subscription status transition")

var statusTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	StatusPending:   {StatusActive, StatusExpired, StatusCancelled},
	StatusActive:    {StatusPastDue, StatusCancelled, StatusExpired},
	StatusTrialing:  {StatusActive, StatusPastDue, StatusCancelled, StatusExpired},
	StatusPastDue:   {StatusActive, StatusCancelled, StatusExpired},
	StatusCancelled: {StatusActive},
	StatusExpired:   {StatusActive},
}

// Scan implements the sql.Scanner interface for SubscriptionStatus
func (s *SubscriptionStatus) Scan(value interface{}) error {
	if value == nil {
		*s = StatusActive
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*s = SubscriptionStatus(v)
	case string:
		*s = SubscriptionStatus(v)
	default:
		return errors.New("invalid subscription status type")
	}
	return nil
}

// Value implements the driver.Valuer interface for SubscriptionStatus
func (s SubscriptionStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// IsKnown reports whether the status is part of the state machine
func (s SubscriptionStatus) IsKnown() bool {
	_, ok := statusTransitions[s]
	return ok
}

// GrantsAccess is true for the states in which paid features are usable
func (s SubscriptionStatus) GrantsAccess() bool {
	return s == StatusActive || s == StatusTrialing
}

// CanTransitionTo reports whether moving to target is allowed
func (s SubscriptionStatus) CanTransitionTo(target SubscriptionStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Subscription is the per-user plan and billing state. A user has at most one row.
type Subscription struct {
	ID                      uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID                  uuid.UUID          `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Plan                    config.PlanID      `gorm:"size:32;not null;default:free" json:"plan"`
	Status                  SubscriptionStatus `gorm:"size:32;not null;default:active;index" json:"status"`
	ExternalCustomerRef     *string            `gorm:"size:255;index" json:"external_customer_ref,omitempty"`
	ExternalSubscriptionRef *string            `gorm:"size:255;index" json:"external_subscription_ref,omitempty"`
	CurrentPeriodStart      *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd        *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd       bool               `gorm:"not null;default:false" json:"cancel_at_period_end"`
	CancelledAt             *time.Time         `json:"cancelled_at,omitempty"`
	ProviderEventAt         *time.Time         `json:"provider_event_at,omitempty"` // creation time of the last applied provider event
	Version                 int                `gorm:"not null;default:1" json:"version"`
	CreatedAt               time.Time          `json:"created_at"`
	UpdatedAt               time.Time          `json:"updated_at"`
}

// TableName overrides the table name
func (Subscription) TableName() string {
	return "subscriptions"
}

// BeforeCreate hook to generate UUID if not set
func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Version == 0 {
		s.Version = 1
	}
	return nil
}

// NewDefaultSubscription builds the implicit free-tier subscription of a user
func NewDefaultSubscription(userID uuid.UUID) *Subscription {
	return &Subscription{
		UserID:  userID,
		Plan:    config.PlanFree,
		Status:  StatusActive,
		Version: 1,
	}
}

// IsValid is the predicate callers must use to gate feature access
func (s *Subscription) IsValid() bool {
	return s.Status.GrantsAccess()
}

// PeriodElapsed reports whether the current period ended before now
func (s *Subscription) PeriodElapsed(now time.Time) bool {
	return s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.Before(now)
}

// HasExternalSubscription reports whether a billing provider subscription is attached
func (s *Subscription) HasExternalSubscription() bool {
	return s.ExternalSubscriptionRef != nil && *s.ExternalSubscriptionRef != ""
}

// CustomerRef returns the external customer reference or an empty string
func (s *Subscription) CustomerRef() string {
	if s.ExternalCustomerRef == nil {
		return ""
	}
	return *s.ExternalCustomerRef
}

// SubscriptionRef returns the external subscription reference or an empty string
func (s *Subscription) SubscriptionRef() string {
	if s.ExternalSubscriptionRef == nil {
		return ""
	}
	return *s.ExternalSubscriptionRef
}

// TransitionTo moves the subscription to target when the state machine allows it
func (s *Subscription) TransitionTo(target SubscriptionStatus, now time.Time) error {
	if s.Status == target {
		return nil
	}
	if !s.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, s.Status, target)
	}
	s.Status = target
	if target == StatusCancelled {
		s.CancelledAt = &now
	}
	if target == StatusActive {
		s.CancelledAt = nil
	}
	return nil
}

// ExpireIfElapsed applies the read-triggered expiry rule.
// Returns true when the status changed and must be persisted.
func (s *Subscription) ExpireIfElapsed(now time.Time) bool {
	if s.Status != StatusActive || !s.PeriodElapsed(now) {
		return false
	}
	s.Status = StatusExpired
	return true
}
