package database

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/models"
)

// SubscriptionCache stores short-lived subscription snapshots in front of the durable store
type SubscriptionCache interface {
	GetSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, bool, error)
	SetSubscription(ctx context.Context, sub *models.Subscription) error
	// InvalidateSubscription drops the snapshot and refuses fills older than version
	InvalidateSubscription(ctx context.Context, userID uuid.UUID, version int) error
}

// RequestThrottle counts requests in fixed windows
type RequestThrottle interface {
	// Hit records one request for key and returns the count within the current window
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}
