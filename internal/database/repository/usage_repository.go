package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/models"
)

// UsageRepository defines the interface for monthly usage counter operations
type UsageRepository interface {
	// Get returns the counters for a month, zeroed when the row does not exist yet
	Get(ctx context.Context, userID uuid.UUID, monthYear string) (*models.UsageCounter, error)

	// Increment adds amount to the counter in a single statement, creating the row if needed.
	// Storage never drops below zero.
	Increment(ctx context.Context, userID uuid.UUID, monthYear string, kind models.UsageKind, amount int64) error

	// IncrementWithinLimit adds amount only when the result stays within limit.
	// Returns false when the update was refused.
	IncrementWithinLimit(ctx context.Context, userID uuid.UUID, monthYear string, kind models.UsageKind, amount, limit int64) (bool, error)

	// ListByUser returns up to limit periods, most recent first
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.UsageCounter, error)
}

type usageRepository struct {
	db *gorm.DB
}

// NewUsageRepository creates a new usage repository instance
func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

func (r *usageRepository) Get(ctx context.Context, userID uuid.UUID, monthYear string) (*models.UsageCounter, error) {
	var counter models.UsageCounter
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND month_year = ?", userID, monthYear).
		First(&counter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.UsageCounter{UserID: userID, MonthYear: monthYear}, nil
		}
		return nil, err
	}
	return &counter, nil
}

func (r *usageRepository) Increment(ctx context.Context, userID uuid.UUID, monthYear string, kind models.UsageKind, amount int64) error {
	column := kind.Column()
	if column == "" {
		return ErrUnknownUsageKind
	}
	if err := r.ensureRow(ctx, userID, monthYear); err != nil {
		return err
	}

	expr := gorm.Expr(column+" + ?", amount)
	if kind.AllowsNegative() {
		expr = gorm.Expr(
			fmt.Sprintf("CASE WHEN %[1]s + ? < 0 THEN 0 ELSE %[1]s + ? END", column),
			amount, amount,
		)
	}

	return r.db.WithContext(ctx).
		Model(&models.UsageCounter{}).
		Where("user_id = ? AND month_year = ?", userID, monthYear).
		Updates(map[string]interface{}{
			column:       expr,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *usageRepository) IncrementWithinLimit(ctx context.Context, userID uuid.UUID, monthYear string, kind models.UsageKind, amount, limit int64) (bool, error) {
	column := kind.Column()
	if column == "" {
		return false, ErrUnknownUsageKind
	}
	if err := r.ensureRow(ctx, userID, monthYear); err != nil {
		return false, err
	}

	result := r.db.WithContext(ctx).
		Model(&models.UsageCounter{}).
		Where("user_id = ? AND month_year = ?", userID, monthYear).
		Where(column+" + ? <= ?", amount, limit).
		Updates(map[string]interface{}{
			column:       gorm.Expr(column+" + ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *usageRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.UsageCounter, error) {
	var counters []models.UsageCounter
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("month_year DESC").
		Limit(limit).
		Find(&counters).Error
	return counters, err
}

func (r *usageRepository) ensureRow(ctx context.Context, userID uuid.UUID, monthYear string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.UsageCounter{UserID: userID, MonthYear: monthYear}).Error
}

var ErrUnknownUsageKind = errors.New("unknown usage kind")
