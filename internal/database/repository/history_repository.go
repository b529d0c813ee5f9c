package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/models"
)

// FileHistoryRepository defines the interface for the file processing audit log
type FileHistoryRepository interface {
	Create(ctx context.Context, entry *models.FileHistory) error
	ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.FileHistory, int64, error)
}

type fileHistoryRepository struct {
	db *gorm.DB
}

// NewFileHistoryRepository creates a new file history repository instance
func NewFileHistoryRepository(db *gorm.DB) FileHistoryRepository {
	return &fileHistoryRepository{db: db}
}

func (r *fileHistoryRepository) Create(ctx context.Context, entry *models.FileHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *fileHistoryRepository) ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.FileHistory, int64, error) {
	var entries []models.FileHistory
	var total int64

	db := r.db.WithContext(ctx)
	if err := db.Model(&models.FileHistory{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error
	return entries, total, err
}

// BillingTransactionRepository defines the interface for billing history records
type BillingTransactionRepository interface {
	// Create appends a transaction. Returns false when a row with the same
	// invoice reference was already recorded.
	Create(ctx context.Context, txn *models.BillingTransaction) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.BillingTransaction, int64, error)
}

type billingTransactionRepository struct {
	db *gorm.DB
}

// NewBillingTransactionRepository creates a new billing transaction repository instance
func NewBillingTransactionRepository(db *gorm.DB) BillingTransactionRepository {
	return &billingTransactionRepository{db: db}
}

func (r *billingTransactionRepository) Create(ctx context.Context, txn *models.BillingTransaction) (bool, error) {
	db := r.db.WithContext(ctx)
	if txn.ExternalInvoiceRef != nil {
		db = db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_invoice_ref"}},
			DoNothing: true,
		})
	}
	result := db.Create(txn)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *billingTransactionRepository) ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.BillingTransaction, int64, error) {
	var txns []models.BillingTransaction
	var total int64

	db := r.db.WithContext(ctx)
	if err := db.Model(&models.BillingTransaction{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&txns).Error
	return txns, total, err
}
