package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
)

// FileHistory is an append-only audit entry of a processed file
type FileHistory struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index:idx_file_history_user_created,priority:1" json:"user_id"`
	FileID    *string   `gorm:"size:255" json:"file_id,omitempty"`
	Action    string    `gorm:"size:64;not null" json:"action"`
	Metadata  string    `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt time.Time `gorm:"index:idx_file_history_user_created,priority:2" json:"created_at"`
}

// TableName overrides the table name
func (FileHistory) TableName() string {
	return "file_history"
}

// BeforeCreate hook to generate UUID if not set
func (h *FileHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// TransactionStatus is the outcome of a billing charge
type TransactionStatus string

const (
	TransactionPaid     TransactionStatus = "paid"
	TransactionFailed   TransactionStatus = "failed"
	TransactionRefunded TransactionStatus = "refunded"
)

// BillingTransaction is an append-only record of a charge reported by the billing provider
type BillingTransaction struct {
	ID                      uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID                  uuid.UUID         `gorm:"type:uuid;not null;index" json:"user_id"`
	ExternalInvoiceRef      *string           `gorm:"size:255;uniqueIndex" json:"external_invoice_ref,omitempty"`
	ExternalSubscriptionRef *string           `gorm:"size:255" json:"external_subscription_ref,omitempty"`
	Plan                    config.PlanID     `gorm:"size:32" json:"plan"`
	AmountCents             int64             `gorm:"not null;default:0" json:"amount_cents"`
	Currency                string            `gorm:"size:8;not null;default:usd" json:"currency"`
	Status                  TransactionStatus `gorm:"size:16;not null" json:"status"`
	Description             string            `gorm:"size:512" json:"description,omitempty"`
	CreatedAt               time.Time         `gorm:"index" json:"created_at"`
}

// TableName overrides the table name
func (BillingTransaction) TableName() string {
	return "billing_transactions"
}

// BeforeCreate hook to generate UUID if not set
func (t *BillingTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
