package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
)

// UsageKind names a metered resource that can be committed
type UsageKind string

const (
	UsageFileProcessed UsageKind = "file_processed"
	UsageStorageUsed   UsageKind = "storage_used"
	UsageAIOperation   UsageKind = "ai_operation"
	UsageAPICall       UsageKind = "api_call"
)

// ParseUsageKind maps a wire value onto a UsageKind
func ParseUsageKind(s string) (UsageKind, bool) {
	switch k := UsageKind(s); k {
	case UsageFileProcessed, UsageStorageUsed, UsageAIOperation, UsageAPICall:
		return k, true
	}
	return "", false
}

// Column returns the usage_counters column backing the kind
func (k UsageKind) Column() string {
	switch k {
	case UsageFileProcessed:
		return "files_processed"
	case UsageStorageUsed:
		return "storage_used_bytes"
	case UsageAIOperation:
		return "ai_operations"
	case UsageAPICall:
		return "api_calls"
	}
	return ""
}

// AllowsNegative is true only for storage, which shrinks when files are deleted
func (k UsageKind) AllowsNegative() bool {
	return k == UsageStorageUsed
}

// UsageKindForLimit maps a plan limit onto the counter that is checked against it
func UsageKindForLimit(kind config.LimitKind) (UsageKind, bool) {
	switch kind {
	case config.LimitFilesPerMonth:
		return UsageFileProcessed, true
	case config.LimitStorage:
		return UsageStorageUsed, true
	case config.LimitAIOperations:
		return UsageAIOperation, true
	case config.LimitAPICalls:
		return UsageAPICall, true
	}
	return "", false
}

// UsageCounter holds the metered totals of one user for one calendar month
type UsageCounter struct {
	UserID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	MonthYear        string    `gorm:"size:7;primaryKey" json:"month_year"`
	FilesProcessed   int64     `gorm:"not null;default:0" json:"files_processed"`
	StorageUsedBytes int64     `gorm:"not null;default:0" json:"storage_used_bytes"`
	AIOperations     int64     `gorm:"not null;default:0" json:"ai_operations"`
	APICalls         int64     `gorm:"not null;default:0" json:"api_calls"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (UsageCounter) TableName() string {
	return "usage_counters"
}

// Get returns the counter value for a usage kind
func (u *UsageCounter) Get(kind UsageKind) int64 {
	switch kind {
	case UsageFileProcessed:
		return u.FilesProcessed
	case UsageStorageUsed:
		return u.StorageUsedBytes
	case UsageAIOperation:
		return u.AIOperations
	case UsageAPICall:
		return u.APICalls
	}
	return 0
}

// MonthYear formats the usage period key (UTC calendar month)
func MonthYear(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// PeriodBounds returns the first instant of the month and of the next month
func PeriodBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
