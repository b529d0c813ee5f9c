package testutil

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/models"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/logger"
)

// TestJWTSecret signs tokens in handler and middleware tests
const TestJWTSecret = "test-secret"

// NewTestDB opens a private in-memory sqlite database with the engine schema.
// A single connection serializes writes the way row locks do in PostgreSQL.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Subscription{},
		&models.UsageCounter{},
		&models.FileHistory{},
		&models.BillingTransaction{},
	))

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}

// NewTestConfig returns a configuration suitable for unit tests
func NewTestConfig() *config.Config {
	return &config.Config{
		AppEnv:               "test",
		LogLevel:             slog.LevelError,
		JWTSecret:            TestJWTSecret,
		SubscriptionCacheTTL: 60,
		StoreTimeout:         5,
		BillingTimeout:       5,
		ShutdownTimeout:      1,
		StripePricePro:       "price_pro",
		StripePricePremium:   "price_premium",
	}
}

// NewTestLogger discards all output
func NewTestLogger() *slog.Logger {
	return logger.Nop()
}

// Clock is a settable time source for services under test
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock frozen at now
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current frozen time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}

// TimePtr returns a pointer to t
func TimePtr(t time.Time) *time.Time {
	return &t
}
