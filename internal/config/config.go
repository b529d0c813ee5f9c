package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppEnv               string
	LogLevel             slog.Level
	ApiServicePort       string
	ApiGrpcPort          string
	PostgreSQLHost       string
	PostgreSQLPort       int64
	PostgreSQLUser       string
	PostgreSQLPassword   string
	PostgreSQLDatabase   string
	JWTSecret            string
	RedisHost            string
	RedisPort            int64
	RedisPassword        string
	RedisDatabase        int64
	SubscriptionCacheTTL int64 // Subscription snapshot TTL in seconds
	StoreTimeout         int64 // Per-call store timeout in seconds
	BillingTimeout       int64 // Per-call billing provider timeout in seconds
	ShutdownTimeout      int64 // Graceful shutdown budget in seconds
	StripeSecretKey      string
	StripeWebhookSecret  string
	StripePricePro       string
	StripePricePremium   string
}

var defaults = map[string]any{
	"APP_ENV":                "development",
	"LOG_LEVEL":              "INFO",
	"API_SERVICE_PORT":       "8080",
	"API_GRPC_PORT":          "50052",
	"POSTGRESQL_HOST":        "db",
	"POSTGRESQL_PORT":        5432,
	"POSTGRESQL_USER":        "pdfsaas_user",
	"POSTGRESQL_PASSWORD":    "pdfsaas_password",
	"POSTGRESQL_DATABASE":    "pdfsaas_db",
	"JWT_SECRET":             "pdfsaas_secret",
	"REDIS_HOST":             "redis",
	"REDIS_PORT":             6379,
	"REDIS_PASSWORD":         "",
	"REDIS_DATABASE":         0,
	"SUBSCRIPTION_CACHE_TTL": 60,
	"STORE_TIMEOUT":          5,
	"BILLING_TIMEOUT":        15,
	"SHUTDOWN_TIMEOUT":       10,
	"STRIPE_SECRET_KEY":      "",
	"STRIPE_WEBHOOK_SECRET":  "",
	"STRIPE_PRICE_PRO":       "",
	"STRIPE_PRICE_PREMIUM":   "",
}

func LoadConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	return &Config{
		AppEnv:               v.GetString("APP_ENV"),
		LogLevel:             parseLogLevel(v.GetString("LOG_LEVEL")),
		ApiServicePort:       v.GetString("API_SERVICE_PORT"),
		ApiGrpcPort:          v.GetString("API_GRPC_PORT"),
		PostgreSQLHost:       v.GetString("POSTGRESQL_HOST"),
		PostgreSQLPort:       getInt64(v, "POSTGRESQL_PORT"),
		PostgreSQLUser:       v.GetString("POSTGRESQL_USER"),
		PostgreSQLPassword:   v.GetString("POSTGRESQL_PASSWORD"),
		PostgreSQLDatabase:   v.GetString("POSTGRESQL_DATABASE"),
		JWTSecret:            v.GetString("JWT_SECRET"),
		RedisHost:            v.GetString("REDIS_HOST"),
		RedisPort:            getInt64(v, "REDIS_PORT"),
		RedisPassword:        v.GetString("REDIS_PASSWORD"),
		RedisDatabase:        getInt64(v, "REDIS_DATABASE"),
		SubscriptionCacheTTL: getInt64(v, "SUBSCRIPTION_CACHE_TTL"),
		StoreTimeout:         getInt64(v, "STORE_TIMEOUT"),
		BillingTimeout:       getInt64(v, "BILLING_TIMEOUT"),
		ShutdownTimeout:      getInt64(v, "SHUTDOWN_TIMEOUT"),
		StripeSecretKey:      v.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:  v.GetString("STRIPE_WEBHOOK_SECRET"),
		StripePricePro:       v.GetString("STRIPE_PRICE_PRO"),
		StripePricePremium:   v.GetString("STRIPE_PRICE_PREMIUM"),
	}
}

// PostgresDSN builds the connection string shared by gorm and goose
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		c.PostgreSQLHost,
		c.PostgreSQLUser,
		c.PostgreSQLPassword,
		c.PostgreSQLDatabase,
		c.PostgreSQLPort,
	)
}

// RedisAddr returns host:port for the Redis server
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// PriceRefs returns the configured external price ids keyed by plan
func (c *Config) PriceRefs() map[PlanID]string {
	refs := map[PlanID]string{}
	if c.StripePricePro != "" {
		refs[PlanPro] = c.StripePricePro
	}
	if c.StripePricePremium != "" {
		refs[PlanPremium] = c.StripePricePremium
	}
	return refs
}

func (c *Config) StoreTimeoutDuration() time.Duration {
	return time.Duration(c.StoreTimeout) * time.Second
}

func (c *Config) BillingTimeoutDuration() time.Duration {
	return time.Duration(c.BillingTimeout) * time.Second
}

func (c *Config) IsProduction() bool {
	return strings.ToLower(c.AppEnv) == "production"
}

// getInt64 falls back to the registered default when the value is not a number
func getInt64(v *viper.Viper, key string) int64 {
	if value, err := strconv.ParseInt(strings.TrimSpace(v.GetString(key)), 10, 64); err == nil {
		return value
	}
	switch d := defaults[key].(type) {
	case int:
		return int64(d)
	case int64:
		return d
	}
	return 0
}

func parseLogLevel(levelStr string) slog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
