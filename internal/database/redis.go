package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/models"
)

// RedisClient wraps the redis client with the subscription cache and request throttle
type RedisClient struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewRedisClient creates a new Redis client instance
func NewRedisClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*RedisClient, error) {
	logger.Info("🔌 [Redis] Connecting to Redis...",
		"host", cfg.RedisHost,
		"port", cfg.RedisPort,
		"db", cfg.RedisDatabase,
	)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       int(cfg.RedisDatabase),
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("✅ [Redis] Redis connection established")

	return NewRedisClientFromClient(client, cfg, logger), nil
}

// NewRedisClientFromClient wraps an existing redis.Client
func NewRedisClientFromClient(client *redis.Client, cfg *config.Config, logger *slog.Logger) *RedisClient {
	return &RedisClient{
		client: client,
		logger: logger,
		ttl:    time.Duration(cfg.SubscriptionCacheTTL) * time.Second,
	}
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Ping checks that Redis answers
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// subscriptionKey generates a Redis key for a user's subscription snapshot
func subscriptionKey(userID uuid.UUID) string {
	return fmt.Sprintf("subscription:%s", userID.String())
}

// Snapshots live in a hash of {version, data}. An empty data field is a tombstone
// left by an invalidation. Writes carrying an older version than the stored one are
// dropped, so a reader that loaded a row before a concurrent write cannot put its
// stale copy back.
var setSnapshotScript = redis.NewScript(`
	local key = KEYS[1]
	local version = tonumber(ARGV[1])
	local ttlMillis = tonumber(ARGV[3])

	local current = redis.call('HGET', key, 'version')
	if current and tonumber(current) > version then
		return 0
	end

	redis.call('HSET', key, 'version', ARGV[1], 'data', ARGV[2])
	redis.call('PEXPIRE', key, ttlMillis)
	return 1
`)

// GetSubscription returns a cached snapshot. A miss or a tombstone is reported with found=false and no error.
func (r *RedisClient) GetSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, bool, error) {
	data, err := r.client.HGet(ctx, subscriptionKey(userID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		r.logger.Error("❌ [Redis] Failed to get subscription snapshot",
			"user_id", userID,
			"error", err,
		)
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}

	var sub models.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		r.logger.Warn("⚠️ [Redis] Corrupt subscription snapshot, dropping",
			"user_id", userID,
			"error", err,
		)
		_ = r.client.Del(ctx, subscriptionKey(userID)).Err()
		return nil, false, nil
	}

	r.logger.Debug("📖 [Redis] Subscription cache hit", "user_id", userID)
	return &sub, true, nil
}

// SetSubscription stores a snapshot with the configured TTL unless a newer version is already cached
func (r *RedisClient) SetSubscription(ctx context.Context, sub *models.Subscription) error {
	if r.ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}

	written, err := setSnapshotScript.Run(ctx, r.client,
		[]string{subscriptionKey(sub.UserID)},
		sub.Version, string(data), r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		r.logger.Error("❌ [Redis] Failed to set subscription snapshot",
			"user_id", sub.UserID,
			"error", err,
		)
		return err
	}

	if written == 0 {
		r.logger.Debug("⏭️ [Redis] Skipped stale subscription snapshot",
			"user_id", sub.UserID,
			"version", sub.Version,
		)
		return nil
	}

	r.logger.Debug("💾 [Redis] Stored subscription snapshot",
		"user_id", sub.UserID,
		"version", sub.Version,
		"ttl", r.ttl,
	)
	return nil
}

// InvalidateSubscription replaces a user's snapshot with a tombstone for version.
// Snapshots older than version are refused until the tombstone expires.
func (r *RedisClient) InvalidateSubscription(ctx context.Context, userID uuid.UUID, version int) error {
	var err error
	if r.ttl <= 0 {
		err = r.client.Del(ctx, subscriptionKey(userID)).Err()
	} else {
		err = setSnapshotScript.Run(ctx, r.client,
			[]string{subscriptionKey(userID)},
			version, "", r.ttl.Milliseconds(),
		).Err()
	}
	if err != nil {
		r.logger.Error("❌ [Redis] Failed to invalidate subscription snapshot",
			"user_id", userID,
			"error", err,
		)
		return err
	}

	r.logger.Debug("🗑️ [Redis] Invalidated subscription snapshot", "user_id", userID, "version", version)
	return nil
}

// Hit increments the fixed-window counter for key and returns the new count
func (r *RedisClient) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	bucket := time.Now().UTC().Truncate(window).Unix()
	redisKey := fmt.Sprintf("throttle:%s:%d", key, bucket)

	pipe := r.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("❌ [Redis] Failed to increment throttle counter",
			"key", key,
			"error", err,
		)
		return 0, err
	}

	return incr.Val(), nil
}
