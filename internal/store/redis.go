package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/username/simcal/internal/calendar"
)

// KeyPrefix namespaces every snapshot key in redis.
const KeyPrefix = "simcal:"

// RedisClient is the subset of *redis.Client the store uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisStore keeps JSON snapshots in redis.
type RedisStore struct {
	client RedisClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore wraps a redis client. ttl == 0 keeps snapshots forever.
func NewRedisStore(client RedisClient, ttl time.Duration, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, logger: logger}
}

// NewRedisClient dials redis with the given options.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Load fetches and decodes the snapshot stored under key.
func (r *RedisStore) Load(ctx context.Context, key string) (*calendar.Snapshot, error) {
	redisKey := KeyPrefix + key
	raw, err := r.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", redisKey, ErrNotFound)
		}
		return nil, fmt.Errorf("redis get %s: %w", redisKey, err)
	}

	var snap calendar.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", redisKey, err)
	}

	r.logger.Debug("Snapshot loaded from redis",
		zap.String("key", redisKey),
		zap.Int("events", len(snap.Events)))

	return &snap, nil
}

// Save encodes the snapshot and stores it under key.
func (r *RedisStore) Save(ctx context.Context, key string, snap *calendar.Snapshot) error {
	if snap == nil {
		return errors.New("snapshot is nil")
	}
	redisKey := KeyPrefix + key
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", redisKey, err)
	}

	if err := r.client.Set(ctx, redisKey, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", redisKey, err)
	}

	r.logger.Debug("Snapshot saved to redis",
		zap.String("key", redisKey),
		zap.Int("bytes", len(payload)))

	return nil
}
