package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/tripmind/tripmind/core"
)

// RedisProfileStore persists user profiles as JSON values with a TTL, so
// inactive users age out of the cache instead of accumulating forever.
type RedisProfileStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    core.Logger
}

// RedisProfileStoreConfig configures NewRedisProfileStore.
type RedisProfileStoreConfig struct {
	RedisURL  string
	KeyPrefix string        // default "tripmind:profile:"
	TTL       time.Duration // default 30 days, 0 keeps the default
	Logger    core.Logger
}

// NewRedisProfileStore connects to Redis and verifies the connection.
func NewRedisProfileStore(ctx context.Context, cfg RedisProfileStoreConfig) (*RedisProfileStore, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "tripmind:profile:"
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 30 * 24 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	return &RedisProfileStore{
		client:    client,
		keyPrefix: prefix,
		ttl:       ttl,
		logger:    logger,
	}, nil
}

func (s *RedisProfileStore) key(userID string) string {
	return s.keyPrefix + userID
}

func (s *RedisProfileStore) Get(ctx context.Context, userID string) (*UserProfile, error) {
	data, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading profile %s: %w", userID, err)
	}

	var profile UserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		// A corrupt entry is treated as absent rather than poisoning
		// every request for this user.
		s.logger.Warn("Dropping corrupt profile entry", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return nil, nil
	}
	return &profile, nil
}

func (s *RedisProfileStore) Save(ctx context.Context, profile *UserProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encoding profile %s: %w", profile.UserID, err)
	}
	if err := s.client.Set(ctx, s.key(profile.UserID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("writing profile %s: %w", profile.UserID, err)
	}
	return nil
}

func (s *RedisProfileStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("deleting profile %s: %w", userID, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisProfileStore) Close() error {
	return s.client.Close()
}
