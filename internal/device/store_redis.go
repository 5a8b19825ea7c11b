package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"signet/pkg/platform/sentinel"
)

const (
	deviceKeyPrefix   = "device:code:"
	userCodeKeyPrefix = "device:user:"
)

// RedisStore is the production device store for distributed deployments
// where any instance may serve a poll. Records carry a TTL matching their
// absolute expiry so abandoned flows clean themselves up.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed device store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(clientID, deviceCode string) string {
	return deviceKeyPrefix + clientID + ":" + deviceCode
}

func (s *RedisStore) Get(ctx context.Context, clientID, deviceCode string) (*AuthorizationData, error) {
	raw, err := s.client.Get(ctx, redisKey(clientID, deviceCode)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("device authorization: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get device authorization: %w", err)
	}
	var rec AuthorizationData
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode device authorization: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) GetByUserCode(ctx context.Context, userCode string) (*AuthorizationData, error) {
	ref, err := s.client.Get(ctx, userCodeKeyPrefix+userCode).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("device authorization: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve user code: %w", err)
	}
	raw, err := s.client.Get(ctx, ref).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("device authorization: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get device authorization: %w", err)
	}
	var rec AuthorizationData
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode device authorization: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Save(ctx context.Context, rec *AuthorizationData) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode device authorization: %w", err)
	}
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		// Keep just long enough for the next poll to observe the expiry
		// and return expired_token instead of a silent not-found.
		ttl = time.Minute
	}
	key := redisKey(rec.ClientID, rec.DeviceCode)
	pipe := s.client.Pipeline()
	pipe.Set(ctx, key, raw, ttl)
	pipe.Set(ctx, userCodeKeyPrefix+rec.UserCode, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save device authorization: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, rec *AuthorizationData) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, redisKey(rec.ClientID, rec.DeviceCode))
	pipe.Del(ctx, userCodeKeyPrefix+rec.UserCode)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove device authorization: %w", err)
	}
	return nil
}
