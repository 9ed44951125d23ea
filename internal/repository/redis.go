package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tripplanner/internal/config"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

const (
	tokenKeyPrefix = "provider_token:"
	// noExpiryTTL bounds how long a token issued without expires_in is shared.
	noExpiryTTL = time.Hour
)

// RedisTokenCache shares provider tokens between API replicas.
type RedisTokenCache struct {
	client *redis.Client
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{client: client}
}

// GetToken returns nil, nil on a miss.
func (r *RedisTokenCache) GetToken(ctx context.Context, key string) (*oauth2.Token, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, tokenKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token from redis: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(val, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

// SetToken stores the token until its expiry, or for noExpiryTTL when the
// provider declared none. Already expired tokens are skipped.
func (r *RedisTokenCache) SetToken(ctx context.Context, key string, token *oauth2.Token) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	ttl := noExpiryTTL
	if !token.Expiry.IsZero() {
		ttl = time.Until(token.Expiry)
	}
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := r.client.Set(ctx, tokenKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set token in redis: %w", err)
	}
	return nil
}

func (r *RedisTokenCache) DeleteToken(ctx context.Context, key string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, tokenKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete token from redis: %w", err)
	}
	return nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
