package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"tripplanner/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const recheckInterval = time.Minute

// FailoverTokenCache uses primary until it errors, then serves from fallback
// and retries primary once a minute.
type FailoverTokenCache struct {
	primary  domain.TokenCache
	fallback domain.TokenCache
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverTokenCache(primary, fallback domain.TokenCache, logger *zerolog.Logger) *FailoverTokenCache {
	return &FailoverTokenCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverTokenCache) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) > recheckInterval {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverTokenCache) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("primary token cache failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverTokenCache) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("primary token cache recovered")
	}
}

func (r *FailoverTokenCache) GetToken(ctx context.Context, key string) (*oauth2.Token, error) {
	if r.usePrimary() {
		token, err := r.primary.GetToken(ctx, key)
		if err == nil {
			r.markUp()
			return token, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetToken(ctx, key)
}

func (r *FailoverTokenCache) SetToken(ctx context.Context, key string, token *oauth2.Token) error {
	// fallback mirrors every write
	_ = r.fallback.SetToken(ctx, key, token)
	if r.usePrimary() {
		if err := r.primary.SetToken(ctx, key, token); err != nil {
			r.markDown(err)
			return nil
		}
		r.markUp()
	}
	return nil
}

func (r *FailoverTokenCache) DeleteToken(ctx context.Context, key string) error {
	_ = r.fallback.DeleteToken(ctx, key)
	if r.usePrimary() {
		if err := r.primary.DeleteToken(ctx, key); err != nil {
			r.markDown(err)
			return nil
		}
		r.markUp()
	}
	return nil
}
