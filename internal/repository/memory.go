package repository

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

type MemoryTokenCache struct {
	mu     sync.RWMutex
	tokens map[string]*oauth2.Token
	now    func() time.Time
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{
		tokens: make(map[string]*oauth2.Token),
		now:    time.Now,
	}
}

func (r *MemoryTokenCache) GetToken(_ context.Context, key string) (*oauth2.Token, error) {
	r.mu.RLock()
	token, ok := r.tokens[key]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !token.Expiry.IsZero() && !r.now().Before(token.Expiry) {
		r.mu.Lock()
		// a concurrent SetToken may have replaced the entry since the read
		if r.tokens[key] == token {
			delete(r.tokens, key)
		}
		r.mu.Unlock()
		return nil, nil
	}
	copied := *token
	return &copied, nil
}

func (r *MemoryTokenCache) SetToken(_ context.Context, key string, token *oauth2.Token) error {
	copied := *token
	r.mu.Lock()
	r.tokens[key] = &copied
	r.mu.Unlock()
	return nil
}

func (r *MemoryTokenCache) DeleteToken(_ context.Context, key string) error {
	r.mu.Lock()
	delete(r.tokens, key)
	r.mu.Unlock()
	return nil
}
