package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tripplanner/internal/config"
	"tripplanner/internal/domain"
	"tripplanner/internal/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

// TokenSource exchanges client credentials for bearer tokens. Tokens are
// kept in a TokenCache keyed by a hash of the credential set, and concurrent
// misses share a single exchange.
type TokenSource struct {
	provider   string
	creds      clientcredentials.Config
	cache      domain.TokenCache
	key        string
	skew       time.Duration
	timeout    time.Duration
	httpClient *http.Client
	group      singleflight.Group
	logger     *zerolog.Logger
	now        func() time.Time
}

func NewTokenSource(cfg config.ProviderConfig, cache domain.TokenCache, httpClient *http.Client, logger *zerolog.Logger) *TokenSource {
	return &TokenSource{
		provider: cfg.Name,
		creds: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		cache:      cache,
		key:        CacheKey(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret),
		skew:       cfg.TokenSkew,
		timeout:    cfg.Timeout,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// CacheKey identifies a credential set without exposing the secret.
func CacheKey(tokenURL, clientID, clientSecret string) string {
	sum := sha256.Sum256([]byte(tokenURL + "\x00" + clientID + "\x00" + clientSecret))
	return hex.EncodeToString(sum[:])
}

// Token returns a cached token that is valid for at least the configured
// skew, or performs one client-credentials exchange.
func (s *TokenSource) Token(ctx context.Context) (*oauth2.Token, error) {
	if tok := s.cached(ctx); tok != nil {
		return tok, nil
	}

	// the exchange outlives any single waiter
	refreshCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(s.key, func() (interface{}, error) {
		if tok := s.cached(refreshCtx); tok != nil {
			return tok, nil
		}
		return s.refresh(refreshCtx)
	})

	select {
	case <-ctx.Done():
		return nil, domain.Upstream(s.provider, 0, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oauth2.Token), nil
	}
}

// Invalidate drops the cached token if it is still the one the upstream rejected.
func (s *TokenSource) Invalidate(ctx context.Context, rejected string) {
	tok, err := s.cache.GetToken(ctx, s.key)
	if err == nil && tok != nil && tok.AccessToken != rejected {
		return
	}
	if err := s.cache.DeleteToken(ctx, s.key); err != nil {
		s.logger.Warn().Err(err).Str("provider", s.provider).Msg("failed to drop rejected token")
	}
}

func (s *TokenSource) cached(ctx context.Context) *oauth2.Token {
	tok, err := s.cache.GetToken(ctx, s.key)
	if err != nil {
		s.logger.Warn().Err(err).Str("provider", s.provider).Msg("token cache read failed")
		return nil
	}
	if !s.fresh(tok) {
		return nil
	}
	return tok
}

func (s *TokenSource) fresh(tok *oauth2.Token) bool {
	if tok == nil || tok.AccessToken == "" {
		return false
	}
	return tok.Expiry.IsZero() || s.now().Add(s.skew).Before(tok.Expiry)
}

func (s *TokenSource) refresh(ctx context.Context) (*oauth2.Token, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}

	started := time.Now()
	tok, err := s.creds.Token(ctx)
	metrics.IncTokenRefresh(s.provider, err)
	metrics.ObserveUpstream(s.provider, "token", started, err)
	if err != nil {
		status := 0
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			status = re.Response.StatusCode
		}
		s.logger.Error().Err(err).Str("provider", s.provider).Int("status", status).Msg("token exchange failed")
		return nil, domain.Upstream(s.provider, status, fmt.Errorf("token exchange: %w", err))
	}

	if err := s.cache.SetToken(ctx, s.key, tok); err != nil {
		s.logger.Warn().Err(err).Str("provider", s.provider).Msg("token cache write failed")
	}
	s.logger.Debug().Str("provider", s.provider).Time("expiry", tok.Expiry).Msg("provider token refreshed")
	return tok, nil
}
