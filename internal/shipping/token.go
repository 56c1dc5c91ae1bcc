package shipping

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"storefront/internal/util"
)

// refreshMargin is how much validity must remain before a cached token is
// considered stale.
const refreshMargin = 5 * time.Minute

// authenticator performs the blocking carrier login
type authenticator interface {
	Authenticate(ctx context.Context) (token string, ttl time.Duration, err error)
}

// TokenCache holds one carrier bearer token with its expiry. Concurrent
// callers hitting an expired token share a single in-flight refresh instead
// of each re-authenticating.
type TokenCache struct {
	auth authenticator

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// NewTokenCache creates a token cache backed by the given authenticator
func NewTokenCache(auth authenticator) *TokenCache {
	return &TokenCache{auth: auth}
}

// GetToken returns the cached token while more than the refresh margin
// remains before expiry, otherwise refreshes it. Only one refresh runs at a
// time; concurrent callers wait for and share its result.
func (tc *TokenCache) GetToken(ctx context.Context) (string, error) {
	tc.mu.RLock()
	token, expiresAt := tc.token, tc.expiresAt
	tc.mu.RUnlock()

	if token != "" && time.Until(expiresAt) > refreshMargin {
		return token, nil
	}

	result, err, _ := tc.group.Do("auth", func() (interface{}, error) {
		// re-check under the flight: a waiter may arrive after the
		// winning refresh already stored a fresh token
		tc.mu.RLock()
		token, expiresAt := tc.token, tc.expiresAt
		tc.mu.RUnlock()
		if token != "" && time.Until(expiresAt) > refreshMargin {
			return token, nil
		}

		fresh, ttl, err := tc.auth.Authenticate(ctx)
		if err != nil {
			return "", err
		}

		tc.mu.Lock()
		tc.token = fresh
		tc.expiresAt = time.Now().Add(ttl)
		tc.mu.Unlock()

		util.CarrierAuthRefreshTotal.Inc()
		return fresh, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Invalidate drops the cached token, forcing the next GetToken to refresh.
// Used after the carrier rejects a request with 401.
func (tc *TokenCache) Invalidate() {
	tc.mu.Lock()
	tc.token = ""
	tc.expiresAt = time.Time{}
	tc.mu.Unlock()
}
