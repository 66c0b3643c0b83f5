// Package tenant provides multi-tenant request validation: existence,
// suspension, and per-tenant rate limiting ahead of any conversation work.
package tenant

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ovenworks/banneton/internal/store"
)

var (
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrTenantSuspended   = errors.New("tenant suspended")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// Manager validates incoming requests per tenant. Tenant rows live in the
// store; token-bucket limiters are built lazily from each tenant's
// configured requests-per-second and cached for the process lifetime.
type Manager struct {
	store    *store.Store
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
}

// NewManager creates a tenant manager backed by the business store.
func NewManager(st *store.Store) *Manager {
	return &Manager{
		store:    st,
		limiters: make(map[string]*rate.Limiter),
	}
}

// ValidateRequest checks that the tenant exists, is active, and is within
// its rate limit. Returns a typed error on failure.
func (m *Manager) ValidateRequest(ctx context.Context, tenantID string) error {
	t, err := m.store.Tenant(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrTenantNotFound
	}
	if err != nil {
		return err
	}
	if t.Status != store.StatusActive {
		return ErrTenantSuspended
	}

	if lim := m.limiter(t); lim != nil {
		if !lim.Allow() {
			return ErrRateLimitExceeded
		}
	}
	return nil
}

func (m *Manager) limiter(t *store.Tenant) *rate.Limiter {
	if t.RateLimit <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	lim, ok := m.limiters[t.ID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(t.RateLimit), t.RateLimit*2) // burst = 2s worth
		m.limiters[t.ID] = lim
	}
	return lim
}
