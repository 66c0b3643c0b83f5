// Package execctx binds a request to a verified (tenant, user, role)
// triple. The Factory is the single place where that binding is
// authoritative; a Context is owned by exactly one request, is never
// cached across requests, and carries the role read from the user row
// rather than the role claimed by the caller.
package execctx

import (
	"context"
	"errors"
	"fmt"

	"github.com/ovenworks/banneton/internal/store"
)

// Refusal reasons. All of them mean "no Context exists"; callers must not
// proceed to any tool logic.
var (
	ErrUserNotFound   = errors.New("user not found in tenant")
	ErrUserInactive   = errors.New("user is not active")
	ErrTenantNotFound = errors.New("tenant not found")
	ErrTenantInactive = errors.New("tenant is not active")
)

// Context is the immutable execution context for one request.
type Context struct {
	tenantID string
	userID   string
	role     string
	store    *store.Store
}

// TenantID returns the verified tenant the request operates under.
func (c *Context) TenantID() string { return c.tenantID }

// UserID returns the verified user the request operates under.
func (c *Context) UserID() string { return c.userID }

// Role returns the role read from the user row at creation time. Tools
// re-derive the role from the store at call time; this copy only bounds
// the staleness window to a single request.
func (c *Context) Role() string { return c.role }

// Store returns the tenant-shared data store handle.
func (c *Context) Store() *store.Store { return c.store }

// Factory creates execution contexts against the data store.
type Factory struct {
	store *store.Store
}

// NewFactory creates a context factory backed by the given store.
func NewFactory(st *store.Store) *Factory {
	return &Factory{store: st}
}

// Create verifies the (tenantID, userID) pair and returns an immutable
// Context, or a refusal. Absence of a row is denial; a store error is
// never treated as "not yet checked".
func (f *Factory) Create(ctx context.Context, tenantID, userID string) (*Context, error) {
	user, err := f.store.UserInTenant(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("verifying user: %w", ErrUserNotFound)
	}
	if user.Status != store.StatusActive {
		return nil, ErrUserInactive
	}

	tenant, err := f.store.Tenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("verifying tenant: %w", ErrTenantNotFound)
	}
	if tenant.Status != store.StatusActive {
		return nil, ErrTenantInactive
	}

	return &Context{
		tenantID: tenantID,
		userID:   userID,
		role:     user.Role,
		store:    f.store,
	}, nil
}
