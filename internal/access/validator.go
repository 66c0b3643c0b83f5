// Package access implements the validation gate every tool invocation must
// pass before any side effect occurs: tenant membership, role permission,
// and subscription quota, evaluated short-circuit in that order. Every
// check fails closed: a store or policy error is a denial, never an
// allowance.
package access

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ovenworks/banneton/internal/policy"
	"github.com/ovenworks/banneton/internal/store"
)

// QuotaOperation tags the subscription metric a tool consumes.
type QuotaOperation string

const (
	QuotaAddUser    QuotaOperation = "add_user"
	QuotaAddProduct QuotaOperation = "add_product"
	QuotaPlaceOrder QuotaOperation = "place_order"
)

// QuotaSnapshot is the usage of one metric at a point in time. Derived on
// demand from the store, never cached.
type QuotaSnapshot struct {
	Metric       string `json:"metric"`
	CurrentValue int    `json:"current_value"`
	MaxValue     int    `json:"max_value"`
}

// Check is the outcome of one validation stage. Reason is operator-facing
// wording; the caller-facing envelope stays uniform regardless of which
// stage denied.
type Check struct {
	Allowed bool
	Reason  string
}

func denied(reason string) Check { return Check{Allowed: false, Reason: reason} }

var allowed = Check{Allowed: true}

// Validator runs the three access checks against the store and the policy
// engine.
type Validator struct {
	store  *store.Store
	engine *policy.Engine
}

// NewValidator creates a validator backed by the given store and engine.
func NewValidator(st *store.Store, engine *policy.Engine) *Validator {
	return &Validator{store: st, engine: engine}
}

// TenantAccess verifies that (userID, tenantID) resolves to an active user
// scoped to that tenant. Absence of a row is denial.
func (v *Validator) TenantAccess(ctx context.Context, tenantID, userID string) Check {
	user, err := v.store.UserInTenant(ctx, tenantID, userID)
	if err != nil {
		return denied("Access denied: user does not belong to this tenant")
	}
	if user.Status != store.StatusActive {
		return denied("Access denied: user account is not active")
	}
	return allowed
}

// RolePermission re-reads the user's role from the store, never trusting
// the caller-supplied context, and checks membership in allowedRoles.
func (v *Validator) RolePermission(ctx context.Context, tenantID, userID string, allowedRoles []string) Check {
	role, err := v.store.UserRole(ctx, tenantID, userID)
	if err != nil {
		return denied("Access denied: user does not belong to this tenant")
	}

	decision, err := v.engine.EvaluateRoleAccess(ctx, role, allowedRoles)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("role_policy_evaluation_failed")
		return denied("Access denied")
	}
	if !decision.Allowed {
		return denied(decision.Reasons[0])
	}
	return allowed
}

// Quota computes the current usage snapshot for the operation and denies
// when the metric is used up. A snapshot computation failure is a denial.
func (v *Validator) Quota(ctx context.Context, tenantID string, op QuotaOperation) Check {
	snap, err := v.Snapshot(ctx, tenantID, op)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Str("quota_op", string(op)).Msg("quota_snapshot_failed")
		return denied("Operation blocked: quota status unavailable")
	}

	decision, err := v.engine.EvaluateQuota(ctx, metricLabel(op), snap.CurrentValue, snap.MaxValue)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("quota_policy_evaluation_failed")
		return denied("Operation blocked: quota status unavailable")
	}
	if !decision.Allowed {
		return denied(decision.Reasons[0])
	}
	return allowed
}

// Snapshot derives the usage snapshot for one quota operation. MaxValue is
// clamped to at least 1 so a misconfigured tenant row can never divide by
// zero or go negative downstream.
func (v *Validator) Snapshot(ctx context.Context, tenantID string, op QuotaOperation) (*QuotaSnapshot, error) {
	tenant, err := v.store.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	snap := &QuotaSnapshot{}
	switch op {
	case QuotaAddUser:
		snap.Metric = "users"
		snap.MaxValue = tenant.MaxUsers
		snap.CurrentValue, err = v.store.CountActiveUsers(ctx, tenantID)
	case QuotaAddProduct:
		snap.Metric = "products"
		snap.MaxValue = tenant.MaxProducts
		snap.CurrentValue, err = v.store.CountProducts(ctx, tenantID)
	case QuotaPlaceOrder:
		snap.Metric = "monthly_orders"
		snap.MaxValue = tenant.MaxOrdersPerMonth
		now := time.Now().UTC()
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		snap.CurrentValue, err = v.store.CountOrdersSince(ctx, tenantID, monthStart)
	default:
		return nil, errUnknownQuotaOp(op)
	}
	if err != nil {
		return nil, err
	}
	if snap.MaxValue < 1 {
		snap.MaxValue = 1
	}
	if snap.CurrentValue < 0 {
		snap.CurrentValue = 0
	}
	return snap, nil
}

// Snapshots returns the snapshot for every quota operation, for
// introspection tools.
func (v *Validator) Snapshots(ctx context.Context, tenantID string) ([]QuotaSnapshot, error) {
	ops := []QuotaOperation{QuotaAddUser, QuotaAddProduct, QuotaPlaceOrder}
	out := make([]QuotaSnapshot, 0, len(ops))
	for _, op := range ops {
		snap, err := v.Snapshot(ctx, tenantID, op)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, nil
}

// metricLabel is the wording rendered into quota deny messages.
func metricLabel(op QuotaOperation) string {
	switch op {
	case QuotaAddUser:
		return "User"
	case QuotaAddProduct:
		return "Product"
	case QuotaPlaceOrder:
		return "Monthly order"
	default:
		return string(op)
	}
}

type errUnknownQuotaOp QuotaOperation

func (e errUnknownQuotaOp) Error() string {
	return "unknown quota operation: " + string(e)
}
