package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ovenworks/banneton/internal/access"
	"github.com/ovenworks/banneton/internal/audit"
	"github.com/ovenworks/banneton/internal/execctx"
	"github.com/ovenworks/banneton/internal/policy"
	"github.com/ovenworks/banneton/internal/store"
)

// SigningKey is a fixed 32-byte audit signing key for tests.
const SigningKey = "0123456789abcdef0123456789abcdef"

// Fixture bundles a seeded store with the collaborators most tests need:
// one active tenant with one active user per role, three products, and a
// delivery assigned to the driver.
type Fixture struct {
	Store      *store.Store
	AuditStore *audit.Store
	Recorder   *audit.Recorder
	Engine     *policy.Engine
	Validator  *access.Validator
	Factory    *execctx.Factory

	TenantID string
	Users    map[string]string // role -> user ID
	Products []store.Product
	Delivery store.Delivery
}

// NewFixture builds a fully seeded fixture backed by temp-dir SQLite
// databases. Cleanup is registered on t.
func NewFixture(t *testing.T) *Fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "bakery.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	as, err := audit.NewStore(filepath.Join(dir, "audit.db"), SigningKey)
	require.NoError(t, err)
	t.Cleanup(func() { _ = as.Close() })

	engine, err := policy.NewEngine(ctx)
	require.NoError(t, err)

	f := &Fixture{
		Store:      st,
		AuditStore: as,
		Recorder:   audit.NewRecorder(as),
		Engine:     engine,
		Validator:  access.NewValidator(st, engine),
		Factory:    execctx.NewFactory(st),
		Users:      make(map[string]string),
	}

	tenant := &store.Tenant{
		Name:              "Roni's Bakery",
		Status:            store.StatusActive,
		MaxUsers:          10,
		MaxProducts:       100,
		MaxOrdersPerMonth: 500,
	}
	require.NoError(t, st.CreateTenant(ctx, tenant))
	f.TenantID = tenant.ID

	for _, role := range access.Roles() {
		u := &store.User{
			TenantID: tenant.ID,
			Name:     role + " user",
			Email:    role + "@example.test",
			Role:     role,
			Status:   store.StatusActive,
		}
		require.NoError(t, st.CreateUser(ctx, u))
		f.Users[role] = u.ID
	}

	for _, p := range []store.Product{
		{TenantID: tenant.ID, Name: "Sourdough Loaf", PriceCents: 650, Stock: 40, Active: true},
		{TenantID: tenant.ID, Name: "Rye Bread", PriceCents: 550, Stock: 12, Active: true},
		{TenantID: tenant.ID, Name: "Croissant", PriceCents: 320, Stock: 3, Active: true},
	} {
		prod := p
		require.NoError(t, st.CreateProduct(ctx, &prod))
		f.Products = append(f.Products, prod)
	}

	order, err := st.PlaceOrder(ctx, tenant.ID, f.Users[access.RoleClient], []store.OrderItem{
		{ProductID: f.Products[0].ID, Quantity: 2},
	})
	require.NoError(t, err)

	delivery := store.Delivery{
		TenantID:    tenant.ID,
		OrderID:     order.ID,
		DriverID:    f.Users[access.RoleDriver],
		Status:      "scheduled",
		ScheduledAt: time.Now().Add(2 * time.Hour).UTC(),
	}
	require.NoError(t, st.CreateDelivery(ctx, &delivery))
	f.Delivery = delivery

	return f
}

// Context creates a verified execution context for the fixture user with
// the given role.
func (f *Fixture) Context(t *testing.T, role string) *execctx.Context {
	t.Helper()
	ec, err := f.Factory.Create(context.Background(), f.TenantID, f.Users[role])
	require.NoError(t, err)
	return ec
}
