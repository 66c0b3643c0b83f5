package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovenworks/banneton/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedTenant(t *testing.T, st *store.Store) *store.Tenant {
	t.Helper()
	tenant := &store.Tenant{Name: "Test Bakery", Status: store.StatusActive,
		MaxUsers: 10, MaxProducts: 100, MaxOrdersPerMonth: 500}
	require.NoError(t, st.CreateTenant(context.Background(), tenant))
	return tenant
}

func seedUser(t *testing.T, st *store.Store, tenantID, role string) *store.User {
	t.Helper()
	u := &store.User{TenantID: tenantID, Name: role, Email: role + "@example.test",
		Role: role, Status: store.StatusActive}
	require.NoError(t, st.CreateUser(context.Background(), u))
	return u
}

func seedProduct(t *testing.T, st *store.Store, tenantID string, stock int) *store.Product {
	t.Helper()
	p := &store.Product{TenantID: tenantID, Name: "Loaf", PriceCents: 500,
		Stock: stock, Active: true}
	require.NoError(t, st.CreateProduct(context.Background(), p))
	return p
}

func TestTenantRoundTrip(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, st)

	got, err := st.Tenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.Name, got.Name)
	assert.Equal(t, 500, got.MaxOrdersPerMonth)

	_, err = st.Tenant(ctx, "ten_missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListActiveTenantsExcludesSuspended(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	seedTenant(t, st)
	suspended := &store.Tenant{Name: "Closed", Status: store.StatusSuspended}
	require.NoError(t, st.CreateTenant(ctx, suspended))

	tenants, err := st.ListActiveTenants(ctx)
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	assert.Equal(t, "Test Bakery", tenants[0].Name)
}

func TestUserInTenantScoping(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	a := seedTenant(t, st)
	b := &store.Tenant{Name: "Other", Status: store.StatusActive}
	require.NoError(t, st.CreateTenant(ctx, b))
	u := seedUser(t, st, a.ID, "client")

	got, err := st.UserInTenant(ctx, a.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "client", got.Role)

	// Same user against the wrong tenant is a missing row.
	_, err = st.UserInTenant(ctx, b.ID, u.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUserRoleOnlyActiveUsers(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, st)
	u := seedUser(t, st, tenant.ID, "driver")

	role, err := st.UserRole(ctx, tenant.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "driver", role)

	inactive := &store.User{TenantID: tenant.ID, Name: "x", Email: "x@example.test",
		Role: "driver", Status: store.StatusSuspended}
	require.NoError(t, st.CreateUser(ctx, inactive))
	_, err = st.UserRole(ctx, tenant.ID, inactive.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPlaceOrderRollsBackOnInsufficientStock(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, st)
	customer := seedUser(t, st, tenant.ID, "client")
	plenty := seedProduct(t, st, tenant.ID, 50)
	scarce := seedProduct(t, st, tenant.ID, 1)

	_, err := st.PlaceOrder(ctx, tenant.ID, customer.ID, []store.OrderItem{
		{ProductID: plenty.ID, Quantity: 5},
		{ProductID: scarce.ID, Quantity: 3},
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	// The first item's decrement must have been rolled back.
	products, err := st.ListProducts(ctx, tenant.ID, false)
	require.NoError(t, err)
	for _, p := range products {
		switch p.ID {
		case plenty.ID:
			assert.Equal(t, 50, p.Stock)
		case scarce.ID:
			assert.Equal(t, 1, p.Stock)
		}
	}

	orders, err := st.OrdersForTenant(ctx, tenant.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPlaceOrderComputesTotals(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, st)
	customer := seedUser(t, st, tenant.ID, "client")
	p := seedProduct(t, st, tenant.ID, 10)

	order, err := st.PlaceOrder(ctx, tenant.ID, customer.ID, []store.OrderItem{
		{ProductID: p.ID, Quantity: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 3*p.PriceCents, order.TotalCents)
	require.Len(t, order.Items, 1)
	assert.Equal(t, p.PriceCents, order.Items[0].UnitPriceCents)

	count, err := st.CountOrdersSince(ctx, tenant.ID, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCountOrdersSinceWindow(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, st)
	customer := seedUser(t, st, tenant.ID, "client")
	p := seedProduct(t, st, tenant.ID, 10)

	_, err := st.PlaceOrder(ctx, tenant.ID, customer.ID, []store.OrderItem{
		{ProductID: p.ID, Quantity: 1},
	})
	require.NoError(t, err)

	count, err := st.CountOrdersSince(ctx, tenant.ID, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRestockProduct(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, st)
	p := seedProduct(t, st, tenant.ID, 5)

	got, err := st.RestockProduct(ctx, tenant.ID, p.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, 25, got.Stock)

	_, err = st.RestockProduct(ctx, tenant.ID, "prd_missing", 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLowStock(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, st)
	seedProduct(t, st, tenant.ID, 50)
	low := seedProduct(t, st, tenant.ID, 2)

	products, err := st.LowStock(ctx, tenant.ID, 5)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, low.ID, products[0].ID)
}

func TestDeliveriesScopedToDriver(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, st)
	customer := seedUser(t, st, tenant.ID, "client")
	driver := seedUser(t, st, tenant.ID, "driver")
	other := seedUser(t, st, tenant.ID, "driver")
	p := seedProduct(t, st, tenant.ID, 10)

	order, err := st.PlaceOrder(ctx, tenant.ID, customer.ID, []store.OrderItem{
		{ProductID: p.ID, Quantity: 1},
	})
	require.NoError(t, err)

	d := &store.Delivery{TenantID: tenant.ID, OrderID: order.ID, DriverID: driver.ID,
		Status: "scheduled", ScheduledAt: time.Now().UTC()}
	require.NoError(t, st.CreateDelivery(ctx, d))

	mine, err := st.DeliveriesForDriver(ctx, tenant.ID, driver.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := st.DeliveriesForDriver(ctx, tenant.ID, other.ID)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	// Another driver cannot update it either.
	_, err = st.UpdateDeliveryStatus(ctx, tenant.ID, d.ID, other.ID, "delivered")
	assert.ErrorIs(t, err, store.ErrNotFound)

	updated, err := st.UpdateDeliveryStatus(ctx, tenant.ID, d.ID, driver.ID, "delivered")
	require.NoError(t, err)
	assert.Equal(t, "delivered", updated.Status)
}

func TestCounts(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, st)
	seedUser(t, st, tenant.ID, "client")
	seedUser(t, st, tenant.ID, "driver")
	inactive := &store.User{TenantID: tenant.ID, Name: "x", Email: "x@example.test",
		Role: "client", Status: store.StatusSuspended}
	require.NoError(t, st.CreateUser(ctx, inactive))
	seedProduct(t, st, tenant.ID, 1)

	users, err := st.CountActiveUsers(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, users)

	products, err := st.CountProducts(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, products)
}
