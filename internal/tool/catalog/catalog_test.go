package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovenworks/banneton/internal/access"
	"github.com/ovenworks/banneton/internal/store"
	"github.com/ovenworks/banneton/internal/testutil"
	"github.com/ovenworks/banneton/internal/tool"
	"github.com/ovenworks/banneton/internal/tool/catalog"
)

func newRegistry(t *testing.T, f *testutil.Fixture) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry()
	require.NoError(t, catalog.Register(reg, tool.Deps{Validator: f.Validator, Recorder: f.Recorder}))
	return reg
}

func TestRegisterIsIdempotentPerRegistryOnly(t *testing.T) {
	f := testutil.NewFixture(t)
	reg := newRegistry(t, f)
	assert.Equal(t, 10, reg.Len())

	// Registering the catalog twice on the same registry collides.
	err := catalog.Register(reg, tool.Deps{Validator: f.Validator, Recorder: f.Recorder})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestDriverDeliveryFlow(t *testing.T) {
	f := testutil.NewFixture(t)
	reg := newRegistry(t, f)
	ec := f.Context(t, access.RoleDriver)
	ctx := context.Background()

	res := reg.Dispatch(ctx, "get_my_deliveries", map[string]any{}, ec)
	require.True(t, res.Success, res.Error)
	data := res.Data.(map[string]any)
	assert.Equal(t, 1, data["count"])

	res = reg.Dispatch(ctx, "update_delivery_status", map[string]any{
		"delivery_id": f.Delivery.ID,
		"status":      "delivered",
	}, ec)
	require.True(t, res.Success, res.Error)
	d := res.Data.(*store.Delivery)
	assert.Equal(t, "delivered", d.Status)
}

func TestDriverCannotTouchAnotherDriversDelivery(t *testing.T) {
	f := testutil.NewFixture(t)
	reg := newRegistry(t, f)
	ctx := context.Background()

	other := &store.User{TenantID: f.TenantID, Name: "second driver",
		Email: "d2@example.test", Role: access.RoleDriver, Status: store.StatusActive}
	require.NoError(t, f.Store.CreateUser(ctx, other))
	ec, err := f.Factory.Create(ctx, f.TenantID, other.ID)
	require.NoError(t, err)

	res := reg.Dispatch(ctx, "update_delivery_status", map[string]any{
		"delivery_id": f.Delivery.ID,
		"status":      "delivered",
	}, ec)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not found")
}

func TestPlaceOrderDecrementsStock(t *testing.T) {
	f := testutil.NewFixture(t)
	reg := newRegistry(t, f)
	ec := f.Context(t, access.RoleClient)
	ctx := context.Background()

	res := reg.Dispatch(ctx, "place_order", map[string]any{
		"items": []any{
			map[string]any{"product_id": f.Products[1].ID, "quantity": float64(2)},
		},
	}, ec)
	require.True(t, res.Success, res.Error)
	order := res.Data.(*store.Order)
	assert.Equal(t, 2*f.Products[1].PriceCents, order.TotalCents)

	products, err := f.Store.ListProducts(ctx, f.TenantID, false)
	require.NoError(t, err)
	for _, p := range products {
		if p.ID == f.Products[1].ID {
			assert.Equal(t, f.Products[1].Stock-2, p.Stock)
		}
	}
}

func TestPlaceOrderInsufficientStock(t *testing.T) {
	f := testutil.NewFixture(t)
	reg := newRegistry(t, f)
	ec := f.Context(t, access.RoleClient)

	// Croissant was seeded with 3 in stock.
	res := reg.Dispatch(context.Background(), "place_order", map[string]any{
		"items": []any{
			map[string]any{"product_id": f.Products[2].ID, "quantity": float64(50)},
		},
	}, ec)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "insufficient stock")
}

func TestPlaceOrderMonthlyQuotaBoundary(t *testing.T) {
	f := testutil.NewFixture(t)
	reg := newRegistry(t, f)
	ctx := context.Background()

	// A tenant allowed two orders per month. The first two pass, the
	// third is blocked before any business logic runs.
	tenant := &store.Tenant{Name: "Quota Bakery", Status: store.StatusActive,
		MaxUsers: 10, MaxProducts: 10, MaxOrdersPerMonth: 2}
	require.NoError(t, f.Store.CreateTenant(ctx, tenant))
	client := &store.User{TenantID: tenant.ID, Name: "client",
		Email: "c@example.test", Role: access.RoleClient, Status: store.StatusActive}
	require.NoError(t, f.Store.CreateUser(ctx, client))
	product := &store.Product{TenantID: tenant.ID, Name: "Bagel",
		PriceCents: 200, Stock: 100, Active: true}
	require.NoError(t, f.Store.CreateProduct(ctx, product))
	ec, err := f.Factory.Create(ctx, tenant.ID, client.ID)
	require.NoError(t, err)

	args := map[string]any{
		"items": []any{
			map[string]any{"product_id": product.ID, "quantity": float64(1)},
		},
	}
	for i := 0; i < 2; i++ {
		res := reg.Dispatch(ctx, "place_order", args, ec)
		require.True(t, res.Success, res.Error)
	}

	res := reg.Dispatch(ctx, "place_order", args, ec)
	assert.False(t, res.Success)
	assert.Equal(t, "Operation blocked: Monthly order limit exceeded", res.Error)

	// Stock only moved for the two allowed orders.
	products, err := f.Store.ListProducts(ctx, tenant.ID, false)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 98, products[0].Stock)
}

func TestAddUserRejectsUnknownRole(t *testing.T) {
	f := testutil.NewFixture(t)
	reg := newRegistry(t, f)
	ec := f.Context(t, access.RoleTenantAdmin)

	res := reg.Dispatch(context.Background(), "add_user", map[string]any{
		"name":  "New Hire",
		"email": "hire@example.test",
		"role":  "superuser",
	}, ec)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown role")
}

func TestInventoryTools(t *testing.T) {
	f := testutil.NewFixture(t)
	reg := newRegistry(t, f)
	ec := f.Context(t, access.RoleSupplier)
	ctx := context.Background()

	res := reg.Dispatch(ctx, "add_product", map[string]any{
		"name":        "Baguette",
		"price_cents": float64(400),
		"stock":       float64(25),
	}, ec)
	require.True(t, res.Success, res.Error)
	created := res.Data.(*store.Product)

	res = reg.Dispatch(ctx, "restock_product", map[string]any{
		"product_id": created.ID,
		"quantity":   float64(10),
	}, ec)
	require.True(t, res.Success, res.Error)
	restocked := res.Data.(*store.Product)
	assert.Equal(t, 35, restocked.Stock)

	res = reg.Dispatch(ctx, "low_stock_report", map[string]any{}, ec)
	require.True(t, res.Success, res.Error)
	report := res.Data.(map[string]any)
	// Croissant (3 in stock) sits under the default threshold of 5.
	assert.Equal(t, 1, report["count"])
}

func TestQuotaStatusVisibleToManagement(t *testing.T) {
	f := testutil.NewFixture(t)
	reg := newRegistry(t, f)
	ctx := context.Background()

	res := reg.Dispatch(ctx, "get_quota_status", map[string]any{}, f.Context(t, access.RoleTenantManager))
	require.True(t, res.Success, res.Error)
	data := res.Data.(map[string]any)
	snaps := data["quotas"].([]access.QuotaSnapshot)
	assert.Len(t, snaps, 3)

	res = reg.Dispatch(ctx, "get_quota_status", map[string]any{}, f.Context(t, access.RoleDriver))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Access denied: Required roles:")
}
