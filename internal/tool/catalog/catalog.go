// Package catalog declares the concrete bakery tools and registers them
// on a registry. Handlers contain only business logic; sanitization,
// access checks, schema validation, and auditing are applied by the tool
// wrapper before a handler runs.
package catalog

import (
	"context"
	"fmt"

	"github.com/ovenworks/banneton/internal/access"
	"github.com/ovenworks/banneton/internal/execctx"
	"github.com/ovenworks/banneton/internal/store"
	"github.com/ovenworks/banneton/internal/tool"
)

// orderingRoles may browse the catalog and place orders.
var orderingRoles = []string{access.RoleClient, access.RoleCustomer}

// inventoryRoles manage products and stock.
var inventoryRoles = []string{access.RoleSupplier, access.RoleTenantAdmin, access.RoleTenantManager}

// managementRoles see tenant-wide order and quota state.
var managementRoles = []string{access.RoleAdmin, access.RoleTenantAdmin, access.RoleTenantManager}

// Register builds every tool in the catalog and registers it. Any
// descriptor or duplicate-name problem aborts startup.
func Register(reg *tool.Registry, deps tool.Deps) error {
	tools := []struct {
		desc    tool.Descriptor
		handler tool.Handler
	}{
		{getMyDeliveriesDesc(), getMyDeliveries},
		{updateDeliveryStatusDesc(), updateDeliveryStatus},
		{listProductsDesc(), listProducts},
		{placeOrderDesc(), placeOrder},
		{addProductDesc(), addProduct},
		{restockProductDesc(), restockProduct},
		{addUserDesc(), addUser},
		{getOrdersDesc(), getOrders},
		{getQuotaStatusDesc(), getQuotaStatus(deps)},
		{lowStockReportDesc(), lowStockReport},
	}
	for _, entry := range tools {
		t, err := tool.New(entry.desc, entry.handler, deps)
		if err != nil {
			return err
		}
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		req := make([]any, len(required))
		for i, r := range required {
			req[i] = r
		}
		s["required"] = req
	}
	return s
}

func getMyDeliveriesDesc() tool.Descriptor {
	return tool.Descriptor{
		Name:         "get_my_deliveries",
		Description:  "List the deliveries assigned to you, with order and schedule details.",
		Parameters:   objectSchema(map[string]any{}),
		AllowedRoles: []string{access.RoleDriver},
	}
}

func getMyDeliveries(ctx context.Context, _ map[string]any, ec *execctx.Context) (any, error) {
	deliveries, err := ec.Store().DeliveriesForDriver(ctx, ec.TenantID(), ec.UserID())
	if err != nil {
		return nil, fmt.Errorf("looking up deliveries: %w", err)
	}
	return map[string]any{"deliveries": deliveries, "count": len(deliveries)}, nil
}

func updateDeliveryStatusDesc() tool.Descriptor {
	return tool.Descriptor{
		Name:        "update_delivery_status",
		Description: "Update the status of one of your deliveries.",
		Parameters: objectSchema(map[string]any{
			"delivery_id": map[string]any{"type": "string"},
			"status": map[string]any{
				"type": "string",
				"enum": []any{"scheduled", "in_transit", "delivered", "failed"},
			},
		}, "delivery_id", "status"),
		AllowedRoles: []string{access.RoleDriver},
	}
}

func updateDeliveryStatus(ctx context.Context, args map[string]any, ec *execctx.Context) (any, error) {
	d, err := ec.Store().UpdateDeliveryStatus(ctx,
		ec.TenantID(), stringArg(args, "delivery_id"), ec.UserID(), stringArg(args, "status"))
	if err != nil {
		return nil, fmt.Errorf("updating delivery: %w", err)
	}
	return d, nil
}

func listProductsDesc() tool.Descriptor {
	return tool.Descriptor{
		Name:        "list_products",
		Description: "List the products currently available, with price and stock.",
		Parameters:  objectSchema(map[string]any{}),
		AllowedRoles: append(append([]string{}, orderingRoles...),
			inventoryRoles...),
	}
}

func listProducts(ctx context.Context, _ map[string]any, ec *execctx.Context) (any, error) {
	products, err := ec.Store().ListProducts(ctx, ec.TenantID(), false)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return map[string]any{"products": products, "count": len(products)}, nil
}

func placeOrderDesc() tool.Descriptor {
	return tool.Descriptor{
		Name:        "place_order",
		Description: "Place an order for one or more products.",
		Parameters: objectSchema(map[string]any{
			"items": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": objectSchema(map[string]any{
					"product_id": map[string]any{"type": "string"},
					"quantity":   map[string]any{"type": "integer", "minimum": 1},
				}, "product_id", "quantity"),
			},
		}, "items"),
		AllowedRoles:   orderingRoles,
		QuotaOperation: access.QuotaPlaceOrder,
	}
}

func placeOrder(ctx context.Context, args map[string]any, ec *execctx.Context) (any, error) {
	rawItems, _ := args["items"].([]any)
	items := make([]store.OrderItem, 0, len(rawItems))
	for _, ri := range rawItems {
		m, ok := ri.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("each order item must be an object")
		}
		items = append(items, store.OrderItem{
			ProductID: stringArg(m, "product_id"),
			Quantity:  intArg(m, "quantity"),
		})
	}
	order, err := ec.Store().PlaceOrder(ctx, ec.TenantID(), ec.UserID(), items)
	if err != nil {
		return nil, fmt.Errorf("placing order: %w", err)
	}
	return order, nil
}

func addProductDesc() tool.Descriptor {
	return tool.Descriptor{
		Name:        "add_product",
		Description: "Add a new product to the catalog.",
		Parameters: objectSchema(map[string]any{
			"name":        map[string]any{"type": "string", "minLength": 1},
			"price_cents": map[string]any{"type": "integer", "minimum": 1},
			"stock":       map[string]any{"type": "integer", "minimum": 0},
		}, "name", "price_cents"),
		AllowedRoles:   inventoryRoles,
		QuotaOperation: access.QuotaAddProduct,
	}
}

func addProduct(ctx context.Context, args map[string]any, ec *execctx.Context) (any, error) {
	p := &store.Product{
		TenantID:   ec.TenantID(),
		Name:       stringArg(args, "name"),
		PriceCents: intArg(args, "price_cents"),
		Stock:      intArg(args, "stock"),
		Active:     true,
	}
	if err := ec.Store().CreateProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("creating product: %w", err)
	}
	return p, nil
}

func restockProductDesc() tool.Descriptor {
	return tool.Descriptor{
		Name:        "restock_product",
		Description: "Increase the stock of an existing product.",
		Parameters: objectSchema(map[string]any{
			"product_id": map[string]any{"type": "string"},
			"quantity":   map[string]any{"type": "integer", "minimum": 1},
		}, "product_id", "quantity"),
		AllowedRoles: inventoryRoles,
	}
}

func restockProduct(ctx context.Context, args map[string]any, ec *execctx.Context) (any, error) {
	p, err := ec.Store().RestockProduct(ctx,
		ec.TenantID(), stringArg(args, "product_id"), intArg(args, "quantity"))
	if err != nil {
		return nil, fmt.Errorf("restocking product: %w", err)
	}
	return p, nil
}

func addUserDesc() tool.Descriptor {
	return tool.Descriptor{
		Name:        "add_user",
		Description: "Add a new user to the tenant with a given role.",
		Parameters: objectSchema(map[string]any{
			"name":  map[string]any{"type": "string", "minLength": 1},
			"email": map[string]any{"type": "string", "minLength": 3},
			"role":  map[string]any{"type": "string"},
		}, "name", "email", "role"),
		AllowedRoles:   []string{access.RoleAdmin, access.RoleTenantAdmin},
		QuotaOperation: access.QuotaAddUser,
	}
}

func addUser(ctx context.Context, args map[string]any, ec *execctx.Context) (any, error) {
	role := stringArg(args, "role")
	if !access.ValidRole(role) {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	u := &store.User{
		TenantID: ec.TenantID(),
		Name:     stringArg(args, "name"),
		Email:    stringArg(args, "email"),
		Role:     role,
		Status:   store.StatusActive,
	}
	if err := ec.Store().CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

func getOrdersDesc() tool.Descriptor {
	return tool.Descriptor{
		Name:        "get_orders",
		Description: "List recent orders for the tenant, newest first.",
		Parameters: objectSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "minimum": 1, "maximum": 100},
		}),
		AllowedRoles: managementRoles,
	}
}

func getOrders(ctx context.Context, args map[string]any, ec *execctx.Context) (any, error) {
	limit := intArg(args, "limit")
	if limit <= 0 {
		limit = 20
	}
	orders, err := ec.Store().OrdersForTenant(ctx, ec.TenantID(), limit)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return map[string]any{"orders": orders, "count": len(orders)}, nil
}

func getQuotaStatusDesc() tool.Descriptor {
	return tool.Descriptor{
		Name:         "get_quota_status",
		Description:  "Show current usage against the tenant's subscription limits.",
		Parameters:   objectSchema(map[string]any{}),
		AllowedRoles: managementRoles,
	}
}

// getQuotaStatus closes over deps because quota snapshots come from the
// validator, not the business store.
func getQuotaStatus(deps tool.Deps) tool.Handler {
	return func(ctx context.Context, _ map[string]any, ec *execctx.Context) (any, error) {
		snaps, err := deps.Validator.Snapshots(ctx, ec.TenantID())
		if err != nil {
			return nil, fmt.Errorf("reading quota status: %w", err)
		}
		return map[string]any{"quotas": snaps}, nil
	}
}

func lowStockReportDesc() tool.Descriptor {
	return tool.Descriptor{
		Name:        "low_stock_report",
		Description: "List products whose stock is at or below a threshold.",
		Parameters: objectSchema(map[string]any{
			"threshold": map[string]any{"type": "integer", "minimum": 0},
		}),
		AllowedRoles: inventoryRoles,
	}
}

func lowStockReport(ctx context.Context, args map[string]any, ec *execctx.Context) (any, error) {
	threshold := intArg(args, "threshold")
	if threshold <= 0 {
		threshold = 5
	}
	products, err := ec.Store().LowStock(ctx, ec.TenantID(), threshold)
	if err != nil {
		return nil, fmt.Errorf("building low stock report: %w", err)
	}
	return map[string]any{"products": products, "count": len(products), "threshold": threshold}, nil
}

// stringArg reads a string argument; schema validation has already
// enforced presence and type for required fields.
func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// intArg reads a numeric argument. Decoded JSON numbers arrive as float64.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}
