// Package store is the SQLite data-access layer for tenants, users,
// products, orders, and deliveries.
//
// Every query is scoped to exactly one tenant; there is no cross-tenant
// read path. Multi-statement mutations (order placement) run inside an
// explicit transaction so partial failure rolls back cleanly.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Domain errors for the store package.
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Status values shared by tenants and users.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Tenant is one isolated customer account with its subscription limits.
type Tenant struct {
	ID                string
	Name              string
	Status            string
	MaxUsers          int
	MaxProducts       int
	MaxOrdersPerMonth int
	RateLimit         int // requests per second; 0 means no limit
}

// User is a member of exactly one tenant. Role is the authoritative role
// for every access decision; it is re-read from this row at call time.
type User struct {
	ID       string
	TenantID string
	Name     string
	Email    string
	Role     string
	Status   string
}

// Product is a catalog entry scoped to one tenant.
type Product struct {
	ID         string
	TenantID   string
	Name       string
	PriceCents int
	Stock      int
	Active     bool
}

// Order is a placed order with its line items.
type Order struct {
	ID         string
	TenantID   string
	CustomerID string
	Status     string
	TotalCents int
	CreatedAt  time.Time
	Items      []OrderItem
}

// OrderItem is one line of an order.
type OrderItem struct {
	ProductID      string
	Quantity       int
	UnitPriceCents int
}

// Delivery is a scheduled delivery assigned to a driver.
type Delivery struct {
	ID          string
	TenantID    string
	OrderID     string
	DriverID    string
	Status      string
	ScheduledAt time.Time
}

// Store wraps the business-data SQLite database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	max_users INTEGER NOT NULL DEFAULT 10,
	max_products INTEGER NOT NULL DEFAULT 100,
	max_orders_per_month INTEGER NOT NULL DEFAULT 500,
	rate_limit INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL REFERENCES tenants(id),
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	role TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL REFERENCES tenants(id),
	name TEXT NOT NULL,
	price_cents INTEGER NOT NULL,
	stock INTEGER NOT NULL DEFAULT 0,
	active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL REFERENCES tenants(id),
	customer_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	total_cents INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS order_items (
	order_id TEXT NOT NULL REFERENCES orders(id),
	product_id TEXT NOT NULL REFERENCES products(id),
	quantity INTEGER NOT NULL,
	unit_price_cents INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS deliveries (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL REFERENCES tenants(id),
	order_id TEXT NOT NULL,
	driver_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'scheduled',
	scheduled_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_users_tenant ON users(tenant_id);
CREATE INDEX IF NOT EXISTS idx_products_tenant ON products(tenant_id);
CREATE INDEX IF NOT EXISTS idx_orders_tenant ON orders(tenant_id);
CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at);
CREATE INDEX IF NOT EXISTS idx_deliveries_driver ON deliveries(tenant_id, driver_id);
`

// Open opens (creating if needed) the business database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening store database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Tenants ---

// Tenant returns the tenant row by ID.
func (s *Store) Tenant(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, status, max_users, max_products, max_orders_per_month, rate_limit
		 FROM tenants WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &t.Status, &t.MaxUsers, &t.MaxProducts, &t.MaxOrdersPerMonth, &t.RateLimit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tenant %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying tenant: %w", err)
	}
	return &t, nil
}

// CreateTenant inserts a tenant row. Limits are stored as given, zeros
// included; quota checks clamp, they do not fill in defaults.
func (s *Store) CreateTenant(ctx context.Context, t *Tenant) error {
	if t.ID == "" {
		t.ID = "ten_" + uuid.New().String()[:8]
	}
	if t.Status == "" {
		t.Status = StatusActive
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, status, max_users, max_products, max_orders_per_month, rate_limit)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Status, t.MaxUsers, t.MaxProducts, t.MaxOrdersPerMonth, t.RateLimit)
	if err != nil {
		return fmt.Errorf("creating tenant: %w", err)
	}
	return nil
}

// ListActiveTenants returns all tenants with status 'active'.
func (s *Store) ListActiveTenants(ctx context.Context) ([]Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, status, max_users, max_products, max_orders_per_month, rate_limit
		 FROM tenants WHERE status = ? ORDER BY id`, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("querying tenants: %w", err)
	}
	defer rows.Close()

	var out []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Status, &t.MaxUsers, &t.MaxProducts, &t.MaxOrdersPerMonth, &t.RateLimit); err != nil {
			return nil, fmt.Errorf("scanning tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- Users ---

// UserInTenant returns the user row scoped to (tenantID, userID). A user
// belonging to a different tenant is indistinguishable from a missing user.
func (s *Store) UserInTenant(ctx context.Context, tenantID, userID string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, email, role, status
		 FROM users WHERE id = ? AND tenant_id = ?`, userID, tenantID).
		Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &u.Role, &u.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s in tenant %s: %w", userID, tenantID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

// UserRole returns the current role of an active user in the tenant.
// This is the authoritative role source for every access decision.
func (s *Store) UserRole(ctx context.Context, tenantID, userID string) (string, error) {
	u, err := s.UserInTenant(ctx, tenantID, userID)
	if err != nil {
		return "", err
	}
	if u.Status != StatusActive {
		return "", fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return u.Role, nil
}

// CreateUser inserts a user row.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = "usr_" + uuid.New().String()[:8]
	}
	if u.Status == "" {
		u.Status = StatusActive
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, tenant_id, name, email, role, status) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.TenantID, u.Name, u.Email, u.Role, u.Status)
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// CountActiveUsers returns the number of active users in the tenant.
func (s *Store) CountActiveUsers(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE tenant_id = ? AND status = ?`, tenantID, StatusActive).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// --- Products ---

// CreateProduct inserts a product row.
func (s *Store) CreateProduct(ctx context.Context, p *Product) error {
	if p.ID == "" {
		p.ID = "prd_" + uuid.New().String()[:8]
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (id, tenant_id, name, price_cents, stock, active) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.TenantID, p.Name, p.PriceCents, p.Stock, p.Active)
	if err != nil {
		return fmt.Errorf("creating product: %w", err)
	}
	return nil
}

// ListProducts returns the tenant's catalog, optionally including inactive
// products.
func (s *Store) ListProducts(ctx context.Context, tenantID string, includeInactive bool) ([]Product, error) {
	query := `SELECT id, tenant_id, name, price_cents, stock, active FROM products WHERE tenant_id = ?`
	if !includeInactive {
		query += ` AND active = 1`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// LowStock returns active products at or below the stock threshold.
func (s *Store) LowStock(ctx context.Context, tenantID string, threshold int) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, name, price_cents, stock, active
		 FROM products WHERE tenant_id = ? AND active = 1 AND stock <= ? ORDER BY stock ASC`,
		tenantID, threshold)
	if err != nil {
		return nil, fmt.Errorf("querying low stock: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// RestockProduct adds qty to a product's stock and returns the updated row.
func (s *Store) RestockProduct(ctx context.Context, tenantID, productID string, qty int) (*Product, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("restock quantity must be positive (got %d)", qty)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET stock = stock + ? WHERE id = ? AND tenant_id = ?`,
		qty, productID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("restocking product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	return s.product(ctx, tenantID, productID)
}

// CountProducts returns the number of products (active or not) in the tenant.
func (s *Store) CountProducts(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE tenant_id = ?`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting products: %w", err)
	}
	return n, nil
}

func (s *Store) product(ctx context.Context, tenantID, productID string) (*Product, error) {
	var p Product
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, price_cents, stock, active
		 FROM products WHERE id = ? AND tenant_id = ?`, productID, tenantID).
		Scan(&p.ID, &p.TenantID, &p.Name, &p.PriceCents, &p.Stock, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying product: %w", err)
	}
	return &p, nil
}

func scanProducts(rows *sql.Rows) ([]Product, error) {
	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.PriceCents, &p.Stock, &p.Active); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Orders ---

// PlaceOrder creates an order for the given items inside one transaction:
// each product's stock is checked and decremented, then the order and its
// items are inserted. Any failure rolls the whole order back.
func (s *Store) PlaceOrder(ctx context.Context, tenantID, customerID string, items []OrderItem) (*Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("order must contain at least one item")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning order transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	order := &Order{
		ID:         "ord_" + uuid.New().String()[:8],
		TenantID:   tenantID,
		CustomerID: customerID,
		Status:     "pending",
		CreatedAt:  time.Now().UTC(),
	}

	for i := range items {
		it := &items[i]
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("item %s: quantity must be positive", it.ProductID)
		}
		var stock, price int
		err := tx.QueryRowContext(ctx,
			`SELECT stock, price_cents FROM products WHERE id = ? AND tenant_id = ? AND active = 1`,
			it.ProductID, tenantID).Scan(&stock, &price)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", it.ProductID, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("querying product for order: %w", err)
		}
		if stock < it.Quantity {
			return nil, fmt.Errorf("product %s has %d in stock, %d requested: %w",
				it.ProductID, stock, it.Quantity, ErrInsufficientStock)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE products SET stock = stock - ? WHERE id = ? AND tenant_id = ?`,
			it.Quantity, it.ProductID, tenantID); err != nil {
			return nil, fmt.Errorf("decrementing stock: %w", err)
		}
		it.UnitPriceCents = price
		order.TotalCents += price * it.Quantity
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO orders (id, tenant_id, customer_id, status, total_cents, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		order.ID, order.TenantID, order.CustomerID, order.Status, order.TotalCents, order.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting order: %w", err)
	}
	for _, it := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, unit_price_cents) VALUES (?, ?, ?, ?)`,
			order.ID, it.ProductID, it.Quantity, it.UnitPriceCents); err != nil {
			return nil, fmt.Errorf("inserting order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing order: %w", err)
	}
	order.Items = items
	return order, nil
}

// OrdersForTenant returns recent orders, newest first.
func (s *Store) OrdersForTenant(ctx context.Context, tenantID string, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, customer_id, status, total_cents, created_at
		 FROM orders WHERE tenant_id = ? ORDER BY created_at DESC LIMIT ?`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.TenantID, &o.CustomerID, &o.Status, &o.TotalCents, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CountOrdersSince returns the number of orders created at or after since.
// Used for the monthly order quota; pass the start of the current month.
func (s *Store) CountOrdersSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE tenant_id = ? AND created_at >= ?`, tenantID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting orders: %w", err)
	}
	return n, nil
}

// --- Deliveries ---

// CreateDelivery inserts a delivery row.
func (s *Store) CreateDelivery(ctx context.Context, d *Delivery) error {
	if d.ID == "" {
		d.ID = "dlv_" + uuid.New().String()[:8]
	}
	if d.Status == "" {
		d.Status = "scheduled"
	}
	if d.ScheduledAt.IsZero() {
		d.ScheduledAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (id, tenant_id, order_id, driver_id, status, scheduled_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.TenantID, d.OrderID, d.DriverID, d.Status, d.ScheduledAt)
	if err != nil {
		return fmt.Errorf("creating delivery: %w", err)
	}
	return nil
}

// DeliveriesForDriver returns the driver's deliveries in the tenant,
// soonest first.
func (s *Store) DeliveriesForDriver(ctx context.Context, tenantID, driverID string) ([]Delivery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, order_id, driver_id, status, scheduled_at
		 FROM deliveries WHERE tenant_id = ? AND driver_id = ? ORDER BY scheduled_at ASC`,
		tenantID, driverID)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.OrderID, &d.DriverID, &d.Status, &d.ScheduledAt); err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDeliveryStatus sets the status of a delivery owned by the driver.
// A delivery assigned to another driver is indistinguishable from a missing
// one.
func (s *Store) UpdateDeliveryStatus(ctx context.Context, tenantID, deliveryID, driverID, status string) (*Delivery, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deliveries SET status = ? WHERE id = ? AND tenant_id = ? AND driver_id = ?`,
		status, deliveryID, tenantID, driverID)
	if err != nil {
		return nil, fmt.Errorf("updating delivery: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("delivery %s: %w", deliveryID, ErrNotFound)
	}

	var d Delivery
	err = s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, order_id, driver_id, status, scheduled_at
		 FROM deliveries WHERE id = ? AND tenant_id = ?`, deliveryID, tenantID).
		Scan(&d.ID, &d.TenantID, &d.OrderID, &d.DriverID, &d.Status, &d.ScheduledAt)
	if err != nil {
		return nil, fmt.Errorf("querying delivery: %w", err)
	}
	return &d, nil
}
