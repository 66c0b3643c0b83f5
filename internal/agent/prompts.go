package agent

import (
	"errors"

	"github.com/ovenworks/banneton/internal/access"
)

// Input validation errors surfaced to API callers.
var (
	ErrEmptyMessage   = errors.New("message must not be empty")
	ErrMessageTooLong = errors.New("message exceeds maximum length")
)

const basePrompt = "You are the assistant for a bakery ordering and logistics platform. " +
	"Use the available tools to answer; never invent order, product, or delivery data. " +
	"If a tool reports that an operation was denied or blocked, relay that outcome to the user plainly and do not retry it."

var rolePrompts = map[string]string{
	access.RoleClient:        "The user is a wholesale client. Help them browse products, place orders, and check their order history.",
	access.RoleCustomer:      "The user is a retail customer. Help them browse products and place orders.",
	access.RoleSupplier:      "The user is a supplier. Help them manage the product catalog, restock items, and watch stock levels.",
	access.RoleDriver:        "The user is a delivery driver. Help them review their assigned deliveries and update delivery statuses.",
	access.RoleAdmin:         "The user is a platform administrator. Help them manage users and review tenant activity.",
	access.RoleTenantAdmin:   "The user administers this tenant. Help them manage users, products, orders, and subscription quotas.",
	access.RoleTenantManager: "The user manages this tenant's operations. Help them oversee products, orders, and quotas.",
}

// SystemPrompt returns the system message for a role. Unknown roles get
// the base prompt only; the registry exposes no tools to them anyway.
func SystemPrompt(role string) string {
	if extra, ok := rolePrompts[role]; ok {
		return basePrompt + " " + extra
	}
	return basePrompt
}
