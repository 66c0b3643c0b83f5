package access

// The closed role vocabulary. Anything outside this set is rejected at the
// boundary, never silently accepted.
const (
	RoleClient        = "client"
	RoleSupplier      = "supplier"
	RoleDriver        = "driver"
	RoleAdmin         = "admin"
	RoleTenantAdmin   = "tenant_admin"
	RoleTenantManager = "tenant_manager"
	RoleCustomer      = "customer"
)

var validRoles = map[string]bool{
	RoleClient:        true,
	RoleSupplier:      true,
	RoleDriver:        true,
	RoleAdmin:         true,
	RoleTenantAdmin:   true,
	RoleTenantManager: true,
	RoleCustomer:      true,
}

// ValidRole reports whether r is a member of the closed role set.
func ValidRole(r string) bool {
	return validRoles[r]
}

// Roles returns the closed role set in stable order.
func Roles() []string {
	return []string{
		RoleClient, RoleSupplier, RoleDriver, RoleAdmin,
		RoleTenantAdmin, RoleTenantManager, RoleCustomer,
	}
}
