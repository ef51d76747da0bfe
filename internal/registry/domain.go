// Package registry owns the role catalogue and its membership table. It is
// the single source of truth for every authorization check in the system.
package registry

import (
	"github.com/registria/registria/internal/identity"
)

// Role is a named capability. AdminRole designates the role whose holders may
// grant or revoke membership in this one. Requestable roles may additionally
// be granted through the request/approval workflow.
type Role struct {
	ID          identity.RoleID
	Name        string
	AdminRole   identity.RoleID
	Requestable bool
}

// Membership ties an account to a role.
type Membership struct {
	Role    identity.RoleID
	Account identity.Account
}

// BuiltinRoles returns the deployment profile's role catalogue. Admin of every
// requestable role is ROLE_MANAGER_ROLE so the request workflow's operating
// identity can grant them without holding root authority.
func BuiltinRoles() []Role {
	manager := identity.NamedRole(identity.RoleNameRoleManager)
	return []Role{
		{ID: identity.DefaultAdminRole, Name: "DEFAULT_ADMIN_ROLE", AdminRole: identity.DefaultAdminRole},
		{ID: manager, Name: identity.RoleNameRoleManager, AdminRole: identity.DefaultAdminRole},
		{ID: identity.NamedRole(identity.RoleNameOwner), Name: identity.RoleNameOwner, AdminRole: manager, Requestable: true},
		{ID: identity.NamedRole(identity.RoleNameAuditor), Name: identity.RoleNameAuditor, AdminRole: manager, Requestable: true},
		{ID: identity.NamedRole(identity.RoleNameDealer), Name: identity.RoleNameDealer, AdminRole: manager, Requestable: true},
	}
}
