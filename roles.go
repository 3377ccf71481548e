package accounts

// Role is a user's role within an account
type Role = string

const (
	// RoleAdmin manages members, invitations, and the account itself
	RoleAdmin Role = "admin"
	// RoleMember can view and edit account data
	RoleMember Role = "member"
	// RoleReadOnly can only view account data
	RoleReadOnly Role = "read-only"
)

// IsValidRole checks if the role is one of the predefined valid roles
func IsValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleMember, RoleReadOnly:
		return true
	default:
		return false
	}
}

// RoleCanRead checks if this role can view account data
func RoleCanRead(r Role) bool {
	switch r {
	case RoleAdmin, RoleMember, RoleReadOnly:
		return true
	default:
		return false
	}
}

// RoleCanEdit checks if this role can modify account data
func RoleCanEdit(r Role) bool {
	switch r {
	case RoleAdmin, RoleMember:
		return true
	default:
		return false
	}
}

// RoleCanManage checks if this role administers members and invitations
func RoleCanManage(r Role) bool {
	return r == RoleAdmin
}

// RoleIsAtLeast checks if the role meets the minimum required level
func RoleIsAtLeast(r, minRole Role) bool {
	hierarchy := map[Role]int{
		RoleReadOnly: 0,
		RoleMember:   1,
		RoleAdmin:    2,
	}

	current, ok := hierarchy[r]
	if !ok {
		return false
	}

	min, ok := hierarchy[minRole]
	if !ok {
		return false
	}

	return current >= min
}

// AllRoles returns all predefined roles in hierarchical order
func AllRoles() []Role {
	return []Role{
		RoleReadOnly,
		RoleMember,
		RoleAdmin,
	}
}
