// Package auth - roles.go defines the organization role hierarchy and the
// permission checks used by the membership middleware.
package auth

// Role is an organization membership role
type Role string

// Roles in ascending order of privilege. Every org action requires the acting
// member to hold at least the listed role.
const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// Rank returns the role's position in the hierarchy; unknown roles rank below
// member so a corrupted value never grants access
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	default:
		return 0
	}
}

// Valid reports whether r is one of the defined roles
func (r Role) Valid() bool {
	return r == RoleMember || r == RoleAdmin || r == RoleOwner
}

// AtLeast reports whether r carries the privileges of required
func (r Role) AtLeast(required Role) bool {
	return r.Rank() >= required.Rank()
}

// CanManageMembers reports whether the role may invite, remove, or re-role
// other members
func (r Role) CanManageMembers() bool {
	return r.AtLeast(RoleAdmin)
}

// CanManageOrganization reports whether the role may edit org settings or
// delete the organization
func (r Role) CanManageOrganization() bool {
	return r == RoleOwner
}

// CanAssign reports whether a member holding r may grant the target role.
// Admins cannot mint owners or other admins; only owners can.
func (r Role) CanAssign(target Role) bool {
	if !target.Valid() {
		return false
	}
	if r == RoleOwner {
		return true
	}
	return r == RoleAdmin && target == RoleMember
}
