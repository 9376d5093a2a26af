package session

import "strings"

// Role is a permission level with a total order:
// RoleUser < RoleAdmin < RoleSuperAdmin.
type Role string

const (
	RoleUser       Role = "User"
	RoleAdmin      Role = "Admin"
	RoleSuperAdmin Role = "SuperAdmin"
)

var roleRank = map[Role]int{
	RoleUser:       1,
	RoleAdmin:      2,
	RoleSuperAdmin: 3,
}

// AtLeast reports whether r satisfies a minimum-role requirement. It is
// not an exact match: an Admin satisfies AtLeast(RoleUser).
func (r Role) AtLeast(required Role) bool {
	return roleRank[r] >= roleRank[required]
}

// CanonicalRole maps a textual role value onto its canonical Role,
// case-insensitively. ok is false when the value was unrecognized and
// the RoleUser fallback applied.
func CanonicalRole(raw string) (role Role, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "superadmin":
		return RoleSuperAdmin, true
	case "admin":
		return RoleAdmin, true
	case "user":
		return RoleUser, true
	default:
		return RoleUser, false
	}
}

// NormalizeRole is CanonicalRole without the recognition flag.
func NormalizeRole(raw string) Role {
	role, _ := CanonicalRole(raw)
	return role
}
