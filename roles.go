package authsync

import "strings"

// Role distinguishes consumer accounts from partner (kitchen) accounts.
type Role string

const (
	RoleUser    Role = "user"
	RolePartner Role = "partner"
)

// IsValid checks if the role is one of the known account roles
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RolePartner:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer
func (r Role) String() string {
	return string(r)
}

// CanBrowseFeed reports whether the role sees the reel feed on the home page
func (r Role) CanBrowseFeed() bool {
	return r == RoleUser
}

// CanManageMenu reports whether the role can use the partner dashboard
func (r Role) CanManageMenu() bool {
	return r == RolePartner
}

// ParseRole safely parses a string into a Role
func ParseRole(roleStr string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(roleStr)))
	return role, role.IsValid()
}

// GetAllRoles returns every known role
func GetAllRoles() []Role {
	return []Role{RoleUser, RolePartner}
}

// ResolveRole derives the account role of raw.
//
// Explicit hints win over structure: the envelope's accountType/role first,
// then the user's own role/accountType. Without a usable hint the presence
// of a partner-only attribute (contactName or address) means partner,
// anything else is a user.
func ResolveRole(raw *RawUser, env Envelope) Role {
	hints := []string{env.AccountType, env.Role}
	if raw != nil {
		hints = append(hints, raw.Role, raw.AccountType)
	}

	for _, hint := range hints {
		if role, ok := ParseRole(hint); ok {
			return role
		}
	}

	if raw != nil && (strings.TrimSpace(raw.ContactName) != "" || strings.TrimSpace(raw.Address) != "") {
		return RolePartner
	}

	return RoleUser
}
