package auth

import (
	"strings"
)

// Role names carried in the session token's user_roles claim.
const (
	RoleAdmin    = "admin"
	RoleMitglied = "mitglied"
)

// HasRole reports whether the claim set grants the requested role.
// Admins implicitly hold the member role.
func (c SessionClaims) HasRole(role string) bool {
	wanted := strings.ToLower(strings.TrimSpace(role))
	for _, held := range c.UserRoles {
		held = strings.ToLower(strings.TrimSpace(held))
		if held == wanted {
			return true
		}
		if held == RoleAdmin && wanted == RoleMitglied {
			return true
		}
	}
	return false
}
