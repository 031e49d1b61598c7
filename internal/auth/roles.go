package auth

import "strings"

// Role represents a dashboard user role.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleAliases = map[string]Role{
	"viewer":        RoleViewer,
	"user":          RoleViewer,
	"usuario":       RoleViewer,
	"user_role":     RoleViewer,
	"operator":      RoleOperator,
	"operador":      RoleOperator,
	"admin":         RoleAdmin,
	"administrador": RoleAdmin,
	"admin_role":    RoleAdmin,
}

// NormalizeRole maps a role claim, case-insensitively, onto a known role.
func NormalizeRole(value string) (Role, bool) {
	role, ok := roleAliases[strings.ToLower(strings.TrimSpace(value))]
	return role, ok
}

// RoleAtLeast returns true when role satisfies required role.
func RoleAtLeast(role Role, required Role) bool {
	return roleRank(role) >= roleRank(required)
}

func roleRank(role Role) int {
	switch role {
	case RoleViewer:
		return 1
	case RoleOperator:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}
