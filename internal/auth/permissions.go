package auth

// Permission is a named capability.
type Permission string

// Permissions.
const (
	PermRead    Permission = "station:read"
	PermOperate Permission = "station:operate"
)

// rolePermissions is the single source of truth for what each role may do.
var rolePermissions = map[Role][]Permission{
	RoleViewer:   {PermRead},
	RoleOperator: {PermRead, PermOperate},
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}
