package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleOwner           = "owner"
	RoleMember          = "member"
	RoleFinance         = "finance"
	RoleSuperAdmin      = "super_admin"
	RoleSupportOperator = "support_operator" // hidden role
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsHiddenRole(role string) bool { return role == RoleSupportOperator }
