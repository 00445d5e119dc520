package rbac

const (
	RoleLearner    = "learner"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// Roles lists the roles an account may hold.
var Roles = []string{RoleLearner, RoleInstructor, RoleAdmin}

func ValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

var RolePermissions = map[string][]string{
	RoleLearner: {
		"exam:take",
		"result:view-own",
		"reservation:manage",
		"user:change_password",
	},
	RoleInstructor: {
		"exam:manage",
		"question:manage",
		"instance:manage",
		"result:view-all",
		"result:grade",
		"event:view",
		"reservation:manage",
		"user:change_password",
	},
	RoleAdmin: {
		"*",
	},
}
