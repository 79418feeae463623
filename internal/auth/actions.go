package auth

// Primary roles stored on LocalUser.Role and used as Casbin subjects.
const (
	RoleAdmin   = "Admin"
	RoleManager = "Manager"
	RoleStaff   = "Staff"
)

// Authorization objects
const (
	ObjectSync    = "sync"
	ObjectUsers   = "users"
	ObjectProfile = "profile"
)

// Authorization actions
const (
	// ActionRead allows reading the object (last sync run, user list, own profile)
	ActionRead = "read"

	// ActionTrigger allows starting a directory sync on demand
	ActionTrigger = "trigger"
)

// DefaultPolicies is the built-in policy, as Casbin lines (ptype first).
// Role inheritance runs Admin -> Manager -> Staff.
func DefaultPolicies() [][]string {
	return [][]string{
		{"p", RoleAdmin, ObjectSync, ActionTrigger},
		{"p", RoleManager, ObjectSync, ActionRead},
		{"p", RoleManager, ObjectUsers, ActionRead},
		{"p", RoleStaff, ObjectProfile, ActionRead},
		{"g", RoleAdmin, RoleManager},
		{"g", RoleManager, RoleStaff},
	}
}
