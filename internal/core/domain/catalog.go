package domain

// SystemRole identifies a catalog-seeded role whose name, deletion, and
// deactivation are protected. The engine treats this catalog as
// read-only input: well-known names come from here, never from callers.
type SystemRole int

const (
	SystemRoleAdmin SystemRole = iota
	SystemRoleHRManager
	SystemRoleDepartmentManager
	SystemRoleUser
)

// SystemRoleInfo carries the canonical attributes of a catalog role.
type SystemRoleInfo struct {
	Name        string
	Description string
	Priority    int
}

var systemRoles = map[SystemRole]SystemRoleInfo{
	SystemRoleAdmin:             {Name: "SystemAdmin", Description: "Full administrative access", Priority: 100},
	SystemRoleHRManager:         {Name: "HRManager", Description: "Manages employees across departments", Priority: 80},
	SystemRoleDepartmentManager: {Name: "DepartmentManager", Description: "Manages a single department", Priority: 60},
	SystemRoleUser:              {Name: "User", Description: "Regular employee access", Priority: 40},
}

// Info returns the catalog entry for the kind.
func (k SystemRole) Info() (SystemRoleInfo, bool) {
	info, ok := systemRoles[k]
	return info, ok
}

// RoleName returns the well-known name, empty for unknown kinds.
func (k SystemRole) RoleName() string {
	return systemRoles[k].Name
}

// SystemPermissionNames lists the permission names seeded by the static
// catalog. Seeding itself happens outside the engine.
var SystemPermissionNames = []string{
	"Employee.View",
	"Employee.Create",
	"Employee.Update",
	"Employee.Delete",
	"Employee.Export",
	"Employee.Import",
	"Employee.View.Salary",
	"Employee.Update.Salary",
	"Department.View",
	"Department.Create",
	"Department.Update",
	"Department.Delete",
	"Department.Manage",
	"Report.View",
	"Report.Export",
	"Report.Execute",
	"Role.Manage",
	"Permission.Manage",
	"System.Configure",
}
