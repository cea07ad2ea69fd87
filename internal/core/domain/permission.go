package domain

import (
	"strings"
	"time"
)

// Permission describes one grantable capability, named
// "Module.Action" or "Module.Action.Resource".
type Permission struct {
	ID                 string
	Name               string
	Description        string
	Module             string
	Action             PermissionAction
	Resource           string
	IsSystemPermission bool
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          *time.Time
	UpdatedBy          string
}

// ParsePermissionName splits a permission name into its module, action,
// and optional resource segments.
func ParsePermissionName(name string) (module string, action PermissionAction, resource string, err error) {
	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return "", "", "", NewValidationError("permission name %q must have at least Module.Action segments", name)
	}
	if len(parts) > 3 {
		return "", "", "", NewValidationError("permission name %q has too many segments", name)
	}

	module = parts[0]
	if module == "" {
		return "", "", "", NewValidationError("permission name %q has an empty module segment", name)
	}

	action, err = ParseAction(parts[1])
	if err != nil {
		return "", "", "", err
	}

	if len(parts) == 3 {
		resource = parts[2]
		if resource == "" {
			return "", "", "", NewValidationError("permission name %q has an empty resource segment", name)
		}
	}

	return module, action, resource, nil
}

// GeneratePermissionName is the inverse of ParsePermissionName: the
// generated name parses back to the same (module, action, resource).
func GeneratePermissionName(module string, action PermissionAction, resource string) (string, error) {
	module = strings.TrimSpace(module)
	if module == "" {
		return "", NewValidationError("permission module is required")
	}
	if strings.Contains(module, ".") {
		return "", NewValidationError("permission module %q must not contain dots", module)
	}
	if !action.IsValid() {
		return "", NewValidationError("unknown permission action %q", string(action))
	}
	if strings.Contains(resource, ".") {
		return "", NewValidationError("permission resource %q must not contain dots", resource)
	}

	name := module + "." + string(action)
	if resource != "" {
		name += "." + resource
	}
	return name, nil
}

// Update overwrites the mutable fields. Renaming a system permission is
// rejected; no field changes when an error is returned.
func (p *Permission) Update(name, description, module string, action PermissionAction, resource string, isActive bool, updatedBy string) error {
	if p.IsSystemPermission && name != p.Name {
		return NewInvariantViolation("system permission %q cannot be renamed", p.Name)
	}
	if p.IsSystemPermission && !isActive {
		return NewInvariantViolation("system permission %q cannot be deactivated", p.Name)
	}
	if !action.IsValid() {
		return NewValidationError("unknown permission action %q", string(action))
	}

	p.Name = name
	p.Description = description
	p.Module = module
	p.Action = action
	p.Resource = resource
	p.IsActive = isActive
	p.stamp(updatedBy)
	return nil
}

// Activate marks the permission active again.
func (p *Permission) Activate(updatedBy string) {
	p.IsActive = true
	p.stamp(updatedBy)
}

// Deactivate retires the permission. System permissions stay active.
func (p *Permission) Deactivate(updatedBy string) error {
	if p.IsSystemPermission {
		return NewInvariantViolation("system permission %q cannot be deactivated", p.Name)
	}
	p.IsActive = false
	p.stamp(updatedBy)
	return nil
}

// CanBeDeleted reports whether the permission may be physically removed
// given the number of RolePermission rows still referencing it.
func (p *Permission) CanBeDeleted(referenceCount int) bool {
	return !p.IsSystemPermission && referenceCount == 0
}

func (p *Permission) stamp(updatedBy string) {
	now := time.Now().UTC()
	p.UpdatedAt = &now
	p.UpdatedBy = updatedBy
}
