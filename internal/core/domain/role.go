package domain

import "time"

// Role is a named, prioritized collection of permission grants.
// Higher Priority means more senior.
type Role struct {
	ID           string
	Name         string
	Description  string
	Priority     int
	IsSystemRole bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    *time.Time
	UpdatedBy    string
}

// Update overwrites the mutable fields. Renaming a system role is
// rejected; no field changes when an error is returned.
func (r *Role) Update(name, description string, priority int, isActive bool, updatedBy string) error {
	if r.IsSystemRole && name != r.Name {
		return NewInvariantViolation("system role %q cannot be renamed", r.Name)
	}
	if r.IsSystemRole && !isActive {
		return NewInvariantViolation("system role %q cannot be deactivated", r.Name)
	}

	r.Name = name
	r.Description = description
	r.Priority = priority
	r.IsActive = isActive
	r.stamp(updatedBy)
	return nil
}

// Activate marks the role active again.
func (r *Role) Activate(updatedBy string) {
	r.IsActive = true
	r.stamp(updatedBy)
}

// Deactivate retires the role. System roles stay active.
func (r *Role) Deactivate(updatedBy string) error {
	if r.IsSystemRole {
		return NewInvariantViolation("system role %q cannot be deactivated", r.Name)
	}
	r.IsActive = false
	r.stamp(updatedBy)
	return nil
}

// CanBeDeleted reports whether the role may be physically removed given
// the number of active UserRole rows still referencing it.
func (r *Role) CanBeDeleted(activeAssignments int) bool {
	return !r.IsSystemRole && activeAssignments == 0
}

func (r *Role) stamp(updatedBy string) {
	now := time.Now().UTC()
	r.UpdatedAt = &now
	r.UpdatedBy = updatedBy
}
