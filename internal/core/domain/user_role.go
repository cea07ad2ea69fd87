package domain

import (
	"math"
	"time"
)

// DefaultExpiryWarningDays is used when a caller does not supply a
// warning window for NeedsExpiryWarning.
const DefaultExpiryWarningDays = 7

// UserRole is the time-bounded association "user U holds role R".
// Revocation flips IsActive rather than deleting the row, so the record
// doubles as audit trail.
type UserRole struct {
	ID         string
	UserID     string
	RoleID     string
	IsActive   bool
	IsPrimary  bool
	AssignedAt time.Time
	AssignedBy string
	ExpiresAt  *time.Time
	Comment    string
	UpdatedAt  *time.Time
	UpdatedBy  string
}

// Grant activates the assignment, stamping actor and time.
func (ur *UserRole) Grant(assignedBy string, expiresAt *time.Time, comment string) {
	ur.IsActive = true
	ur.AssignedAt = time.Now().UTC()
	ur.AssignedBy = assignedBy
	ur.ExpiresAt = expiresAt
	ur.Comment = comment
	ur.stamp(assignedBy)
}

// Revoke deactivates the assignment. The row is kept.
func (ur *UserRole) Revoke(revokedBy, comment string) {
	ur.IsActive = false
	ur.IsPrimary = false
	if comment != "" {
		ur.Comment = comment
	}
	ur.stamp(revokedBy)
}

// ExtendExpiry moves the expiry forward. The new expiry must lie in the
// future.
func (ur *UserRole) ExtendExpiry(newExpiresAt time.Time, updatedBy string) error {
	if !newExpiresAt.After(time.Now().UTC()) {
		return NewValidationError("new expiry %s is not in the future", newExpiresAt.Format(time.RFC3339))
	}
	expiry := newExpiresAt.UTC()
	ur.ExpiresAt = &expiry
	ur.stamp(updatedBy)
	return nil
}

// SetAsPrimary marks this assignment as the user's principal role.
// The single-primary invariant across a user's assignments is enforced
// by the repository under its per-user critical section.
func (ur *UserRole) SetAsPrimary(updatedBy string) {
	ur.IsPrimary = true
	ur.stamp(updatedBy)
}

// UnsetAsPrimary demotes the assignment.
func (ur *UserRole) UnsetAsPrimary(updatedBy string) {
	ur.IsPrimary = false
	ur.stamp(updatedBy)
}

// IsExpired reports whether the optional expiry has passed.
func (ur *UserRole) IsExpired() bool {
	return ur.ExpiresAt != nil && !ur.ExpiresAt.After(time.Now().UTC())
}

// IsCurrentlyValid reports whether the assignment is in force right
// now. The referenced Role's own active flag is checked where the row
// is resolved against it; see ResolvedUserRole.
func (ur *UserRole) IsCurrentlyValid() bool {
	return ur.IsActive && !ur.IsExpired()
}

// RemainingDays returns the whole days until expiry, nil when the
// assignment never expires and zero when it already has.
func (ur *UserRole) RemainingDays() *int {
	if ur.ExpiresAt == nil {
		return nil
	}
	days := int(math.Ceil(time.Until(*ur.ExpiresAt).Hours() / 24))
	if days < 0 {
		days = 0
	}
	return &days
}

// NeedsExpiryWarning reports whether the assignment expires within the
// warning window. Non-positive warningDays falls back to the default.
func (ur *UserRole) NeedsExpiryWarning(warningDays int) bool {
	if warningDays <= 0 {
		warningDays = DefaultExpiryWarningDays
	}
	remaining := ur.RemainingDays()
	if remaining == nil {
		return false
	}
	return ur.IsCurrentlyValid() && *remaining <= warningDays
}

func (ur *UserRole) stamp(updatedBy string) {
	now := time.Now().UTC()
	ur.UpdatedAt = &now
	ur.UpdatedBy = updatedBy
}

// AssignmentImportance ranks an assignment for display ordering only;
// it never feeds an authorization decision.
type AssignmentImportance int

const (
	ImportanceInactive AssignmentImportance = iota
	ImportanceOrdinary
	ImportanceTemporary
	ImportanceSystem
	ImportancePrimary
)

// Importance classifies the assignment against its resolved role:
// inactive lowest, primary highest, otherwise system over temporary
// over ordinary.
func (ur *UserRole) Importance(role Role) AssignmentImportance {
	switch {
	case !ur.IsCurrentlyValid() || !role.IsActive:
		return ImportanceInactive
	case ur.IsPrimary:
		return ImportancePrimary
	case role.IsSystemRole:
		return ImportanceSystem
	case ur.ExpiresAt != nil:
		return ImportanceTemporary
	default:
		return ImportanceOrdinary
	}
}

// ResolvedUserRole is a UserRole joined with its Role at read time.
type ResolvedUserRole struct {
	UserRole
	Role Role
}

// IsCurrentlyValid additionally requires the referenced role to be
// active.
func (r ResolvedUserRole) IsCurrentlyValid() bool {
	return r.UserRole.IsCurrentlyValid() && r.Role.IsActive
}
