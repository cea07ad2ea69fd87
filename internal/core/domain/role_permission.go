package domain

import "time"

// RolePermission is the time-bounded association "role R carries
// permission P". IsGranted=false is an explicit revocation, distinct
// from the row being absent; revoked rows stay around as audit trail.
type RolePermission struct {
	ID           string
	RoleID       string
	PermissionID string
	IsGranted    bool
	GrantedAt    time.Time
	GrantedBy    string
	ExpiresAt    *time.Time
	Comment      string
	UpdatedAt    *time.Time
	UpdatedBy    string
}

// Grant activates the association, stamping actor and time.
func (rp *RolePermission) Grant(grantedBy string, expiresAt *time.Time, comment string) {
	rp.IsGranted = true
	rp.GrantedAt = time.Now().UTC()
	rp.GrantedBy = grantedBy
	rp.ExpiresAt = expiresAt
	rp.Comment = comment
	rp.stamp(grantedBy)
}

// Revoke explicitly withdraws the grant. The row is kept.
func (rp *RolePermission) Revoke(revokedBy, comment string) {
	rp.IsGranted = false
	if comment != "" {
		rp.Comment = comment
	}
	rp.stamp(revokedBy)
}

// ExtendExpiry moves the expiry forward. The new expiry must lie in the
// future.
func (rp *RolePermission) ExtendExpiry(newExpiresAt time.Time, updatedBy string) error {
	if !newExpiresAt.After(time.Now().UTC()) {
		return NewValidationError("new expiry %s is not in the future", newExpiresAt.Format(time.RFC3339))
	}
	expiry := newExpiresAt.UTC()
	rp.ExpiresAt = &expiry
	rp.stamp(updatedBy)
	return nil
}

// IsExpired reports whether the optional expiry has passed.
func (rp *RolePermission) IsExpired() bool {
	return rp.ExpiresAt != nil && !rp.ExpiresAt.After(time.Now().UTC())
}

// IsCurrentlyValid reports whether the grant is in force right now.
// The referenced Permission's own active flag is checked where the row
// is resolved against it; see ResolvedRolePermission.
func (rp *RolePermission) IsCurrentlyValid() bool {
	return rp.IsGranted && !rp.IsExpired()
}

func (rp *RolePermission) stamp(updatedBy string) {
	now := time.Now().UTC()
	rp.UpdatedAt = &now
	rp.UpdatedBy = updatedBy
}

// ResolvedRolePermission is a RolePermission joined with its Permission
// at read time. Relations stay foreign-key pairs in storage; no entity
// holds a live back-reference.
type ResolvedRolePermission struct {
	RolePermission
	Permission Permission
}

// IsCurrentlyValid additionally requires the referenced permission to
// be active.
func (r ResolvedRolePermission) IsCurrentlyValid() bool {
	return r.RolePermission.IsCurrentlyValid() && r.Permission.IsActive
}
