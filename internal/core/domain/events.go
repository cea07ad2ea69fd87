package domain

import "time"

// RoleAssignedEvent records a role being assigned (or re-activated) for
// a user.
type RoleAssignedEvent struct {
	EventID    string
	UserID     string
	RoleID     string
	RoleName   string
	IsPrimary  bool
	AssignedBy string
	AssignedAt time.Time
	ExpiresAt  *time.Time
	Metadata   map[string]any
}

// RoleRevokedEvent records a role assignment being deactivated.
type RoleRevokedEvent struct {
	EventID   string
	UserID    string
	RoleID    string
	RoleName  string
	RevokedBy string
	RevokedAt time.Time
	Reason    string
	Metadata  map[string]any
}

// RolePermissionsReconciledEvent records a bulk replacement of a role's
// permission set.
type RolePermissionsReconciledEvent struct {
	EventID      string
	RoleID       string
	RoleName     string
	GrantedIDs   []string
	RevokedIDs   []string
	UpdatedBy    string
	ReconciledAt time.Time
	Metadata     map[string]any
}
