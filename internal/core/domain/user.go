package domain

import "time"

// User carries the identity fields the authorization engine consumes.
// The full employee profile lives outside this engine.
type User struct {
	ID          string
	Username    string
	DisplayName string
	IsActive    bool

	// Deprecated: IsAdmin predates role-based authorization. It is kept
	// only so IsSystemAdmin answers the same way the legacy checks did;
	// the SystemAdmin role is the intended source of truth. See the
	// migration note in DESIGN.md.
	IsAdmin bool

	CreatedAt time.Time
}
