package domain

import (
	"sort"
	"strings"
)

// PrimaryRole returns the first currently-valid assignment marked
// primary. The repository keeps at most one such entry per user; the
// scan tolerates momentarily stale extras by picking the first in
// priority order.
func PrimaryRole(entries []ResolvedUserRole) (ResolvedUserRole, bool) {
	for _, entry := range sortedByPrivilege(entries) {
		if entry.IsCurrentlyValid() && entry.IsPrimary {
			return entry, true
		}
	}
	return ResolvedUserRole{}, false
}

// HighestPrivilegeRole returns the currently-valid assignment whose
// role has the highest priority. Equal priorities order by role ID so
// the answer is deterministic.
func HighestPrivilegeRole(entries []ResolvedUserRole) (ResolvedUserRole, bool) {
	for _, entry := range sortedByPrivilege(entries) {
		if entry.IsCurrentlyValid() {
			return entry, true
		}
	}
	return ResolvedUserRole{}, false
}

// ValidEntries filters the assignments down to those in force right now.
func ValidEntries(entries []ResolvedUserRole) []ResolvedUserRole {
	valid := make([]ResolvedUserRole, 0, len(entries))
	for _, entry := range entries {
		if entry.IsCurrentlyValid() {
			valid = append(valid, entry)
		}
	}
	return valid
}

// RoleHasPermission reports whether any currently-valid grant in the
// role's resolved permission set matches the permission name. Names
// compare case-insensitively.
func RoleHasPermission(grants []ResolvedRolePermission, permissionName string) bool {
	for _, grant := range grants {
		if grant.IsCurrentlyValid() && strings.EqualFold(grant.Permission.Name, permissionName) {
			return true
		}
	}
	return false
}

// IsSystemAdmin reports whether the user is a system administrator:
// either a currently-valid holder of the catalog's SystemAdmin role, or
// carrying the deprecated legacy admin flag. Both sources are kept and
// ORed for behavioral parity; reconciling them is a migration decision
// recorded in DESIGN.md.
func IsSystemAdmin(user User, entries []ResolvedUserRole) bool {
	if user.IsAdmin {
		return true
	}

	adminName := SystemRoleAdmin.RoleName()
	for _, entry := range entries {
		if entry.IsCurrentlyValid() && strings.EqualFold(entry.Role.Name, adminName) {
			return true
		}
	}
	return false
}

func sortedByPrivilege(entries []ResolvedUserRole) []ResolvedUserRole {
	sorted := make([]ResolvedUserRole, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Role.Priority != sorted[j].Role.Priority {
			return sorted[i].Role.Priority > sorted[j].Role.Priority
		}
		return sorted[i].Role.ID < sorted[j].Role.ID
	})
	return sorted
}
