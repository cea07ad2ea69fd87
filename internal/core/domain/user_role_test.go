package domain

import (
	"testing"
	"time"
)

func TestUserRoleGrantRevokeKeepsRow(t *testing.T) {
	assignment := UserRole{ID: "ur-1", UserID: "user-1", RoleID: "role-1"}

	assignment.Grant("admin", nil, "onboarding")
	if !assignment.IsActive || assignment.AssignedBy != "admin" || assignment.Comment != "onboarding" {
		t.Errorf("grant did not apply: %+v", assignment)
	}
	if !assignment.IsCurrentlyValid() {
		t.Error("granted assignment not valid")
	}

	assignment.IsPrimary = true
	assignment.Revoke("admin", "offboarding")
	if assignment.IsActive || assignment.IsPrimary {
		t.Errorf("revoke left flags set: %+v", assignment)
	}
	if assignment.Comment != "offboarding" {
		t.Errorf("revoke comment not recorded: %q", assignment.Comment)
	}
	if assignment.ID != "ur-1" {
		t.Error("revocation lost the row identity")
	}
}

func TestUserRoleRevokeKeepsCommentWhenBlank(t *testing.T) {
	assignment := UserRole{IsActive: true, Comment: "temporary cover"}
	assignment.Revoke("admin", "")
	if assignment.Comment != "temporary cover" {
		t.Errorf("blank revoke comment overwrote %q", assignment.Comment)
	}
}

func TestUserRoleExpiry(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(72 * time.Hour)

	expired := UserRole{IsActive: true, ExpiresAt: &past}
	if !expired.IsExpired() || expired.IsCurrentlyValid() {
		t.Error("past expiry still counted as valid")
	}

	active := UserRole{IsActive: true, ExpiresAt: &future}
	if active.IsExpired() || !active.IsCurrentlyValid() {
		t.Error("future expiry counted as expired")
	}

	open := UserRole{IsActive: true}
	if open.IsExpired() || open.RemainingDays() != nil {
		t.Error("open-ended assignment reported an expiry")
	}
}

func TestUserRoleExtendExpiry(t *testing.T) {
	assignment := UserRole{IsActive: true}

	past := time.Now().UTC().Add(-time.Minute)
	if err := assignment.ExtendExpiry(past, "admin"); !IsValidationError(err) {
		t.Fatalf("past expiry accepted: %v", err)
	}
	if assignment.ExpiresAt != nil {
		t.Error("failed extension set an expiry")
	}

	future := time.Now().UTC().Add(24 * time.Hour)
	if err := assignment.ExtendExpiry(future, "admin"); err != nil {
		t.Fatalf("ExtendExpiry: %v", err)
	}
	if assignment.ExpiresAt == nil || !assignment.ExpiresAt.Equal(future) {
		t.Errorf("expiry not moved: %v", assignment.ExpiresAt)
	}
}

func TestUserRoleRemainingDaysAndWarning(t *testing.T) {
	soon := time.Now().UTC().Add(48 * time.Hour)
	assignment := UserRole{IsActive: true, ExpiresAt: &soon}

	days := assignment.RemainingDays()
	if days == nil || *days != 2 {
		t.Fatalf("remaining days = %v, want 2", days)
	}
	if !assignment.NeedsExpiryWarning(7) {
		t.Error("assignment inside the window needs no warning")
	}
	if assignment.NeedsExpiryWarning(1) {
		t.Error("assignment outside the window needs a warning")
	}
	if !assignment.NeedsExpiryWarning(0) {
		t.Error("zero window did not fall back to the default")
	}

	past := time.Now().UTC().Add(-time.Hour)
	lapsed := UserRole{IsActive: true, ExpiresAt: &past}
	if days := lapsed.RemainingDays(); days == nil || *days != 0 {
		t.Errorf("lapsed remaining days = %v, want 0", days)
	}
	if lapsed.NeedsExpiryWarning(7) {
		t.Error("already-expired assignment still warns")
	}
}

func TestUserRoleImportanceOrdering(t *testing.T) {
	future := time.Now().UTC().Add(time.Hour)
	role := Role{IsActive: true}
	systemRole := Role{IsActive: true, IsSystemRole: true}

	cases := []struct {
		name string
		ur   UserRole
		role Role
		want AssignmentImportance
	}{
		{"inactive", UserRole{}, role, ImportanceInactive},
		{"inactive role", UserRole{IsActive: true}, Role{}, ImportanceInactive},
		{"ordinary", UserRole{IsActive: true}, role, ImportanceOrdinary},
		{"temporary", UserRole{IsActive: true, ExpiresAt: &future}, role, ImportanceTemporary},
		{"system", UserRole{IsActive: true}, systemRole, ImportanceSystem},
		{"primary", UserRole{IsActive: true, IsPrimary: true}, systemRole, ImportancePrimary},
	}
	for _, tc := range cases {
		if got := tc.ur.Importance(tc.role); got != tc.want {
			t.Errorf("%s: importance %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestResolvedUserRoleRequiresActiveRole(t *testing.T) {
	entry := ResolvedUserRole{
		UserRole: UserRole{IsActive: true},
		Role:     Role{IsActive: false},
	}
	if entry.IsCurrentlyValid() {
		t.Error("assignment against a retired role counted as valid")
	}
	entry.Role.IsActive = true
	if !entry.IsCurrentlyValid() {
		t.Error("assignment against an active role counted as invalid")
	}
}
