package service

import (
	"testing"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/apperrors"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/testutil"
)

func TestRegister(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)

	user, err := svc.identity.Register("alice", "password1", []models.Role{models.RoleStudent, models.RoleReviewer})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("Expected username alice, got %s", user.Username)
	}

	roles, err := svc.identity.GetRoles("alice")
	if err != nil {
		t.Fatalf("GetRoles failed: %v", err)
	}
	if len(roles) != 2 {
		t.Errorf("Expected 2 roles, got %d: %v", len(roles), roles)
	}
}

func TestRegisterValidation(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)

	tests := []struct {
		name     string
		username string
		password string
		roles    []models.Role
	}{
		{"empty username", "", "password1", []models.Role{models.RoleStudent}},
		{"short password", "bob", "short", []models.Role{models.RoleStudent}},
		{"bad username characters", "bob smith", "password1", []models.Role{models.RoleStudent}},
		{"unknown role", "bob", "password1", []models.Role{"superuser"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.identity.Register(tt.username, tt.password, tt.roles)
			if !apperrors.IsValidation(err) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)

	if _, err := svc.identity.Register("alice", "password1", []models.Role{models.RoleStudent}); err != nil {
		t.Fatalf("First registration failed: %v", err)
	}

	_, err := svc.identity.Register("alice", "password2", []models.Role{models.RoleStudent})
	if !apperrors.IsConflict(err) {
		t.Errorf("Expected conflict error for duplicate username, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)

	if _, err := svc.identity.Register("alice", "password1", []models.Role{models.RoleStudent}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	token, user, err := svc.identity.Login("alice", "password1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if token == "" {
		t.Error("Expected a token")
	}
	if len(user.Roles) != 1 || user.Roles[0] != models.RoleStudent {
		t.Errorf("Expected student role, got %v", user.Roles)
	}

	if _, _, err := svc.identity.Login("alice", "wrong-password"); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error for wrong password, got %v", err)
	}
	if _, _, err := svc.identity.Login("nobody", "password1"); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error for unknown user, got %v", err)
	}
}

func TestRevokeOwnAdminRole(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)

	err := svc.identity.RevokeRole(f.Admin, f.Admin, models.RoleAdmin)
	if !apperrors.IsInvariant(err) {
		t.Errorf("Expected invariant error for self-revocation, got %v", err)
	}
}

func TestRevokeLastAdmin(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)

	// Only one admin exists; removing its admin role must be refused
	// regardless of who asks.
	err := svc.identity.RevokeRole("someone-else", f.Admin, models.RoleAdmin)
	if !apperrors.IsInvariant(err) {
		t.Fatalf("Expected invariant error for last admin, got %v", err)
	}

	// With a second admin the revocation goes through.
	testutil.CreateUser(t, db, "admin2", models.RoleAdmin)
	if err := svc.identity.RevokeRole("admin2", f.Admin, models.RoleAdmin); err != nil {
		t.Fatalf("Expected revocation to succeed with two admins: %v", err)
	}

	has, err := svc.identity.HasRole(f.Admin, models.RoleAdmin)
	if err != nil {
		t.Fatalf("HasRole failed: %v", err)
	}
	if has {
		t.Error("Expected admin role to be gone")
	}
}

func TestRevokeUnassignedRole(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)

	err := svc.identity.RevokeRole(f.Admin, f.Student, models.RoleReviewer)
	if !apperrors.IsNotFound(err) {
		t.Errorf("Expected not-found error for unassigned role, got %v", err)
	}
}

func TestDeleteLastAdmin(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)

	err := svc.identity.DeleteUser(f.Admin, f.Admin)
	if !apperrors.IsInvariant(err) {
		t.Fatalf("Expected invariant error deleting the last admin, got %v", err)
	}

	// Deleting a non-admin works and cascades their role assignments.
	if err := svc.identity.DeleteUser(f.Admin, f.Student); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	exists, err := svc.identity.UserExists(f.Student)
	if err != nil {
		t.Fatalf("UserExists failed: %v", err)
	}
	if exists {
		t.Error("Expected student to be deleted")
	}
}

func TestOneTimePasswordFlow(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)

	otp, err := svc.identity.SetOneTimePassword(f.Admin, f.Student)
	if err != nil {
		t.Fatalf("SetOneTimePassword failed: %v", err)
	}
	if otp == "" {
		t.Fatal("Expected a plaintext one-time password")
	}

	if err := svc.identity.RedeemOneTimePassword(f.Student, "wrong-otp", "newpassword1"); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error for wrong OTP, got %v", err)
	}

	if err := svc.identity.RedeemOneTimePassword(f.Student, otp, "newpassword1"); err != nil {
		t.Fatalf("RedeemOneTimePassword failed: %v", err)
	}

	// Single use: the same OTP cannot be redeemed twice.
	if err := svc.identity.RedeemOneTimePassword(f.Student, otp, "anotherpass1"); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error on second redemption, got %v", err)
	}

	if _, _, err := svc.identity.Login(f.Student, "newpassword1"); err != nil {
		t.Errorf("Expected login with new password to succeed: %v", err)
	}
}

func TestUpdatePassword(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)

	if err := svc.identity.UpdatePassword(f.Student, "wrong", "newpassword1"); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error for wrong current password, got %v", err)
	}

	if err := svc.identity.UpdatePassword(f.Student, "password1", "newpassword1"); err != nil {
		t.Fatalf("UpdatePassword failed: %v", err)
	}
	if _, _, err := svc.identity.Login(f.Student, "newpassword1"); err != nil {
		t.Errorf("Expected login with new password to succeed: %v", err)
	}
}
