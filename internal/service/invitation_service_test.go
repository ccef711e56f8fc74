package service

import (
	"testing"
	"time"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/apperrors"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
)

func TestIssueAndValidateInvitation(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)

	inv, err := svc.invitation.Issue("admin", []models.Role{models.RoleStudent, models.RoleReviewer}, time.Hour, "")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if inv.Code == "" {
		t.Fatal("Expected a code")
	}

	result, err := svc.invitation.Validate(inv.Code)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !result.Valid {
		t.Fatal("Expected code to be valid")
	}
	if len(result.Roles) != 2 {
		t.Errorf("Expected 2 roles, got %v", result.Roles)
	}
}

func TestIssueInvitationValidation(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)

	if _, err := svc.invitation.Issue("admin", nil, time.Hour, ""); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error for empty roles, got %v", err)
	}
	if _, err := svc.invitation.Issue("admin", []models.Role{"superuser"}, time.Hour, ""); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error for unknown role, got %v", err)
	}
	if _, err := svc.invitation.Issue("admin", []models.Role{models.RoleStudent}, -time.Hour, ""); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error for non-positive ttl, got %v", err)
	}
}

func TestValidateUnknownCode(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)

	result, err := svc.invitation.Validate("NOPE1234")
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if result.Valid {
		t.Error("Expected unknown code to be invalid")
	}
}

func TestValidateExpiredCode(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)

	_, err := db.Exec(
		`INSERT INTO invitations (code, roles, expires_at) VALUES ($1, $2, NOW() - INTERVAL '1 hour')`,
		"EXPIRED1", "student",
	)
	if err != nil {
		t.Fatalf("Failed to insert expired invitation: %v", err)
	}

	result, err := svc.invitation.Validate("EXPIRED1")
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if result.Valid {
		t.Error("Expected expired code to be invalid")
	}

	// Expired codes cannot be redeemed either.
	if _, err := svc.invitation.Redeem("EXPIRED1"); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error redeeming expired code, got %v", err)
	}
}

func TestRedeemIsSingleUse(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)

	inv, err := svc.invitation.Issue("admin", []models.Role{models.RoleStudent}, time.Hour, "")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	roles, err := svc.invitation.Redeem(inv.Code)
	if err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}
	if len(roles) != 1 || roles[0] != models.RoleStudent {
		t.Errorf("Expected student role, got %v", roles)
	}

	if _, err := svc.invitation.Redeem(inv.Code); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error on second redemption, got %v", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)

	_, err := db.Exec(
		`INSERT INTO invitations (code, roles, expires_at) VALUES
			('DEAD0001', 'student', NOW() - INTERVAL '1 hour'),
			('DEAD0002', 'student', NOW() - INTERVAL '2 hours')`,
	)
	if err != nil {
		t.Fatalf("Failed to insert expired invitations: %v", err)
	}
	if _, err := svc.invitation.Issue("admin", []models.Role{models.RoleStudent}, time.Hour, ""); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	purged, err := svc.invitation.PurgeExpired()
	if err != nil {
		t.Fatalf("PurgeExpired failed: %v", err)
	}
	if purged != 2 {
		t.Errorf("Expected 2 purged invitations, got %d", purged)
	}

	var remaining int
	if err := db.QueryRow(`SELECT COUNT(*) FROM invitations`).Scan(&remaining); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if remaining != 1 {
		t.Errorf("Expected 1 remaining invitation, got %d", remaining)
	}
}
