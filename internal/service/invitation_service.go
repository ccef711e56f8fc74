package service

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/apperrors"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/auth"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/config"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/email"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/repository"
)

// InvitationService issues and redeems single-use registration codes
type InvitationService struct {
	invitationRepo *repository.InvitationRepository
	emailService   *email.Service
	config         *config.InvitationConfig
	audit          *AuditService
}

// NewInvitationService creates a new invitation service
func NewInvitationService(
	invitationRepo *repository.InvitationRepository,
	emailService *email.Service,
	cfg *config.InvitationConfig,
	audit *AuditService,
) *InvitationService {
	return &InvitationService{
		invitationRepo: invitationRepo,
		emailService:   emailService,
		config:         cfg,
		audit:          audit,
	}
}

// Issue creates a new invitation code granting the given roles. Codes are
// short, so collisions with live codes happen; the loop regenerates up to
// MaxIssueAttempts times before giving up with a conflict error.
//
// recipientEmail is optional; when set and SMTP is configured, the code is
// mailed out after being persisted.
func (s *InvitationService) Issue(actor string, roles []models.Role, ttl time.Duration, recipientEmail string) (*models.Invitation, error) {
	if len(roles) == 0 {
		return nil, apperrors.Validation("at least one role is required")
	}
	for _, role := range roles {
		if !models.IsValidRole(string(role)) {
			return nil, apperrors.Validation("unknown role %q", role)
		}
	}
	if ttl <= 0 {
		return nil, apperrors.Validation("expiry must be in the future")
	}

	expiresAt := time.Now().Add(ttl)

	for attempt := 1; attempt <= s.config.MaxIssueAttempts; attempt++ {
		code, err := auth.GenerateInvitationCode(s.config.CodeLength)
		if err != nil {
			return nil, apperrors.Persistence(err, "failed to generate invitation code")
		}

		inv := &models.Invitation{Code: code, Roles: roles, ExpiresAt: expiresAt}
		err = s.invitationRepo.Create(inv)
		if errors.Is(err, repository.ErrCodeExists) {
			slog.Debug("Invitation code collision, regenerating", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, apperrors.Persistence(err, "failed to store invitation")
		}

		s.audit.Record(actor, "invitation.issue", "invitation/"+code, rolesString(roles))

		if recipientEmail != "" {
			if err := s.emailService.SendInvitationCode(recipientEmail, code, expiresAt); err != nil {
				// The code is already live; delivery failure is reported, not rolled back
				slog.Error("Failed to email invitation code", "error", err, "to", recipientEmail)
			}
		}

		return inv, nil
	}

	return nil, apperrors.Conflict("could not allocate a unique invitation code after %d attempts", s.config.MaxIssueAttempts)
}

// Validate checks a code without consuming it. Unknown and expired codes both
// come back invalid; the caller cannot tell which, and no error is raised.
func (s *InvitationService) Validate(code string) (*models.InvitationValidation, error) {
	inv, err := s.invitationRepo.GetByCode(code)
	if errors.Is(err, repository.ErrInvitationNotFound) {
		return &models.InvitationValidation{Valid: false}, nil
	}
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to look up invitation")
	}

	if time.Now().After(inv.ExpiresAt) {
		return &models.InvitationValidation{Valid: false}, nil
	}

	return &models.InvitationValidation{Valid: true, Roles: inv.Roles}, nil
}

// Redeem consumes a code and returns the roles it grants. Single use is
// enforced by deletion: of two concurrent redeemers only the one whose delete
// removes the row succeeds.
func (s *InvitationService) Redeem(code string) ([]models.Role, error) {
	inv, err := s.invitationRepo.GetByCode(code)
	if errors.Is(err, repository.ErrInvitationNotFound) {
		return nil, apperrors.Validation("invalid invitation code")
	}
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to look up invitation")
	}

	if time.Now().After(inv.ExpiresAt) {
		return nil, apperrors.Validation("invalid invitation code")
	}

	deleted, err := s.invitationRepo.Delete(code)
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to consume invitation")
	}
	if !deleted {
		// Raced by another redeemer between lookup and delete
		return nil, apperrors.Validation("invalid invitation code")
	}

	slog.Info("Invitation redeemed", "code", code, "roles", inv.Roles)
	return inv.Roles, nil
}

// PurgeExpired removes codes whose expiry is in the past. Called by the
// scheduler; redundant with the fail-closed expiry check but keeps the table
// from accumulating dead rows.
func (s *InvitationService) PurgeExpired() (int64, error) {
	purged, err := s.invitationRepo.DeleteExpired(time.Now())
	if err != nil {
		return 0, apperrors.Persistence(err, "failed to purge expired invitations")
	}

	if purged > 0 {
		slog.Info("Purged expired invitations", "count", purged)
	}
	return purged, nil
}

func rolesString(roles []models.Role) string {
	parts := make([]string, len(roles))
	for i, role := range roles {
		parts[i] = string(role)
	}
	return strings.Join(parts, ",")
}
