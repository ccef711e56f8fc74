package service

import (
	"log/slog"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/apperrors"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/repository"
)

// AuditService records administrative and destructive actions
type AuditService struct {
	auditRepo *repository.AuditRepository
}

// NewAuditService creates a new audit service
func NewAuditService(auditRepo *repository.AuditRepository) *AuditService {
	return &AuditService{auditRepo: auditRepo}
}

// Record writes an audit entry. A failed write is logged and swallowed so the
// audited action itself never fails on account of the trail.
func (s *AuditService) Record(username, action, resource, details string) {
	entry := &models.AuditLog{
		Action:   action,
		Resource: resource,
		Details:  details,
	}
	if username != "" {
		entry.Username = &username
	}

	if err := s.auditRepo.Insert(entry); err != nil {
		slog.Error("Failed to write audit entry", "error", err, "action", action, "resource", resource)
	}
}

// List retrieves the most recent audit entries
func (s *AuditService) List(limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	entries, err := s.auditRepo.List(limit)
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to list audit entries")
	}

	return entries, nil
}
