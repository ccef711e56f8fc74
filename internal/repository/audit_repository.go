package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert records an audit entry. Failures here must not abort the action
// being audited; callers log and continue.
func (r *AuditRepository) Insert(entry *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (username, action, resource, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	now := time.Now()
	err := r.db.QueryRow(query, entry.Username, entry.Action, entry.Resource, entry.Details, now).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	entry.CreatedAt = now
	return nil
}

// List retrieves the most recent audit entries up to limit
func (r *AuditRepository) List(limit int) ([]models.AuditLog, error) {
	query := `
		SELECT id, username, action, resource, details, created_at
		FROM audit_logs
		ORDER BY id DESC
		LIMIT $1
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditLog
	for rows.Next() {
		var e models.AuditLog
		if err := rows.Scan(&e.ID, &e.Username, &e.Action, &e.Resource, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
