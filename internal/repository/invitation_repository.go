package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
)

var (
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrCodeExists         = errors.New("invitation code already exists")
)

// InvitationRepository handles invitation-code database operations
type InvitationRepository struct {
	db *sql.DB
}

// NewInvitationRepository creates a new invitation repository
func NewInvitationRepository(db *sql.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// Create inserts a new invitation code. Returns ErrCodeExists on collision so
// the caller can regenerate.
func (r *InvitationRepository) Create(inv *models.Invitation) error {
	query := `
		INSERT INTO invitations (code, roles, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`

	now := time.Now()
	_, err := r.db.Exec(query, inv.Code, joinRoles(inv.Roles), inv.ExpiresAt, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to create invitation: %w", err)
	}

	inv.CreatedAt = now
	return nil
}

// GetByCode retrieves an invitation by its code
func (r *InvitationRepository) GetByCode(code string) (*models.Invitation, error) {
	query := `
		SELECT code, roles, expires_at, created_at
		FROM invitations
		WHERE code = $1
	`

	inv := &models.Invitation{}
	var roles string
	err := r.db.QueryRow(query, code).Scan(&inv.Code, &roles, &inv.ExpiresAt, &inv.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	inv.Roles = splitRoles(roles)
	return inv, nil
}

// Delete removes an invitation code. Invitations are single-use by deletion:
// a redeemed code's value becomes available for future regeneration.
func (r *InvitationRepository) Delete(code string) (bool, error) {
	result, err := r.db.Exec(`DELETE FROM invitations WHERE code = $1`, code)
	if err != nil {
		return false, fmt.Errorf("failed to delete invitation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}

	return rows > 0, nil
}

// DeleteExpired removes every invitation whose expiry is in the past
func (r *InvitationRepository) DeleteExpired(now time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM invitations WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invitations: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read purge result: %w", err)
	}

	return rows, nil
}

func joinRoles(roles []models.Role) string {
	parts := make([]string, len(roles))
	for i, role := range roles {
		parts[i] = string(role)
	}
	return strings.Join(parts, ",")
}

func splitRoles(joined string) []models.Role {
	var roles []models.Role
	for _, part := range strings.Split(joined, ",") {
		if part = strings.TrimSpace(part); part != "" {
			roles = append(roles, models.Role(part))
		}
	}
	return roles
}
