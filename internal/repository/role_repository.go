package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
)

var (
	ErrRoleAssigned    = errors.New("role already assigned")
	ErrRoleNotAssigned = errors.New("role not assigned")
)

// RoleRepository handles role-assignment database operations
type RoleRepository struct {
	db *sql.DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *sql.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Assign adds a role to a user
func (r *RoleRepository) Assign(username string, role models.Role) error {
	query := `
		INSERT INTO role_assignments (username, role, created_at)
		VALUES ($1, $2, $3)
	`

	_, err := r.db.Exec(query, username, string(role), time.Now())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRoleAssigned
		}
		return fmt.Errorf("failed to assign role: %w", err)
	}

	return nil
}

// AssignTx adds a role inside an existing transaction, ignoring duplicates
func (r *RoleRepository) AssignTx(tx *sql.Tx, username string, role models.Role) error {
	query := `
		INSERT INTO role_assignments (username, role, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`

	if _, err := tx.Exec(query, username, string(role), time.Now()); err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}

	return nil
}

// RevokeTx removes a role inside an existing transaction
func (r *RoleRepository) RevokeTx(tx *sql.Tx, username string, role models.Role) error {
	result, err := tx.Exec(
		`DELETE FROM role_assignments WHERE username = $1 AND role = $2`,
		username, string(role),
	)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrRoleNotAssigned
	}

	return nil
}

// GetRolesForUser retrieves all roles assigned to a user
func (r *RoleRepository) GetRolesForUser(username string) ([]models.Role, error) {
	rows, err := r.db.Query(
		`SELECT role FROM role_assignments WHERE username = $1 ORDER BY role`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles: %w", err)
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, models.Role(role))
	}

	return roles, rows.Err()
}

// HasRole reports whether the user holds the given role
func (r *RoleRepository) HasRole(username string, role models.Role) (bool, error) {
	var exists bool
	err := r.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM role_assignments WHERE username = $1 AND role = $2)`,
		username, string(role),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	return exists, nil
}

// CountAdminsTx counts admin assignments inside an existing transaction,
// locking the rows so a concurrent revoke cannot drop the last admin.
func (r *RoleRepository) CountAdminsTx(tx *sql.Tx) (int, error) {
	rows, err := tx.Query(
		`SELECT username FROM role_assignments WHERE role = $1 FOR UPDATE`,
		string(models.RoleAdmin),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return 0, fmt.Errorf("failed to scan admin row: %w", err)
		}
		count++
	}

	return count, rows.Err()
}

// AdminRolesHeldByTx returns how many of the locked admin assignments belong
// to the given user. Used together with CountAdminsTx when deleting a user.
func (r *RoleRepository) AdminRolesHeldByTx(tx *sql.Tx, username string) (int, error) {
	var count int
	err := tx.QueryRow(
		`SELECT COUNT(*) FROM role_assignments WHERE role = $1 AND username = $2`,
		string(models.RoleAdmin), username,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count admin roles for user: %w", err)
	}
	return count, nil
}

// FindInvalidRoleAssignments returns rows whose role is outside the
// allow-list. The CHECK constraint should make this impossible; the scan
// exists to detect drift in data migrated from elsewhere.
func (r *RoleRepository) FindInvalidRoleAssignments() ([]models.RoleAssignment, error) {
	valid := make([]string, len(models.AllRoles))
	for i, role := range models.AllRoles {
		valid[i] = string(role)
	}

	query := `
		SELECT username, role, created_at
		FROM role_assignments
		WHERE NOT (role = ANY($1))
	`

	rows, err := r.db.Query(query, pq.Array(valid))
	if err != nil {
		return nil, fmt.Errorf("failed to scan for invalid roles: %w", err)
	}
	defer rows.Close()

	var assignments []models.RoleAssignment
	for rows.Next() {
		var a models.RoleAssignment
		var role string
		if err := rows.Scan(&a.Username, &role, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		a.Role = models.Role(role)
		assignments = append(assignments, a)
	}

	return assignments, rows.Err()
}
