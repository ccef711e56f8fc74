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
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// UserRepository handles user database operations
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateTx creates a new user inside an existing transaction
func (r *UserRepository) CreateTx(tx *sql.Tx, user *models.User) error {
	query := `
		INSERT INTO users (username, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`

	now := time.Now()
	_, err := tx.Exec(query, user.Username, user.PasswordHash, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(username string) (*models.User, error) {
	query := `
		SELECT username, password_hash, one_time_password, created_at, updated_at
		FROM users
		WHERE username = $1
	`

	user := &models.User{}
	err := r.db.QueryRow(query, username).Scan(
		&user.Username,
		&user.PasswordHash,
		&user.OneTimePassword,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// UpdatePassword replaces the stored password hash
func (r *UserRepository) UpdatePassword(username, passwordHash string) error {
	query := `UPDATE users SET password_hash = $1, updated_at = $2 WHERE username = $3`

	result, err := r.db.Exec(query, passwordHash, time.Now(), username)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrUserNotFound
	}

	return nil
}

// SetOneTimePassword stores a one-time password for the user
func (r *UserRepository) SetOneTimePassword(username, otp string) error {
	query := `UPDATE users SET one_time_password = $1, updated_at = $2 WHERE username = $3`

	result, err := r.db.Exec(query, otp, time.Now(), username)
	if err != nil {
		return fmt.Errorf("failed to set one-time password: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrUserNotFound
	}

	return nil
}

// RedeemOneTimePassword compares and clears the one-time password in a single
// statement. Two concurrent redeemers cannot both succeed: only the statement
// that matches the stored value clears it and reports a row affected.
func (r *UserRepository) RedeemOneTimePassword(username, otp string) (bool, error) {
	query := `
		UPDATE users
		SET one_time_password = NULL, updated_at = $1
		WHERE username = $2 AND one_time_password = $3
	`

	result, err := r.db.Exec(query, time.Now(), username, otp)
	if err != nil {
		return false, fmt.Errorf("failed to redeem one-time password: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read redeem result: %w", err)
	}

	return rows > 0, nil
}

// DeleteTx deletes a user inside an existing transaction. Role assignments,
// trusted-reviewer rows and reviewer requests go with it via FK cascade.
func (r *UserRepository) DeleteTx(tx *sql.Tx, username string) error {
	result, err := tx.Exec(`DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetAllWithRoles retrieves every user together with their role assignments
func (r *UserRepository) GetAllWithRoles() ([]models.UserWithRoles, error) {
	query := `
		SELECT u.username, u.password_hash, u.one_time_password, u.created_at, u.updated_at,
		       COALESCE(ra.role, '')
		FROM users u
		LEFT JOIN role_assignments ra ON ra.username = u.username
		ORDER BY u.username, ra.role
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var result []models.UserWithRoles
	index := make(map[string]int)

	for rows.Next() {
		var user models.User
		var role string
		if err := rows.Scan(&user.Username, &user.PasswordHash, &user.OneTimePassword,
			&user.CreatedAt, &user.UpdatedAt, &role); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}

		i, ok := index[user.Username]
		if !ok {
			result = append(result, models.UserWithRoles{User: user, Roles: []models.Role{}})
			i = len(result) - 1
			index[user.Username] = i
		}
		if role != "" {
			result[i].Roles = append(result[i].Roles, models.Role(role))
		}
	}

	return result, rows.Err()
}

// Exists reports whether a user with the given username exists
func (r *UserRepository) Exists(username string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}
