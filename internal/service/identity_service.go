package service

import (
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/apperrors"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/auth"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/repository"
)

const (
	maxUsernameLength     = 50
	minPasswordLength     = 8
	oneTimePasswordLength = 8
)

// IdentityService handles accounts, credentials and role assignments
type IdentityService struct {
	db       *sql.DB
	userRepo *repository.UserRepository
	roleRepo *repository.RoleRepository
	auth     *auth.Service
	audit    *AuditService
}

// NewIdentityService creates a new identity service
func NewIdentityService(
	db *sql.DB,
	userRepo *repository.UserRepository,
	roleRepo *repository.RoleRepository,
	authService *auth.Service,
	audit *AuditService,
) *IdentityService {
	return &IdentityService{
		db:       db,
		userRepo: userRepo,
		roleRepo: roleRepo,
		auth:     authService,
		audit:    audit,
	}
}

// Register creates a user and grants the given roles in one transaction.
// Either the account exists with all its roles or nothing was written.
func (s *IdentityService) Register(username, password string, roles []models.Role) (*models.UserWithRoles, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, apperrors.Validation("password must be at least %d characters", minPasswordLength)
	}
	for _, role := range roles {
		if !models.IsValidRole(string(role)) {
			return nil, apperrors.Validation("unknown role %q", role)
		}
	}

	hash, err := s.auth.HashPassword(password)
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to hash password")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	user := &models.User{Username: username, PasswordHash: hash}
	if err := s.userRepo.CreateTx(tx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, apperrors.Conflict("username %q is taken", username)
		}
		return nil, apperrors.Persistence(err, "failed to create user")
	}

	for _, role := range roles {
		if err := s.roleRepo.AssignTx(tx, username, role); err != nil {
			return nil, apperrors.Persistence(err, "failed to assign role %s", role)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Persistence(err, "failed to commit registration")
	}

	slog.Info("User registered", "username", username, "roles", roles)
	return &models.UserWithRoles{User: *user, Roles: roles}, nil
}

// Login verifies credentials and issues a token. Missing users and wrong
// passwords are indistinguishable to the caller.
func (s *IdentityService) Login(username, password string) (string, *models.UserWithRoles, error) {
	user, err := s.userRepo.GetByUsername(username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil, apperrors.Validation("invalid credentials")
		}
		return "", nil, apperrors.Persistence(err, "failed to load user")
	}

	if err := s.auth.VerifyPassword(user.PasswordHash, password); err != nil {
		return "", nil, apperrors.Validation("invalid credentials")
	}

	roles, err := s.roleRepo.GetRolesForUser(username)
	if err != nil {
		return "", nil, apperrors.Persistence(err, "failed to load roles")
	}

	token, err := s.auth.GenerateToken(username)
	if err != nil {
		return "", nil, apperrors.Persistence(err, "failed to issue token")
	}

	return token, &models.UserWithRoles{User: *user, Roles: roles}, nil
}

// UserExists reports whether the username is taken
func (s *IdentityService) UserExists(username string) (bool, error) {
	exists, err := s.userRepo.Exists(username)
	if err != nil {
		return false, apperrors.Persistence(err, "failed to check username")
	}
	return exists, nil
}

// AssignRole grants a role to a user
func (s *IdentityService) AssignRole(actor, username string, role models.Role) error {
	if !models.IsValidRole(string(role)) {
		return apperrors.Validation("unknown role %q", role)
	}

	exists, err := s.userRepo.Exists(username)
	if err != nil {
		return apperrors.Persistence(err, "failed to check user")
	}
	if !exists {
		return apperrors.NotFound("user %q not found", username)
	}

	if err := s.roleRepo.Assign(username, role); err != nil {
		if errors.Is(err, repository.ErrRoleAssigned) {
			return apperrors.Conflict("user %q already holds role %s", username, role)
		}
		return apperrors.Persistence(err, "failed to assign role")
	}

	s.audit.Record(actor, "role.assign", "user/"+username, string(role))
	slog.Info("Role assigned", "actor", actor, "username", username, "role", role)
	return nil
}

// RevokeRole removes a role from a user. Two invariants are enforced for the
// admin role: an admin cannot revoke their own admin role, and the last admin
// assignment in the system cannot be removed. The admin count is taken under
// row locks in the same transaction as the delete so concurrent revokes
// cannot race past each other.
func (s *IdentityService) RevokeRole(actor, username string, role models.Role) error {
	if !models.IsValidRole(string(role)) {
		return apperrors.Validation("unknown role %q", role)
	}
	if role == models.RoleAdmin && actor == username {
		return apperrors.Invariant("admins cannot revoke their own admin role")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Persistence(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if role == models.RoleAdmin {
		count, err := s.roleRepo.CountAdminsTx(tx)
		if err != nil {
			return apperrors.Persistence(err, "failed to count admins")
		}
		held, err := s.roleRepo.AdminRolesHeldByTx(tx, username)
		if err != nil {
			return apperrors.Persistence(err, "failed to check admin role")
		}
		if held > 0 && count <= 1 {
			return apperrors.Invariant("cannot remove the last admin")
		}
	}

	if err := s.roleRepo.RevokeTx(tx, username, role); err != nil {
		if errors.Is(err, repository.ErrRoleNotAssigned) {
			return apperrors.NotFound("user %q does not hold role %s", username, role)
		}
		return apperrors.Persistence(err, "failed to revoke role")
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Persistence(err, "failed to commit revocation")
	}

	s.audit.Record(actor, "role.revoke", "user/"+username, string(role))
	slog.Info("Role revoked", "actor", actor, "username", username, "role", role)
	return nil
}

// SetOneTimePassword generates and stores a one-time password for the user
// and returns the plaintext for out-of-band delivery. Any previously stored
// one-time password is replaced.
func (s *IdentityService) SetOneTimePassword(actor, username string) (string, error) {
	exists, err := s.userRepo.Exists(username)
	if err != nil {
		return "", apperrors.Persistence(err, "failed to check user")
	}
	if !exists {
		return "", apperrors.NotFound("user %q not found", username)
	}

	otp, err := auth.GenerateOneTimePassword(oneTimePasswordLength)
	if err != nil {
		return "", apperrors.Persistence(err, "failed to generate one-time password")
	}

	if err := s.userRepo.SetOneTimePassword(username, otp); err != nil {
		return "", apperrors.Persistence(err, "failed to store one-time password")
	}

	s.audit.Record(actor, "user.otp_set", "user/"+username, "")
	return otp, nil
}

// RedeemOneTimePassword consumes a one-time password and sets a new regular
// password. The compare-and-clear is a single statement, so of two concurrent
// redeemers at most one succeeds.
func (s *IdentityService) RedeemOneTimePassword(username, otp, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return apperrors.Validation("password must be at least %d characters", minPasswordLength)
	}

	ok, err := s.userRepo.RedeemOneTimePassword(username, otp)
	if err != nil {
		return apperrors.Persistence(err, "failed to redeem one-time password")
	}
	if !ok {
		return apperrors.Validation("invalid one-time password")
	}

	hash, err := s.auth.HashPassword(newPassword)
	if err != nil {
		return apperrors.Persistence(err, "failed to hash password")
	}
	if err := s.userRepo.UpdatePassword(username, hash); err != nil {
		return apperrors.Persistence(err, "failed to update password")
	}

	slog.Info("One-time password redeemed", "username", username)
	return nil
}

// UpdatePassword changes a user's password after verifying the current one
func (s *IdentityService) UpdatePassword(username, currentPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return apperrors.Validation("password must be at least %d characters", minPasswordLength)
	}

	user, err := s.userRepo.GetByUsername(username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperrors.NotFound("user %q not found", username)
		}
		return apperrors.Persistence(err, "failed to load user")
	}

	if err := s.auth.VerifyPassword(user.PasswordHash, currentPassword); err != nil {
		return apperrors.Validation("current password is incorrect")
	}

	hash, err := s.auth.HashPassword(newPassword)
	if err != nil {
		return apperrors.Persistence(err, "failed to hash password")
	}
	if err := s.userRepo.UpdatePassword(username, hash); err != nil {
		return apperrors.Persistence(err, "failed to update password")
	}

	return nil
}

// ListUsersWithRoles retrieves every user together with their roles
func (s *IdentityService) ListUsersWithRoles() ([]models.UserWithRoles, error) {
	users, err := s.userRepo.GetAllWithRoles()
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to list users")
	}
	return users, nil
}

// GetRoles retrieves a user's roles
func (s *IdentityService) GetRoles(username string) ([]models.Role, error) {
	roles, err := s.roleRepo.GetRolesForUser(username)
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to load roles")
	}
	return roles, nil
}

// HasRole reports whether a user holds a role
func (s *IdentityService) HasRole(username string, role models.Role) (bool, error) {
	has, err := s.roleRepo.HasRole(username, role)
	if err != nil {
		return false, apperrors.Persistence(err, "failed to check role")
	}
	return has, nil
}

// DeleteUser removes an account. Role assignments, trust edges and reviewer
// requests go via FK cascade. Deleting the last admin is refused under the
// same row locks RevokeRole takes.
func (s *IdentityService) DeleteUser(actor, username string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Persistence(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	count, err := s.roleRepo.CountAdminsTx(tx)
	if err != nil {
		return apperrors.Persistence(err, "failed to count admins")
	}
	held, err := s.roleRepo.AdminRolesHeldByTx(tx, username)
	if err != nil {
		return apperrors.Persistence(err, "failed to check admin role")
	}
	if held > 0 && count-held < 1 {
		return apperrors.Invariant("cannot delete the last admin")
	}

	if err := s.userRepo.DeleteTx(tx, username); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperrors.NotFound("user %q not found", username)
		}
		return apperrors.Persistence(err, "failed to delete user")
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Persistence(err, "failed to commit deletion")
	}

	s.audit.Record(actor, "user.delete", "user/"+username, "")
	slog.Info("User deleted", "actor", actor, "username", username)
	return nil
}

// CheckRoleIntegrity scans for role assignments outside the allow-list and
// logs any it finds. The CHECK constraint makes drift impossible for rows
// written by this service; the scan guards data migrated from elsewhere.
func (s *IdentityService) CheckRoleIntegrity() ([]models.RoleAssignment, error) {
	invalid, err := s.roleRepo.FindInvalidRoleAssignments()
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to scan role assignments")
	}

	for _, a := range invalid {
		slog.Warn("Invalid role assignment", "username", a.Username, "role", a.Role)
	}

	return invalid, nil
}

func validateUsername(username string) error {
	if username == "" {
		return apperrors.Validation("username is required")
	}
	if len(username) > maxUsernameLength {
		return apperrors.Validation("username must be at most %d characters", maxUsernameLength)
	}
	for _, r := range username {
		if !isUsernameRune(r) {
			return apperrors.Validation("username may only contain letters, digits, dots, dashes and underscores")
		}
	}
	return nil
}

func isUsernameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '-', r == '_':
		return true
	}
	return false
}
