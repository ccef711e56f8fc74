package handlers

import (
	"net/http"
	"strconv"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/middleware"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/service"
)

// UserHandler handles user and role administration requests
type UserHandler struct {
	identityService *service.IdentityService
	auditService    *service.AuditService
}

// NewUserHandler creates a new user handler
func NewUserHandler(identityService *service.IdentityService, auditService *service.AuditService) *UserHandler {
	return &UserHandler{
		identityService: identityService,
		auditService:    auditService,
	}
}

// RoleRequest names a role on a user
type RoleRequest struct {
	Role string `json:"role"`
}

// ListUsers lists all users with their roles
// @Summary List users
// @Tags Administration
// @Produce json
// @Success 200 {array} models.UserWithRoles
// @Security BearerAuth
// @Router /admin/users [get]
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.identityService.ListUsersWithRoles()
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, users)
}

// AssignRole grants a role to a user
// @Summary Assign a role
// @Tags Administration
// @Accept json
// @Produce json
// @Param username path string true "Username"
// @Param request body RoleRequest true "Role"
// @Success 200 {object} map[string]string
// @Failure 409 {object} map[string]string "Role already assigned"
// @Security BearerAuth
// @Router /admin/users/{username}/roles [post]
func (h *UserHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUsername(r)
	username := r.PathValue("username")

	var req RoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.identityService.AssignRole(actor, username, models.Role(req.Role)); err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]string{"message": "Role assigned"})
}

// RevokeRole removes a role from a user
// @Summary Revoke a role
// @Description Refuses to remove the last admin or the caller's own admin role
// @Tags Administration
// @Produce json
// @Param username path string true "Username"
// @Param role path string true "Role"
// @Success 200 {object} map[string]string
// @Failure 409 {object} map[string]string "Invariant violation"
// @Security BearerAuth
// @Router /admin/users/{username}/roles/{role} [delete]
func (h *UserHandler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUsername(r)
	username := r.PathValue("username")
	role := r.PathValue("role")

	if err := h.identityService.RevokeRole(actor, username, models.Role(role)); err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]string{"message": "Role revoked"})
}

// DeleteUser removes an account
// @Summary Delete a user
// @Tags Administration
// @Produce json
// @Param username path string true "Username"
// @Success 200 {object} map[string]string
// @Failure 409 {object} map[string]string "Would remove the last admin"
// @Security BearerAuth
// @Router /admin/users/{username} [delete]
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUsername(r)
	username := r.PathValue("username")

	if err := h.identityService.DeleteUser(actor, username); err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]string{"message": "User deleted"})
}

// SetOneTimePassword issues a one-time password for a user
// @Summary Issue a one-time password
// @Description Returns the plaintext for out-of-band delivery; replaces any previous one
// @Tags Administration
// @Produce json
// @Param username path string true "Username"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /admin/users/{username}/one-time-password [post]
func (h *UserHandler) SetOneTimePassword(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUsername(r)
	username := r.PathValue("username")

	otp, err := h.identityService.SetOneTimePassword(actor, username)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]string{"one_time_password": otp})
}

// CheckRoleIntegrity scans for role assignments outside the allow-list
// @Summary Scan role assignments for invalid roles
// @Tags Administration
// @Produce json
// @Success 200 {array} models.RoleAssignment
// @Security BearerAuth
// @Router /admin/roles/integrity [get]
func (h *UserHandler) CheckRoleIntegrity(w http.ResponseWriter, r *http.Request) {
	invalid, err := h.identityService.CheckRoleIntegrity()
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if invalid == nil {
		invalid = []models.RoleAssignment{}
	}
	JSONResponse(w, http.StatusOK, invalid)
}

// ListAuditLog retrieves recent audit entries
// @Summary List audit entries
// @Tags Administration
// @Produce json
// @Param limit query int false "Maximum entries" default(100)
// @Success 200 {array} models.AuditLog
// @Security BearerAuth
// @Router /admin/audit [get]
func (h *UserHandler) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	entries, err := h.auditService.List(limit)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if entries == nil {
		entries = []models.AuditLog{}
	}
	JSONResponse(w, http.StatusOK, entries)
}
