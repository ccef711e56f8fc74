package handlers

import (
	"net/http"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/middleware"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/service"
)

// AuthHandler handles registration and authentication requests
type AuthHandler struct {
	identityService   *service.IdentityService
	invitationService *service.InvitationService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(identityService *service.IdentityService, invitationService *service.InvitationService) *AuthHandler {
	return &AuthHandler{
		identityService:   identityService,
		invitationService: invitationService,
	}
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	InvitationCode string `json:"invitation_code"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ChangePasswordRequest represents a password change request
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ResetPasswordRequest redeems a one-time password for a new password
type ResetPasswordRequest struct {
	Username        string `json:"username"`
	OneTimePassword string `json:"one_time_password"`
	NewPassword     string `json:"new_password"`
}

// Register handles user registration with an invitation code
// @Summary Register a new user
// @Description Create an account using a single-use invitation code; the code determines the granted roles
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration details"
// @Success 201 {object} models.UserWithRoles
// @Failure 400 {object} map[string]string "Invalid request or invitation code"
// @Failure 409 {object} map[string]string "Username taken"
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// Check the username before consuming the code so a taken name does not
	// burn the invitation.
	exists, err := h.identityService.UserExists(req.Username)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if exists {
		respondWithError(w, http.StatusConflict, "Username is taken")
		return
	}

	roles, err := h.invitationService.Redeem(req.InvitationCode)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	user, err := h.identityService.Register(req.Username, req.Password, roles)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusCreated, user)
}

// Login handles user login
// @Summary Log in
// @Description Verify credentials and receive a bearer token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} map[string]interface{} "Token and user"
// @Failure 400 {object} map[string]string "Invalid credentials"
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, user, err := h.identityService.Login(req.Username, req.Password)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

// ChangePassword changes the authenticated user's password
// @Summary Change password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body ChangePasswordRequest true "Passwords"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /auth/password [put]
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.GetUsername(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return
	}

	var req ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.identityService.UpdatePassword(username, req.CurrentPassword, req.NewPassword); err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]string{"message": "Password updated"})
}

// ResetPassword redeems a one-time password and sets a new password
// @Summary Reset password with a one-time password
// @Description The one-time password is consumed atomically; a second attempt with the same value fails
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body ResetPasswordRequest true "Reset details"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /auth/password/reset [post]
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.identityService.RedeemOneTimePassword(req.Username, req.OneTimePassword, req.NewPassword); err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]string{"message": "Password reset"})
}
