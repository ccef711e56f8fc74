package handlers

import (
	"net/http"
	"time"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/middleware"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/service"
)

// InvitationHandler handles invitation-code requests
type InvitationHandler struct {
	invitationService *service.InvitationService
}

// NewInvitationHandler creates a new invitation handler
func NewInvitationHandler(invitationService *service.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitationService: invitationService}
}

// IssueInvitationRequest represents an invitation issue request
type IssueInvitationRequest struct {
	Roles    []string `json:"roles"`
	TTLHours int      `json:"ttl_hours"`
	EmailTo  string   `json:"email_to,omitempty"`
}

// Issue creates a new invitation code
// @Summary Issue an invitation code
// @Description Creates a single-use code granting the given roles, optionally mailing it out
// @Tags Invitations
// @Accept json
// @Produce json
// @Param request body IssueInvitationRequest true "Invitation details"
// @Success 201 {object} models.Invitation
// @Failure 409 {object} map[string]string "Code space exhausted"
// @Security BearerAuth
// @Router /admin/invitations [post]
func (h *InvitationHandler) Issue(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUsername(r)

	var req IssueInvitationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	roles := make([]models.Role, len(req.Roles))
	for i, role := range req.Roles {
		roles[i] = models.Role(role)
	}

	ttl := time.Duration(req.TTLHours) * time.Hour

	inv, err := h.invitationService.Issue(actor, roles, ttl, req.EmailTo)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusCreated, inv)
}

// Validate checks an invitation code without consuming it
// @Summary Validate an invitation code
// @Description Unknown and expired codes both come back invalid
// @Tags Invitations
// @Produce json
// @Param code path string true "Invitation code"
// @Success 200 {object} models.InvitationValidation
// @Router /invitations/{code}/validate [get]
func (h *InvitationHandler) Validate(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	result, err := h.invitationService.Validate(code)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, result)
}
