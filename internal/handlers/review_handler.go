package handlers

import (
	"net/http"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/apperrors"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/middleware"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/service"
)

// ReviewHandler handles review, trust and reviewer-request requests
type ReviewHandler struct {
	reviewService   *service.ReviewService
	identityService *service.IdentityService
}

// NewReviewHandler creates a new review handler
func NewReviewHandler(reviewService *service.ReviewService, identityService *service.IdentityService) *ReviewHandler {
	return &ReviewHandler{
		reviewService:   reviewService,
		identityService: identityService,
	}
}

// SubmitReviewRequest represents a new review
type SubmitReviewRequest struct {
	TargetType string `json:"target_type"`
	TargetID   int64  `json:"target_id"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment"`
}

// ReviseReviewRequest represents a review revision
type ReviseReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// TrustRequest sets a trust weight on a reviewer
type TrustRequest struct {
	Weight int `json:"weight"`
}

// Submit starts a new review chain
// @Summary Submit a review
// @Description One chain per reviewer and target; a second submission must go through revise
// @Tags Reviews
// @Accept json
// @Produce json
// @Param request body SubmitReviewRequest true "Review"
// @Success 201 {object} models.Review
// @Failure 409 {object} map[string]string "Already reviewed"
// @Security BearerAuth
// @Router /reviews [post]
func (h *ReviewHandler) Submit(w http.ResponseWriter, r *http.Request) {
	reviewer, ok := middleware.GetUsername(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return
	}

	var req SubmitReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	review, err := h.reviewService.SubmitReview(reviewer,
		models.ReviewTargetType(req.TargetType), req.TargetID, req.Rating, req.Comment)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusCreated, review)
}

// Revise appends a new version to a review chain
// @Summary Revise a review
// @Description The superseded version keeps its row; the new version points back at it
// @Tags Reviews
// @Accept json
// @Produce json
// @Param id path int true "Review ID of the current latest version"
// @Param request body ReviseReviewRequest true "Revision"
// @Success 201 {object} models.Review
// @Failure 409 {object} map[string]string "Already superseded"
// @Security BearerAuth
// @Router /reviews/{id}/revise [post]
func (h *ReviewHandler) Revise(w http.ResponseWriter, r *http.Request) {
	reviewer, _ := middleware.GetUsername(r)
	id, ok := pathID(w, r, "id", ErrMsgInvalidReviewID)
	if !ok {
		return
	}

	var req ReviseReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	revision, err := h.reviewService.ReviseReview(reviewer, id, req.Rating, req.Comment)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusCreated, revision)
}

// DeleteChain removes every version connected to a review
// @Summary Delete a review chain
// @Tags Reviews
// @Produce json
// @Param id path int true "Any review ID in the chain"
// @Success 200 {object} map[string]int64 "Number of versions removed"
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /reviews/{id} [delete]
func (h *ReviewHandler) DeleteChain(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUsername(r)
	id, ok := pathID(w, r, "id", ErrMsgInvalidReviewID)
	if !ok {
		return
	}

	isAdmin, err := h.identityService.HasRole(actor, models.RoleAdmin)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	removed, err := h.reviewService.DeleteReviewChain(actor, isAdmin, id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]int64{"removed": removed})
}

// ListForTarget retrieves every reviewer's latest review of a target
// @Summary List latest reviews of a target
// @Tags Reviews
// @Produce json
// @Param type path string true "Target type" Enums(question, answer)
// @Param id path int true "Target ID"
// @Success 200 {array} models.Review
// @Router /targets/{type}/{id}/reviews [get]
func (h *ReviewHandler) ListForTarget(w http.ResponseWriter, r *http.Request) {
	targetType, id, ok := targetParams(w, r)
	if !ok {
		return
	}

	reviews, err := h.reviewService.ListLatestForTarget(targetType, id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if reviews == nil {
		reviews = []models.Review{}
	}
	JSONResponse(w, http.StatusOK, reviews)
}

// GetChain retrieves the full version history of one reviewer's review
// @Summary Get a review chain
// @Tags Reviews
// @Produce json
// @Param type path string true "Target type" Enums(question, answer)
// @Param id path int true "Target ID"
// @Param reviewer path string true "Reviewer username"
// @Success 200 {array} models.Review
// @Failure 404 {object} map[string]string
// @Router /targets/{type}/{id}/reviews/{reviewer}/chain [get]
func (h *ReviewHandler) GetChain(w http.ResponseWriter, r *http.Request) {
	targetType, id, ok := targetParams(w, r)
	if !ok {
		return
	}
	reviewer := r.PathValue("reviewer")

	chain, err := h.reviewService.GetChain(reviewer, targetType, id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, chain)
}

// GetLatest retrieves the latest version of one reviewer's review
// @Summary Get a reviewer's latest review of a target
// @Tags Reviews
// @Produce json
// @Param type path string true "Target type" Enums(question, answer)
// @Param id path int true "Target ID"
// @Param reviewer path string true "Reviewer username"
// @Success 200 {object} models.Review
// @Failure 404 {object} map[string]string
// @Router /targets/{type}/{id}/reviews/{reviewer} [get]
func (h *ReviewHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	targetType, id, ok := targetParams(w, r)
	if !ok {
		return
	}
	reviewer := r.PathValue("reviewer")

	review, err := h.reviewService.GetLatest(reviewer, targetType, id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, review)
}

// Aggregate computes the caller's trust-weighted rating of a target
// @Summary Aggregate ratings by trust weight
// @Description Only latest reviews by reviewers the caller trusts contribute; ok=false when none do
// @Tags Reviews
// @Produce json
// @Param type path string true "Target type" Enums(question, answer)
// @Param id path int true "Target ID"
// @Success 200 {object} models.AggregatedRating
// @Security BearerAuth
// @Router /targets/{type}/{id}/rating [get]
func (h *ReviewHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	student, ok := middleware.GetUsername(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return
	}
	targetType, id, ok := targetParams(w, r)
	if !ok {
		return
	}

	rating, err := h.reviewService.AggregateRating(student, targetType, id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, rating)
}

// Trust sets the weight the caller assigns to a reviewer
// @Summary Trust a reviewer
// @Tags Trust
// @Accept json
// @Produce json
// @Param reviewer path string true "Reviewer username"
// @Param request body TrustRequest true "Weight 1-5"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /trusted-reviewers/{reviewer} [put]
func (h *ReviewHandler) Trust(w http.ResponseWriter, r *http.Request) {
	student, _ := middleware.GetUsername(r)
	reviewer := r.PathValue("reviewer")

	var req TrustRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.reviewService.TrustReviewer(student, reviewer, req.Weight); err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]string{"message": "Reviewer trusted"})
}

// Untrust removes the caller's trust in a reviewer
// @Summary Untrust a reviewer
// @Tags Trust
// @Produce json
// @Param reviewer path string true "Reviewer username"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /trusted-reviewers/{reviewer} [delete]
func (h *ReviewHandler) Untrust(w http.ResponseWriter, r *http.Request) {
	student, _ := middleware.GetUsername(r)
	reviewer := r.PathValue("reviewer")

	if err := h.reviewService.UntrustReviewer(student, reviewer); err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]string{"message": "Reviewer untrusted"})
}

// ListTrusted retrieves the caller's trusted reviewers
// @Summary List trusted reviewers
// @Tags Trust
// @Produce json
// @Success 200 {array} models.TrustedReviewer
// @Security BearerAuth
// @Router /trusted-reviewers [get]
func (h *ReviewHandler) ListTrusted(w http.ResponseWriter, r *http.Request) {
	student, _ := middleware.GetUsername(r)

	trusted, err := h.reviewService.ListTrustedReviewers(student)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if trusted == nil {
		trusted = []models.TrustedReviewer{}
	}
	JSONResponse(w, http.StatusOK, trusted)
}

// RequestRole files the caller's application for the reviewer role
// @Summary Request the reviewer role
// @Tags Reviewer requests
// @Produce json
// @Success 201 {object} models.ReviewerRequest
// @Failure 409 {object} map[string]string
// @Security BearerAuth
// @Router /reviewer-requests [post]
func (h *ReviewHandler) RequestRole(w http.ResponseWriter, r *http.Request) {
	username, _ := middleware.GetUsername(r)

	req, err := h.reviewService.RequestReviewerRole(username)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusCreated, req)
}

// GetMyRequest retrieves the caller's reviewer request
// @Summary Get my reviewer request
// @Tags Reviewer requests
// @Produce json
// @Success 200 {object} models.ReviewerRequest
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /reviewer-requests/me [get]
func (h *ReviewHandler) GetMyRequest(w http.ResponseWriter, r *http.Request) {
	username, _ := middleware.GetUsername(r)

	req, err := h.reviewService.GetReviewerRequest(username)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, req)
}

// ResetMyRequest deletes the caller's reviewer request so they can reapply
// @Summary Reset my reviewer request
// @Tags Reviewer requests
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /reviewer-requests/me [delete]
func (h *ReviewHandler) ResetMyRequest(w http.ResponseWriter, r *http.Request) {
	username, _ := middleware.GetUsername(r)

	if err := h.reviewService.ResetReviewerRequest(username); err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]string{"message": "Request reset"})
}

// ListRequests retrieves reviewer requests by status
// @Summary List reviewer requests
// @Tags Reviewer requests
// @Produce json
// @Param status query string false "Status" Enums(pending, approved, denied) default(pending)
// @Success 200 {array} models.ReviewerRequest
// @Security BearerAuth
// @Router /admin/reviewer-requests [get]
func (h *ReviewHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = string(models.RequestPending)
	}

	requests, err := h.reviewService.ListReviewerRequests(models.ReviewerRequestStatus(status))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if requests == nil {
		requests = []models.ReviewerRequest{}
	}
	JSONResponse(w, http.StatusOK, requests)
}

// ApproveRequest approves a pending reviewer request
// @Summary Approve a reviewer request
// @Description Grants the reviewer role in the same transaction
// @Tags Reviewer requests
// @Produce json
// @Param username path string true "Applicant username"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /admin/reviewer-requests/{username}/approve [post]
func (h *ReviewHandler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.GetUsername(r)
	username := r.PathValue("username")

	if err := h.reviewService.ApproveReviewerRequest(admin, username); err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]string{"message": "Request approved"})
}

// DenyRequest denies a pending reviewer request
// @Summary Deny a reviewer request
// @Tags Reviewer requests
// @Produce json
// @Param username path string true "Applicant username"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /admin/reviewer-requests/{username}/deny [post]
func (h *ReviewHandler) DenyRequest(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.GetUsername(r)
	username := r.PathValue("username")

	if err := h.reviewService.DenyReviewerRequest(admin, username); err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]string{"message": "Request denied"})
}

// targetParams parses the {type} and {id} path parameters
func targetParams(w http.ResponseWriter, r *http.Request) (models.ReviewTargetType, int64, bool) {
	targetType := models.ReviewTargetType(r.PathValue("type"))
	if targetType != models.TargetQuestion && targetType != models.TargetAnswer {
		respondWithServiceError(w, apperrors.Validation("unknown target type %q", targetType))
		return "", 0, false
	}

	id, ok := pathID(w, r, "id", "Invalid target ID")
	if !ok {
		return "", 0, false
	}

	return targetType, id, true
}
