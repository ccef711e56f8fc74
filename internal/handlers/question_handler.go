package handlers

import (
	"net/http"
	"strconv"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/middleware"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/service"
)

// QuestionHandler handles question and answer requests
type QuestionHandler struct {
	threadService   *service.ThreadService
	identityService *service.IdentityService
}

// NewQuestionHandler creates a new question handler
func NewQuestionHandler(threadService *service.ThreadService, identityService *service.IdentityService) *QuestionHandler {
	return &QuestionHandler{
		threadService:   threadService,
		identityService: identityService,
	}
}

// QuestionRequest represents a question create/update request
type QuestionRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// AnswerRequest represents an answer create request
type AnswerRequest struct {
	Content        string `json:"content"`
	ParentAnswerID *int64 `json:"parent_answer_id,omitempty"`
}

// AnswerUpdateRequest represents an answer update request
type AnswerUpdateRequest struct {
	Content string `json:"content"`
}

// AcceptAnswerRequest names the answer to accept
type AcceptAnswerRequest struct {
	AnswerID int64 `json:"answer_id"`
}

// ThreadResponse is a question with its nested answers
type ThreadResponse struct {
	Question *models.Question     `json:"question"`
	Answers  []*models.AnswerNode `json:"answers"`
}

// Create posts a new question
// @Summary Post a question
// @Tags Questions
// @Accept json
// @Produce json
// @Param request body QuestionRequest true "Question"
// @Success 201 {object} models.Question
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /questions [post]
func (h *QuestionHandler) Create(w http.ResponseWriter, r *http.Request) {
	author, ok := middleware.GetUsername(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return
	}

	var req QuestionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	q, err := h.threadService.CreateQuestion(author, req.Title, req.Content, req.Tags)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusCreated, q)
}

// List retrieves questions, optionally filtered by tag or keyword
// @Summary List questions
// @Description Without parameters lists all questions; ?tag= filters by tag, ?q= searches title, content and answers
// @Tags Questions
// @Produce json
// @Param tag query string false "Filter by tag"
// @Param q query string false "Search keyword"
// @Success 200 {array} models.Question
// @Router /questions [get]
func (h *QuestionHandler) List(w http.ResponseWriter, r *http.Request) {
	var questions []models.Question
	var err error

	switch {
	case r.URL.Query().Get("q") != "":
		questions, err = h.threadService.Search(r.URL.Query().Get("q"))
	case r.URL.Query().Get("tag") != "":
		questions, err = h.threadService.FilterByTag(r.URL.Query().Get("tag"))
	default:
		questions, err = h.threadService.ListQuestions()
	}
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if questions == nil {
		questions = []models.Question{}
	}
	JSONResponse(w, http.StatusOK, questions)
}

// GetThread retrieves a question with its answers nested by reply structure
// @Summary Get a question thread
// @Tags Questions
// @Produce json
// @Param id path int true "Question ID"
// @Success 200 {object} ThreadResponse
// @Failure 404 {object} map[string]string
// @Router /questions/{id} [get]
func (h *QuestionHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", ErrMsgInvalidQuestionID)
	if !ok {
		return
	}

	q, answers, err := h.threadService.LoadThread(id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if answers == nil {
		answers = []*models.AnswerNode{}
	}
	JSONResponse(w, http.StatusOK, ThreadResponse{Question: q, Answers: answers})
}

// Update replaces a question's title, content and tags
// @Summary Update a question
// @Description Only the author may update
// @Tags Questions
// @Accept json
// @Produce json
// @Param id path int true "Question ID"
// @Param request body QuestionRequest true "Question"
// @Success 200 {object} models.Question
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /questions/{id} [put]
func (h *QuestionHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUsername(r)
	id, ok := pathID(w, r, "id", ErrMsgInvalidQuestionID)
	if !ok {
		return
	}

	var req QuestionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	q, err := h.threadService.UpdateQuestion(actor, id, req.Title, req.Content, req.Tags)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, q)
}

// Delete removes a question, its answers and all reviews targeting them
// @Summary Delete a question
// @Description The author or an admin may delete; review chains targeting the question and its answers are removed in the same transaction
// @Tags Questions
// @Produce json
// @Param id path int true "Question ID"
// @Success 200 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /questions/{id} [delete]
func (h *QuestionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUsername(r)
	id, ok := pathID(w, r, "id", ErrMsgInvalidQuestionID)
	if !ok {
		return
	}

	isAdmin, err := h.identityService.HasRole(actor, models.RoleAdmin)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if err := h.threadService.DeleteQuestion(actor, isAdmin, id); err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]string{"message": "Question deleted"})
}

// Accept marks an answer as accepted
// @Summary Accept an answer
// @Tags Questions
// @Accept json
// @Produce json
// @Param id path int true "Question ID"
// @Param request body AcceptAnswerRequest true "Answer"
// @Success 200 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /questions/{id}/accept [post]
func (h *QuestionHandler) Accept(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUsername(r)
	id, ok := pathID(w, r, "id", ErrMsgInvalidQuestionID)
	if !ok {
		return
	}

	var req AcceptAnswerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.threadService.MarkAccepted(actor, id, req.AnswerID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]string{"message": "Answer accepted"})
}

// ClearAccepted removes the accepted-answer mark
// @Summary Clear the accepted answer
// @Tags Questions
// @Produce json
// @Param id path int true "Question ID"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /questions/{id}/accept [delete]
func (h *QuestionHandler) ClearAccepted(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUsername(r)
	id, ok := pathID(w, r, "id", ErrMsgInvalidQuestionID)
	if !ok {
		return
	}

	if err := h.threadService.ClearAccepted(actor, id); err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]string{"message": "Accepted answer cleared"})
}

// CreateAnswer posts an answer or reply
// @Summary Answer a question
// @Description Set parent_answer_id to reply to an existing answer of the same question
// @Tags Answers
// @Accept json
// @Produce json
// @Param id path int true "Question ID"
// @Param request body AnswerRequest true "Answer"
// @Success 201 {object} models.Answer
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /questions/{id}/answers [post]
func (h *QuestionHandler) CreateAnswer(w http.ResponseWriter, r *http.Request) {
	author, ok := middleware.GetUsername(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return
	}
	id, ok := pathID(w, r, "id", ErrMsgInvalidQuestionID)
	if !ok {
		return
	}

	var req AnswerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := h.threadService.CreateAnswer(author, id, req.Content, req.ParentAnswerID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusCreated, a)
}

// UpdateAnswer replaces an answer's content
// @Summary Update an answer
// @Tags Answers
// @Accept json
// @Produce json
// @Param id path int true "Answer ID"
// @Param request body AnswerUpdateRequest true "Content"
// @Success 200 {object} models.Answer
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /answers/{id} [put]
func (h *QuestionHandler) UpdateAnswer(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUsername(r)
	id, ok := pathID(w, r, "id", ErrMsgInvalidAnswerID)
	if !ok {
		return
	}

	var req AnswerUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := h.threadService.UpdateAnswer(actor, id, req.Content)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, a)
}

// DeleteAnswer removes an answer and its replies
// @Summary Delete an answer
// @Description The author or an admin may delete; reviews targeting the answer subtree are removed in the same transaction
// @Tags Answers
// @Produce json
// @Param id path int true "Answer ID"
// @Success 200 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /answers/{id} [delete]
func (h *QuestionHandler) DeleteAnswer(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUsername(r)
	id, ok := pathID(w, r, "id", ErrMsgInvalidAnswerID)
	if !ok {
		return
	}

	isAdmin, err := h.identityService.HasRole(actor, models.RoleAdmin)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if err := h.threadService.DeleteAnswer(actor, isAdmin, id); err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]string{"message": "Answer deleted"})
}

// pathID parses an int64 path parameter, responding 400 on failure
func pathID(w http.ResponseWriter, r *http.Request, name, errMsg string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, errMsg)
		return 0, false
	}
	return id, true
}
