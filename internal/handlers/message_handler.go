package handlers

import (
	"net/http"
	"strconv"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/middleware"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/service"
)

// MessageHandler handles messaging and review-update notification requests
type MessageHandler struct {
	messageService *service.MessageService
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(messageService *service.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

// SendMessageRequest represents a message send request
type SendMessageRequest struct {
	Recipient   string `json:"recipient"`
	QuestionID  int64  `json:"question_id"`
	AnswerID    *int64 `json:"answer_id,omitempty"`
	Content     string `json:"content"`
	MessageType string `json:"message_type,omitempty"`
}

// MarkReadRequest names the conversation context to mark read
type MarkReadRequest struct {
	QuestionID int64  `json:"question_id"`
	AnswerID   *int64 `json:"answer_id,omitempty"`
}

// Send delivers a message in the context of a question or answer
// @Summary Send a message
// @Tags Messages
// @Accept json
// @Produce json
// @Param request body SendMessageRequest true "Message"
// @Success 201 {object} models.Message
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /messages [post]
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	sender, ok := middleware.GetUsername(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return
	}

	var req SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := h.messageService.Send(sender, req.Recipient, req.QuestionID, req.AnswerID,
		req.Content, req.MessageType)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusCreated, m)
}

// List retrieves the caller's messages, optionally scoped to a conversation
// @Summary List my messages
// @Description With ?with= and ?question_id= returns the conversation with that user about that question (oldest first); otherwise all messages (newest first). ?answer_id= narrows to an answer context.
// @Tags Messages
// @Produce json
// @Param with query string false "Other participant"
// @Param question_id query int false "Question context"
// @Param answer_id query int false "Answer context"
// @Success 200 {array} models.Message
// @Security BearerAuth
// @Router /messages [get]
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	username, _ := middleware.GetUsername(r)

	other := r.URL.Query().Get("with")
	questionID, hasQuestion := queryID(r, "question_id")

	var messages []models.Message
	var err error

	if other != "" && hasQuestion {
		var answerID *int64
		if id, ok := queryID(r, "answer_id"); ok {
			answerID = &id
		}
		messages, err = h.messageService.FetchBetween(username, other, questionID, answerID)
	} else {
		messages, err = h.messageService.FetchAllFor(username)
	}
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if messages == nil {
		messages = []models.Message{}
	}
	JSONResponse(w, http.StatusOK, messages)
}

// ReviewFeedback retrieves the caller's received review-feedback messages
// @Summary List my review feedback
// @Tags Messages
// @Produce json
// @Success 200 {array} models.Message
// @Security BearerAuth
// @Router /messages/review-feedback [get]
func (h *MessageHandler) ReviewFeedback(w http.ResponseWriter, r *http.Request) {
	username, _ := middleware.GetUsername(r)

	messages, err := h.messageService.FetchReviewFeedback(username)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if messages == nil {
		messages = []models.Message{}
	}
	JSONResponse(w, http.StatusOK, messages)
}

// UnreadCount counts the caller's unread messages
// @Summary Count unread messages
// @Description Without parameters counts across all conversations; ?question_id= (optionally with ?answer_id=) narrows to one context
// @Tags Messages
// @Produce json
// @Param question_id query int false "Question context"
// @Param answer_id query int false "Answer context"
// @Success 200 {object} map[string]int
// @Security BearerAuth
// @Router /messages/unread-count [get]
func (h *MessageHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	username, _ := middleware.GetUsername(r)

	var count int
	var err error

	if questionID, ok := queryID(r, "question_id"); ok {
		var answerID *int64
		if id, ok := queryID(r, "answer_id"); ok {
			answerID = &id
		}
		count, err = h.messageService.CountUnreadInContext(username, questionID, answerID)
	} else {
		count, err = h.messageService.CountUnread(username)
	}
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]int{"unread": count})
}

// MarkRead marks a conversation as read
// @Summary Mark a conversation read
// @Description Flips the read flag on every message addressed to the caller in the given question or answer context
// @Tags Messages
// @Accept json
// @Produce json
// @Param request body MarkReadRequest true "Conversation context"
// @Success 200 {object} map[string]int64 "Number of messages changed"
// @Security BearerAuth
// @Router /messages/read [post]
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	username, _ := middleware.GetUsername(r)

	var req MarkReadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	changed, err := h.messageService.MarkRead(username, req.QuestionID, req.AnswerID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]int64{"changed": changed})
}

// ReviewUpdates reports whether a trusted reviewer revised a review
// @Summary Check for review updates
// @Tags Messages
// @Produce json
// @Success 200 {object} map[string]bool
// @Security BearerAuth
// @Router /review-updates [get]
func (h *MessageHandler) ReviewUpdates(w http.ResponseWriter, r *http.Request) {
	username, _ := middleware.GetUsername(r)

	has, err := h.messageService.HasReviewUpdates(username)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]bool{"has_updates": has})
}

// AcknowledgeReviewUpdates clears a reviewer's update events
// @Summary Acknowledge review updates
// @Description Clears all update events of the reviewer, for every student trusting them
// @Tags Messages
// @Produce json
// @Param reviewer path string true "Reviewer username"
// @Success 200 {object} map[string]int64 "Number of events cleared"
// @Security BearerAuth
// @Router /review-updates/{reviewer} [delete]
func (h *MessageHandler) AcknowledgeReviewUpdates(w http.ResponseWriter, r *http.Request) {
	reviewer := r.PathValue("reviewer")

	cleared, err := h.messageService.AcknowledgeReviewUpdates(reviewer)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]int64{"cleared": cleared})
}

// queryID parses an int64 query parameter
func queryID(r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
