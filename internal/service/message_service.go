package service

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/apperrors"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/repository"
)

// MessageService handles directed messages and review-update notifications
type MessageService struct {
	messageRepo  *repository.MessageRepository
	trustRepo    *repository.TrustRepository
	userRepo     *repository.UserRepository
	questionRepo *repository.QuestionRepository
	answerRepo   *repository.AnswerRepository
}

// NewMessageService creates a new message service
func NewMessageService(
	messageRepo *repository.MessageRepository,
	trustRepo *repository.TrustRepository,
	userRepo *repository.UserRepository,
	questionRepo *repository.QuestionRepository,
	answerRepo *repository.AnswerRepository,
) *MessageService {
	return &MessageService{
		messageRepo:  messageRepo,
		trustRepo:    trustRepo,
		userRepo:     userRepo,
		questionRepo: questionRepo,
		answerRepo:   answerRepo,
	}
}

const maxMessageTypeLength = 50

// Send delivers a message from sender to recipient in the context of a
// question, or of a specific answer when answerID is set. The message type is
// a free-form tag; an empty one defaults to direct.
func (s *MessageService) Send(sender, recipient string, questionID int64, answerID *int64, content, messageType string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.Validation("content is required")
	}
	if sender == recipient {
		return nil, apperrors.Validation("cannot send a message to yourself")
	}
	messageType = strings.TrimSpace(messageType)
	if messageType == "" {
		messageType = models.MessageTypeDirect
	}
	if len(messageType) > maxMessageTypeLength {
		return nil, apperrors.Validation("message type must be at most %d characters", maxMessageTypeLength)
	}

	exists, err := s.userRepo.Exists(recipient)
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to check recipient")
	}
	if !exists {
		return nil, apperrors.NotFound("user %q not found", recipient)
	}

	if _, err := s.questionRepo.GetByID(questionID); err != nil {
		if errors.Is(err, repository.ErrQuestionNotFound) {
			return nil, apperrors.NotFound("question %d not found", questionID)
		}
		return nil, apperrors.Persistence(err, "failed to load question")
	}

	if answerID != nil {
		answer, err := s.answerRepo.GetByID(*answerID)
		if errors.Is(err, repository.ErrAnswerNotFound) {
			return nil, apperrors.NotFound("answer %d not found", *answerID)
		}
		if err != nil {
			return nil, apperrors.Persistence(err, "failed to load answer")
		}
		if answer.QuestionID != questionID {
			return nil, apperrors.Validation("answer belongs to a different question")
		}
	}

	m := &models.Message{
		Sender:      sender,
		Recipient:   recipient,
		QuestionID:  questionID,
		AnswerID:    answerID,
		Content:     content,
		MessageType: messageType,
	}
	if err := s.messageRepo.Create(m); err != nil {
		return nil, apperrors.Persistence(err, "failed to send message")
	}

	slog.Info("Message sent", "id", m.ID, "sender", sender, "recipient", recipient,
		"question_id", questionID, "type", messageType)
	return m, nil
}

// FetchBetween retrieves the conversation between two users about a question
// or answer, oldest first. Only a participant may fetch it.
func (s *MessageService) FetchBetween(requester, other string, questionID int64, answerID *int64) ([]models.Message, error) {
	messages, err := s.messageRepo.ListBetween(requester, other, questionID, answerID)
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to load conversation")
	}
	return messages, nil
}

// FetchAllFor retrieves every message a user sent or received, newest first
func (s *MessageService) FetchAllFor(username string) ([]models.Message, error) {
	messages, err := s.messageRepo.ListForUser(username)
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to load messages")
	}
	return messages, nil
}

// FetchReviewFeedback retrieves a user's received review-feedback messages
func (s *MessageService) FetchReviewFeedback(recipient string) ([]models.Message, error) {
	messages, err := s.messageRepo.ListByTypeForRecipient(recipient, models.MessageTypeReviewFeedback)
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to load review feedback")
	}
	return messages, nil
}

// CountUnread counts a user's unread messages across all conversations
func (s *MessageService) CountUnread(recipient string) (int, error) {
	count, err := s.messageRepo.CountUnread(recipient)
	if err != nil {
		return 0, apperrors.Persistence(err, "failed to count unread messages")
	}
	return count, nil
}

// CountUnreadInContext counts a user's unread messages in one conversation
// context.
func (s *MessageService) CountUnreadInContext(recipient string, questionID int64, answerID *int64) (int, error) {
	if questionID <= 0 {
		return 0, apperrors.Validation("question id is required")
	}

	count, err := s.messageRepo.CountUnreadInContext(recipient, questionID, answerID)
	if err != nil {
		return 0, apperrors.Persistence(err, "failed to count unread messages")
	}
	return count, nil
}

// MarkRead flips the read flag on every message addressed to the caller in
// one conversation context, a bulk operation rather than a per-message one.
// Returns how many messages changed.
func (s *MessageService) MarkRead(recipient string, questionID int64, answerID *int64) (int64, error) {
	if questionID <= 0 {
		return 0, apperrors.Validation("question id is required")
	}

	changed, err := s.messageRepo.MarkRead(recipient, questionID, answerID)
	if err != nil {
		return 0, apperrors.Persistence(err, "failed to mark messages read")
	}
	return changed, nil
}

// HasReviewUpdates reports whether any reviewer the student trusts revised a
// review since the reviewer's events were last cleared.
func (s *MessageService) HasReviewUpdates(student string) (bool, error) {
	has, err := s.trustRepo.HasUpdatesForStudent(student)
	if err != nil {
		return false, apperrors.Persistence(err, "failed to check review updates")
	}
	return has, nil
}

// AcknowledgeReviewUpdates clears all update events of one reviewer. The
// acknowledgment is global across students; see TrustRepository for the
// semantics. Returns how many events were cleared.
func (s *MessageService) AcknowledgeReviewUpdates(reviewer string) (int64, error) {
	cleared, err := s.trustRepo.ClearUpdatesForReviewer(reviewer)
	if err != nil {
		return 0, apperrors.Persistence(err, "failed to acknowledge review updates")
	}
	return cleared, nil
}
