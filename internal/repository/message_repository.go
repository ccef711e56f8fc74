package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
)

// MessageRepository handles message database operations
type MessageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `id, sender, recipient, question_id, answer_id, content, message_type, is_read, created_at`

// Create persists a message
func (r *MessageRepository) Create(m *models.Message) error {
	query := `
		INSERT INTO messages (sender, recipient, question_id, answer_id, content, message_type, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		RETURNING id
	`

	now := time.Now()
	err := r.db.QueryRow(query, m.Sender, m.Recipient, m.QuestionID, m.AnswerID,
		m.Content, m.MessageType, now).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	m.IsRead = false
	m.CreatedAt = now
	return nil
}

// ListBetween retrieves the conversation between two users about a specific
// question or answer, oldest first. A nil answerID matches only messages
// attached to the question itself, not to one of its answers.
func (r *MessageRepository) ListBetween(userA, userB string, questionID int64, answerID *int64) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE ((sender = $1 AND recipient = $2) OR (sender = $2 AND recipient = $1))
		  AND question_id = $3
		  AND answer_id IS NOT DISTINCT FROM $4
		ORDER BY id
	`
	return r.queryMessages(query, userA, userB, questionID, answerID)
}

// ListForUser retrieves every message sent or received by a user, newest first
func (r *MessageRepository) ListForUser(username string) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE sender = $1 OR recipient = $1
		ORDER BY id DESC
	`
	return r.queryMessages(query, username)
}

// ListByTypeForRecipient retrieves a recipient's messages of one type,
// newest first.
func (r *MessageRepository) ListByTypeForRecipient(recipient, messageType string) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE recipient = $1 AND message_type = $2
		ORDER BY id DESC
	`
	return r.queryMessages(query, recipient, messageType)
}

// CountUnread counts a recipient's unread messages across all conversations
func (r *MessageRepository) CountUnread(recipient string) (int, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE recipient = $1 AND NOT is_read`,
		recipient,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}

	return count, nil
}

// CountUnreadInContext counts a recipient's unread messages in one
// conversation context. A nil answerID matches only messages attached to the
// question itself.
func (r *MessageRepository) CountUnreadInContext(recipient string, questionID int64, answerID *int64) (int, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM messages
		 WHERE recipient = $1 AND question_id = $2 AND answer_id IS NOT DISTINCT FROM $3 AND NOT is_read`,
		recipient, questionID, answerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}

	return count, nil
}

// MarkRead marks every message addressed to the recipient in one conversation
// context as read, in a single statement. Returns how many rows changed.
func (r *MessageRepository) MarkRead(recipient string, questionID int64, answerID *int64) (int64, error) {
	result, err := r.db.Exec(
		`UPDATE messages SET is_read = TRUE
		 WHERE recipient = $1 AND question_id = $2 AND answer_id IS NOT DISTINCT FROM $3 AND NOT is_read`,
		recipient, questionID, answerID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read mark result: %w", err)
	}

	return rows, nil
}

func (r *MessageRepository) queryMessages(query string, args ...any) ([]models.Message, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.Sender, &m.Recipient, &m.QuestionID, &m.AnswerID,
			&m.Content, &m.MessageType, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}
