package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
)

var ErrQuestionNotFound = errors.New("question not found")

// QuestionRepository handles question database operations
type QuestionRepository struct {
	db *sql.DB
}

// NewQuestionRepository creates a new question repository
func NewQuestionRepository(db *sql.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

const questionColumns = `id, title, content, author, tags, accepted_answer_id, created_at, updated_at`

// Create creates a new question
func (r *QuestionRepository) Create(q *models.Question) error {
	query := `
		INSERT INTO questions (title, content, author, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	now := time.Now()
	err := r.db.QueryRow(query, q.Title, q.Content, q.Author, joinTags(q.Tags), now, now).Scan(&q.ID)
	if err != nil {
		return fmt.Errorf("failed to create question: %w", err)
	}

	q.CreatedAt = now
	q.UpdatedAt = now
	return nil
}

// GetByID retrieves a question by ID
func (r *QuestionRepository) GetByID(id int64) (*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE id = $1`

	q, err := scanQuestion(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	return q, nil
}

// Update replaces title, content and tags
func (r *QuestionRepository) Update(id int64, title, content string, tags []string) error {
	query := `
		UPDATE questions
		SET title = $1, content = $2, tags = $3, updated_at = $4
		WHERE id = $5
	`

	result, err := r.db.Exec(query, title, content, joinTags(tags), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update question: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrQuestionNotFound
	}

	return nil
}

// SetAcceptedAnswer updates the accepted-answer pointer. Pass nil to clear.
func (r *QuestionRepository) SetAcceptedAnswer(id int64, answerID *int64) error {
	query := `UPDATE questions SET accepted_answer_id = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Exec(query, answerID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set accepted answer: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrQuestionNotFound
	}

	return nil
}

// ClearAcceptedForAnswersTx nulls any accepted-answer pointer referencing one
// of the given answers, inside an existing transaction. The pointer is a weak
// reference, so deleting an answer would otherwise leave it dangling.
func (r *QuestionRepository) ClearAcceptedForAnswersTx(tx *sql.Tx, answerIDs []int64) error {
	if len(answerIDs) == 0 {
		return nil
	}

	_, err := tx.Exec(
		`UPDATE questions SET accepted_answer_id = NULL WHERE accepted_answer_id = ANY($1)`,
		pq.Array(answerIDs),
	)
	if err != nil {
		return fmt.Errorf("failed to clear accepted answer pointers: %w", err)
	}

	return nil
}

// DeleteTx deletes a question inside an existing transaction. Answers go via
// FK cascade; review cleanup is the caller's responsibility.
func (r *QuestionRepository) DeleteTx(tx *sql.Tx, id int64) error {
	result, err := tx.Exec(`DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

// GetAll retrieves all questions, newest first
func (r *QuestionRepository) GetAll() ([]models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions ORDER BY id DESC`
	return r.queryQuestions(query)
}

// FilterByTag retrieves questions carrying the given tag
func (r *QuestionRepository) FilterByTag(tag string) ([]models.Question, error) {
	query := `
		SELECT ` + questionColumns + `
		FROM questions
		WHERE $1 = ANY(string_to_array(tags, ','))
		ORDER BY id DESC
	`
	return r.queryQuestions(query, tag)
}

// Search finds distinct questions whose title, content or any answer content
// contains the keyword, case-insensitively.
func (r *QuestionRepository) Search(keyword string) ([]models.Question, error) {
	pattern := "%" + escapeLike(keyword) + "%"
	query := `
		SELECT ` + questionColumns + `
		FROM questions q
		WHERE q.title ILIKE $1
		   OR q.content ILIKE $1
		   OR EXISTS (
				SELECT 1 FROM answers a
				WHERE a.question_id = q.id AND a.content ILIKE $1
		   )
		ORDER BY q.id DESC
	`
	return r.queryQuestions(query, pattern)
}

func (r *QuestionRepository) queryQuestions(query string, args ...any) ([]models.Question, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, *q)
	}

	return questions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (*models.Question, error) {
	q := &models.Question{}
	var tags string
	err := row.Scan(&q.ID, &q.Title, &q.Content, &q.Author, &tags,
		&q.AcceptedAnswerID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	q.Tags = splitTags(tags)
	return q, nil
}

func joinTags(tags []string) string {
	var parts []string
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			parts = append(parts, tag)
		}
	}
	return strings.Join(parts, ",")
}

func splitTags(joined string) []string {
	var tags []string
	for _, part := range strings.Split(joined, ",") {
		if part = strings.TrimSpace(part); part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}

// escapeLike escapes LIKE wildcards so user keywords match literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
