package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
)

var ErrAnswerNotFound = errors.New("answer not found")

// AnswerRepository handles answer database operations
type AnswerRepository struct {
	db *sql.DB
}

// NewAnswerRepository creates a new answer repository
func NewAnswerRepository(db *sql.DB) *AnswerRepository {
	return &AnswerRepository{db: db}
}

// Create creates a new answer
func (r *AnswerRepository) Create(a *models.Answer) error {
	query := `
		INSERT INTO answers (question_id, content, author, parent_answer_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	now := time.Now()
	err := r.db.QueryRow(query, a.QuestionID, a.Content, a.Author, a.ParentAnswerID, now, now).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}

	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

// GetByID retrieves an answer by ID
func (r *AnswerRepository) GetByID(id int64) (*models.Answer, error) {
	query := `
		SELECT id, question_id, content, author, parent_answer_id, created_at, updated_at
		FROM answers
		WHERE id = $1
	`

	a := &models.Answer{}
	err := r.db.QueryRow(query, id).Scan(
		&a.ID, &a.QuestionID, &a.Content, &a.Author, &a.ParentAnswerID, &a.CreatedAt, &a.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrAnswerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}

	return a, nil
}

// UpdateContent replaces an answer's content
func (r *AnswerRepository) UpdateContent(id int64, content string) error {
	query := `UPDATE answers SET content = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Exec(query, content, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update answer: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrAnswerNotFound
	}

	return nil
}

// ListByQuestion retrieves the flat answer set of a question ordered by id
func (r *AnswerRepository) ListByQuestion(questionID int64) ([]models.Answer, error) {
	query := `
		SELECT id, question_id, content, author, parent_answer_id, created_at, updated_at
		FROM answers
		WHERE question_id = $1
		ORDER BY id
	`

	rows, err := r.db.Query(query, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	defer rows.Close()

	var answers []models.Answer
	for rows.Next() {
		var a models.Answer
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.Content, &a.Author,
			&a.ParentAnswerID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		answers = append(answers, a)
	}

	return answers, rows.Err()
}

// IDsByQuestionTx returns the ids of all answers of a question inside an
// existing transaction. Used to scope review cleanup during question delete.
func (r *AnswerRepository) IDsByQuestionTx(tx *sql.Tx, questionID int64) ([]int64, error) {
	rows, err := tx.Query(`SELECT id FROM answers WHERE question_id = $1`, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answer ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan answer id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// SubtreeIDsTx returns the id of an answer and every transitive reply inside
// an existing transaction. Used to scope review cleanup before deleting an
// answer, since the FK cascade takes the replies silently.
func (r *AnswerRepository) SubtreeIDsTx(tx *sql.Tx, id int64) ([]int64, error) {
	query := `
		WITH RECURSIVE subtree AS (
			SELECT id FROM answers WHERE id = $1
			UNION ALL
			SELECT a.id FROM answers a
			INNER JOIN subtree s ON a.parent_answer_id = s.id
		)
		SELECT id FROM subtree
	`

	rows, err := tx.Query(query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to collect answer subtree: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var answerID int64
		if err := rows.Scan(&answerID); err != nil {
			return nil, fmt.Errorf("failed to scan subtree id: %w", err)
		}
		ids = append(ids, answerID)
	}

	return ids, rows.Err()
}

// DeleteTx removes an answer inside an existing transaction. Replies go with
// it via the parent FK cascade.
func (r *AnswerRepository) DeleteTx(tx *sql.Tx, id int64) error {
	result, err := tx.Exec(`DELETE FROM answers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete answer: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrAnswerNotFound
	}
	return nil
}
