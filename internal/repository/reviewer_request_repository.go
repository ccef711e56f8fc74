package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
)

var (
	ErrRequestNotFound = errors.New("reviewer request not found")
	ErrRequestExists   = errors.New("reviewer request already exists")
)

// ReviewerRequestRepository handles reviewer-request database operations
type ReviewerRequestRepository struct {
	db *sql.DB
}

// NewReviewerRequestRepository creates a new reviewer request repository
func NewReviewerRequestRepository(db *sql.DB) *ReviewerRequestRepository {
	return &ReviewerRequestRepository{db: db}
}

// Create files a pending request for the user
func (r *ReviewerRequestRepository) Create(username string) (*models.ReviewerRequest, error) {
	query := `
		INSERT INTO reviewer_requests (username, status, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
	`

	now := time.Now()
	_, err := r.db.Exec(query, username, string(models.RequestPending), now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrRequestExists
		}
		return nil, fmt.Errorf("failed to create reviewer request: %w", err)
	}

	return &models.ReviewerRequest{
		Username:  username,
		Status:    models.RequestPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Get retrieves a user's request
func (r *ReviewerRequestRepository) Get(username string) (*models.ReviewerRequest, error) {
	query := `
		SELECT username, status, created_at, updated_at
		FROM reviewer_requests
		WHERE username = $1
	`

	req := &models.ReviewerRequest{}
	var status string
	err := r.db.QueryRow(query, username).Scan(&req.Username, &status, &req.CreatedAt, &req.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reviewer request: %w", err)
	}

	req.Status = models.ReviewerRequestStatus(status)
	return req, nil
}

// UpdateStatusTx transitions a request inside an existing transaction, but
// only out of the expected current status.
func (r *ReviewerRequestRepository) UpdateStatusTx(tx *sql.Tx, username string, from, to models.ReviewerRequestStatus) error {
	result, err := tx.Exec(
		`UPDATE reviewer_requests SET status = $1, updated_at = $2 WHERE username = $3 AND status = $4`,
		string(to), time.Now(), username, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update reviewer request: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrRequestNotFound
	}

	return nil
}

// Delete removes a request so the user can reapply
func (r *ReviewerRequestRepository) Delete(username string) error {
	result, err := r.db.Exec(`DELETE FROM reviewer_requests WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("failed to delete reviewer request: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// ListByStatus retrieves all requests in the given status
func (r *ReviewerRequestRepository) ListByStatus(status models.ReviewerRequestStatus) ([]models.ReviewerRequest, error) {
	query := `
		SELECT username, status, created_at, updated_at
		FROM reviewer_requests
		WHERE status = $1
		ORDER BY created_at
	`

	rows, err := r.db.Query(query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list reviewer requests: %w", err)
	}
	defer rows.Close()

	var requests []models.ReviewerRequest
	for rows.Next() {
		var req models.ReviewerRequest
		var s string
		if err := rows.Scan(&req.Username, &s, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reviewer request: %w", err)
		}
		req.Status = models.ReviewerRequestStatus(s)
		requests = append(requests, req)
	}

	return requests, rows.Err()
}
