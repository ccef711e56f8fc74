package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
)

// TrustRepository handles trusted-reviewer weights and the review-update
// notification log.
type TrustRepository struct {
	db *sql.DB
}

// NewTrustRepository creates a new trust repository
func NewTrustRepository(db *sql.DB) *TrustRepository {
	return &TrustRepository{db: db}
}

// Upsert sets or replaces the weight a student assigns to a reviewer
func (r *TrustRepository) Upsert(student, reviewer string, weight int) error {
	query := `
		INSERT INTO trusted_reviewers (student_username, reviewer_username, weight, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_username, reviewer_username) DO UPDATE SET weight = EXCLUDED.weight
	`

	if _, err := r.db.Exec(query, student, reviewer, weight, time.Now()); err != nil {
		return fmt.Errorf("failed to upsert trusted reviewer: %w", err)
	}

	return nil
}

// Delete removes a student's trust in a reviewer
func (r *TrustRepository) Delete(student, reviewer string) (bool, error) {
	result, err := r.db.Exec(
		`DELETE FROM trusted_reviewers WHERE student_username = $1 AND reviewer_username = $2`,
		student, reviewer,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete trusted reviewer: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}

	return rows > 0, nil
}

// ListForStudent retrieves all reviewers a student trusts, with weights
func (r *TrustRepository) ListForStudent(student string) ([]models.TrustedReviewer, error) {
	query := `
		SELECT student_username, reviewer_username, weight, created_at
		FROM trusted_reviewers
		WHERE student_username = $1
		ORDER BY reviewer_username
	`

	rows, err := r.db.Query(query, student)
	if err != nil {
		return nil, fmt.Errorf("failed to list trusted reviewers: %w", err)
	}
	defer rows.Close()

	var trusted []models.TrustedReviewer
	for rows.Next() {
		var tr models.TrustedReviewer
		if err := rows.Scan(&tr.StudentUsername, &tr.ReviewerUsername, &tr.Weight, &tr.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trusted reviewer: %w", err)
		}
		trusted = append(trusted, tr)
	}

	return trusted, rows.Err()
}

// InsertUpdateTx appends a review-update event inside an existing transaction
func (r *TrustRepository) InsertUpdateTx(tx *sql.Tx, reviewer string) error {
	_, err := tx.Exec(
		`INSERT INTO review_updates (reviewer_username, created_at) VALUES ($1, $2)`,
		reviewer, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert review update: %w", err)
	}
	return nil
}

// HasUpdatesForStudent reports whether any reviewer the student trusts has
// an unacknowledged review-update event.
func (r *TrustRepository) HasUpdatesForStudent(student string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1
			FROM review_updates ru
			INNER JOIN trusted_reviewers tr
				ON tr.reviewer_username = ru.reviewer_username
				AND tr.student_username = $1
		)
	`

	var exists bool
	if err := r.db.QueryRow(query, student).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check review updates: %w", err)
	}

	return exists, nil
}

// ClearUpdatesForReviewer deletes every update event for a reviewer.
// Acknowledgment is global: once any student clears a reviewer, the events
// are gone for every student trusting that reviewer. This mirrors the
// upstream acknowledgment semantics; per-student cursors would change
// observable behavior for existing callers.
func (r *TrustRepository) ClearUpdatesForReviewer(reviewer string) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM review_updates WHERE reviewer_username = $1`, reviewer)
	if err != nil {
		return 0, fmt.Errorf("failed to clear review updates: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read clear result: %w", err)
	}

	return rows, nil
}

// DeleteUpdatesOlderThan purges update events created before the cutoff
func (r *TrustRepository) DeleteUpdatesOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM review_updates WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge review updates: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read purge result: %w", err)
	}

	return rows, nil
}
