package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
)

var (
	ErrReviewNotFound  = errors.New("review not found")
	ErrDuplicateLatest = errors.New("a latest review already exists for this reviewer and target")
)

// ReviewWeight pairs a latest review's rating with the weight the requesting
// student assigned to its reviewer.
type ReviewWeight struct {
	Rating int
	Weight int
}

// ReviewRepository handles review database operations. Review rows are
// append-only; the only mutation ever issued is flipping is_latest off when
// a revision supersedes a row.
type ReviewRepository struct {
	db *sql.DB
}

// NewReviewRepository creates a new review repository
func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

const reviewColumns = `id, reviewer_username, target_type, target_id, rating, comment, previous_review_id, is_latest, created_at`

// Insert inserts a new review row marked latest. The partial unique index on
// (reviewer, target) WHERE is_latest makes a second latest row in the same
// chain a unique violation.
func (r *ReviewRepository) Insert(review *models.Review) error {
	query := `
		INSERT INTO reviews (reviewer_username, target_type, target_id, rating, comment, previous_review_id, is_latest, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		RETURNING id
	`

	now := time.Now()
	err := r.db.QueryRow(query, review.ReviewerUsername, string(review.TargetType),
		review.TargetID, review.Rating, review.Comment, review.PreviousReviewID, now).Scan(&review.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateLatest
		}
		return fmt.Errorf("failed to insert review: %w", err)
	}

	review.IsLatest = true
	review.CreatedAt = now
	return nil
}

// InsertTx inserts a new latest review row inside an existing transaction
func (r *ReviewRepository) InsertTx(tx *sql.Tx, review *models.Review) error {
	query := `
		INSERT INTO reviews (reviewer_username, target_type, target_id, rating, comment, previous_review_id, is_latest, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		RETURNING id
	`

	now := time.Now()
	err := tx.QueryRow(query, review.ReviewerUsername, string(review.TargetType),
		review.TargetID, review.Rating, review.Comment, review.PreviousReviewID, now).Scan(&review.ID)
	if err != nil {
		return fmt.Errorf("failed to insert review: %w", err)
	}

	review.IsLatest = true
	review.CreatedAt = now
	return nil
}

// MarkNotLatestTx flips the latest flag off inside an existing transaction
func (r *ReviewRepository) MarkNotLatestTx(tx *sql.Tx, id int64) error {
	result, err := tx.Exec(`UPDATE reviews SET is_latest = FALSE WHERE id = $1 AND is_latest`, id)
	if err != nil {
		return fmt.Errorf("failed to clear latest flag: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrReviewNotFound
	}
	return nil
}

// GetByID retrieves a review by ID
func (r *ReviewRepository) GetByID(id int64) (*models.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`

	review, err := scanReview(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, ErrReviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review: %w", err)
	}

	return review, nil
}

// GetLatestByReviewer retrieves the latest review of one reviewer's chain
// for a target, or ErrReviewNotFound when the reviewer has no chain there.
func (r *ReviewRepository) GetLatestByReviewer(reviewer string, targetType models.ReviewTargetType, targetID int64) (*models.Review, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM reviews
		WHERE reviewer_username = $1 AND target_type = $2 AND target_id = $3 AND is_latest
	`

	review, err := scanReview(r.db.QueryRow(query, reviewer, string(targetType), targetID))
	if err == sql.ErrNoRows {
		return nil, ErrReviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest review: %w", err)
	}

	return review, nil
}

// ListLatestForTarget retrieves every reviewer's latest review of a target
func (r *ReviewRepository) ListLatestForTarget(targetType models.ReviewTargetType, targetID int64) ([]models.Review, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM reviews
		WHERE target_type = $1 AND target_id = $2 AND is_latest
		ORDER BY reviewer_username
	`
	return r.queryReviews(query, string(targetType), targetID)
}

// GetChain retrieves all versions of one reviewer's review of a target,
// oldest first. Rows are append-only, so id order is chain order.
func (r *ReviewRepository) GetChain(reviewer string, targetType models.ReviewTargetType, targetID int64) ([]models.Review, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM reviews
		WHERE reviewer_username = $1 AND target_type = $2 AND target_id = $3
		ORDER BY id
	`
	return r.queryReviews(query, reviewer, string(targetType), targetID)
}

// ChildrenOf returns the ids of reviews whose previous_review_id is id.
// The schema permits at most one, but the traversal treats it as an edge set.
func (r *ReviewRepository) ChildrenOf(id int64) ([]int64, error) {
	rows, err := r.db.Query(`SELECT id FROM reviews WHERE previous_review_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get review successors: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var child int64
		if err := rows.Scan(&child); err != nil {
			return nil, fmt.Errorf("failed to scan successor id: %w", err)
		}
		ids = append(ids, child)
	}

	return ids, rows.Err()
}

// DeleteByIDsTx deletes the given review rows in one statement inside an
// existing transaction and returns how many were removed.
func (r *ReviewRepository) DeleteByIDsTx(tx *sql.Tx, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := tx.Exec(`DELETE FROM reviews WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete review chain: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read chain delete result: %w", err)
	}

	return rows, nil
}

// DeleteForQuestionTx removes every review (all versions) targeting the
// question or any of the given answers, inside an existing transaction.
func (r *ReviewRepository) DeleteForQuestionTx(tx *sql.Tx, questionID int64, answerIDs []int64) (int64, error) {
	query := `
		DELETE FROM reviews
		WHERE (target_type = $1 AND target_id = $2)
		   OR (target_type = $3 AND target_id = ANY($4))
	`

	result, err := tx.Exec(query,
		string(models.TargetQuestion), questionID,
		string(models.TargetAnswer), pq.Array(answerIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to delete reviews for question: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read review cleanup result: %w", err)
	}

	return rows, nil
}

// DeleteForAnswersTx removes every review (all versions) targeting any of the
// given answers, inside an existing transaction.
func (r *ReviewRepository) DeleteForAnswersTx(tx *sql.Tx, answerIDs []int64) (int64, error) {
	if len(answerIDs) == 0 {
		return 0, nil
	}

	result, err := tx.Exec(
		`DELETE FROM reviews WHERE target_type = $1 AND target_id = ANY($2)`,
		string(models.TargetAnswer), pq.Array(answerIDs),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete reviews for answers: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read review cleanup result: %w", err)
	}

	return rows, nil
}

// RatingWeightsForStudent joins the latest reviews of a target against the
// student's trusted reviewers. Reviewers the student has not trusted are
// excluded entirely; no row, no weight.
func (r *ReviewRepository) RatingWeightsForStudent(targetType models.ReviewTargetType, targetID int64, student string) ([]ReviewWeight, error) {
	query := `
		SELECT rv.rating, tr.weight
		FROM reviews rv
		INNER JOIN trusted_reviewers tr
			ON tr.reviewer_username = rv.reviewer_username
			AND tr.student_username = $1
		WHERE rv.target_type = $2 AND rv.target_id = $3 AND rv.is_latest
	`

	rows, err := r.db.Query(query, student, string(targetType), targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rating weights: %w", err)
	}
	defer rows.Close()

	var weights []ReviewWeight
	for rows.Next() {
		var rw ReviewWeight
		if err := rows.Scan(&rw.Rating, &rw.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan rating weight: %w", err)
		}
		weights = append(weights, rw)
	}

	return weights, rows.Err()
}

func (r *ReviewRepository) queryReviews(query string, args ...any) ([]models.Review, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	var reviews []models.Review
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, *review)
	}

	return reviews, rows.Err()
}

func scanReview(row rowScanner) (*models.Review, error) {
	review := &models.Review{}
	var targetType string
	err := row.Scan(&review.ID, &review.ReviewerUsername, &targetType, &review.TargetID,
		&review.Rating, &review.Comment, &review.PreviousReviewID, &review.IsLatest, &review.CreatedAt)
	if err != nil {
		return nil, err
	}
	review.TargetType = models.ReviewTargetType(targetType)
	return review, nil
}
