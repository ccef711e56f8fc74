package service

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/apperrors"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/repository"
)

const (
	minRating = 1
	maxRating = 5
	minWeight = 1
	maxWeight = 5
)

// ReviewService handles review version chains, trust weights and the
// reviewer-role request workflow.
type ReviewService struct {
	db           *sql.DB
	reviewRepo   *repository.ReviewRepository
	trustRepo    *repository.TrustRepository
	requestRepo  *repository.ReviewerRequestRepository
	roleRepo     *repository.RoleRepository
	questionRepo *repository.QuestionRepository
	answerRepo   *repository.AnswerRepository
	audit        *AuditService
}

// NewReviewService creates a new review service
func NewReviewService(
	db *sql.DB,
	reviewRepo *repository.ReviewRepository,
	trustRepo *repository.TrustRepository,
	requestRepo *repository.ReviewerRequestRepository,
	roleRepo *repository.RoleRepository,
	questionRepo *repository.QuestionRepository,
	answerRepo *repository.AnswerRepository,
	audit *AuditService,
) *ReviewService {
	return &ReviewService{
		db:           db,
		reviewRepo:   reviewRepo,
		trustRepo:    trustRepo,
		requestRepo:  requestRepo,
		roleRepo:     roleRepo,
		questionRepo: questionRepo,
		answerRepo:   answerRepo,
		audit:        audit,
	}
}

// SubmitReview starts a new review chain for (reviewer, target). A reviewer
// gets one chain per target; a second submission is refused and must go
// through ReviseReview instead.
func (s *ReviewService) SubmitReview(reviewer string, targetType models.ReviewTargetType, targetID int64, rating int, comment string) (*models.Review, error) {
	if err := validateRating(rating); err != nil {
		return nil, err
	}
	if err := s.checkTarget(targetType, targetID); err != nil {
		return nil, err
	}

	review := &models.Review{
		ReviewerUsername: reviewer,
		TargetType:       targetType,
		TargetID:         targetID,
		Rating:           rating,
		Comment:          comment,
	}

	if err := s.reviewRepo.Insert(review); err != nil {
		if errors.Is(err, repository.ErrDuplicateLatest) {
			return nil, apperrors.Conflict("you already reviewed this %s; revise your review instead", targetType)
		}
		return nil, apperrors.Persistence(err, "failed to submit review")
	}

	slog.Info("Review submitted", "id", review.ID, "reviewer", reviewer,
		"target_type", targetType, "target_id", targetID)
	return review, nil
}

// ReviseReview appends a new version to an existing chain. In one
// transaction the superseded row loses its latest flag, the new row is
// inserted pointing back at it, and a review-update event is recorded for
// students trusting the reviewer. The partial unique index backstops the
// flag flip: if a concurrent revision already inserted a latest row, the
// insert fails and the whole transaction rolls back.
func (s *ReviewService) ReviseReview(reviewer string, reviewID int64, rating int, comment string) (*models.Review, error) {
	if err := validateRating(rating); err != nil {
		return nil, err
	}

	current, err := s.reviewRepo.GetByID(reviewID)
	if errors.Is(err, repository.ErrReviewNotFound) {
		return nil, apperrors.NotFound("review %d not found", reviewID)
	}
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to load review")
	}

	if current.ReviewerUsername != reviewer {
		return nil, apperrors.Forbidden("only the reviewer can revise their review")
	}
	if !current.IsLatest {
		return nil, apperrors.Conflict("review %d has already been superseded", reviewID)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := s.reviewRepo.MarkNotLatestTx(tx, current.ID); err != nil {
		if errors.Is(err, repository.ErrReviewNotFound) {
			// Lost the race against a concurrent revision
			return nil, apperrors.Conflict("review %d has already been superseded", reviewID)
		}
		return nil, apperrors.Persistence(err, "failed to supersede review")
	}

	revision := &models.Review{
		ReviewerUsername: reviewer,
		TargetType:       current.TargetType,
		TargetID:         current.TargetID,
		Rating:           rating,
		Comment:          comment,
		PreviousReviewID: &current.ID,
	}
	if err := s.reviewRepo.InsertTx(tx, revision); err != nil {
		return nil, apperrors.Persistence(err, "failed to insert revision")
	}

	if err := s.trustRepo.InsertUpdateTx(tx, reviewer); err != nil {
		return nil, apperrors.Persistence(err, "failed to record review update")
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Persistence(err, "failed to commit revision")
	}

	slog.Info("Review revised", "id", revision.ID, "previous", current.ID, "reviewer", reviewer)
	return revision, nil
}

// GetReview retrieves a single review version
func (s *ReviewService) GetReview(id int64) (*models.Review, error) {
	review, err := s.reviewRepo.GetByID(id)
	if errors.Is(err, repository.ErrReviewNotFound) {
		return nil, apperrors.NotFound("review %d not found", id)
	}
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to load review")
	}
	return review, nil
}

// GetLatest retrieves the latest version of one reviewer's chain for a target
func (s *ReviewService) GetLatest(reviewer string, targetType models.ReviewTargetType, targetID int64) (*models.Review, error) {
	review, err := s.reviewRepo.GetLatestByReviewer(reviewer, targetType, targetID)
	if errors.Is(err, repository.ErrReviewNotFound) {
		return nil, apperrors.NotFound("no review by %s for this %s", reviewer, targetType)
	}
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to load latest review")
	}
	return review, nil
}

// ListLatestForTarget retrieves every reviewer's latest review of a target
func (s *ReviewService) ListLatestForTarget(targetType models.ReviewTargetType, targetID int64) ([]models.Review, error) {
	reviews, err := s.reviewRepo.ListLatestForTarget(targetType, targetID)
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to list reviews")
	}
	return reviews, nil
}

// GetChain retrieves the full version history of one reviewer's review of a
// target, oldest first.
func (s *ReviewService) GetChain(reviewer string, targetType models.ReviewTargetType, targetID int64) ([]models.Review, error) {
	chain, err := s.reviewRepo.GetChain(reviewer, targetType, targetID)
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to load review chain")
	}
	if len(chain) == 0 {
		return nil, apperrors.NotFound("no review by %s for this %s", reviewer, targetType)
	}
	return chain, nil
}

// DeleteReviewChain removes every version connected to the given review. The
// chain is walked breadth-first over both edge directions (previous pointers
// and their reverses) to a complete visited set, then deleted in one
// transaction. Returns how many versions were removed. The reviewer who owns
// the chain or an admin may delete.
func (s *ReviewService) DeleteReviewChain(actor string, isAdmin bool, reviewID int64) (int64, error) {
	start, err := s.GetReview(reviewID)
	if err != nil {
		return 0, err
	}
	if start.ReviewerUsername != actor && !isAdmin {
		return 0, apperrors.Forbidden("only the reviewer or an admin can delete a review chain")
	}

	visited := map[int64]bool{reviewID: true}
	queue := []int64{reviewID}
	loaded := map[int64]*models.Review{reviewID: start}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		review, ok := loaded[id]
		if !ok {
			review, err = s.reviewRepo.GetByID(id)
			if errors.Is(err, repository.ErrReviewNotFound) {
				continue
			}
			if err != nil {
				return 0, apperrors.Persistence(err, "failed to walk review chain")
			}
			loaded[id] = review
		}

		if prev := review.PreviousReviewID; prev != nil && !visited[*prev] {
			visited[*prev] = true
			queue = append(queue, *prev)
		}

		children, err := s.reviewRepo.ChildrenOf(id)
		if err != nil {
			return 0, apperrors.Persistence(err, "failed to walk review chain")
		}
		for _, child := range children {
			if !visited[child] {
				visited[child] = true
				queue = append(queue, child)
			}
		}
	}

	ids := make([]int64, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, apperrors.Persistence(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	removed, err := s.reviewRepo.DeleteByIDsTx(tx, ids)
	if err != nil {
		return 0, apperrors.Persistence(err, "failed to delete review chain")
	}

	if err := tx.Commit(); err != nil {
		return 0, apperrors.Persistence(err, "failed to commit chain deletion")
	}

	s.audit.Record(actor, "review.delete_chain", fmt.Sprintf("review/%d", reviewID),
		fmt.Sprintf("versions=%d", removed))
	slog.Info("Review chain deleted", "start", reviewID, "versions", removed, "actor", actor)
	return removed, nil
}

// AggregateRating computes the trust-weighted average rating of a target as
// seen by one student. Only latest reviews by reviewers the student trusts
// contribute; reviewers without a trust edge are excluded entirely rather
// than defaulted to any weight.
func (s *ReviewService) AggregateRating(student string, targetType models.ReviewTargetType, targetID int64) (*models.AggregatedRating, error) {
	if err := s.checkTarget(targetType, targetID); err != nil {
		return nil, err
	}

	weights, err := s.reviewRepo.RatingWeightsForStudent(targetType, targetID, student)
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to load rating weights")
	}

	agg := weightedAverage(weights)
	return &agg, nil
}

// weightedAverage computes sum(rating*weight)/sum(weight). OK is false when
// no ratings contribute; weights are constrained positive by the schema, so
// a non-empty input cannot divide by zero.
func weightedAverage(weights []repository.ReviewWeight) models.AggregatedRating {
	if len(weights) == 0 {
		return models.AggregatedRating{}
	}

	var sum, total float64
	for _, rw := range weights {
		sum += float64(rw.Rating) * float64(rw.Weight)
		total += float64(rw.Weight)
	}

	return models.AggregatedRating{
		WeightedAverage: sum / total,
		ReviewerCount:   len(weights),
		OK:              true,
	}
}

// TrustReviewer sets or replaces the weight a student assigns to a reviewer.
// The reviewer must hold the reviewer role.
func (s *ReviewService) TrustReviewer(student, reviewer string, weight int) error {
	if weight < minWeight || weight > maxWeight {
		return apperrors.Validation("weight must be between %d and %d", minWeight, maxWeight)
	}
	if student == reviewer {
		return apperrors.Validation("you cannot trust yourself")
	}

	holds, err := s.roleRepo.HasRole(reviewer, models.RoleReviewer)
	if err != nil {
		return apperrors.Persistence(err, "failed to check reviewer role")
	}
	if !holds {
		return apperrors.Validation("%q is not a reviewer", reviewer)
	}

	if err := s.trustRepo.Upsert(student, reviewer, weight); err != nil {
		return apperrors.Persistence(err, "failed to store trust weight")
	}

	return nil
}

// UntrustReviewer removes a student's trust in a reviewer
func (s *ReviewService) UntrustReviewer(student, reviewer string) error {
	deleted, err := s.trustRepo.Delete(student, reviewer)
	if err != nil {
		return apperrors.Persistence(err, "failed to remove trust")
	}
	if !deleted {
		return apperrors.NotFound("you do not trust %q", reviewer)
	}
	return nil
}

// ListTrustedReviewers retrieves every reviewer a student trusts
func (s *ReviewService) ListTrustedReviewers(student string) ([]models.TrustedReviewer, error) {
	trusted, err := s.trustRepo.ListForStudent(student)
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to list trusted reviewers")
	}
	return trusted, nil
}

// RequestReviewerRole files a pending application for the reviewer role. One
// application per user; a denied applicant must reset before reapplying.
func (s *ReviewService) RequestReviewerRole(username string) (*models.ReviewerRequest, error) {
	holds, err := s.roleRepo.HasRole(username, models.RoleReviewer)
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to check reviewer role")
	}
	if holds {
		return nil, apperrors.Conflict("you already hold the reviewer role")
	}

	req, err := s.requestRepo.Create(username)
	if errors.Is(err, repository.ErrRequestExists) {
		return nil, apperrors.Conflict("a reviewer request already exists for %q", username)
	}
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to file reviewer request")
	}

	slog.Info("Reviewer role requested", "username", username)
	return req, nil
}

// ApproveReviewerRequest approves a pending request and grants the reviewer
// role in the same transaction. Either both happen or neither.
func (s *ReviewService) ApproveReviewerRequest(admin, username string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Persistence(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := s.requestRepo.UpdateStatusTx(tx, username, models.RequestPending, models.RequestApproved); err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			return apperrors.NotFound("no pending reviewer request for %q", username)
		}
		return apperrors.Persistence(err, "failed to approve request")
	}

	if err := s.roleRepo.AssignTx(tx, username, models.RoleReviewer); err != nil {
		return apperrors.Persistence(err, "failed to grant reviewer role")
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Persistence(err, "failed to commit approval")
	}

	s.audit.Record(admin, "reviewer_request.approve", "user/"+username, "")
	slog.Info("Reviewer request approved", "admin", admin, "username", username)
	return nil
}

// DenyReviewerRequest denies a pending request
func (s *ReviewService) DenyReviewerRequest(admin, username string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Persistence(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := s.requestRepo.UpdateStatusTx(tx, username, models.RequestPending, models.RequestDenied); err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			return apperrors.NotFound("no pending reviewer request for %q", username)
		}
		return apperrors.Persistence(err, "failed to deny request")
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Persistence(err, "failed to commit denial")
	}

	s.audit.Record(admin, "reviewer_request.deny", "user/"+username, "")
	slog.Info("Reviewer request denied", "admin", admin, "username", username)
	return nil
}

// ResetReviewerRequest deletes a user's request so they can reapply
func (s *ReviewService) ResetReviewerRequest(username string) error {
	err := s.requestRepo.Delete(username)
	if errors.Is(err, repository.ErrRequestNotFound) {
		return apperrors.NotFound("no reviewer request for %q", username)
	}
	if err != nil {
		return apperrors.Persistence(err, "failed to reset reviewer request")
	}
	return nil
}

// GetReviewerRequest retrieves a user's request
func (s *ReviewService) GetReviewerRequest(username string) (*models.ReviewerRequest, error) {
	req, err := s.requestRepo.Get(username)
	if errors.Is(err, repository.ErrRequestNotFound) {
		return nil, apperrors.NotFound("no reviewer request for %q", username)
	}
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to load reviewer request")
	}
	return req, nil
}

// ListReviewerRequests retrieves all requests in the given status
func (s *ReviewService) ListReviewerRequests(status models.ReviewerRequestStatus) ([]models.ReviewerRequest, error) {
	switch status {
	case models.RequestPending, models.RequestApproved, models.RequestDenied:
	default:
		return nil, apperrors.Validation("unknown request status %q", status)
	}

	requests, err := s.requestRepo.ListByStatus(status)
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to list reviewer requests")
	}
	return requests, nil
}

// checkTarget verifies that the review target exists
func (s *ReviewService) checkTarget(targetType models.ReviewTargetType, targetID int64) error {
	switch targetType {
	case models.TargetQuestion:
		_, err := s.questionRepo.GetByID(targetID)
		if errors.Is(err, repository.ErrQuestionNotFound) {
			return apperrors.NotFound("question %d not found", targetID)
		}
		if err != nil {
			return apperrors.Persistence(err, "failed to load question")
		}
	case models.TargetAnswer:
		_, err := s.answerRepo.GetByID(targetID)
		if errors.Is(err, repository.ErrAnswerNotFound) {
			return apperrors.NotFound("answer %d not found", targetID)
		}
		if err != nil {
			return apperrors.Persistence(err, "failed to load answer")
		}
	default:
		return apperrors.Validation("unknown target type %q", targetType)
	}
	return nil
}

func validateRating(rating int) error {
	if rating < minRating || rating > maxRating {
		return apperrors.Validation("rating must be between %d and %d", minRating, maxRating)
	}
	return nil
}
