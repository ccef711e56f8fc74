package service

import (
	"math"
	"testing"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/apperrors"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/repository"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/testutil"
)

func TestSubmitReview(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)
	questionID := testutil.CreateQuestion(t, db, f.Student, "How do goroutines work?")

	review, err := svc.review.SubmitReview(f.Reviewer, models.TargetQuestion, questionID, 4, "solid question")
	if err != nil {
		t.Fatalf("SubmitReview failed: %v", err)
	}
	if !review.IsLatest {
		t.Error("Expected new review to be latest")
	}
	if review.PreviousReviewID != nil {
		t.Error("Expected first version to have no predecessor")
	}

	// One chain per (reviewer, target): a second submission is refused.
	if _, err := svc.review.SubmitReview(f.Reviewer, models.TargetQuestion, questionID, 5, "again"); !apperrors.IsConflict(err) {
		t.Errorf("Expected conflict on duplicate submission, got %v", err)
	}
}

func TestSubmitReviewValidation(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)
	questionID := testutil.CreateQuestion(t, db, f.Student, "Q")

	if _, err := svc.review.SubmitReview(f.Reviewer, models.TargetQuestion, questionID, 0, ""); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error for rating 0, got %v", err)
	}
	if _, err := svc.review.SubmitReview(f.Reviewer, models.TargetQuestion, questionID, 6, ""); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error for rating 6, got %v", err)
	}
	if _, err := svc.review.SubmitReview(f.Reviewer, models.TargetQuestion, 9999, 3, ""); !apperrors.IsNotFound(err) {
		t.Errorf("Expected not-found error for missing target, got %v", err)
	}
	if _, err := svc.review.SubmitReview(f.Reviewer, "comment", questionID, 3, ""); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error for unknown target type, got %v", err)
	}
}

func TestReviseReview(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)
	questionID := testutil.CreateQuestion(t, db, f.Student, "Q")

	v1, err := svc.review.SubmitReview(f.Reviewer, models.TargetQuestion, questionID, 3, "first pass")
	if err != nil {
		t.Fatalf("SubmitReview failed: %v", err)
	}

	v2, err := svc.review.ReviseReview(f.Reviewer, v1.ID, 4, "second pass")
	if err != nil {
		t.Fatalf("ReviseReview failed: %v", err)
	}
	if v2.PreviousReviewID == nil || *v2.PreviousReviewID != v1.ID {
		t.Errorf("Expected revision to point back at %d, got %v", v1.ID, v2.PreviousReviewID)
	}

	// The superseded version lost its latest flag.
	old, err := svc.review.GetReview(v1.ID)
	if err != nil {
		t.Fatalf("GetReview failed: %v", err)
	}
	if old.IsLatest {
		t.Error("Expected superseded version to no longer be latest")
	}

	latest, err := svc.review.GetLatest(f.Reviewer, models.TargetQuestion, questionID)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if latest.ID != v2.ID {
		t.Errorf("Expected latest to be %d, got %d", v2.ID, latest.ID)
	}

	// Revising the superseded version is refused.
	if _, err := svc.review.ReviseReview(f.Reviewer, v1.ID, 5, "stale"); !apperrors.IsConflict(err) {
		t.Errorf("Expected conflict revising a superseded version, got %v", err)
	}

	// Only the owner may revise.
	if _, err := svc.review.ReviseReview("someone-else", v2.ID, 5, "not mine"); !apperrors.IsForbidden(err) {
		t.Errorf("Expected forbidden error for non-owner revision, got %v", err)
	}
}

func TestFailedRevisionKeepsOneLatest(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)
	questionID := testutil.CreateQuestion(t, db, f.Student, "Q")

	v1, err := svc.review.SubmitReview(f.Reviewer, models.TargetQuestion, questionID, 3, "v1")
	if err != nil {
		t.Fatalf("SubmitReview failed: %v", err)
	}
	v2, err := svc.review.ReviseReview(f.Reviewer, v1.ID, 4, "v2")
	if err != nil {
		t.Fatalf("ReviseReview failed: %v", err)
	}

	// A revision attempt against the superseded version fails and writes
	// nothing.
	if _, err := svc.review.ReviseReview(f.Reviewer, v1.ID, 5, "stale"); !apperrors.IsConflict(err) {
		t.Fatalf("Expected conflict revising a superseded version, got %v", err)
	}

	// Inserting a second latest row without superseding the current one hits
	// the partial unique index mid-transaction; the rollback must leave the
	// chain untouched.
	reviewRepo := repository.NewReviewRepository(db)
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	err = reviewRepo.InsertTx(tx, &models.Review{
		ReviewerUsername: f.Reviewer,
		TargetType:       models.TargetQuestion,
		TargetID:         questionID,
		Rating:           5,
		Comment:          "racing",
		PreviousReviewID: &v2.ID,
	})
	if err == nil {
		t.Fatal("Expected a second latest row to be rejected")
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	var latestCount int
	err = db.QueryRow(
		`SELECT COUNT(*) FROM reviews
		 WHERE reviewer_username = $1 AND target_type = $2 AND target_id = $3 AND is_latest`,
		f.Reviewer, string(models.TargetQuestion), questionID,
	).Scan(&latestCount)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if latestCount != 1 {
		t.Fatalf("Expected exactly one latest version after failed attempts, got %d", latestCount)
	}

	latest, err := svc.review.GetLatest(f.Reviewer, models.TargetQuestion, questionID)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if latest.ID != v2.ID {
		t.Errorf("Expected %d to remain the latest version, got %d", v2.ID, latest.ID)
	}
}

func TestGetChain(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)
	questionID := testutil.CreateQuestion(t, db, f.Student, "Q")

	v1, err := svc.review.SubmitReview(f.Reviewer, models.TargetQuestion, questionID, 2, "v1")
	if err != nil {
		t.Fatalf("SubmitReview failed: %v", err)
	}
	v2, err := svc.review.ReviseReview(f.Reviewer, v1.ID, 3, "v2")
	if err != nil {
		t.Fatalf("ReviseReview failed: %v", err)
	}
	v3, err := svc.review.ReviseReview(f.Reviewer, v2.ID, 4, "v3")
	if err != nil {
		t.Fatalf("ReviseReview failed: %v", err)
	}

	chain, err := svc.review.GetChain(f.Reviewer, models.TargetQuestion, questionID)
	if err != nil {
		t.Fatalf("GetChain failed: %v", err)
	}
	if len(chain) != 3 {
		t.Fatalf("Expected 3 versions, got %d", len(chain))
	}
	if chain[0].ID != v1.ID || chain[2].ID != v3.ID {
		t.Errorf("Expected chain oldest first [%d %d %d], got [%d %d %d]",
			v1.ID, v2.ID, v3.ID, chain[0].ID, chain[1].ID, chain[2].ID)
	}

	if _, err := svc.review.GetChain("nobody", models.TargetQuestion, questionID); !apperrors.IsNotFound(err) {
		t.Errorf("Expected not-found error for empty chain, got %v", err)
	}
}

func TestDeleteReviewChain(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)
	questionID := testutil.CreateQuestion(t, db, f.Student, "Q")

	v1, err := svc.review.SubmitReview(f.Reviewer, models.TargetQuestion, questionID, 2, "v1")
	if err != nil {
		t.Fatalf("SubmitReview failed: %v", err)
	}
	v2, err := svc.review.ReviseReview(f.Reviewer, v1.ID, 3, "v2")
	if err != nil {
		t.Fatalf("ReviseReview failed: %v", err)
	}
	if _, err := svc.review.ReviseReview(f.Reviewer, v2.ID, 4, "v3"); err != nil {
		t.Fatalf("ReviseReview failed: %v", err)
	}

	// A second reviewer's chain on the same target must survive.
	testutil.CreateUser(t, db, "reviewer2", models.RoleReviewer)
	other, err := svc.review.SubmitReview("reviewer2", models.TargetQuestion, questionID, 5, "other chain")
	if err != nil {
		t.Fatalf("SubmitReview failed: %v", err)
	}

	// Starting from a middle version still removes the whole chain.
	if _, err := svc.review.DeleteReviewChain("someone-else", false, v2.ID); !apperrors.IsForbidden(err) {
		t.Fatalf("Expected forbidden error for non-owner non-admin, got %v", err)
	}
	removed, err := svc.review.DeleteReviewChain(f.Reviewer, false, v2.ID)
	if err != nil {
		t.Fatalf("DeleteReviewChain failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("Expected 3 versions removed, got %d", removed)
	}

	if _, err := svc.review.GetReview(v1.ID); !apperrors.IsNotFound(err) {
		t.Errorf("Expected chain versions to be gone, got %v", err)
	}
	if _, err := svc.review.GetReview(other.ID); err != nil {
		t.Errorf("Expected the other reviewer's chain to survive: %v", err)
	}
}

func TestAggregateRating(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)
	testutil.CreateUser(t, db, "reviewer2", models.RoleReviewer)
	testutil.CreateUser(t, db, "reviewer3", models.RoleReviewer)
	questionID := testutil.CreateQuestion(t, db, f.Student, "Q")

	if _, err := svc.review.SubmitReview(f.Reviewer, models.TargetQuestion, questionID, 5, ""); err != nil {
		t.Fatalf("SubmitReview failed: %v", err)
	}
	if _, err := svc.review.SubmitReview("reviewer2", models.TargetQuestion, questionID, 1, ""); err != nil {
		t.Fatalf("SubmitReview failed: %v", err)
	}
	// reviewer3 reviews too but the student does not trust them.
	if _, err := svc.review.SubmitReview("reviewer3", models.TargetQuestion, questionID, 3, ""); err != nil {
		t.Fatalf("SubmitReview failed: %v", err)
	}

	if err := svc.review.TrustReviewer(f.Student, f.Reviewer, 1); err != nil {
		t.Fatalf("TrustReviewer failed: %v", err)
	}
	if err := svc.review.TrustReviewer(f.Student, "reviewer2", 4); err != nil {
		t.Fatalf("TrustReviewer failed: %v", err)
	}

	agg, err := svc.review.AggregateRating(f.Student, models.TargetQuestion, questionID)
	if err != nil {
		t.Fatalf("AggregateRating failed: %v", err)
	}
	if !agg.OK {
		t.Fatal("Expected OK aggregation")
	}
	if agg.ReviewerCount != 2 {
		t.Errorf("Expected 2 contributing reviewers, got %d", agg.ReviewerCount)
	}
	// (5*1 + 1*4) / 5 = 1.8
	if math.Abs(agg.WeightedAverage-1.8) > 1e-9 {
		t.Errorf("Expected weighted average 1.8, got %f", agg.WeightedAverage)
	}

	// A student trusting nobody sees no rating at all.
	testutil.CreateUser(t, db, "student2", models.RoleStudent)
	agg, err = svc.review.AggregateRating("student2", models.TargetQuestion, questionID)
	if err != nil {
		t.Fatalf("AggregateRating failed: %v", err)
	}
	if agg.OK {
		t.Error("Expected no aggregation for a student with no trust edges")
	}
}

func TestTrustReviewer(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)

	if err := svc.review.TrustReviewer(f.Student, f.Student, 3); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error for self-trust, got %v", err)
	}
	if err := svc.review.TrustReviewer(f.Student, f.Admin, 3); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error trusting a non-reviewer, got %v", err)
	}
	if err := svc.review.TrustReviewer(f.Student, f.Reviewer, 0); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error for weight 0, got %v", err)
	}

	if err := svc.review.TrustReviewer(f.Student, f.Reviewer, 2); err != nil {
		t.Fatalf("TrustReviewer failed: %v", err)
	}
	// Trusting again replaces the weight.
	if err := svc.review.TrustReviewer(f.Student, f.Reviewer, 5); err != nil {
		t.Fatalf("TrustReviewer failed: %v", err)
	}

	trusted, err := svc.review.ListTrustedReviewers(f.Student)
	if err != nil {
		t.Fatalf("ListTrustedReviewers failed: %v", err)
	}
	if len(trusted) != 1 || trusted[0].Weight != 5 {
		t.Errorf("Expected one trust edge with weight 5, got %+v", trusted)
	}

	if err := svc.review.UntrustReviewer(f.Student, f.Reviewer); err != nil {
		t.Fatalf("UntrustReviewer failed: %v", err)
	}
	if err := svc.review.UntrustReviewer(f.Student, f.Reviewer); !apperrors.IsNotFound(err) {
		t.Errorf("Expected not-found error untrusting twice, got %v", err)
	}
}

func TestReviewerRequestLifecycle(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)

	if _, err := svc.review.RequestReviewerRole(f.Reviewer); !apperrors.IsConflict(err) {
		t.Errorf("Expected conflict when an existing reviewer applies, got %v", err)
	}

	req, err := svc.review.RequestReviewerRole(f.Student)
	if err != nil {
		t.Fatalf("RequestReviewerRole failed: %v", err)
	}
	if req.Status != models.RequestPending {
		t.Errorf("Expected pending status, got %s", req.Status)
	}

	// One application per user.
	if _, err := svc.review.RequestReviewerRole(f.Student); !apperrors.IsConflict(err) {
		t.Errorf("Expected conflict for duplicate application, got %v", err)
	}

	if err := svc.review.ApproveReviewerRequest(f.Admin, f.Student); err != nil {
		t.Fatalf("ApproveReviewerRequest failed: %v", err)
	}
	has, err := svc.identity.HasRole(f.Student, models.RoleReviewer)
	if err != nil {
		t.Fatalf("HasRole failed: %v", err)
	}
	if !has {
		t.Error("Expected approval to grant the reviewer role")
	}

	// Approved requests are terminal; a second approval finds nothing pending.
	if err := svc.review.ApproveReviewerRequest(f.Admin, f.Student); !apperrors.IsNotFound(err) {
		t.Errorf("Expected not-found error approving twice, got %v", err)
	}
}

func TestReviewerRequestDenyAndReset(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)

	if _, err := svc.review.RequestReviewerRole(f.Student); err != nil {
		t.Fatalf("RequestReviewerRole failed: %v", err)
	}
	if err := svc.review.DenyReviewerRequest(f.Admin, f.Student); err != nil {
		t.Fatalf("DenyReviewerRequest failed: %v", err)
	}

	req, err := svc.review.GetReviewerRequest(f.Student)
	if err != nil {
		t.Fatalf("GetReviewerRequest failed: %v", err)
	}
	if req.Status != models.RequestDenied {
		t.Errorf("Expected denied status, got %s", req.Status)
	}

	// Denied applicants must reset before reapplying.
	if _, err := svc.review.RequestReviewerRole(f.Student); !apperrors.IsConflict(err) {
		t.Errorf("Expected conflict reapplying while denied, got %v", err)
	}
	if err := svc.review.ResetReviewerRequest(f.Student); err != nil {
		t.Fatalf("ResetReviewerRequest failed: %v", err)
	}
	if _, err := svc.review.RequestReviewerRole(f.Student); err != nil {
		t.Errorf("Expected reapplication after reset to succeed: %v", err)
	}
}
