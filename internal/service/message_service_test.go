package service

import (
	"strings"
	"testing"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/apperrors"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/testutil"
)

func TestSendMessage(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)
	questionID := testutil.CreateQuestion(t, db, f.Student, "Q")

	m, err := svc.message.Send(f.Student, f.Reviewer, questionID, nil, "could you look at this?", "")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if m.MessageType != models.MessageTypeDirect {
		t.Errorf("Expected empty type to default to direct, got %q", m.MessageType)
	}
	if m.IsRead {
		t.Error("Expected new message to be unread")
	}

	// The type is a free-form tag, not a closed set.
	m, err = svc.message.Send(f.Student, f.Reviewer, questionID, nil, "tagged", "question")
	if err != nil {
		t.Fatalf("Send with a custom type failed: %v", err)
	}
	if m.MessageType != "question" {
		t.Errorf("Expected custom type to be stored, got %q", m.MessageType)
	}
}

func TestSendMessageValidation(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)
	q1 := testutil.CreateQuestion(t, db, f.Student, "Q1")
	q2 := testutil.CreateQuestion(t, db, f.Student, "Q2")
	a1 := testutil.CreateAnswer(t, db, q1, f.Reviewer, nil)

	if _, err := svc.message.Send(f.Student, f.Reviewer, q1, nil, "   ", ""); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error for blank content, got %v", err)
	}
	if _, err := svc.message.Send(f.Student, f.Student, q1, nil, "hi", ""); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error for self-send, got %v", err)
	}
	if _, err := svc.message.Send(f.Student, f.Reviewer, q1, nil, "hi", strings.Repeat("x", 51)); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error for an oversized type tag, got %v", err)
	}
	if _, err := svc.message.Send(f.Student, "nobody", q1, nil, "hi", ""); !apperrors.IsNotFound(err) {
		t.Errorf("Expected not-found error for unknown recipient, got %v", err)
	}
	if _, err := svc.message.Send(f.Student, f.Reviewer, 9999, nil, "hi", ""); !apperrors.IsNotFound(err) {
		t.Errorf("Expected not-found error for unknown question, got %v", err)
	}
	if _, err := svc.message.Send(f.Student, f.Reviewer, q2, &a1, "hi", ""); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error for answer outside the question, got %v", err)
	}
}

func TestFetchBetween(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)
	questionID := testutil.CreateQuestion(t, db, f.Student, "Q")
	answerID := testutil.CreateAnswer(t, db, questionID, f.Reviewer, nil)

	if _, err := svc.message.Send(f.Student, f.Reviewer, questionID, nil, "about the question", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, err := svc.message.Send(f.Reviewer, f.Student, questionID, nil, "replying", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, err := svc.message.Send(f.Student, f.Reviewer, questionID, &answerID, "about the answer", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	// A conversation with a third user stays out of the picture.
	if _, err := svc.message.Send(f.Student, f.Admin, questionID, nil, "unrelated", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// Question-level scope: both directions, no answer-scoped messages.
	conv, err := svc.message.FetchBetween(f.Student, f.Reviewer, questionID, nil)
	if err != nil {
		t.Fatalf("FetchBetween failed: %v", err)
	}
	if len(conv) != 2 {
		t.Fatalf("Expected 2 question-scoped messages, got %d", len(conv))
	}
	if conv[0].Content != "about the question" {
		t.Errorf("Expected oldest first, got %q", conv[0].Content)
	}

	// Answer-level scope.
	conv, err = svc.message.FetchBetween(f.Student, f.Reviewer, questionID, &answerID)
	if err != nil {
		t.Fatalf("FetchBetween failed: %v", err)
	}
	if len(conv) != 1 || conv[0].Content != "about the answer" {
		t.Errorf("Expected only the answer-scoped message, got %+v", conv)
	}
}

func TestUnreadAndMarkRead(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)
	q1 := testutil.CreateQuestion(t, db, f.Student, "Q1")
	q2 := testutil.CreateQuestion(t, db, f.Student, "Q2")
	answerID := testutil.CreateAnswer(t, db, q1, f.Reviewer, nil)

	// Three conversations addressed to the reviewer: two on q1 (question
	// level and answer level) and one on q2.
	if _, err := svc.message.Send(f.Student, f.Reviewer, q1, nil, "one", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, err := svc.message.Send(f.Student, f.Reviewer, q1, nil, "two", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, err := svc.message.Send(f.Student, f.Reviewer, q1, &answerID, "on the answer", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, err := svc.message.Send(f.Student, f.Reviewer, q2, nil, "other question", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	// Same context, different recipient; the reviewer's flip must not touch it.
	if _, err := svc.message.Send(f.Student, f.Admin, q1, nil, "not yours", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	count, err := svc.message.CountUnread(f.Reviewer)
	if err != nil {
		t.Fatalf("CountUnread failed: %v", err)
	}
	if count != 4 {
		t.Errorf("Expected 4 unread messages overall, got %d", count)
	}
	count, err = svc.message.CountUnreadInContext(f.Reviewer, q1, nil)
	if err != nil {
		t.Fatalf("CountUnreadInContext failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 unread messages in the q1 question context, got %d", count)
	}

	if _, err := svc.message.MarkRead(f.Reviewer, 0, nil); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error for missing question id, got %v", err)
	}

	// Flipping the q1 question-level conversation leaves the answer-level
	// and q2 conversations unread.
	changed, err := svc.message.MarkRead(f.Reviewer, q1, nil)
	if err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if changed != 2 {
		t.Errorf("Expected 2 messages changed, got %d", changed)
	}

	count, err = svc.message.CountUnreadInContext(f.Reviewer, q1, nil)
	if err != nil {
		t.Fatalf("CountUnreadInContext failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected the q1 question context to be read, got %d unread", count)
	}
	count, err = svc.message.CountUnreadInContext(f.Reviewer, q1, &answerID)
	if err != nil {
		t.Fatalf("CountUnreadInContext failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected the answer context to stay unread, got %d", count)
	}
	count, err = svc.message.CountUnread(f.Reviewer)
	if err != nil {
		t.Fatalf("CountUnread failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected the answer and q2 conversations to stay unread, got %d", count)
	}

	// The admin's message in the same context was untouched.
	count, err = svc.message.CountUnread(f.Admin)
	if err != nil {
		t.Fatalf("CountUnread failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected the admin's message to stay unread, got %d", count)
	}
}

func TestReviewFeedbackMessages(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)
	questionID := testutil.CreateQuestion(t, db, f.Student, "Q")

	if _, err := svc.message.Send(f.Reviewer, f.Student, questionID, nil, "please clarify", models.MessageTypeReviewFeedback); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, err := svc.message.Send(f.Reviewer, f.Student, questionID, nil, "chit-chat", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	feedback, err := svc.message.FetchReviewFeedback(f.Student)
	if err != nil {
		t.Fatalf("FetchReviewFeedback failed: %v", err)
	}
	if len(feedback) != 1 || feedback[0].Content != "please clarify" {
		t.Errorf("Expected only the review-feedback message, got %+v", feedback)
	}
}

func TestReviewUpdateNotifications(t *testing.T) {
	db := setupIntegration(t)
	svc := newTestServices(db)
	f := testutil.SetupFixtures(t, db)
	questionID := testutil.CreateQuestion(t, db, f.Student, "Q")

	if err := svc.review.TrustReviewer(f.Student, f.Reviewer, 3); err != nil {
		t.Fatalf("TrustReviewer failed: %v", err)
	}

	// No revision yet, nothing to report.
	has, err := svc.message.HasReviewUpdates(f.Student)
	if err != nil {
		t.Fatalf("HasReviewUpdates failed: %v", err)
	}
	if has {
		t.Error("Expected no review updates before any revision")
	}

	v1, err := svc.review.SubmitReview(f.Reviewer, models.TargetQuestion, questionID, 3, "v1")
	if err != nil {
		t.Fatalf("SubmitReview failed: %v", err)
	}
	if _, err := svc.review.ReviseReview(f.Reviewer, v1.ID, 4, "v2"); err != nil {
		t.Fatalf("ReviseReview failed: %v", err)
	}

	has, err = svc.message.HasReviewUpdates(f.Student)
	if err != nil {
		t.Fatalf("HasReviewUpdates failed: %v", err)
	}
	if !has {
		t.Error("Expected a review update after the trusted reviewer revised")
	}

	// A student who does not trust the reviewer sees nothing.
	testutil.CreateUser(t, db, "student2", models.RoleStudent)
	has, err = svc.message.HasReviewUpdates("student2")
	if err != nil {
		t.Fatalf("HasReviewUpdates failed: %v", err)
	}
	if has {
		t.Error("Expected no review updates for a student without trust edges")
	}

	cleared, err := svc.message.AcknowledgeReviewUpdates(f.Reviewer)
	if err != nil {
		t.Fatalf("AcknowledgeReviewUpdates failed: %v", err)
	}
	if cleared != 1 {
		t.Errorf("Expected 1 cleared update, got %d", cleared)
	}
	has, err = svc.message.HasReviewUpdates(f.Student)
	if err != nil {
		t.Fatalf("HasReviewUpdates failed: %v", err)
	}
	if has {
		t.Error("Expected no review updates after acknowledgment")
	}
}
