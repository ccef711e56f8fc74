package models

import (
	"time"
)

// Role is the closed set of roles a user can hold.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleStaff      Role = "staff"
	RoleReviewer   Role = "reviewer"
)

// AllRoles lists every valid role.
var AllRoles = []Role{RoleAdmin, RoleStudent, RoleInstructor, RoleStaff, RoleReviewer}

// IsValidRole reports whether s names a known role.
func IsValidRole(s string) bool {
	for _, r := range AllRoles {
		if string(r) == s {
			return true
		}
	}
	return false
}

// User represents an account. The username is the primary key.
type User struct {
	Username        string    `json:"username" db:"username"`
	PasswordHash    string    `json:"-" db:"password_hash"`
	OneTimePassword *string   `json:"-" db:"one_time_password"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// RoleAssignment links a user to one of their roles.
type RoleAssignment struct {
	Username  string    `json:"username" db:"username"`
	Role      Role      `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UserWithRoles extends User with all roles assigned to it.
type UserWithRoles struct {
	User
	Roles []Role `json:"roles"`
}

// Invitation is a single-use registration code granting one or more roles.
type Invitation struct {
	Code      string    `json:"code" db:"code"`
	Roles     []Role    `json:"roles" db:"-"` // stored comma-joined in the roles column
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// InvitationValidation is the result of checking a code without consuming it.
type InvitationValidation struct {
	Valid bool   `json:"valid"`
	Roles []Role `json:"roles,omitempty"`
}

// Question represents a posted question.
type Question struct {
	ID               int64     `json:"id" db:"id"`
	Title            string    `json:"title" db:"title"`
	Content          string    `json:"content" db:"content"`
	Author           string    `json:"author" db:"author"`
	Tags             []string  `json:"tags" db:"-"` // stored comma-joined in the tags column
	AcceptedAnswerID *int64    `json:"accepted_answer_id,omitempty" db:"accepted_answer_id"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Answer represents an answer to a question, or a reply to another answer
// when ParentAnswerID is set.
type Answer struct {
	ID             int64     `json:"id" db:"id"`
	QuestionID     int64     `json:"question_id" db:"question_id"`
	Content        string    `json:"content" db:"content"`
	Author         string    `json:"author" db:"author"`
	ParentAnswerID *int64    `json:"parent_answer_id,omitempty" db:"parent_answer_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// AnswerNode is an answer with its nested replies, as returned by LoadThread.
type AnswerNode struct {
	Answer
	Replies []*AnswerNode `json:"replies"`
}

// ReviewTargetType distinguishes what a review points at.
type ReviewTargetType string

const (
	TargetQuestion ReviewTargetType = "question"
	TargetAnswer   ReviewTargetType = "answer"
)

// Review is one version in a reviewer's append-only review chain for a
// target. Editing never mutates a row; a new row is inserted with
// PreviousReviewID pointing at the superseded version, which loses its
// latest flag in the same transaction.
type Review struct {
	ID               int64            `json:"id" db:"id"`
	ReviewerUsername string           `json:"reviewer_username" db:"reviewer_username"`
	TargetType       ReviewTargetType `json:"target_type" db:"target_type"`
	TargetID         int64            `json:"target_id" db:"target_id"`
	Rating           int              `json:"rating" db:"rating"`
	Comment          string           `json:"comment" db:"comment"`
	PreviousReviewID *int64           `json:"previous_review_id,omitempty" db:"previous_review_id"`
	IsLatest         bool             `json:"is_latest" db:"is_latest"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}

// TrustedReviewer expresses how much a student weights a reviewer's ratings.
type TrustedReviewer struct {
	StudentUsername  string    `json:"student_username" db:"student_username"`
	ReviewerUsername string    `json:"reviewer_username" db:"reviewer_username"`
	Weight           int       `json:"weight" db:"weight"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// ReviewerRequestStatus is the state of a reviewer-role application.
type ReviewerRequestStatus string

const (
	RequestPending  ReviewerRequestStatus = "pending"
	RequestApproved ReviewerRequestStatus = "approved"
	RequestDenied   ReviewerRequestStatus = "denied"
)

// ReviewerRequest is a one-row-per-user application for the reviewer role.
// Approved and denied are terminal; reapplying requires deleting the row.
type ReviewerRequest struct {
	Username  string                `json:"username" db:"username"`
	Status    ReviewerRequestStatus `json:"status" db:"status"`
	CreatedAt time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt time.Time             `json:"updated_at" db:"updated_at"`
}

// ReviewUpdate is an append-only event recording that a reviewer revised a
// review. Students trusting that reviewer see it until it is acknowledged.
type ReviewUpdate struct {
	ID               int64     `json:"id" db:"id"`
	ReviewerUsername string    `json:"reviewer_username" db:"reviewer_username"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// Message types.
const (
	MessageTypeDirect         = "direct"
	MessageTypeReviewFeedback = "review_feedback"
)

// Message is a directed message scoped to a (question, answer) context.
// Immutable after sending except for the read flag.
type Message struct {
	ID          int64     `json:"id" db:"id"`
	Sender      string    `json:"sender" db:"sender"`
	Recipient   string    `json:"recipient" db:"recipient"`
	QuestionID  int64     `json:"question_id" db:"question_id"`
	AnswerID    *int64    `json:"answer_id,omitempty" db:"answer_id"`
	Content     string    `json:"content" db:"content"`
	MessageType string    `json:"message_type" db:"message_type"`
	IsRead      bool      `json:"is_read" db:"is_read"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// AuditLog records an administrative or destructive action.
type AuditLog struct {
	ID        int64     `json:"id" db:"id"`
	Username  *string   `json:"username,omitempty" db:"username"`
	Action    string    `json:"action" db:"action"`
	Resource  string    `json:"resource" db:"resource"`
	Details   string    `json:"details,omitempty" db:"details"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AggregatedRating is the trust-weighted rating of a target as seen by one
// student. OK is false when no trusted reviewer has reviewed the target.
type AggregatedRating struct {
	WeightedAverage float64 `json:"weighted_average"`
	ReviewerCount   int     `json:"reviewer_count"`
	OK              bool    `json:"ok"`
}
