package testutil

import (
	"database/sql"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
)

// Fixtures holds common test data
type Fixtures struct {
	DB       *sql.DB
	Admin    string
	Reviewer string
	Student  string
}

// SetupFixtures creates an admin, a reviewer and a student account
func SetupFixtures(t *testing.T, db *sql.DB) *Fixtures {
	t.Helper()

	f := &Fixtures{
		DB:       db,
		Admin:    "admin",
		Reviewer: "reviewer1",
		Student:  "student1",
	}

	CreateUser(t, db, f.Admin, models.RoleAdmin)
	CreateUser(t, db, f.Reviewer, models.RoleReviewer)
	CreateUser(t, db, f.Student, models.RoleStudent)

	return f
}

// CreateUser inserts a user with the given roles and the password "password1"
func CreateUser(t *testing.T, db *sql.DB, username string, roles ...models.Role) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash test password: %v", err)
	}

	_, err = db.Exec(
		`INSERT INTO users (username, password_hash) VALUES ($1, $2)`,
		username, string(hash),
	)
	if err != nil {
		t.Fatalf("Failed to create test user %s: %v", username, err)
	}

	for _, role := range roles {
		_, err = db.Exec(
			`INSERT INTO role_assignments (username, role) VALUES ($1, $2)`,
			username, string(role),
		)
		if err != nil {
			t.Fatalf("Failed to assign role %s to %s: %v", role, username, err)
		}
	}
}

// CreateQuestion inserts a question and returns its id
func CreateQuestion(t *testing.T, db *sql.DB, author, title string) int64 {
	t.Helper()

	var id int64
	err := db.QueryRow(
		`INSERT INTO questions (title, content, author) VALUES ($1, $2, $3) RETURNING id`,
		title, "test content", author,
	).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to create test question: %v", err)
	}

	return id
}

// CreateAnswer inserts an answer and returns its id
func CreateAnswer(t *testing.T, db *sql.DB, questionID int64, author string, parentID *int64) int64 {
	t.Helper()

	var id int64
	err := db.QueryRow(
		`INSERT INTO answers (question_id, content, author, parent_answer_id)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		questionID, "test answer", author, parentID,
	).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to create test answer: %v", err)
	}

	return id
}
