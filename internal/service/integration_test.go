package service

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/auth"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/config"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/email"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/repository"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/testutil"
)

// One container for the whole package; tests truncate between runs.
var testDB *testutil.TestDatabase

func TestMain(m *testing.M) {
	code := m.Run()
	if testDB != nil {
		if testDB.DB != nil {
			testDB.DB.Close()
		}
		if testDB.Container != nil {
			_ = testDB.Container.Terminate(context.Background())
		}
	}
	os.Exit(code)
}

func setupIntegration(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if testDB == nil {
		testDB = testutil.SetupTestDatabase(t)
	}
	testDB.TruncateAll(t)
	return testDB.DB
}

type testServices struct {
	identity   *IdentityService
	invitation *InvitationService
	thread     *ThreadService
	review     *ReviewService
	message    *MessageService
}

func newTestServices(db *sql.DB) *testServices {
	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	invitationRepo := repository.NewInvitationRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	answerRepo := repository.NewAnswerRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	trustRepo := repository.NewTrustRepository(db)
	requestRepo := repository.NewReviewerRequestRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	audit := NewAuditService(repository.NewAuditRepository(db))

	authService := auth.NewService(&config.JWTConfig{
		Secret:     "integration-test-secret",
		Expiration: time.Hour,
	})
	emailService := email.NewService(&config.EmailConfig{})
	invitationCfg := &config.InvitationConfig{CodeLength: 8, MaxIssueAttempts: 5}

	return &testServices{
		identity:   NewIdentityService(db, userRepo, roleRepo, authService, audit),
		invitation: NewInvitationService(invitationRepo, emailService, invitationCfg, audit),
		thread:     NewThreadService(db, questionRepo, answerRepo, reviewRepo, audit),
		review:     NewReviewService(db, reviewRepo, trustRepo, requestRepo, roleRepo, questionRepo, answerRepo, audit),
		message:    NewMessageService(messageRepo, trustRepo, userRepo, questionRepo, answerRepo),
	}
}
