package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/almakhlifi/peer-validated-qa-platform-sub001/docs" // swagger docs
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/auth"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/config"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/database"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/email"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/handlers"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/logger"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/middleware"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/repository"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/scheduler"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/service"
)

// @title Peer-Validated Q&A Platform API
// @version 1.0
// @description Role-based Q&A platform with moderated peer review, versioned review chains and trust-weighted ratings

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Setup(logger.Config{
		Level: cfg.Log.Level,
	})

	slog.Info("Starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"env", cfg.App.Env,
		"log_level", cfg.Log.Level,
	)

	db, err := database.New(&cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func(db *database.Database) {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database connection", "error", err)
		}
	}(db)

	slog.Info("Database connection established")

	migrator := database.NewMigrationExecutor(db.DB)
	if err := migrator.RunMigrations("./migrations"); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database migrations completed")

	// Repositories
	userRepo := repository.NewUserRepository(db.DB)
	roleRepo := repository.NewRoleRepository(db.DB)
	invitationRepo := repository.NewInvitationRepository(db.DB)
	questionRepo := repository.NewQuestionRepository(db.DB)
	answerRepo := repository.NewAnswerRepository(db.DB)
	reviewRepo := repository.NewReviewRepository(db.DB)
	trustRepo := repository.NewTrustRepository(db.DB)
	requestRepo := repository.NewReviewerRequestRepository(db.DB)
	messageRepo := repository.NewMessageRepository(db.DB)
	auditRepo := repository.NewAuditRepository(db.DB)

	// Services
	authService := auth.NewService(&cfg.JWT)
	emailService := email.NewService(&cfg.Email)
	auditService := service.NewAuditService(auditRepo)
	identityService := service.NewIdentityService(db.DB, userRepo, roleRepo, authService, auditService)
	invitationService := service.NewInvitationService(invitationRepo, emailService, &cfg.Invitation, auditService)
	threadService := service.NewThreadService(db.DB, questionRepo, answerRepo, reviewRepo, auditService)
	reviewService := service.NewReviewService(db.DB, reviewRepo, trustRepo, requestRepo, roleRepo,
		questionRepo, answerRepo, auditService)
	messageService := service.NewMessageService(messageRepo, trustRepo, userRepo, questionRepo, answerRepo)

	// Handlers
	authHandler := handlers.NewAuthHandler(identityService, invitationService)
	userHandler := handlers.NewUserHandler(identityService, auditService)
	invitationHandler := handlers.NewInvitationHandler(invitationService)
	questionHandler := handlers.NewQuestionHandler(threadService, identityService)
	reviewHandler := handlers.NewReviewHandler(reviewService, identityService)
	messageHandler := handlers.NewMessageHandler(messageService)

	// Middleware
	authMw := middleware.NewAuthMiddleware(authService)
	rbacMw := middleware.NewRBACMiddleware(roleRepo)
	corsMw := middleware.NewCORSMiddleware(&cfg.CORS)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit)

	authed := func(h http.HandlerFunc) http.Handler {
		return authMw.Authenticate(h)
	}
	adminOnly := func(h http.HandlerFunc) http.Handler {
		return authMw.Authenticate(rbacMw.RequireRole(models.RoleAdmin)(h))
	}
	reviewerOnly := func(h http.HandlerFunc) http.Handler {
		return authMw.Authenticate(rbacMw.RequireRole(models.RoleReviewer)(h))
	}

	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/v1/auth/password/reset", authHandler.ResetPassword)
	mux.HandleFunc("GET /api/v1/invitations/{code}/validate", invitationHandler.Validate)
	mux.HandleFunc("GET /api/v1/questions", questionHandler.List)
	mux.HandleFunc("GET /api/v1/questions/{id}", questionHandler.GetThread)
	mux.HandleFunc("GET /api/v1/targets/{type}/{id}/reviews", reviewHandler.ListForTarget)
	mux.HandleFunc("GET /api/v1/targets/{type}/{id}/reviews/{reviewer}", reviewHandler.GetLatest)
	mux.HandleFunc("GET /api/v1/targets/{type}/{id}/reviews/{reviewer}/chain", reviewHandler.GetChain)

	// Authenticated routes
	mux.Handle("PUT /api/v1/auth/password", authed(authHandler.ChangePassword))
	mux.Handle("POST /api/v1/questions", authed(questionHandler.Create))
	mux.Handle("PUT /api/v1/questions/{id}", authed(questionHandler.Update))
	mux.Handle("DELETE /api/v1/questions/{id}", authed(questionHandler.Delete))
	mux.Handle("POST /api/v1/questions/{id}/accept", authed(questionHandler.Accept))
	mux.Handle("DELETE /api/v1/questions/{id}/accept", authed(questionHandler.ClearAccepted))
	mux.Handle("POST /api/v1/questions/{id}/answers", authed(questionHandler.CreateAnswer))
	mux.Handle("PUT /api/v1/answers/{id}", authed(questionHandler.UpdateAnswer))
	mux.Handle("DELETE /api/v1/answers/{id}", authed(questionHandler.DeleteAnswer))

	mux.Handle("GET /api/v1/targets/{type}/{id}/rating", authed(reviewHandler.Aggregate))
	mux.Handle("GET /api/v1/trusted-reviewers", authed(reviewHandler.ListTrusted))
	mux.Handle("PUT /api/v1/trusted-reviewers/{reviewer}", authed(reviewHandler.Trust))
	mux.Handle("DELETE /api/v1/trusted-reviewers/{reviewer}", authed(reviewHandler.Untrust))
	mux.Handle("POST /api/v1/reviewer-requests", authed(reviewHandler.RequestRole))
	mux.Handle("GET /api/v1/reviewer-requests/me", authed(reviewHandler.GetMyRequest))
	mux.Handle("DELETE /api/v1/reviewer-requests/me", authed(reviewHandler.ResetMyRequest))

	mux.Handle("POST /api/v1/messages", authed(messageHandler.Send))
	mux.Handle("GET /api/v1/messages", authed(messageHandler.List))
	mux.Handle("GET /api/v1/messages/review-feedback", authed(messageHandler.ReviewFeedback))
	mux.Handle("GET /api/v1/messages/unread-count", authed(messageHandler.UnreadCount))
	mux.Handle("POST /api/v1/messages/read", authed(messageHandler.MarkRead))
	mux.Handle("GET /api/v1/review-updates", authed(messageHandler.ReviewUpdates))

	// Reviewer routes
	mux.Handle("POST /api/v1/reviews", reviewerOnly(reviewHandler.Submit))
	mux.Handle("POST /api/v1/reviews/{id}/revise", reviewerOnly(reviewHandler.Revise))
	mux.Handle("DELETE /api/v1/reviews/{id}", authed(reviewHandler.DeleteChain))
	mux.Handle("DELETE /api/v1/review-updates/{reviewer}", authed(messageHandler.AcknowledgeReviewUpdates))

	// Admin routes
	mux.Handle("GET /api/v1/admin/users", adminOnly(userHandler.ListUsers))
	mux.Handle("DELETE /api/v1/admin/users/{username}", adminOnly(userHandler.DeleteUser))
	mux.Handle("POST /api/v1/admin/users/{username}/roles", adminOnly(userHandler.AssignRole))
	mux.Handle("DELETE /api/v1/admin/users/{username}/roles/{role}", adminOnly(userHandler.RevokeRole))
	mux.Handle("POST /api/v1/admin/users/{username}/one-time-password", adminOnly(userHandler.SetOneTimePassword))
	mux.Handle("GET /api/v1/admin/roles/integrity", adminOnly(userHandler.CheckRoleIntegrity))
	mux.Handle("GET /api/v1/admin/audit", adminOnly(userHandler.ListAuditLog))
	mux.Handle("POST /api/v1/admin/invitations", adminOnly(invitationHandler.Issue))
	mux.Handle("GET /api/v1/admin/reviewer-requests", adminOnly(reviewHandler.ListRequests))
	mux.Handle("POST /api/v1/admin/reviewer-requests/{username}/approve", adminOnly(reviewHandler.ApproveRequest))
	mux.Handle("POST /api/v1/admin/reviewer-requests/{username}/deny", adminOnly(reviewHandler.DenyRequest))

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, err := w.Write([]byte(`{"status":"unhealthy","database":"error"}`)); err != nil {
				slog.Error("Failed to write health check response", "error", err)
			}
			return
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"healthy","version":"` + cfg.App.Version + `"}`)); err != nil {
			slog.Error("Failed to write health check response", "error", err)
		}
	})

	// Swagger documentation
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	// Apply global middleware
	handler := middleware.LoggingMiddleware(
		middleware.SecurityHeaders(
			corsMw.Handler(
				rateLimiter.Limit(mux),
			),
		),
	)

	// Periodic maintenance
	sched := scheduler.NewScheduler(invitationService, trustRepo, &cfg.Scheduler)
	sched.Start()
	defer sched.Stop()

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.TimeoutRead,
		WriteTimeout: cfg.Server.TimeoutWrite,
		IdleTimeout:  cfg.Server.TimeoutIdle,
	}

	go func() {
		slog.Info("Server starting", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}
