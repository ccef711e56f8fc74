package scheduler

import (
	"log/slog"
	"time"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/config"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/repository"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/service"
)

// Scheduler handles periodic maintenance tasks
type Scheduler struct {
	invitationService *service.InvitationService
	trustRepo         *repository.TrustRepository
	config            *config.SchedulerConfig
	stopChan          chan bool
}

// NewScheduler creates a new scheduler
func NewScheduler(
	invitationService *service.InvitationService,
	trustRepo *repository.TrustRepository,
	cfg *config.SchedulerConfig,
) *Scheduler {
	return &Scheduler{
		invitationService: invitationService,
		trustRepo:         trustRepo,
		config:            cfg,
		stopChan:          make(chan bool),
	}
}

// Start starts the periodic purge loop
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler",
		"purge_interval", s.config.PurgeInterval,
		"review_update_retention", s.config.ReviewUpdateRetention,
		"expired_code_purge_enabled", s.config.EnableExpiredCodePurge)

	go s.run()
}

// Stop stops all scheduled tasks
func (s *Scheduler) Stop() {
	close(s.stopChan)
	slog.Info("Scheduler stopped")
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.config.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.purge()
		case <-s.stopChan:
			return
		}
	}
}

func (s *Scheduler) purge() {
	if s.config.EnableExpiredCodePurge {
		if _, err := s.invitationService.PurgeExpired(); err != nil {
			slog.Error("Failed to purge expired invitations", "error", err)
		}
	}

	if s.config.ReviewUpdateRetention > 0 {
		cutoff := time.Now().Add(-s.config.ReviewUpdateRetention)
		purged, err := s.trustRepo.DeleteUpdatesOlderThan(cutoff)
		if err != nil {
			slog.Error("Failed to purge old review updates", "error", err)
		} else if purged > 0 {
			slog.Info("Purged old review updates", "count", purged)
		}
	}
}
