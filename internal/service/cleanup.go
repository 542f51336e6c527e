package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"lootcase-api/internal/repository"
)

// CleanupConfig holds configuration for the cleanup scheduler.
type CleanupConfig struct {
	// AuditRetention is how long audit entries are kept.
	// Default: 90 days
	AuditRetention time.Duration

	// Schedule is a cron spec or descriptor such as "@daily".
	Schedule string
}

// CleanupScheduler prunes expired audit entries on a cron schedule.
type CleanupScheduler struct {
	repo   repository.AuditRepository
	config CleanupConfig
	cron   *cron.Cron
	now    func() time.Time

	mu        sync.Mutex
	isRunning bool
}

// NewCleanupScheduler creates a new cleanup scheduler. The schedule is
// parsed eagerly so a bad spec fails at startup.
func NewCleanupScheduler(repo repository.AuditRepository, config CleanupConfig) (*CleanupScheduler, error) {
	if config.AuditRetention <= 0 {
		config.AuditRetention = 90 * 24 * time.Hour
	}
	if config.Schedule == "" {
		config.Schedule = "@daily"
	}

	s := &CleanupScheduler{
		repo:   repo,
		config: config,
		cron:   cron.New(cron.WithLocation(time.UTC)),
		now:    time.Now,
	}

	if _, err := s.cron.AddFunc(config.Schedule, s.runScheduled); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", config.Schedule, err)
	}
	return s, nil
}

// Start begins the cleanup scheduler.
func (s *CleanupScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.isRunning = true
	s.cron.Start()

	log.WithFields(log.Fields{
		"component": "cleanup",
		"schedule":  s.config.Schedule,
		"retention": s.config.AuditRetention.String(),
	}).Info("Cleanup scheduler started")
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	log.WithField("component", "cleanup").Info("Cleanup scheduler stopped")
}

// RunNow prunes immediately and returns the number of deleted entries.
func (s *CleanupScheduler) RunNow(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.config.AuditRetention)

	deleted, err := s.repo.DeleteAuditBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit log: %w", err)
	}

	log.WithFields(log.Fields{
		"component": "cleanup",
		"cutoff":    cutoff.Format(time.RFC3339),
		"deleted":   deleted,
	}).Info("Audit log pruned")
	return deleted, nil
}

func (s *CleanupScheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := s.RunNow(ctx); err != nil {
		log.WithField("component", "cleanup").WithError(err).Error("Scheduled cleanup failed")
	}
}
