package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ClosureRefresher re-fetches the shop closure calendar
type ClosureRefresher interface {
	Refresh(ctx context.Context) error
}

// CronService manages scheduled background jobs
type CronService struct {
	cron     *cron.Cron
	sessions *SessionService
	closures ClosureRefresher
	logger   *logrus.Logger
}

// NewCronService creates a new CronService
func NewCronService(sessions *SessionService, closures ClosureRefresher, logger *logrus.Logger) *CronService {
	return &CronService{
		cron:     cron.New(cron.WithSeconds()),
		sessions: sessions,
		closures: closures,
		logger:   logger,
	}
}

// Start registers and starts all cron jobs
func (s *CronService) Start() error {
	// Cron format: second minute hour day month weekday

	// Job 1: Sweep expired draft sessions every minute
	_, err := s.cron.AddFunc("0 * * * * *", s.sweepSessionsJob)
	if err != nil {
		return fmt.Errorf("failed to schedule session sweep job: %w", err)
	}

	// Job 2: Refresh the closure calendar hourly
	_, err = s.cron.AddFunc("0 0 * * * *", s.refreshClosuresJob)
	if err != nil {
		return fmt.Errorf("failed to schedule closure refresh job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops all cron jobs and waits for running ones to finish
func (s *CronService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) sweepSessionsJob() {
	start := time.Now()
	removed := s.sessions.SweepExpired()
	if removed > 0 {
		s.logger.WithFields(logrus.Fields{
			"removed":  removed,
			"duration": time.Since(start).String(),
		}).Info("Session sweep finished")
	}
}

func (s *CronService) refreshClosuresJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.closures.Refresh(ctx); err != nil {
		s.logger.WithError(err).Warn("Closure calendar refresh failed; keeping previous calendar")
		return
	}
	s.logger.Info("Closure calendar refreshed")
}

// RunSweepNow runs the session sweep immediately (for admin endpoints)
func (s *CronService) RunSweepNow() int {
	return s.sessions.SweepExpired()
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
