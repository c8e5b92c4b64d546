// Package scheduler runs the periodic housekeeping jobs: limit
// enforcement, portfolio snapshots, and the daily risk reset.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/wonny/talos/internal/engine"
	"github.com/wonny/talos/pkg/logger"
)

// Default job schedules. 장중 기준이며 거래소 캘린더는 고려하지 않는다.
const (
	specEnforceLimits = "@every 1m"
	specSnapshot      = "@every 5m"
	specDailyReset    = "0 0 * * *"
)

// Scheduler owns the cron runner
type Scheduler struct {
	cron   *cron.Cron
	engine *engine.Engine
	logger *logger.Logger
}

// New creates a scheduler over the engine
func New(eng *engine.Engine, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		engine: eng,
		logger: log.WithComponent("scheduler"),
	}
}

// Start registers the standard jobs and launches the runner
func (s *Scheduler) Start() error {
	jobs := []struct {
		spec string
		name string
		fn   func()
	}{
		{specEnforceLimits, "enforce_limits", s.runEnforceLimits},
		{specSnapshot, "snapshot", s.runSnapshot},
		{specDailyReset, "daily_reset", s.runDailyReset},
	}

	for _, job := range jobs {
		if err := s.AddJob(job.spec, job.name, job.fn); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")
	return nil
}

// AddJob registers one named job with panic isolation and logging
func (s *Scheduler) AddJob(spec, name string, fn func()) error {
	_, err := s.cron.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.WithFields(map[string]interface{}{
					"job":   name,
					"panic": r,
				}).Error("Scheduled job panicked")
			}
		}()
		s.logger.WithField("job", name).Debug("Scheduled job running")
		fn()
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	return nil
}

// Stop halts the runner; running jobs finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) runEnforceLimits() {
	if !s.engine.Risk().CheckAndEnforceLimits() {
		s.logger.Warn("Risk limits breached during scheduled check")
	}
}

func (s *Scheduler) runSnapshot() {
	snapshot := s.engine.Snapshot()
	s.logger.WithFields(map[string]interface{}{
		"total_value":    snapshot.TotalValue,
		"return_percent": snapshot.ReturnPercent,
	}).Info("Portfolio snapshot recorded")
}

func (s *Scheduler) runDailyReset() {
	s.engine.Risk().ResetDaily()
}
