// Package scheduler runs the daily ingestion and the removal sweep on a
// cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"inmoradar/internal/config"
	"inmoradar/internal/models"
	"inmoradar/internal/pipeline"
)

// Scheduler handles scheduled ingestion runs
type Scheduler struct {
	cron      *cron.Cron
	runner    *pipeline.Runner
	config    *config.Config
	isRunning bool
}

// NewScheduler creates a new scheduler
func NewScheduler(runner *pipeline.Runner, cfg *config.Config) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		config: cfg,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	if !s.config.Scheduler.DailyRunEnabled {
		log.Println("Scheduler: Daily run is disabled in configuration")
		return nil
	}

	cronSpec := s.parseDailyRunTime(s.config.Scheduler.DailyRunTime)

	_, err := s.cron.AddFunc(cronSpec, func() {
		log.Println("Scheduler: Starting daily ingestion run...")
		if err := s.runDaily(); err != nil {
			log.Printf("Scheduler: Daily run failed: %v", err)
		} else {
			log.Println("Scheduler: Daily run completed successfully")
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.isRunning = true
	log.Printf("Scheduler: Started with daily run at %s (cron: %s)", s.config.Scheduler.DailyRunTime, cronSpec)

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	if s.isRunning {
		s.cron.Stop()
		s.isRunning = false
		log.Println("Scheduler: Stopped")
	}
}

// runDaily crawls every known portal, then sweeps listings that have not
// been seen for RemovalSweepDays into REMOVED.
func (s *Scheduler) runDaily() error {
	ctx := context.Background()

	result, err := s.runner.Run(ctx, pipeline.RunParams{
		Portals:       models.KnownPortals,
		MaxPages:      s.config.Crawler.MaxPages,
		MaxProperties: s.config.Crawler.MaxProperties,
	})
	if err != nil {
		return err
	}

	log.Printf("Scheduler: Daily run processed %d items (saved=%d skipped=%d errors=%d)",
		result.TotalProcessed, result.Saved, result.Skipped, result.Errors)

	sweepDays := s.config.Scheduler.RemovalSweepDays
	if sweepDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -sweepDays)
	marked, err := s.runner.MarkStale(cutoff)
	if err != nil {
		return fmt.Errorf("removal sweep: %w", err)
	}
	log.Printf("Scheduler: Removal sweep done, %d properties marked", marked)

	return nil
}

// RunNow immediately executes the daily job (for manual trigger)
func (s *Scheduler) RunNow() error {
	log.Println("Scheduler: Manual trigger - starting ingestion run...")
	return s.runDaily()
}

// parseDailyRunTime converts HH:MM format to cron specification
// Example: "02:00" -> "0 2 * * *" (run at 2:00 AM every day)
func (s *Scheduler) parseDailyRunTime(timeStr string) string {
	var hour, minute int
	n, _ := fmt.Sscanf(timeStr, "%d:%d", &hour, &minute)
	if n == 2 {
		return fmt.Sprintf("%d %d * * *", minute, hour)
	}

	log.Printf("Scheduler: Failed to parse time '%s', using default 02:00", timeStr)
	return "0 2 * * *"
}
