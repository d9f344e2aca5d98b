// Package scheduler runs the service's background jobs (price sync, cache
// cleanup, database maintenance) on cron schedules.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a named unit of background work.
type Job interface {
	Run() error
	Name() string
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a new scheduler
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job under a six-field cron schedule (seconds first).
// Schedule examples:
//   - "0 30 6 * * *"  - 06:30 daily price sync
//   - "@hourly"       - cache cleanup
func (s *Scheduler) AddJob(schedule string, job Job) error {
	log := s.log.With().Str("job", job.Name()).Logger()

	_, err := s.cron.AddFunc(schedule, func() {
		start := time.Now()
		log.Debug().Msg("Running job")

		if err := job.Run(); err != nil {
			log.Error().
				Err(err).
				Dur("elapsed", time.Since(start)).
				Msg("Job failed")
		} else {
			log.Debug().
				Dur("elapsed", time.Since(start)).
				Msg("Job completed")
		}
	})

	if err != nil {
		return err
	}

	log.Info().Str("schedule", schedule).Msg("Job registered")
	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return job.Run()
}
