// Package scheduler provides periodic job scheduling for Practica.
//
// Jobs run on cron expressions. Cluster-wide singleton jobs are gated by
// a durable lease held in the store, so exactly one instance of a
// horizontally scaled deployment runs them.
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Standard 5-field cron parser (min, hour, dom, month, dow) with panic recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// AddLeasedJob schedules a task that only runs while the keeper holds
// its lease. Instances that lost or never acquired the lease skip the
// tick silently.
func (s *Scheduler) AddLeasedJob(expr string, keeper *LeaseKeeper, task func()) error {
	return s.AddJob(expr, func() {
		if !keeper.Held() {
			slog.Debug("Scheduler skipping leased job, lease not held", "lease", keeper.Name())
			return
		}
		task()
	})
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
