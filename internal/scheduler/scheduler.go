// Package scheduler provides cron-based scheduling for Andee.
//
// It drives the conflict Poller's fixed cadence and any other recurring
// maintenance jobs, such as expiring stale alerts.
package scheduler

import (
	"github.com/robfig/cron/v3"
)

// PollSpec fires every ten seconds, the cadence of the conflict poll.
const PollSpec = "*/10 * * * * *"

// Scheduler provides cron-based job scheduling with seconds resolution.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Six-field parser so jobs can run on sub-minute cadences, with recovery
	// so a panicking job cannot kill the poll loop.
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
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

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
