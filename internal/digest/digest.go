// Package digest schedules the periodic review-queue digest and other
// housekeeping jobs on a cron schedule.
package digest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/dukerupert/rewardledger/internal/moderation"
)

// Digester produces the pending-queue digest and notifies admins.
type Digester interface {
	Digest() (*moderation.Stats, error)
}

type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
	}
}

// AddDigest runs d on spec, a standard five-field cron expression or a
// descriptor such as "@hourly".
func (s *Scheduler) AddDigest(spec string, d Digester) error {
	return s.AddFunc(spec, "digest", s.digestJob(d))
}

// AddFunc schedules fn under name. A panic in fn is logged and the
// schedule keeps running.
func (s *Scheduler) AddFunc(spec, name string, fn func()) error {
	_, err := s.cron.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduled job panicked", "job", name, "panic", r)
			}
		}()
		fn()
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.logger.Info("job scheduled", "job", name, "spec", spec)
	return nil
}

func (s *Scheduler) digestJob(d Digester) func() {
	return func() {
		st, err := d.Digest()
		if err != nil {
			s.logger.Error("build digest", "error", err)
			return
		}
		s.logger.Info("digest sent",
			"pending_submissions", st.PendingSubmissions,
			"pending_withdrawals", st.PendingWithdrawals,
		)
	}
}

// Jobs returns the number of scheduled jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and returns a context that is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
