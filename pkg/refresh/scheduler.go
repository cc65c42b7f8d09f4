package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs full refreshes on a cron schedule.
type Scheduler struct {
	log  *slog.Logger
	cron *cron.Cron
	svc  *Service
	ctx  context.Context
}

// NewScheduler parses schedule, a standard five-field cron expression or a
// descriptor such as "@daily".
func NewScheduler(log *slog.Logger, svc *Service, schedule string) (*Scheduler, error) {
	s := &Scheduler{log: log, cron: cron.New(), svc: svc, ctx: context.Background()}
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	err := s.svc.Run(s.ctx)
	switch {
	case errors.Is(err, ErrRefreshInProgress):
		s.log.Info("refresh: scheduled run skipped, refresh in progress")
	case err != nil:
		s.log.Warn("refresh: scheduled run failed", "error", err)
	}
}

// Start runs the scheduler until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.log.Info("refresh: scheduler started", "entries", len(s.cron.Entries()))
	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.log.Info("refresh: scheduler stopped")
}
