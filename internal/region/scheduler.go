package region

import (
	"context"
	"time"
)

// Scheduler runs the controller's four jobs at fixed wall-clock times
// daily. No cron/scheduler library exists anywhere in the example pack
// (checked every example's go.mod), so this is a justified stdlib-only
// piece: a goroutine per job computing its own next-fire time and
// sleeping until then.
type Scheduler struct {
	controller *Controller
}

func NewScheduler(controller *Controller) *Scheduler {
	return &Scheduler{controller: controller}
}

// Start launches one goroutine per job; each stops when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	go s.runDaily(ctx, 3, 0, s.controller.ConnectionProbe)
	go s.runDaily(ctx, 6, 0, s.controller.DisconnectedRegionHandler)
	go s.runDaily(ctx, 9, 0, s.controller.CertificateRevocationSweep)
	go s.runDaily(ctx, 4, 0, s.controller.DatabaseLivenessCheck)
}

func (s *Scheduler) runDaily(ctx context.Context, hour, minute int, job func(context.Context)) {
	for {
		wait := nextOccurrence(time.Now(), hour, minute)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			job(ctx)
		}
	}
}

// nextOccurrence returns how long from now until the next hour:minute,
// today if it hasn't passed yet, otherwise tomorrow.
func nextOccurrence(now time.Time, hour, minute int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

// RunOnce runs all four jobs immediately, once, for ops tooling (the
// "region-controller-once" command) rather than waiting for the daily
// schedule.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.controller.ConnectionProbe(ctx)
	s.controller.DisconnectedRegionHandler(ctx)
	s.controller.CertificateRevocationSweep(ctx)
	s.controller.DatabaseLivenessCheck(ctx)
}
