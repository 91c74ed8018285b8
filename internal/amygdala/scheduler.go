package amygdala

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// DefaultInterval is the heartbeat period when no cron expression is given.
const DefaultInterval = 15 * time.Minute

// Scheduler ticks the amygdala. Either a fixed Interval or a cron Expr
// drives the cadence; Expr wins when both are set.
type Scheduler struct {
	// Amygdala runs one round per tick.
	Amygdala *Amygdala

	// Interval is the fixed heartbeat period. Zero means DefaultInterval.
	Interval time.Duration

	// Expr is an optional cron expression (five fields). When set it
	// overrides Interval.
	Expr string
}

// Validate checks the cron expression, when one is configured.
func (s *Scheduler) Validate() error {
	if s.Expr == "" {
		return nil
	}
	if !gronx.New().IsValid(s.Expr) {
		return fmt.Errorf("invalid heartbeat cron expression %q",
			s.Expr)
	}

	return nil
}

// nextWait returns how long to sleep until the next tick.
func (s *Scheduler) nextWait(now time.Time) (time.Duration, error) {
	if s.Expr != "" {
		next, err := gronx.NextTickAfter(s.Expr, now, false)
		if err != nil {
			return 0, err
		}

		return next.Sub(now), nil
	}

	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return interval, nil
}

// Run ticks rounds until ctx is cancelled. Cancellation interrupts the
// sleep between rounds but never an in-flight round.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Validate(); err != nil {
		return err
	}

	log.InfoS(ctx, "Heartbeat scheduler started",
		"interval", s.Interval,
		"cron", s.Expr)

	for {
		wait, err := s.nextWait(time.Now())
		if err != nil {
			return fmt.Errorf("heartbeat schedule: %w", err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.InfoS(ctx, "Heartbeat scheduler stopped")
			return ctx.Err()

		case <-timer.C:
		}

		// A round in flight survives scheduler cancellation.
		s.Amygdala.RunRound(context.WithoutCancel(ctx))
	}
}
