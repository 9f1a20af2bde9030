package quota

import (
	"context"
	"log/slog"
	"time"
)

// DefaultResetInterval is how often the scheduler checks for a new day.
const DefaultResetInterval = time.Hour

// Scheduler periodically applies the calendar-day reset to the whole ledger.
type Scheduler struct {
	ledger   *Ledger
	interval time.Duration
	now      func() time.Time
}

// NewScheduler creates a Scheduler. now should return time in the location
// used for calendar decisions; Service.Now does.
func NewScheduler(ledger *Ledger, interval time.Duration, now func() time.Time) *Scheduler {
	if interval <= 0 {
		interval = DefaultResetInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Scheduler{ledger: ledger, interval: interval, now: now}
}

// Run ticks once immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("reset scheduler started", "interval", s.interval)

	s.Tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reset scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick resets every stale record and persists the table when anything was
// reset. It returns the number of records reset. Persistence failures are
// logged by the ledger.
func (s *Scheduler) Tick(ctx context.Context) int {
	n := s.ledger.ResetDaily(s.now())
	if n == 0 {
		return 0
	}
	slog.Info("daily usage reset", "records", n)
	_ = s.ledger.Persist(ctx)
	return n
}
