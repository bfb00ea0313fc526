package scheduler

import (
	"context"
	"time"

	"liyaqa/internal/logger"
)

// SubscriptionExpirer moves subscriptions past their end date to expired.
type SubscriptionExpirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

// SessionSettler completes finished sessions and marks no-shows.
type SessionSettler interface {
	SettleCompletedSessions(ctx context.Context, now time.Time) error
}

// Scheduler runs the periodic maintenance sweep: subscription expiry and
// session settlement. One sweep runs immediately on Start so a restart does
// not delay overdue work by a full interval.
type Scheduler struct {
	subscriptions SubscriptionExpirer
	bookings      SessionSettler
	interval      time.Duration
}

func New(subscriptions SubscriptionExpirer, bookings SessionSettler, interval time.Duration) *Scheduler {
	return &Scheduler{
		subscriptions: subscriptions,
		bookings:      bookings,
		interval:      interval,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	logger.Info("maintenance sweep started", "interval", s.interval.String())

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("maintenance sweep stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	now := time.Now()

	expired, err := s.subscriptions.ExpireDue(ctx, now)
	if err != nil {
		logger.Error("subscription expiry sweep failed", "error", err)
	} else if expired > 0 {
		logger.Info("subscriptions expired", "count", expired)
	}

	if err := s.bookings.SettleCompletedSessions(ctx, now); err != nil {
		logger.Error("session settlement sweep failed", "error", err)
	}
}
