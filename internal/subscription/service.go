package subscription

import (
	"context"
	"time"

	"liyaqa/internal/logger"
	"liyaqa/internal/metrics"
	"liyaqa/internal/tenant"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Purchase creates a subscription in pending_payment. It becomes usable for
// bookings only after Activate confirms payment.
func (s *Service) Purchase(ctx context.Context, scope tenant.Scope, req CreateSubscriptionRequest) (*Subscription, error) {
	sub := &Subscription{
		TenantID:          scope.TenantID,
		MemberID:          req.MemberID,
		PlanName:          req.PlanName,
		Status:            StatusPendingPayment,
		EndDate:           time.Now().UTC().AddDate(0, 0, req.DurationDays),
		ClassesRemaining:  req.ClassesIncluded,
		FreezeDaysAllowed: req.FreezeDaysAllowed,
		PriceCents:        req.PriceCents,
		Currency:          req.Currency,
	}
	if err := s.repo.Create(ctx, scope, sub); err != nil {
		return nil, err
	}
	logger.Info("subscription created", "subscription_id", sub.ID, "member_id", sub.MemberID, "plan", sub.PlanName)
	return sub, nil
}

func (s *Service) Activate(ctx context.Context, scope tenant.Scope, id int) (*Subscription, error) {
	if err := s.repo.Activate(ctx, scope, id); err != nil {
		return nil, err
	}
	metrics.RecordSubscriptionTransition(string(StatusActive))
	logger.Info("subscription activated", "subscription_id", id)
	return s.repo.GetByID(ctx, scope, id)
}

func (s *Service) Freeze(ctx context.Context, scope tenant.Scope, id, days int) (*Subscription, error) {
	sub, err := s.repo.Freeze(ctx, scope, id, days)
	if err != nil {
		return nil, err
	}
	metrics.RecordSubscriptionTransition(string(StatusFrozen))
	logger.Info("subscription frozen", "subscription_id", id, "days", days)
	return sub, nil
}

func (s *Service) Unfreeze(ctx context.Context, scope tenant.Scope, id int) (*Subscription, error) {
	sub, err := s.repo.Unfreeze(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	metrics.RecordSubscriptionTransition(string(StatusActive))
	logger.Info("subscription unfrozen", "subscription_id", id, "new_end_date", sub.EndDate)
	return sub, nil
}

// Renew extends an active or expired subscription with a fresh period. The
// class allowance and freeze budget reset for the new period.
func (s *Service) Renew(ctx context.Context, scope tenant.Scope, id int, req RenewRequest) (*Subscription, error) {
	sub, err := s.repo.Renew(ctx, scope, id, req.DurationDays, req.ClassesIncluded)
	if err != nil {
		return nil, err
	}
	metrics.RecordSubscriptionTransition(string(StatusActive))
	logger.Info("subscription renewed", "subscription_id", id, "new_end_date", sub.EndDate)
	return sub, nil
}

func (s *Service) Cancel(ctx context.Context, scope tenant.Scope, id int, reason string) error {
	if err := s.repo.Cancel(ctx, scope, id, reason); err != nil {
		return err
	}
	metrics.RecordSubscriptionTransition(string(StatusCancelled))
	logger.Info("subscription cancelled", "subscription_id", id)
	return nil
}

func (s *Service) GetByID(ctx context.Context, scope tenant.Scope, id int) (*Subscription, error) {
	return s.repo.GetByID(ctx, scope, id)
}

func (s *Service) ListForMember(ctx context.Context, scope tenant.Scope, memberID int) ([]Subscription, error) {
	return s.repo.ListForMember(ctx, scope, memberID)
}

// GetEntitled returns the member's active subscription when it still covers
// classes, or ErrNoActiveSubscription.
func (s *Service) GetEntitled(ctx context.Context, scope tenant.Scope, memberID int) (*Subscription, error) {
	sub, err := s.repo.GetActiveForMember(ctx, scope, memberID)
	if err != nil {
		return nil, err
	}
	if !sub.IsEntitled() {
		return nil, ErrNoActiveSubscription
	}
	return sub, nil
}

// ExpireDue is invoked by the background sweeper.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	expired, err := s.repo.ExpireDue(ctx, now)
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		for i := int64(0); i < expired; i++ {
			metrics.RecordSubscriptionTransition(string(StatusExpired))
		}
		logger.Info("subscriptions expired", "count", expired)
	}
	return expired, nil
}
