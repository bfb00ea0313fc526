package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"liyaqa/internal/tenant"
)

var (
	ErrSubscriptionNotFound   = errors.New("subscription not found")
	ErrInvalidTransition      = errors.New("invalid subscription state transition")
	ErrInsufficientFreezeDays = errors.New("insufficient freeze days remaining")
	ErrNoActiveSubscription   = errors.New("member has no active subscription")
)

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, scope tenant.Scope, sub *Subscription) error {
	if !scope.Valid() {
		return tenant.ErrMissingScope
	}

	query := `
		INSERT INTO subscriptions (
			tenant_id, member_id, plan_name, status, start_date, end_date,
			classes_remaining, freeze_days_allowed, freeze_days_used,
			price_cents, currency, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	return r.db.QueryRowxContext(ctx, query,
		scope.TenantID, sub.MemberID, sub.PlanName, sub.Status,
		sub.StartDate, sub.EndDate, sub.ClassesRemaining,
		sub.FreezeDaysAllowed, sub.PriceCents, sub.Currency,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
}

func (r *repository) GetByID(ctx context.Context, scope tenant.Scope, id int) (*Subscription, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	var sub Subscription
	query := `SELECT * FROM subscriptions WHERE id = $1 AND tenant_id = $2`
	err := r.db.GetContext(ctx, &sub, query, id, scope.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

func (r *repository) GetActiveForMember(ctx context.Context, scope tenant.Scope, memberID int) (*Subscription, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	var sub Subscription
	query := `
		SELECT * FROM subscriptions
		WHERE member_id = $1 AND tenant_id = $2 AND status = 'active'
		ORDER BY end_date DESC
		LIMIT 1`
	err := r.db.GetContext(ctx, &sub, query, memberID, scope.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("failed to get active subscription: %w", err)
	}
	return &sub, nil
}

func (r *repository) ListForMember(ctx context.Context, scope tenant.Scope, memberID int) ([]Subscription, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	subs := []Subscription{}
	query := `
		SELECT * FROM subscriptions
		WHERE member_id = $1 AND tenant_id = $2
		ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &subs, query, memberID, scope.TenantID); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// Activate moves a pending subscription to active. The status predicate in
// the WHERE clause makes concurrent activations race-safe: only one UPDATE
// can match.
func (r *repository) Activate(ctx context.Context, scope tenant.Scope, id int) error {
	if !scope.Valid() {
		return tenant.ErrMissingScope
	}

	query := `
		UPDATE subscriptions
		SET status = 'active',
		    start_date = COALESCE(start_date, NOW()),
		    updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND status = 'pending_payment'`

	result, err := r.db.ExecContext(ctx, query, id, scope.TenantID)
	if err != nil {
		return fmt.Errorf("failed to activate subscription: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return r.classifyMissedUpdate(ctx, scope, id)
	}
	return nil
}

// Freeze suspends an active subscription for the requested number of days.
// The row is locked for the duration of the check so the freeze-day budget
// cannot be overspent by concurrent requests.
func (r *repository) Freeze(ctx context.Context, scope tenant.Scope, id, days int) (*Subscription, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var sub Subscription
	err = tx.GetContext(ctx, &sub,
		`SELECT * FROM subscriptions WHERE id = $1 AND tenant_id = $2 FOR UPDATE`,
		id, scope.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to lock subscription: %w", err)
	}

	if !sub.Status.CanTransitionTo(StatusFrozen) {
		return nil, ErrInvalidTransition
	}
	if days > sub.FreezeDaysRemaining() {
		return nil, ErrInsufficientFreezeDays
	}

	err = tx.GetContext(ctx, &sub, `
		UPDATE subscriptions
		SET status = 'frozen',
		    frozen_at = NOW(),
		    freeze_end_date = NOW() + make_interval(days => $3),
		    freeze_days_used = freeze_days_used + $3,
		    updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING *`,
		id, scope.TenantID, days)
	if err != nil {
		return nil, fmt.Errorf("failed to freeze subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &sub, nil
}

// Unfreeze reactivates a frozen subscription. The end date shifts forward by
// the days actually spent frozen, not the days originally requested, and the
// unspent remainder of the requested freeze is returned to the budget.
func (r *repository) Unfreeze(ctx context.Context, scope tenant.Scope, id int) (*Subscription, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var sub Subscription
	err = tx.GetContext(ctx, &sub,
		`SELECT * FROM subscriptions WHERE id = $1 AND tenant_id = $2 FOR UPDATE`,
		id, scope.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to lock subscription: %w", err)
	}

	if sub.Status != StatusFrozen || sub.FrozenAt == nil || sub.FreezeEndDate == nil {
		return nil, ErrInvalidTransition
	}

	now := time.Now().UTC()
	requested := daysBetween(*sub.FrozenAt, *sub.FreezeEndDate)
	elapsed := daysBetween(*sub.FrozenAt, now)
	if elapsed > requested {
		elapsed = requested
	}
	unused := requested - elapsed

	err = tx.GetContext(ctx, &sub, `
		UPDATE subscriptions
		SET status = 'active',
		    end_date = end_date + make_interval(days => $3),
		    freeze_days_used = freeze_days_used - $4,
		    frozen_at = NULL,
		    freeze_end_date = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING *`,
		id, scope.TenantID, elapsed, unused)
	if err != nil {
		return nil, fmt.Errorf("failed to unfreeze subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &sub, nil
}

// Renew starts a new paid period on an active or expired subscription. The
// end date extends from whichever is later, the current end date or now, the
// class allowance resets to the new period's count, and the freeze budget is
// returned in full. Renewal is a purchase, not a lifecycle transition, so it
// is allowed out of expired even though expired has no lifecycle edges.
func (r *repository) Renew(ctx context.Context, scope tenant.Scope, id, durationDays int, classesIncluded *int) (*Subscription, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	var sub Subscription
	err := r.db.GetContext(ctx, &sub, `
		UPDATE subscriptions
		SET status = 'active',
		    start_date = COALESCE(start_date, NOW()),
		    end_date = GREATEST(end_date, NOW()) + make_interval(days => $3),
		    classes_remaining = $4,
		    freeze_days_used = 0,
		    frozen_at = NULL,
		    freeze_end_date = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND status IN ('active', 'expired')
		RETURNING *`,
		id, scope.TenantID, durationDays, classesIncluded)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.classifyMissedUpdate(ctx, scope, id)
		}
		return nil, fmt.Errorf("failed to renew subscription: %w", err)
	}
	return &sub, nil
}

// Cancel is idempotent: cancelling an already-cancelled subscription is a
// no-op. Cancelling an expired one is rejected.
func (r *repository) Cancel(ctx context.Context, scope tenant.Scope, id int, reason string) error {
	if !scope.Valid() {
		return tenant.ErrMissingScope
	}

	query := `
		UPDATE subscriptions
		SET status = 'cancelled',
		    cancel_reason = NULLIF($3, ''),
		    frozen_at = NULL,
		    freeze_end_date = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		  AND status IN ('pending_payment', 'active', 'frozen')`

	result, err := r.db.ExecContext(ctx, query, id, scope.TenantID, reason)
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		sub, getErr := r.GetByID(ctx, scope, id)
		if getErr != nil {
			return getErr
		}
		if sub.Status == StatusCancelled {
			return nil
		}
		return ErrInvalidTransition
	}
	return nil
}

// ExpireDue sweeps active subscriptions past their end date. Frozen
// subscriptions are deliberately excluded: their end date shifts at unfreeze.
func (r *repository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE subscriptions
		SET status = 'expired', updated_at = NOW()
		WHERE status = 'active' AND end_date < $1`

	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

func (r *repository) classifyMissedUpdate(ctx context.Context, scope tenant.Scope, id int) error {
	_, err := r.GetByID(ctx, scope, id)
	if err != nil {
		return err
	}
	return ErrInvalidTransition
}

func daysBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}
