package subscription

import "time"

type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusActive         Status = "active"
	StatusFrozen         Status = "frozen"
	StatusCancelled      Status = "cancelled"
	StatusExpired        Status = "expired"
)

// transitions is the closed set of allowed lifecycle moves. Terminal states
// have no outgoing edges.
var transitions = map[Status][]Status{
	StatusPendingPayment: {StatusActive, StatusCancelled},
	StatusActive:         {StatusFrozen, StatusCancelled, StatusExpired},
	StatusFrozen:         {StatusActive, StatusCancelled},
	StatusCancelled:      {},
	StatusExpired:        {},
}

func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

type Subscription struct {
	ID                int        `db:"id" json:"id"`
	TenantID          int        `db:"tenant_id" json:"-"`
	MemberID          int        `db:"member_id" json:"member_id"`
	PlanName          string     `db:"plan_name" json:"plan_name"`
	Status            Status     `db:"status" json:"status"`
	StartDate         *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate           time.Time  `db:"end_date" json:"end_date"`
	ClassesRemaining  *int       `db:"classes_remaining" json:"classes_remaining,omitempty"`
	FreezeDaysAllowed int        `db:"freeze_days_allowed" json:"freeze_days_allowed"`
	FreezeDaysUsed    int        `db:"freeze_days_used" json:"freeze_days_used"`
	FrozenAt          *time.Time `db:"frozen_at" json:"frozen_at,omitempty"`
	FreezeEndDate     *time.Time `db:"freeze_end_date" json:"freeze_end_date,omitempty"`
	CancelReason      *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	PriceCents        int64      `db:"price_cents" json:"price_cents"`
	Currency          string     `db:"currency" json:"currency"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// HasClassesAvailable reports whether the plan still covers classes. A nil
// ClassesRemaining means the plan is unlimited.
func (s *Subscription) HasClassesAvailable() bool {
	return s.ClassesRemaining == nil || *s.ClassesRemaining > 0
}

// IsEntitled is the read-only predicate the booking resolver consults.
// Class credits decrement only through the entitlement ledger.
func (s *Subscription) IsEntitled() bool {
	return s.Status == StatusActive && s.HasClassesAvailable()
}

func (s *Subscription) FreezeDaysRemaining() int {
	remaining := s.FreezeDaysAllowed - s.FreezeDaysUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

type CreateSubscriptionRequest struct {
	MemberID          int    `json:"member_id" binding:"required"`
	PlanName          string `json:"plan_name" binding:"required"`
	DurationDays      int    `json:"duration_days" binding:"required,min=1"`
	ClassesIncluded   *int   `json:"classes_included,omitempty"`
	FreezeDaysAllowed int    `json:"freeze_days_allowed"`
	PriceCents        int64  `json:"price_cents" binding:"required,min=0"`
	Currency          string `json:"currency" binding:"required"`
}

type RenewRequest struct {
	DurationDays    int  `json:"duration_days" binding:"required,min=1"`
	ClassesIncluded *int `json:"classes_included,omitempty"`
}

type FreezeRequest struct {
	Days int `json:"days" binding:"required,min=1"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}
