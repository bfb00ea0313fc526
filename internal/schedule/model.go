package schedule

import "time"

// PricingModel controls which entitlement sources can cover a class.
type PricingModel string

const (
	// PricingIncluded classes are covered by subscriptions and class packs
	// before falling back to the drop-in price.
	PricingIncluded PricingModel = "membership_included"
	// PricingDropIn classes are always paid from the wallet.
	PricingDropIn PricingModel = "drop_in"
)

type GymClass struct {
	ID               int          `db:"id" json:"id"`
	TenantID         int          `db:"tenant_id" json:"-"`
	Name             string       `db:"name" json:"name"`
	Description      string       `db:"description" json:"description"`
	PricingModel     PricingModel `db:"pricing_model" json:"pricing_model"`
	DropInPriceCents int64        `db:"drop_in_price_cents" json:"drop_in_price_cents"`
	Currency         string       `db:"currency" json:"currency"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}

type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionCancelled SessionStatus = "cancelled"
	SessionCompleted SessionStatus = "completed"
)

type ClassSession struct {
	ID            int           `db:"id" json:"id"`
	TenantID      int           `db:"tenant_id" json:"-"`
	ClassID       int           `db:"class_id" json:"class_id"`
	StartsAt      time.Time     `db:"starts_at" json:"starts_at"`
	EndsAt        time.Time     `db:"ends_at" json:"ends_at"`
	Capacity      int           `db:"capacity" json:"capacity"`
	SeatsReserved int           `db:"seats_reserved" json:"seats_reserved"`
	Status        SessionStatus `db:"status" json:"status"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

func (s *ClassSession) SeatsAvailable() int {
	free := s.Capacity - s.SeatsReserved
	if free < 0 {
		return 0
	}
	return free
}

func (s *ClassSession) IsFull() bool {
	return s.SeatsReserved >= s.Capacity
}

// SessionDetail joins a session with its class for availability listings.
type SessionDetail struct {
	ClassSession
	ClassName        string       `db:"class_name" json:"class_name"`
	PricingModel     PricingModel `db:"pricing_model" json:"pricing_model"`
	DropInPriceCents int64        `db:"drop_in_price_cents" json:"drop_in_price_cents"`
	Currency         string       `db:"currency" json:"currency"`
}

type WaitlistEntry struct {
	ID        int       `db:"id" json:"id"`
	TenantID  int       `db:"tenant_id" json:"-"`
	SessionID int       `db:"session_id" json:"session_id"`
	MemberID  int       `db:"member_id" json:"member_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type CreateClassRequest struct {
	Name             string       `json:"name" binding:"required"`
	Description      string       `json:"description"`
	PricingModel     PricingModel `json:"pricing_model" binding:"required,oneof=membership_included drop_in"`
	DropInPriceCents int64        `json:"drop_in_price_cents" binding:"min=0"`
	Currency         string       `json:"currency" binding:"required"`
}

type CreateSessionRequest struct {
	ClassID  int       `json:"class_id" binding:"required"`
	StartsAt time.Time `json:"starts_at" binding:"required"`
	EndsAt   time.Time `json:"ends_at" binding:"required"`
	Capacity int       `json:"capacity" binding:"required,min=1"`
}
