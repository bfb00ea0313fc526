package booking

import (
	"time"

	"liyaqa/internal/ledger"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCheckedIn Status = "checked_in"
	StatusNoShow    Status = "no_show"
)

type Booking struct {
	ID              int        `db:"id" json:"id"`
	TenantID        int        `db:"tenant_id" json:"-"`
	MemberID        int        `db:"member_id" json:"member_id"`
	SessionID       int        `db:"session_id" json:"session_id"`
	Status          Status     `db:"status" json:"status"`
	ChargeReceiptID *int       `db:"charge_receipt_id" json:"charge_receipt_id,omitempty"`
	ChargeSource    *string    `db:"charge_source" json:"charge_source,omitempty"`
	CancelledAt     *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CheckedInAt     *time.Time `db:"checked_in_at" json:"checked_in_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// BookingDetail joins a booking with its session and class for listings.
type BookingDetail struct {
	Booking
	ClassName string    `db:"class_name" json:"class_name"`
	StartsAt  time.Time `db:"starts_at" json:"starts_at"`
	EndsAt    time.Time `db:"ends_at" json:"ends_at"`
}

// ClassBookingStats is one row of the admin booking report: how a class's
// sessions performed over a period.
type ClassBookingStats struct {
	ClassID   int    `db:"class_id" json:"class_id"`
	ClassName string `db:"class_name" json:"class_name"`
	Total     int    `db:"total" json:"total"`
	Attended  int    `db:"attended" json:"attended"`
	NoShows   int    `db:"no_shows" json:"no_shows"`
	Cancelled int    `db:"cancelled" json:"cancelled"`
}

type BookRequest struct {
	SessionID      int    `json:"session_id" binding:"required"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
}

type JoinWaitlistRequest struct {
	SessionID int `json:"session_id" binding:"required"`
}

// ChargeOption is one entry of a booking preview: a source, whether it could
// cover the booking right now, and what it would cost.
type ChargeOption struct {
	Source      ledger.Source `json:"source"`
	Eligible    bool          `json:"eligible"`
	Reason      string        `json:"reason,omitempty"`
	AmountCents int64         `json:"amount_cents"`
	Currency    string        `json:"currency"`
}

type BookingOptionsResponse struct {
	SessionID      int            `json:"session_id"`
	SeatsAvailable int            `json:"seats_available"`
	Options        []ChargeOption `json:"options"`
	Selected       *ChargeOption  `json:"selected,omitempty"`
}
