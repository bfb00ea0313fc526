package booking

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"liyaqa/internal/tenant"
)

type Repository interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, booking *Booking) error
	GetByID(ctx context.Context, scope tenant.Scope, id int) (*Booking, error)
	GetConfirmedForMemberAndSession(ctx context.Context, scope tenant.Scope, memberID, sessionID int) (*Booking, error)
	HasActiveBooking(ctx context.Context, scope tenant.Scope, memberID, sessionID int) (bool, error)
	CancelTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, id int) error
	CheckIn(ctx context.Context, scope tenant.Scope, id int) error
	ListForMember(ctx context.Context, scope tenant.Scope, memberID int) ([]BookingDetail, error)
	ListForSession(ctx context.Context, scope tenant.Scope, sessionID int) ([]Booking, error)
	MarkNoShowsForSession(ctx context.Context, sessionID int) (int64, error)
	AggregateByClass(ctx context.Context, scope tenant.Scope, from, to time.Time) ([]ClassBookingStats, error)
}
