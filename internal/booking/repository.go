package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"liyaqa/internal/db"
	"liyaqa/internal/tenant"
)

var (
	ErrBookingNotFound       = errors.New("booking not found")
	ErrBookingNotCancellable = errors.New("booking is not in a cancellable state")
	ErrBookingNotCheckable   = errors.New("booking cannot be checked in")
	ErrAlreadyBooked         = errors.New("member already has a booking for this session")
)

type repository struct {
	db *sqlx.DB
}

func NewRepository(database *sqlx.DB) Repository {
	return &repository{db: database}
}

func (r *repository) CreateTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, booking *Booking) error {
	if !scope.Valid() {
		return tenant.ErrMissingScope
	}

	return tx.QueryRowxContext(ctx, `
		INSERT INTO bookings (tenant_id, member_id, session_id, status, charge_receipt_id, charge_source, created_at, updated_at)
		VALUES ($1, $2, $3, 'confirmed', $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		scope.TenantID, booking.MemberID, booking.SessionID,
		booking.ChargeReceiptID, booking.ChargeSource,
	).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
}

func (r *repository) GetByID(ctx context.Context, scope tenant.Scope, id int) (*Booking, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	var booking Booking
	err := r.db.GetContext(ctx, &booking,
		`SELECT * FROM bookings WHERE id = $1 AND tenant_id = $2`, id, scope.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

func (r *repository) GetConfirmedForMemberAndSession(ctx context.Context, scope tenant.Scope, memberID, sessionID int) (*Booking, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	var booking Booking
	err := r.db.GetContext(ctx, &booking, `
		SELECT * FROM bookings
		WHERE member_id = $1 AND session_id = $2 AND tenant_id = $3
		  AND status IN ('confirmed', 'checked_in')`,
		memberID, sessionID, scope.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

func (r *repository) HasActiveBooking(ctx context.Context, scope tenant.Scope, memberID, sessionID int) (bool, error) {
	if !scope.Valid() {
		return false, tenant.ErrMissingScope
	}

	return db.Exists(ctx, r.db, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE member_id = $1 AND session_id = $2 AND tenant_id = $3
			  AND status IN ('confirmed', 'checked_in')
		)`,
		memberID, sessionID, scope.TenantID)
}

func (r *repository) CancelTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, id int) error {
	if !scope.Valid() {
		return tenant.ErrMissingScope
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'cancelled', cancelled_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND status = 'confirmed'`,
		id, scope.TenantID)
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrBookingNotCancellable
	}
	return nil
}

func (r *repository) CheckIn(ctx context.Context, scope tenant.Scope, id int) error {
	if !scope.Valid() {
		return tenant.ErrMissingScope
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'checked_in', checked_in_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND status = 'confirmed'`,
		id, scope.TenantID)
	if err != nil {
		return fmt.Errorf("failed to check in booking: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrBookingNotCheckable
	}
	return nil
}

func (r *repository) ListForMember(ctx context.Context, scope tenant.Scope, memberID int) ([]BookingDetail, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	bookings := []BookingDetail{}
	err := r.db.SelectContext(ctx, &bookings, `
		SELECT b.*, c.name AS class_name, s.starts_at, s.ends_at
		FROM bookings b
		JOIN class_sessions s ON s.id = b.session_id
		JOIN classes c ON c.id = s.class_id
		WHERE b.member_id = $1 AND b.tenant_id = $2
		ORDER BY s.starts_at DESC`,
		memberID, scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

func (r *repository) ListForSession(ctx context.Context, scope tenant.Scope, sessionID int) ([]Booking, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	bookings := []Booking{}
	err := r.db.SelectContext(ctx, &bookings, `
		SELECT * FROM bookings
		WHERE session_id = $1 AND tenant_id = $2
		ORDER BY created_at ASC`,
		sessionID, scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session bookings: %w", err)
	}
	return bookings, nil
}

// MarkNoShowsForSession runs tenant-wide from the sweeper, after the session
// has been completed. Confirmed bookings that never checked in become
// no-shows; their charge is kept.
func (r *repository) MarkNoShowsForSession(ctx context.Context, sessionID int) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'no_show', updated_at = NOW()
		WHERE session_id = $1 AND status = 'confirmed'`,
		sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark no-shows: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// AggregateByClass reports booking outcomes per class for sessions starting
// within [from, to). Feeds the admin utilization report.
func (r *repository) AggregateByClass(ctx context.Context, scope tenant.Scope, from, to time.Time) ([]ClassBookingStats, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	stats := []ClassBookingStats{}
	err := r.db.SelectContext(ctx, &stats, `
		SELECT c.id AS class_id, c.name AS class_name,
		       COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE b.status = 'checked_in') AS attended,
		       COUNT(*) FILTER (WHERE b.status = 'no_show') AS no_shows,
		       COUNT(*) FILTER (WHERE b.status = 'cancelled') AS cancelled
		FROM bookings b
		JOIN class_sessions s ON s.id = b.session_id
		JOIN classes c ON c.id = s.class_id
		WHERE b.tenant_id = $1 AND s.starts_at >= $2 AND s.starts_at < $3
		GROUP BY c.id, c.name
		ORDER BY total DESC, c.name ASC`,
		scope.TenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate bookings: %w", err)
	}
	return stats, nil
}
