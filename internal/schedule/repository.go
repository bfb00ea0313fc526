package schedule

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
	ErrClassNotFound      = errors.New("class not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionNotBookable = errors.New("session is not open for booking")
	ErrSessionFull        = errors.New("session is at capacity")
	ErrAlreadyWaitlisted  = errors.New("member is already on the waitlist")
	ErrWaitlistFull       = errors.New("waitlist is at capacity")
	ErrWaitlistEmpty      = errors.New("waitlist is empty")
	ErrNotOnWaitlist      = errors.New("member is not on the waitlist")
)

type repository struct {
	db *sqlx.DB
}

func NewRepository(database *sqlx.DB) Repository {
	return &repository{db: database}
}

func (r *repository) CreateClass(ctx context.Context, scope tenant.Scope, class *GymClass) error {
	if !scope.Valid() {
		return tenant.ErrMissingScope
	}

	return r.db.QueryRowxContext(ctx, `
		INSERT INTO classes (tenant_id, name, description, pricing_model, drop_in_price_cents, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		scope.TenantID, class.Name, class.Description, class.PricingModel,
		class.DropInPriceCents, class.Currency,
	).Scan(&class.ID, &class.CreatedAt, &class.UpdatedAt)
}

func (r *repository) GetClass(ctx context.Context, scope tenant.Scope, id int) (*GymClass, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	var class GymClass
	err := r.db.GetContext(ctx, &class,
		`SELECT * FROM classes WHERE id = $1 AND tenant_id = $2`, id, scope.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClassNotFound
		}
		return nil, fmt.Errorf("failed to get class: %w", err)
	}
	return &class, nil
}

func (r *repository) ListClasses(ctx context.Context, scope tenant.Scope) ([]GymClass, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	classes := []GymClass{}
	err := r.db.SelectContext(ctx, &classes,
		`SELECT * FROM classes WHERE tenant_id = $1 ORDER BY name`, scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}
	return classes, nil
}

func (r *repository) CreateSession(ctx context.Context, scope tenant.Scope, session *ClassSession) error {
	if !scope.Valid() {
		return tenant.ErrMissingScope
	}

	return r.db.QueryRowxContext(ctx, `
		INSERT INTO class_sessions (tenant_id, class_id, starts_at, ends_at, capacity, seats_reserved, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, 'scheduled', NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		scope.TenantID, session.ClassID, session.StartsAt, session.EndsAt, session.Capacity,
	).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)
}

func (r *repository) GetSession(ctx context.Context, scope tenant.Scope, id int) (*ClassSession, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	var session ClassSession
	err := r.db.GetContext(ctx, &session,
		`SELECT * FROM class_sessions WHERE id = $1 AND tenant_id = $2`, id, scope.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (r *repository) GetSessionDetail(ctx context.Context, scope tenant.Scope, id int) (*SessionDetail, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	var detail SessionDetail
	err := r.db.GetContext(ctx, &detail, `
		SELECT s.*, c.name AS class_name, c.pricing_model, c.drop_in_price_cents, c.currency
		FROM class_sessions s
		JOIN classes c ON c.id = s.class_id
		WHERE s.id = $1 AND s.tenant_id = $2`,
		id, scope.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session detail: %w", err)
	}
	return &detail, nil
}

func (r *repository) ListUpcomingSessions(ctx context.Context, scope tenant.Scope, from time.Time) ([]SessionDetail, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	sessions := []SessionDetail{}
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT s.*, c.name AS class_name, c.pricing_model, c.drop_in_price_cents, c.currency
		FROM class_sessions s
		JOIN classes c ON c.id = s.class_id
		WHERE s.tenant_id = $1 AND s.status = 'scheduled' AND s.starts_at > $2
		ORDER BY s.starts_at ASC`,
		scope.TenantID, from)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (r *repository) CancelSession(ctx context.Context, scope tenant.Scope, id int) error {
	if !scope.Valid() {
		return tenant.ErrMissingScope
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE class_sessions
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND status = 'scheduled'`,
		id, scope.TenantID)
	if err != nil {
		return fmt.Errorf("failed to cancel session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// CompleteDueSessions marks scheduled sessions whose end time has passed and
// returns their IDs so the sweeper can settle no-shows.
func (r *repository) CompleteDueSessions(ctx context.Context, now time.Time) ([]int, error) {
	ids := []int{}
	err := r.db.SelectContext(ctx, &ids, `
		UPDATE class_sessions
		SET status = 'completed', updated_at = NOW()
		WHERE status = 'scheduled' AND ends_at < $1
		RETURNING id`,
		now)
	if err != nil {
		return nil, fmt.Errorf("failed to complete sessions: %w", err)
	}
	return ids, nil
}

// ReserveSeatTx takes one seat atomically. The capacity predicate in the
// WHERE clause is the only gate: under concurrent bookings each UPDATE either
// claims a remaining seat or matches zero rows. It never oversells.
func (r *repository) ReserveSeatTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, sessionID int) error {
	if !scope.Valid() {
		return tenant.ErrMissingScope
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE class_sessions
		SET seats_reserved = seats_reserved + 1, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND status = 'scheduled'
		  AND seats_reserved < capacity`,
		sessionID, scope.TenantID)
	if err != nil {
		return fmt.Errorf("failed to reserve seat: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return r.classifyReserveMiss(ctx, tx, scope, sessionID)
	}
	return nil
}

func (r *repository) classifyReserveMiss(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, sessionID int) error {
	var session ClassSession
	err := tx.GetContext(ctx, &session,
		`SELECT * FROM class_sessions WHERE id = $1 AND tenant_id = $2`,
		sessionID, scope.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to inspect session: %w", err)
	}
	if session.Status != SessionScheduled {
		return ErrSessionNotBookable
	}
	return ErrSessionFull
}

// ReleaseSeatTx frees one seat. The floor predicate keeps double releases
// from driving the count negative.
func (r *repository) ReleaseSeatTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, sessionID int) error {
	if !scope.Valid() {
		return tenant.ErrMissingScope
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE class_sessions
		SET seats_reserved = seats_reserved - 1, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND seats_reserved > 0`,
		sessionID, scope.TenantID)
	if err != nil {
		return fmt.Errorf("failed to release seat: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *repository) EnqueueWaitlist(ctx context.Context, scope tenant.Scope, sessionID, memberID, maxSize int) (*WaitlistEntry, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	var entry WaitlistEntry
	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var count int
		err := tx.GetContext(ctx, &count,
			`SELECT COUNT(*) FROM waitlist_entries WHERE session_id = $1 AND tenant_id = $2`,
			sessionID, scope.TenantID)
		if err != nil {
			return fmt.Errorf("failed to count waitlist: %w", err)
		}
		if maxSize > 0 && count >= maxSize {
			return ErrWaitlistFull
		}

		err = tx.QueryRowxContext(ctx, `
			INSERT INTO waitlist_entries (tenant_id, session_id, member_id, created_at)
			VALUES ($1, $2, $3, NOW())
			RETURNING id, created_at`,
			scope.TenantID, sessionID, memberID,
		).Scan(&entry.ID, &entry.CreatedAt)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return ErrAlreadyWaitlisted
			}
			return fmt.Errorf("failed to enqueue waitlist entry: %w", err)
		}
		entry.TenantID = scope.TenantID
		entry.SessionID = sessionID
		entry.MemberID = memberID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// DequeueLongestWaitingTx pops the head of the FIFO queue. SKIP LOCKED lets
// concurrent promotions each claim a different entry instead of blocking.
func (r *repository) DequeueLongestWaitingTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, sessionID int) (*WaitlistEntry, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	var entry WaitlistEntry
	err := tx.GetContext(ctx, &entry, `
		DELETE FROM waitlist_entries
		WHERE id = (
			SELECT id FROM waitlist_entries
			WHERE session_id = $1 AND tenant_id = $2
			ORDER BY created_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`,
		sessionID, scope.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWaitlistEmpty
		}
		return nil, fmt.Errorf("failed to dequeue waitlist entry: %w", err)
	}
	return &entry, nil
}

func (r *repository) RemoveFromWaitlist(ctx context.Context, scope tenant.Scope, sessionID, memberID int) error {
	if !scope.Valid() {
		return tenant.ErrMissingScope
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM waitlist_entries WHERE session_id = $1 AND member_id = $2 AND tenant_id = $3`,
		sessionID, memberID, scope.TenantID)
	if err != nil {
		return fmt.Errorf("failed to remove waitlist entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotOnWaitlist
	}
	return nil
}

// WaitlistPosition is 1-based: the member next in line is at position 1.
func (r *repository) WaitlistPosition(ctx context.Context, scope tenant.Scope, sessionID, memberID int) (int, error) {
	if !scope.Valid() {
		return 0, tenant.ErrMissingScope
	}

	var position int
	err := r.db.GetContext(ctx, &position, `
		SELECT position FROM (
			SELECT member_id, ROW_NUMBER() OVER (ORDER BY created_at ASC, id ASC) AS position
			FROM waitlist_entries
			WHERE session_id = $1 AND tenant_id = $2
		) ranked
		WHERE member_id = $3`,
		sessionID, scope.TenantID, memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotOnWaitlist
		}
		return 0, fmt.Errorf("failed to get waitlist position: %w", err)
	}
	return position, nil
}
