package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"liyaqa/internal/config"
	"liyaqa/internal/db"
	"liyaqa/internal/email"
	"liyaqa/internal/ledger"
	"liyaqa/internal/logger"
	"liyaqa/internal/member"
	"liyaqa/internal/metrics"
	"liyaqa/internal/schedule"
	"liyaqa/internal/subscription"
	"liyaqa/internal/tenant"
)

var (
	ErrMemberInactive  = errors.New("member is not active")
	ErrSessionStarted  = errors.New("session has already started")
	ErrCheckInClosed   = errors.New("check-in window is closed")
	ErrSessionNotFull  = errors.New("session still has open seats")
	ErrBookingConflict = errors.New("booking did not settle after retries")
)

type Service interface {
	Book(ctx context.Context, scope tenant.Scope, memberID int, req BookRequest) (*Booking, error)
	Preview(ctx context.Context, scope tenant.Scope, memberID, sessionID int) (*BookingOptionsResponse, error)
	Cancel(ctx context.Context, scope tenant.Scope, memberID, bookingID int) (bool, error)
	CheckIn(ctx context.Context, scope tenant.Scope, bookingID int) (bool, error)
	JoinWaitlist(ctx context.Context, scope tenant.Scope, memberID, sessionID int) (*schedule.WaitlistEntry, error)
	LeaveWaitlist(ctx context.Context, scope tenant.Scope, memberID, sessionID int) error
	ListForMember(ctx context.Context, scope tenant.Scope, memberID int) ([]BookingDetail, error)
	ClassReport(ctx context.Context, scope tenant.Scope, from, to time.Time) ([]ClassBookingStats, error)
	SettleCompletedSessions(ctx context.Context, now time.Time) error
}

type service struct {
	db           *sqlx.DB
	bookingRepo  Repository
	scheduleRepo schedule.Repository
	subRepo      subscription.Repository
	ledgerRepo   ledger.Repository
	memberRepo   member.Repository
	emailService *email.Service
	cfg          config.BookingConfig
}

func NewService(
	database *sqlx.DB,
	bookingRepo Repository,
	scheduleRepo schedule.Repository,
	subRepo subscription.Repository,
	ledgerRepo ledger.Repository,
	memberRepo member.Repository,
	emailService *email.Service,
	cfg config.BookingConfig,
) Service {
	return &service{
		db:           database,
		bookingRepo:  bookingRepo,
		scheduleRepo: scheduleRepo,
		subRepo:      subRepo,
		ledgerRepo:   ledgerRepo,
		memberRepo:   memberRepo,
		emailService: emailService,
		cfg:          cfg,
	}
}

// Book reserves a seat and settles the charge in one transaction. Replaying
// the same idempotency key returns the booking that already settled instead
// of charging twice.
func (s *service) Book(ctx context.Context, scope tenant.Scope, memberID int, req BookRequest) (*Booking, error) {
	m, err := s.memberRepo.GetByID(ctx, scope, memberID)
	if err != nil {
		return nil, err
	}
	if !m.IsActive() {
		return nil, ErrMemberInactive
	}

	if receipt, err := s.ledgerRepo.GetReceiptByKey(ctx, scope, req.IdempotencyKey); err == nil {
		existing, findErr := s.bookingRepo.GetConfirmedForMemberAndSession(ctx, scope, receipt.MemberID, req.SessionID)
		if findErr != nil {
			// The key settled a charge, but not for this session: the
			// caller is reusing it against a different booking.
			if errors.Is(findErr, ErrBookingNotFound) {
				return nil, ledger.ErrReceiptConflict
			}
			return nil, findErr
		}
		return existing, nil
	} else if !errors.Is(err, ledger.ErrReceiptNotFound) {
		return nil, err
	}

	booked, err := s.bookingRepo.HasActiveBooking(ctx, scope, memberID, req.SessionID)
	if err != nil {
		return nil, err
	}
	if booked {
		return nil, ErrAlreadyBooked
	}

	detail, err := s.scheduleRepo.GetSessionDetail(ctx, scope, req.SessionID)
	if err != nil {
		return nil, err
	}
	if detail.Status != schedule.SessionScheduled {
		return nil, schedule.ErrSessionNotBookable
	}
	if !detail.StartsAt.After(time.Now()) {
		return nil, ErrSessionStarted
	}

	snap, err := s.snapshot(ctx, scope, memberID)
	if err != nil {
		return nil, err
	}

	plan, err := Resolve(snap, detail, s.cfg.TaxRateBps, time.Now())
	if err != nil {
		return nil, err
	}

	booking, err := s.settle(ctx, scope, memberID, req, plan)
	if err != nil {
		return nil, err
	}

	metrics.RecordBooking(string(StatusConfirmed), string(plan.Source))
	logger.Info("booking confirmed", "booking_id", booking.ID, "member_id", memberID, "session_id", req.SessionID, "source", plan.Source)

	if err := s.emailService.SendBookingConfirmation(ctx, m.Email, m.Name, detail.ClassName, detail.StartsAt); err != nil {
		logger.Error("failed to queue booking confirmation", "booking_id", booking.ID, "error", err)
	}

	return booking, nil
}

// settle is the transaction boundary: seat, charge, and booking row commit
// or roll back together. Serialization conflicts and idempotency-key races
// surface as retryable and get a bounded number of re-runs.
func (s *service) settle(ctx context.Context, scope tenant.Scope, memberID int, req BookRequest, plan *ChargePlan) (*Booking, error) {
	attempts := s.cfg.TxRetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var booking *Booking
	for attempt := 1; attempt <= attempts; attempt++ {
		err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
			if err := s.scheduleRepo.ReserveSeatTx(ctx, tx, scope, req.SessionID); err != nil {
				return err
			}

			receipt, err := s.ledgerRepo.DebitTx(ctx, tx, scope, ledger.DebitCommand{
				MemberID:       memberID,
				IdempotencyKey: req.IdempotencyKey,
				Source:         plan.Source,
				SubscriptionID: plan.SubscriptionID,
				PackID:         plan.PackID,
				Price:          plan.Price,
				Reference:      fmt.Sprintf("booking session %d", req.SessionID),
			})
			if err != nil {
				return err
			}

			source := string(plan.Source)
			booking = &Booking{
				TenantID:        scope.TenantID,
				MemberID:        memberID,
				SessionID:       req.SessionID,
				Status:          StatusConfirmed,
				ChargeReceiptID: &receipt.ID,
				ChargeSource:    &source,
			}
			return s.bookingRepo.CreateTx(ctx, tx, scope, booking)
		})
		if err == nil {
			return booking, nil
		}
		if !db.IsRetryable(err) {
			if errors.Is(err, schedule.ErrSessionFull) {
				metrics.RecordBookingConflict()
			}
			return nil, err
		}
		logger.Info("retrying booking transaction", "attempt", attempt, "session_id", req.SessionID)
	}

	metrics.RecordBookingConflict()
	return nil, ErrBookingConflict
}

func (s *service) snapshot(ctx context.Context, scope tenant.Scope, memberID int) (EntitlementSnapshot, error) {
	snap := EntitlementSnapshot{}

	sub, err := s.subRepo.GetActiveForMember(ctx, scope, memberID)
	if err != nil && !errors.Is(err, subscription.ErrNoActiveSubscription) {
		return snap, err
	}
	snap.Subscription = sub

	pack, err := s.ledgerRepo.FindEarliestExpiringPack(ctx, scope, memberID, time.Now())
	if err != nil && !errors.Is(err, ledger.ErrNoUsablePack) {
		return snap, err
	}
	snap.Pack = pack

	wallet, err := s.ledgerRepo.GetWallet(ctx, scope, memberID)
	if err != nil && !errors.Is(err, ledger.ErrWalletNotFound) {
		return snap, err
	}
	snap.Wallet = wallet

	return snap, nil
}

// Preview shows the member what booking this session would cost, per source,
// without reserving or charging anything.
func (s *service) Preview(ctx context.Context, scope tenant.Scope, memberID, sessionID int) (*BookingOptionsResponse, error) {
	detail, err := s.scheduleRepo.GetSessionDetail(ctx, scope, sessionID)
	if err != nil {
		return nil, err
	}

	snap, err := s.snapshot(ctx, scope, memberID)
	if err != nil {
		return nil, err
	}

	options := Options(snap, detail, s.cfg.TaxRateBps, time.Now())
	resp := &BookingOptionsResponse{
		SessionID:      sessionID,
		SeatsAvailable: detail.SeatsAvailable(),
		Options:        options,
	}

	if plan, err := Resolve(snap, detail, s.cfg.TaxRateBps, time.Now()); err == nil {
		for i := range options {
			if options[i].Source == plan.Source {
				resp.Selected = &options[i]
				break
			}
		}
	}

	return resp, nil
}

// Cancel releases the seat and, when the cancellation is outside the late
// cutoff, restores the charge. Late cancellations forfeit the charge unless
// the tenant opted into late refunds. Returns whether a refund was applied.
func (s *service) Cancel(ctx context.Context, scope tenant.Scope, memberID, bookingID int) (bool, error) {
	booking, err := s.bookingRepo.GetByID(ctx, scope, bookingID)
	if err != nil {
		return false, err
	}
	if memberID > 0 && booking.MemberID != memberID {
		return false, ErrBookingNotFound
	}

	detail, err := s.scheduleRepo.GetSessionDetail(ctx, scope, booking.SessionID)
	if err != nil {
		return false, err
	}

	refund := time.Until(detail.StartsAt) >= s.cfg.LateCancelCutoff || s.cfg.LateCancelRefund

	err = db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.bookingRepo.CancelTx(ctx, tx, scope, bookingID); err != nil {
			return err
		}
		if err := s.scheduleRepo.ReleaseSeatTx(ctx, tx, scope, booking.SessionID); err != nil {
			return err
		}
		if refund && booking.ChargeReceiptID != nil {
			if _, err := s.ledgerRepo.CreditTx(ctx, tx, scope, *booking.ChargeReceiptID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	metrics.RecordCancellation(refund)
	logger.Info("booking cancelled", "booking_id", bookingID, "refunded", refund)

	s.promoteNext(ctx, scope, booking.SessionID, detail)
	s.notifyCancellation(ctx, scope, booking.MemberID, detail.ClassName, refund)

	return refund, nil
}

// promoteNext fills the freed seat from the waitlist. Members whose
// entitlements no longer cover the class are dropped from the queue and the
// next one is tried.
func (s *service) promoteNext(ctx context.Context, scope tenant.Scope, sessionID int, detail *schedule.SessionDetail) {
	for {
		var entry *schedule.WaitlistEntry
		err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
			var err error
			entry, err = s.scheduleRepo.DequeueLongestWaitingTx(ctx, tx, scope, sessionID)
			return err
		})
		if err != nil {
			if !errors.Is(err, schedule.ErrWaitlistEmpty) {
				logger.Error("waitlist dequeue failed", "session_id", sessionID, "error", err)
			}
			return
		}

		booking, err := s.Book(ctx, scope, entry.MemberID, BookRequest{
			SessionID:      sessionID,
			IdempotencyKey: fmt.Sprintf("waitlist-%d-%d", sessionID, entry.ID),
		})
		if err != nil {
			if errors.Is(err, schedule.ErrSessionFull) {
				// Someone else took the seat first; the entry is already
				// consumed, so put the member back at the end of the queue.
				if _, requeueErr := s.scheduleRepo.EnqueueWaitlist(ctx, scope, sessionID, entry.MemberID, 0); requeueErr != nil {
					logger.Error("failed to requeue waitlist member", "member_id", entry.MemberID, "error", requeueErr)
				}
				return
			}
			logger.Info("skipping waitlisted member", "member_id", entry.MemberID, "session_id", sessionID, "reason", err)
			continue
		}

		metrics.RecordWaitlistPromotion()
		logger.Info("waitlist member promoted", "booking_id", booking.ID, "member_id", entry.MemberID, "session_id", sessionID)

		if m, err := s.memberRepo.GetByID(ctx, scope, entry.MemberID); err == nil {
			if err := s.emailService.SendWaitlistPromotion(ctx, m.Email, m.Name, detail.ClassName, detail.StartsAt); err != nil {
				logger.Error("failed to queue promotion email", "member_id", entry.MemberID, "error", err)
			}
		}
		return
	}
}

func (s *service) notifyCancellation(ctx context.Context, scope tenant.Scope, memberID int, className string, refunded bool) {
	m, err := s.memberRepo.GetByID(ctx, scope, memberID)
	if err != nil {
		return
	}
	if err := s.emailService.SendCancellationNotice(ctx, m.Email, m.Name, className, refunded); err != nil {
		logger.Error("failed to queue cancellation email", "member_id", memberID, "error", err)
	}
}

// CheckIn marks attendance. The window opens shortly before the session
// starts and closes when it ends. Check-in devices retry, so a booking that
// is already checked in reports success with alreadyCheckedIn set instead of
// an error.
func (s *service) CheckIn(ctx context.Context, scope tenant.Scope, bookingID int) (bool, error) {
	booking, err := s.bookingRepo.GetByID(ctx, scope, bookingID)
	if err != nil {
		return false, err
	}
	if booking.Status == StatusCheckedIn {
		return true, nil
	}

	detail, err := s.scheduleRepo.GetSessionDetail(ctx, scope, booking.SessionID)
	if err != nil {
		return false, err
	}

	now := time.Now()
	if now.Before(detail.StartsAt.Add(-s.cfg.CheckInOpens)) || now.After(detail.EndsAt) {
		return false, ErrCheckInClosed
	}

	if err := s.bookingRepo.CheckIn(ctx, scope, bookingID); err != nil {
		// Two devices can race past the status read; the conditional UPDATE
		// lets one through. The loser re-reads and reports the no-op.
		if errors.Is(err, ErrBookingNotCheckable) {
			if current, getErr := s.bookingRepo.GetByID(ctx, scope, bookingID); getErr == nil && current.Status == StatusCheckedIn {
				return true, nil
			}
		}
		return false, err
	}

	metrics.RecordCheckIn()
	logger.Info("member checked in", "booking_id", bookingID, "session_id", booking.SessionID)
	return false, nil
}

// JoinWaitlist requires the session to actually be full; members with a
// live booking cannot also hold a waitlist spot.
func (s *service) JoinWaitlist(ctx context.Context, scope tenant.Scope, memberID, sessionID int) (*schedule.WaitlistEntry, error) {
	booked, err := s.bookingRepo.HasActiveBooking(ctx, scope, memberID, sessionID)
	if err != nil {
		return nil, err
	}
	if booked {
		return nil, ErrAlreadyBooked
	}

	detail, err := s.scheduleRepo.GetSessionDetail(ctx, scope, sessionID)
	if err != nil {
		return nil, err
	}
	if detail.Status != schedule.SessionScheduled {
		return nil, schedule.ErrSessionNotBookable
	}
	if !detail.IsFull() {
		return nil, ErrSessionNotFull
	}

	entry, err := s.scheduleRepo.EnqueueWaitlist(ctx, scope, sessionID, memberID, s.cfg.MaxWaitlistSize)
	if err != nil {
		return nil, err
	}

	logger.Info("member joined waitlist", "member_id", memberID, "session_id", sessionID)
	return entry, nil
}

func (s *service) LeaveWaitlist(ctx context.Context, scope tenant.Scope, memberID, sessionID int) error {
	return s.scheduleRepo.RemoveFromWaitlist(ctx, scope, sessionID, memberID)
}

func (s *service) ListForMember(ctx context.Context, scope tenant.Scope, memberID int) ([]BookingDetail, error) {
	return s.bookingRepo.ListForMember(ctx, scope, memberID)
}

func (s *service) ClassReport(ctx context.Context, scope tenant.Scope, from, to time.Time) ([]ClassBookingStats, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("report period end %s is not after start %s", to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	return s.bookingRepo.AggregateByClass(ctx, scope, from, to)
}

// SettleCompletedSessions is the sweeper entry point: sessions past their
// end time complete, and confirmed bookings that never checked in become
// no-shows with their charge kept.
func (s *service) SettleCompletedSessions(ctx context.Context, now time.Time) error {
	ids, err := s.scheduleRepo.CompleteDueSessions(ctx, now)
	if err != nil {
		return err
	}

	for _, id := range ids {
		count, err := s.bookingRepo.MarkNoShowsForSession(ctx, id)
		if err != nil {
			logger.Error("failed to mark no-shows", "session_id", id, "error", err)
			continue
		}
		if count > 0 {
			logger.Info("no-shows recorded", "session_id", id, "count", count)
		}
	}
	return nil
}
