package booking

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"liyaqa/internal/config"
	"liyaqa/internal/email"
	"liyaqa/internal/ledger"
	"liyaqa/internal/logger"
	"liyaqa/internal/member"
	"liyaqa/internal/schedule"
	"liyaqa/internal/subscription"
	"liyaqa/internal/tenant"
)

// Mock repositories
type MockBookingRepo struct{ mock.Mock }
type MockScheduleRepo struct{ mock.Mock }
type MockSubscriptionRepo struct{ mock.Mock }
type MockLedgerRepo struct{ mock.Mock }
type MockMemberRepo struct{ mock.Mock }

func (m *MockBookingRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, booking *Booking) error {
	args := m.Called(ctx, tx, scope, booking)
	if args.Error(0) == nil {
		booking.ID = 77
	}
	return args.Error(0)
}

func (m *MockBookingRepo) GetByID(ctx context.Context, scope tenant.Scope, id int) (*Booking, error) {
	args := m.Called(ctx, scope, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Booking), args.Error(1)
}

func (m *MockBookingRepo) GetConfirmedForMemberAndSession(ctx context.Context, scope tenant.Scope, memberID, sessionID int) (*Booking, error) {
	args := m.Called(ctx, scope, memberID, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Booking), args.Error(1)
}

func (m *MockBookingRepo) HasActiveBooking(ctx context.Context, scope tenant.Scope, memberID, sessionID int) (bool, error) {
	args := m.Called(ctx, scope, memberID, sessionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepo) CancelTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, id int) error {
	return m.Called(ctx, tx, scope, id).Error(0)
}

func (m *MockBookingRepo) CheckIn(ctx context.Context, scope tenant.Scope, id int) error {
	return m.Called(ctx, scope, id).Error(0)
}

func (m *MockBookingRepo) ListForMember(ctx context.Context, scope tenant.Scope, memberID int) ([]BookingDetail, error) {
	args := m.Called(ctx, scope, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]BookingDetail), args.Error(1)
}

func (m *MockBookingRepo) ListForSession(ctx context.Context, scope tenant.Scope, sessionID int) ([]Booking, error) {
	args := m.Called(ctx, scope, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Booking), args.Error(1)
}

func (m *MockBookingRepo) MarkNoShowsForSession(ctx context.Context, sessionID int) (int64, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBookingRepo) AggregateByClass(ctx context.Context, scope tenant.Scope, from, to time.Time) ([]ClassBookingStats, error) {
	args := m.Called(ctx, scope, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ClassBookingStats), args.Error(1)
}

func (m *MockScheduleRepo) CreateClass(ctx context.Context, scope tenant.Scope, class *schedule.GymClass) error {
	return m.Called(ctx, scope, class).Error(0)
}

func (m *MockScheduleRepo) GetClass(ctx context.Context, scope tenant.Scope, id int) (*schedule.GymClass, error) {
	args := m.Called(ctx, scope, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.GymClass), args.Error(1)
}

func (m *MockScheduleRepo) ListClasses(ctx context.Context, scope tenant.Scope) ([]schedule.GymClass, error) {
	args := m.Called(ctx, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schedule.GymClass), args.Error(1)
}

func (m *MockScheduleRepo) CreateSession(ctx context.Context, scope tenant.Scope, session *schedule.ClassSession) error {
	return m.Called(ctx, scope, session).Error(0)
}

func (m *MockScheduleRepo) GetSession(ctx context.Context, scope tenant.Scope, id int) (*schedule.ClassSession, error) {
	args := m.Called(ctx, scope, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.ClassSession), args.Error(1)
}

func (m *MockScheduleRepo) GetSessionDetail(ctx context.Context, scope tenant.Scope, id int) (*schedule.SessionDetail, error) {
	args := m.Called(ctx, scope, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.SessionDetail), args.Error(1)
}

func (m *MockScheduleRepo) ListUpcomingSessions(ctx context.Context, scope tenant.Scope, from time.Time) ([]schedule.SessionDetail, error) {
	args := m.Called(ctx, scope, from)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schedule.SessionDetail), args.Error(1)
}

func (m *MockScheduleRepo) CancelSession(ctx context.Context, scope tenant.Scope, id int) error {
	return m.Called(ctx, scope, id).Error(0)
}

func (m *MockScheduleRepo) CompleteDueSessions(ctx context.Context, now time.Time) ([]int, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockScheduleRepo) ReserveSeatTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, sessionID int) error {
	return m.Called(ctx, tx, scope, sessionID).Error(0)
}

func (m *MockScheduleRepo) ReleaseSeatTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, sessionID int) error {
	return m.Called(ctx, tx, scope, sessionID).Error(0)
}

func (m *MockScheduleRepo) EnqueueWaitlist(ctx context.Context, scope tenant.Scope, sessionID, memberID, maxSize int) (*schedule.WaitlistEntry, error) {
	args := m.Called(ctx, scope, sessionID, memberID, maxSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.WaitlistEntry), args.Error(1)
}

func (m *MockScheduleRepo) DequeueLongestWaitingTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, sessionID int) (*schedule.WaitlistEntry, error) {
	args := m.Called(ctx, tx, scope, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.WaitlistEntry), args.Error(1)
}

func (m *MockScheduleRepo) RemoveFromWaitlist(ctx context.Context, scope tenant.Scope, sessionID, memberID int) error {
	return m.Called(ctx, scope, sessionID, memberID).Error(0)
}

func (m *MockScheduleRepo) WaitlistPosition(ctx context.Context, scope tenant.Scope, sessionID, memberID int) (int, error) {
	args := m.Called(ctx, scope, sessionID, memberID)
	return args.Int(0), args.Error(1)
}

func (m *MockSubscriptionRepo) Create(ctx context.Context, scope tenant.Scope, sub *subscription.Subscription) error {
	return m.Called(ctx, scope, sub).Error(0)
}

func (m *MockSubscriptionRepo) GetByID(ctx context.Context, scope tenant.Scope, id int) (*subscription.Subscription, error) {
	args := m.Called(ctx, scope, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepo) GetActiveForMember(ctx context.Context, scope tenant.Scope, memberID int) (*subscription.Subscription, error) {
	args := m.Called(ctx, scope, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepo) ListForMember(ctx context.Context, scope tenant.Scope, memberID int) ([]subscription.Subscription, error) {
	args := m.Called(ctx, scope, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]subscription.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepo) Activate(ctx context.Context, scope tenant.Scope, id int) error {
	return m.Called(ctx, scope, id).Error(0)
}

func (m *MockSubscriptionRepo) Freeze(ctx context.Context, scope tenant.Scope, id, days int) (*subscription.Subscription, error) {
	args := m.Called(ctx, scope, id, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepo) Unfreeze(ctx context.Context, scope tenant.Scope, id int) (*subscription.Subscription, error) {
	args := m.Called(ctx, scope, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepo) Renew(ctx context.Context, scope tenant.Scope, id, durationDays int, classesIncluded *int) (*subscription.Subscription, error) {
	args := m.Called(ctx, scope, id, durationDays, classesIncluded)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepo) Cancel(ctx context.Context, scope tenant.Scope, id int, reason string) error {
	return m.Called(ctx, scope, id, reason).Error(0)
}

func (m *MockSubscriptionRepo) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerRepo) DebitTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, cmd ledger.DebitCommand) (*ledger.ChargeReceipt, error) {
	args := m.Called(ctx, tx, scope, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.ChargeReceipt), args.Error(1)
}

func (m *MockLedgerRepo) CreditTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, receiptID int) (bool, error) {
	args := m.Called(ctx, tx, scope, receiptID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedgerRepo) GetReceiptByKey(ctx context.Context, scope tenant.Scope, key string) (*ledger.ChargeReceipt, error) {
	args := m.Called(ctx, scope, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.ChargeReceipt), args.Error(1)
}

func (m *MockLedgerRepo) GetReceiptByID(ctx context.Context, scope tenant.Scope, id int) (*ledger.ChargeReceipt, error) {
	args := m.Called(ctx, scope, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.ChargeReceipt), args.Error(1)
}

func (m *MockLedgerRepo) FindEarliestExpiringPack(ctx context.Context, scope tenant.Scope, memberID int, at time.Time) (*ledger.ClassPack, error) {
	args := m.Called(ctx, scope, memberID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.ClassPack), args.Error(1)
}

func (m *MockLedgerRepo) GrantPack(ctx context.Context, scope tenant.Scope, pack *ledger.ClassPack) error {
	return m.Called(ctx, scope, pack).Error(0)
}

func (m *MockLedgerRepo) ListPacks(ctx context.Context, scope tenant.Scope, memberID int) ([]ledger.ClassPack, error) {
	args := m.Called(ctx, scope, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.ClassPack), args.Error(1)
}

func (m *MockLedgerRepo) GetWallet(ctx context.Context, scope tenant.Scope, memberID int) (*ledger.Wallet, error) {
	args := m.Called(ctx, scope, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Wallet), args.Error(1)
}

func (m *MockLedgerRepo) EnsureWallet(ctx context.Context, scope tenant.Scope, memberID int, currency string) (*ledger.Wallet, error) {
	args := m.Called(ctx, scope, memberID, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Wallet), args.Error(1)
}

func (m *MockLedgerRepo) TopUp(ctx context.Context, scope tenant.Scope, memberID int, amountCents int64, currency string) (*ledger.Wallet, error) {
	args := m.Called(ctx, scope, memberID, amountCents, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Wallet), args.Error(1)
}

func (m *MockLedgerRepo) ReconcileWallet(ctx context.Context, scope tenant.Scope, memberID int) (*ledger.WalletReconciliation, error) {
	args := m.Called(ctx, scope, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.WalletReconciliation), args.Error(1)
}

func (m *MockLedgerRepo) ListWalletTransactions(ctx context.Context, scope tenant.Scope, memberID int, limit int) ([]ledger.WalletTransaction, error) {
	args := m.Called(ctx, scope, memberID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.WalletTransaction), args.Error(1)
}

func (m *MockMemberRepo) Create(ctx context.Context, scope tenant.Scope, name, email, phone string) (*member.Member, error) {
	args := m.Called(ctx, scope, name, email, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*member.Member), args.Error(1)
}

func (m *MockMemberRepo) GetByID(ctx context.Context, scope tenant.Scope, id int) (*member.Member, error) {
	args := m.Called(ctx, scope, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*member.Member), args.Error(1)
}

func (m *MockMemberRepo) List(ctx context.Context, scope tenant.Scope, limit, offset int) ([]member.Member, error) {
	args := m.Called(ctx, scope, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]member.Member), args.Error(1)
}

func (m *MockMemberRepo) SetStatus(ctx context.Context, scope tenant.Scope, id int, status member.Status) error {
	return m.Called(ctx, scope, id, status).Error(0)
}

func (m *MockMemberRepo) LinkUser(ctx context.Context, scope tenant.Scope, id, userID int) error {
	return m.Called(ctx, scope, id, userID).Error(0)
}

type testEnv struct {
	service  Service
	dbMock   sqlmock.Sqlmock
	booking  *MockBookingRepo
	schedule *MockScheduleRepo
	sub      *MockSubscriptionRepo
	ledger   *MockLedgerRepo
	member   *MockMemberRepo
}

func setupService(t *testing.T) *testEnv {
	logger.Init()

	mockDB, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	sqlxDB := sqlx.NewDb(mockDB, "sqlmock")

	env := &testEnv{
		dbMock:   dbMock,
		booking:  new(MockBookingRepo),
		schedule: new(MockScheduleRepo),
		sub:      new(MockSubscriptionRepo),
		ledger:   new(MockLedgerRepo),
		member:   new(MockMemberRepo),
	}

	emailService := email.New("noreply@test.com", "Test", "localhost", "1025", "", "", "localhost:6379")
	cfg := config.BookingConfig{
		LateCancelCutoff: 2 * time.Hour,
		CheckInOpens:     30 * time.Minute,
		LateCancelRefund: false,
		TxRetryAttempts:  1,
		MaxWaitlistSize:  10,
		TaxRateBps:       1500,
	}

	env.service = NewService(sqlxDB, env.booking, env.schedule, env.sub, env.ledger, env.member, emailService, cfg)
	return env
}

var testScope = tenant.Scope{TenantID: 1}

func activeMember() *member.Member {
	return &member.Member{ID: 7, TenantID: 1, Name: "Sara", Email: "sara@example.com", Status: member.StatusActive}
}

func scheduledSession(startsIn time.Duration) *schedule.SessionDetail {
	d := includedSession(startsIn)
	d.ID = 5
	d.Status = schedule.SessionScheduled
	d.Capacity = 10
	d.SeatsReserved = 3
	return d
}

func TestBookChargesSubscription(t *testing.T) {
	env := setupService(t)

	env.member.On("GetByID", mock.Anything, testScope, 7).Return(activeMember(), nil)
	env.ledger.On("GetReceiptByKey", mock.Anything, testScope, "key-1").Return(nil, ledger.ErrReceiptNotFound)
	env.booking.On("HasActiveBooking", mock.Anything, testScope, 7, 5).Return(false, nil)
	env.schedule.On("GetSessionDetail", mock.Anything, testScope, 5).Return(scheduledSession(24*time.Hour), nil)
	env.sub.On("GetActiveForMember", mock.Anything, testScope, 7).Return(activeSub(nil), nil)
	env.ledger.On("FindEarliestExpiringPack", mock.Anything, testScope, 7, mock.Anything).Return(nil, ledger.ErrNoUsablePack)
	env.ledger.On("GetWallet", mock.Anything, testScope, 7).Return(nil, ledger.ErrWalletNotFound)

	env.dbMock.ExpectBegin()
	env.schedule.On("ReserveSeatTx", mock.Anything, mock.Anything, testScope, 5).Return(nil)
	env.ledger.On("DebitTx", mock.Anything, mock.Anything, testScope, mock.MatchedBy(func(cmd ledger.DebitCommand) bool {
		return cmd.Source == ledger.SourceSubscription && cmd.IdempotencyKey == "key-1" && cmd.Price.IsZero()
	})).Return(&ledger.ChargeReceipt{ID: 100, Source: ledger.SourceSubscription}, nil)
	env.booking.On("CreateTx", mock.Anything, mock.Anything, testScope, mock.Anything).Return(nil)
	env.dbMock.ExpectCommit()

	booking, err := env.service.Book(context.Background(), testScope, 7, BookRequest{SessionID: 5, IdempotencyKey: "key-1"})
	require.NoError(t, err)

	assert.Equal(t, 77, booking.ID)
	assert.Equal(t, 100, *booking.ChargeReceiptID)
	env.booking.AssertExpectations(t)
	env.ledger.AssertExpectations(t)
	assert.NoError(t, env.dbMock.ExpectationsWereMet())
}

func TestBookFullSessionRollsBack(t *testing.T) {
	env := setupService(t)

	env.member.On("GetByID", mock.Anything, testScope, 7).Return(activeMember(), nil)
	env.ledger.On("GetReceiptByKey", mock.Anything, testScope, "key-2").Return(nil, ledger.ErrReceiptNotFound)
	env.booking.On("HasActiveBooking", mock.Anything, testScope, 7, 5).Return(false, nil)
	env.schedule.On("GetSessionDetail", mock.Anything, testScope, 5).Return(scheduledSession(24*time.Hour), nil)
	env.sub.On("GetActiveForMember", mock.Anything, testScope, 7).Return(activeSub(nil), nil)
	env.ledger.On("FindEarliestExpiringPack", mock.Anything, testScope, 7, mock.Anything).Return(nil, ledger.ErrNoUsablePack)
	env.ledger.On("GetWallet", mock.Anything, testScope, 7).Return(nil, ledger.ErrWalletNotFound)

	env.dbMock.ExpectBegin()
	env.schedule.On("ReserveSeatTx", mock.Anything, mock.Anything, testScope, 5).Return(schedule.ErrSessionFull)
	env.dbMock.ExpectRollback()

	_, err := env.service.Book(context.Background(), testScope, 7, BookRequest{SessionID: 5, IdempotencyKey: "key-2"})
	assert.ErrorIs(t, err, schedule.ErrSessionFull)

	env.ledger.AssertNotCalled(t, "DebitTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	env.booking.AssertNotCalled(t, "CreateTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookWithoutEntitlementNeverTouchesSeat(t *testing.T) {
	env := setupService(t)

	env.member.On("GetByID", mock.Anything, testScope, 7).Return(activeMember(), nil)
	env.ledger.On("GetReceiptByKey", mock.Anything, testScope, "key-3").Return(nil, ledger.ErrReceiptNotFound)
	env.booking.On("HasActiveBooking", mock.Anything, testScope, 7, 5).Return(false, nil)
	env.schedule.On("GetSessionDetail", mock.Anything, testScope, 5).Return(scheduledSession(24*time.Hour), nil)
	env.sub.On("GetActiveForMember", mock.Anything, testScope, 7).Return(nil, subscription.ErrNoActiveSubscription)
	env.ledger.On("FindEarliestExpiringPack", mock.Anything, testScope, 7, mock.Anything).Return(nil, ledger.ErrNoUsablePack)
	env.ledger.On("GetWallet", mock.Anything, testScope, 7).Return(nil, ledger.ErrWalletNotFound)

	_, err := env.service.Book(context.Background(), testScope, 7, BookRequest{SessionID: 5, IdempotencyKey: "key-3"})
	assert.ErrorIs(t, err, ErrNoEntitlement)

	env.schedule.AssertNotCalled(t, "ReserveSeatTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.NoError(t, env.dbMock.ExpectationsWereMet())
}

func TestBookReplayedKeyReturnsExistingBooking(t *testing.T) {
	env := setupService(t)

	existing := &Booking{ID: 77, MemberID: 7, SessionID: 5, Status: StatusConfirmed}

	env.member.On("GetByID", mock.Anything, testScope, 7).Return(activeMember(), nil)
	env.ledger.On("GetReceiptByKey", mock.Anything, testScope, "key-1").
		Return(&ledger.ChargeReceipt{ID: 100, MemberID: 7, IdempotencyKey: "key-1"}, nil)
	env.booking.On("GetConfirmedForMemberAndSession", mock.Anything, testScope, 7, 5).Return(existing, nil)

	booking, err := env.service.Book(context.Background(), testScope, 7, BookRequest{SessionID: 5, IdempotencyKey: "key-1"})
	require.NoError(t, err)

	assert.Equal(t, 77, booking.ID)
	env.ledger.AssertNotCalled(t, "DebitTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	env.schedule.AssertNotCalled(t, "ReserveSeatTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookReplayedKeyDifferentSessionConflicts(t *testing.T) {
	env := setupService(t)

	env.member.On("GetByID", mock.Anything, testScope, 7).Return(activeMember(), nil)
	env.ledger.On("GetReceiptByKey", mock.Anything, testScope, "key-1").
		Return(&ledger.ChargeReceipt{ID: 100, MemberID: 7, IdempotencyKey: "key-1"}, nil)
	env.booking.On("GetConfirmedForMemberAndSession", mock.Anything, testScope, 7, 6).
		Return(nil, ErrBookingNotFound)

	_, err := env.service.Book(context.Background(), testScope, 7, BookRequest{SessionID: 6, IdempotencyKey: "key-1"})
	assert.ErrorIs(t, err, ledger.ErrReceiptConflict)
	env.booking.AssertNotCalled(t, "HasActiveBooking", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	env.schedule.AssertNotCalled(t, "ReserveSeatTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookInactiveMember(t *testing.T) {
	env := setupService(t)

	m := activeMember()
	m.Status = member.StatusSuspended
	env.member.On("GetByID", mock.Anything, testScope, 7).Return(m, nil)

	_, err := env.service.Book(context.Background(), testScope, 7, BookRequest{SessionID: 5, IdempotencyKey: "key-4"})
	assert.ErrorIs(t, err, ErrMemberInactive)
}

func TestCancelOutsideCutoffRefunds(t *testing.T) {
	env := setupService(t)

	receiptID := 100
	source := string(ledger.SourceWallet)
	booked := &Booking{ID: 77, MemberID: 7, SessionID: 5, Status: StatusConfirmed, ChargeReceiptID: &receiptID, ChargeSource: &source}

	env.booking.On("GetByID", mock.Anything, testScope, 77).Return(booked, nil)
	env.schedule.On("GetSessionDetail", mock.Anything, testScope, 5).Return(scheduledSession(48*time.Hour), nil)

	env.dbMock.ExpectBegin()
	env.booking.On("CancelTx", mock.Anything, mock.Anything, testScope, 77).Return(nil)
	env.schedule.On("ReleaseSeatTx", mock.Anything, mock.Anything, testScope, 5).Return(nil)
	env.ledger.On("CreditTx", mock.Anything, mock.Anything, testScope, 100).Return(true, nil)
	env.dbMock.ExpectCommit()

	// Waitlist is empty, nothing to promote.
	env.dbMock.ExpectBegin()
	env.schedule.On("DequeueLongestWaitingTx", mock.Anything, mock.Anything, testScope, 5).Return(nil, schedule.ErrWaitlistEmpty)
	env.dbMock.ExpectRollback()

	env.member.On("GetByID", mock.Anything, testScope, 7).Return(activeMember(), nil)

	refunded, err := env.service.Cancel(context.Background(), testScope, 7, 77)
	require.NoError(t, err)

	assert.True(t, refunded)
	env.ledger.AssertExpectations(t)
	assert.NoError(t, env.dbMock.ExpectationsWereMet())
}

func TestCancelInsideCutoffForfeitsCharge(t *testing.T) {
	env := setupService(t)

	receiptID := 100
	booked := &Booking{ID: 77, MemberID: 7, SessionID: 5, Status: StatusConfirmed, ChargeReceiptID: &receiptID}

	env.booking.On("GetByID", mock.Anything, testScope, 77).Return(booked, nil)
	env.schedule.On("GetSessionDetail", mock.Anything, testScope, 5).Return(scheduledSession(30*time.Minute), nil)

	env.dbMock.ExpectBegin()
	env.booking.On("CancelTx", mock.Anything, mock.Anything, testScope, 77).Return(nil)
	env.schedule.On("ReleaseSeatTx", mock.Anything, mock.Anything, testScope, 5).Return(nil)
	env.dbMock.ExpectCommit()

	env.dbMock.ExpectBegin()
	env.schedule.On("DequeueLongestWaitingTx", mock.Anything, mock.Anything, testScope, 5).Return(nil, schedule.ErrWaitlistEmpty)
	env.dbMock.ExpectRollback()

	env.member.On("GetByID", mock.Anything, testScope, 7).Return(activeMember(), nil)

	refunded, err := env.service.Cancel(context.Background(), testScope, 7, 77)
	require.NoError(t, err)

	assert.False(t, refunded)
	env.ledger.AssertNotCalled(t, "CreditTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelSomeoneElsesBookingFailsClosed(t *testing.T) {
	env := setupService(t)

	booked := &Booking{ID: 77, MemberID: 99, SessionID: 5, Status: StatusConfirmed}
	env.booking.On("GetByID", mock.Anything, testScope, 77).Return(booked, nil)

	_, err := env.service.Cancel(context.Background(), testScope, 7, 77)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestCancelPromotesWaitlistedMember(t *testing.T) {
	env := setupService(t)

	receiptID := 100
	booked := &Booking{ID: 77, MemberID: 7, SessionID: 5, Status: StatusConfirmed, ChargeReceiptID: &receiptID}

	env.booking.On("GetByID", mock.Anything, testScope, 77).Return(booked, nil)
	env.schedule.On("GetSessionDetail", mock.Anything, testScope, 5).Return(scheduledSession(48*time.Hour), nil)

	env.dbMock.ExpectBegin()
	env.booking.On("CancelTx", mock.Anything, mock.Anything, testScope, 77).Return(nil)
	env.schedule.On("ReleaseSeatTx", mock.Anything, mock.Anything, testScope, 5).Return(nil)
	env.ledger.On("CreditTx", mock.Anything, mock.Anything, testScope, 100).Return(true, nil)
	env.dbMock.ExpectCommit()

	// Dequeue member 8 from the waitlist.
	env.dbMock.ExpectBegin()
	env.schedule.On("DequeueLongestWaitingTx", mock.Anything, mock.Anything, testScope, 5).
		Return(&schedule.WaitlistEntry{ID: 33, SessionID: 5, MemberID: 8}, nil)
	env.dbMock.ExpectCommit()

	// The promotion books member 8 through the normal path.
	promoted := &member.Member{ID: 8, TenantID: 1, Name: "Omar", Email: "omar@example.com", Status: member.StatusActive}
	env.member.On("GetByID", mock.Anything, testScope, 8).Return(promoted, nil)
	env.ledger.On("GetReceiptByKey", mock.Anything, testScope, "waitlist-5-33").Return(nil, ledger.ErrReceiptNotFound)
	env.booking.On("HasActiveBooking", mock.Anything, testScope, 8, 5).Return(false, nil)
	env.sub.On("GetActiveForMember", mock.Anything, testScope, 8).Return(activeSub(nil), nil)
	env.ledger.On("FindEarliestExpiringPack", mock.Anything, testScope, 8, mock.Anything).Return(nil, ledger.ErrNoUsablePack)
	env.ledger.On("GetWallet", mock.Anything, testScope, 8).Return(nil, ledger.ErrWalletNotFound)

	env.dbMock.ExpectBegin()
	env.schedule.On("ReserveSeatTx", mock.Anything, mock.Anything, testScope, 5).Return(nil)
	env.ledger.On("DebitTx", mock.Anything, mock.Anything, testScope, mock.MatchedBy(func(cmd ledger.DebitCommand) bool {
		return cmd.MemberID == 8 && cmd.IdempotencyKey == "waitlist-5-33"
	})).Return(&ledger.ChargeReceipt{ID: 101, Source: ledger.SourceSubscription}, nil)
	env.booking.On("CreateTx", mock.Anything, mock.Anything, testScope, mock.Anything).Return(nil)
	env.dbMock.ExpectCommit()

	env.member.On("GetByID", mock.Anything, testScope, 7).Return(activeMember(), nil)

	refunded, err := env.service.Cancel(context.Background(), testScope, 7, 77)
	require.NoError(t, err)

	assert.True(t, refunded)
	env.booking.AssertCalled(t, "CreateTx", mock.Anything, mock.Anything, testScope, mock.Anything)
	assert.NoError(t, env.dbMock.ExpectationsWereMet())
}

func TestCheckInBeforeWindowOpens(t *testing.T) {
	env := setupService(t)

	booked := &Booking{ID: 77, MemberID: 7, SessionID: 5, Status: StatusConfirmed}
	env.booking.On("GetByID", mock.Anything, testScope, 77).Return(booked, nil)
	env.schedule.On("GetSessionDetail", mock.Anything, testScope, 5).Return(scheduledSession(3*time.Hour), nil)

	_, err := env.service.CheckIn(context.Background(), testScope, 77)
	assert.ErrorIs(t, err, ErrCheckInClosed)
	env.booking.AssertNotCalled(t, "CheckIn", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckInDuringWindow(t *testing.T) {
	env := setupService(t)

	booked := &Booking{ID: 77, MemberID: 7, SessionID: 5, Status: StatusConfirmed}
	env.booking.On("GetByID", mock.Anything, testScope, 77).Return(booked, nil)
	env.schedule.On("GetSessionDetail", mock.Anything, testScope, 5).Return(scheduledSession(10*time.Minute), nil)
	env.booking.On("CheckIn", mock.Anything, testScope, 77).Return(nil)

	alreadyCheckedIn, err := env.service.CheckIn(context.Background(), testScope, 77)
	assert.NoError(t, err)
	assert.False(t, alreadyCheckedIn)
	env.booking.AssertExpectations(t)
}

func TestCheckInTwiceIsNoOp(t *testing.T) {
	env := setupService(t)

	checkedIn := &Booking{ID: 77, MemberID: 7, SessionID: 5, Status: StatusCheckedIn}
	env.booking.On("GetByID", mock.Anything, testScope, 77).Return(checkedIn, nil)

	alreadyCheckedIn, err := env.service.CheckIn(context.Background(), testScope, 77)
	assert.NoError(t, err)
	assert.True(t, alreadyCheckedIn)
	env.booking.AssertNotCalled(t, "CheckIn", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckInRaceLoserReportsNoOp(t *testing.T) {
	env := setupService(t)

	confirmed := &Booking{ID: 77, MemberID: 7, SessionID: 5, Status: StatusConfirmed}
	nowCheckedIn := &Booking{ID: 77, MemberID: 7, SessionID: 5, Status: StatusCheckedIn}

	env.booking.On("GetByID", mock.Anything, testScope, 77).Return(confirmed, nil).Once()
	env.schedule.On("GetSessionDetail", mock.Anything, testScope, 5).Return(scheduledSession(10*time.Minute), nil)
	env.booking.On("CheckIn", mock.Anything, testScope, 77).Return(ErrBookingNotCheckable)
	env.booking.On("GetByID", mock.Anything, testScope, 77).Return(nowCheckedIn, nil).Once()

	alreadyCheckedIn, err := env.service.CheckIn(context.Background(), testScope, 77)
	assert.NoError(t, err)
	assert.True(t, alreadyCheckedIn)
}

func TestJoinWaitlistRequiresFullSession(t *testing.T) {
	env := setupService(t)

	env.booking.On("HasActiveBooking", mock.Anything, testScope, 7, 5).Return(false, nil)
	env.schedule.On("GetSessionDetail", mock.Anything, testScope, 5).Return(scheduledSession(24*time.Hour), nil)

	_, err := env.service.JoinWaitlist(context.Background(), testScope, 7, 5)
	assert.ErrorIs(t, err, ErrSessionNotFull)
}

func TestJoinWaitlistOnFullSession(t *testing.T) {
	env := setupService(t)

	full := scheduledSession(24 * time.Hour)
	full.SeatsReserved = full.Capacity

	env.booking.On("HasActiveBooking", mock.Anything, testScope, 7, 5).Return(false, nil)
	env.schedule.On("GetSessionDetail", mock.Anything, testScope, 5).Return(full, nil)
	env.schedule.On("EnqueueWaitlist", mock.Anything, testScope, 5, 7, 10).
		Return(&schedule.WaitlistEntry{ID: 33, SessionID: 5, MemberID: 7}, nil)

	entry, err := env.service.JoinWaitlist(context.Background(), testScope, 7, 5)
	require.NoError(t, err)
	assert.Equal(t, 33, entry.ID)
}

func TestSettleCompletedSessionsMarksNoShows(t *testing.T) {
	env := setupService(t)

	now := time.Now()
	env.schedule.On("CompleteDueSessions", mock.Anything, now).Return([]int{5, 6}, nil)
	env.booking.On("MarkNoShowsForSession", mock.Anything, 5).Return(int64(2), nil)
	env.booking.On("MarkNoShowsForSession", mock.Anything, 6).Return(int64(0), nil)

	err := env.service.SettleCompletedSessions(context.Background(), now)
	assert.NoError(t, err)
	env.booking.AssertExpectations(t)
}

func TestClassReportDelegates(t *testing.T) {
	env := setupService(t)

	from := time.Now().AddDate(0, 0, -7)
	to := time.Now()
	stats := []ClassBookingStats{{ClassID: 1, ClassName: "Morning Yoga", Total: 40, Attended: 31, NoShows: 4, Cancelled: 5}}

	env.booking.On("AggregateByClass", mock.Anything, testScope, from, to).Return(stats, nil)

	got, err := env.service.ClassReport(context.Background(), testScope, from, to)
	assert.NoError(t, err)
	assert.Equal(t, stats, got)
}

func TestClassReportRejectsInvertedPeriod(t *testing.T) {
	env := setupService(t)

	now := time.Now()
	_, err := env.service.ClassReport(context.Background(), testScope, now, now.AddDate(0, 0, -7))
	assert.Error(t, err)
	env.booking.AssertNotCalled(t, "AggregateByClass", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
