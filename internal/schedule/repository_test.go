package schedule

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liyaqa/internal/tenant"
)

func setupMock(t *testing.T) (Repository, *sqlx.DB, sqlmock.Sqlmock, func()) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(mockDB, "sqlmock")
	repo := NewRepository(sqlxDB)

	closer := func() {
		sqlxDB.Close()
	}

	return repo, sqlxDB, mock, closer
}

var sessionColumns = []string{
	"id", "tenant_id", "class_id", "starts_at", "ends_at",
	"capacity", "seats_reserved", "status", "created_at", "updated_at",
}

func sessionRow(id, capacity, reserved int, status SessionStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(sessionColumns).AddRow(
		id, 1, 2, now.Add(time.Hour), now.Add(2*time.Hour),
		capacity, reserved, string(status), now, now,
	)
}

func TestReserveSeatSuccess(t *testing.T) {
	repo, sqlxDB, mock, close := setupMock(t)
	defer close()

	scope := tenant.Scope{TenantID: 1}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET seats_reserved = seats_reserved + 1")).
		WithArgs(5, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := sqlxDB.Beginx()
	require.NoError(t, err)

	err = repo.ReserveSeatTx(context.Background(), tx, scope, 5)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveSeatFullSession(t *testing.T) {
	repo, sqlxDB, mock, close := setupMock(t)
	defer close()

	scope := tenant.Scope{TenantID: 1}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET seats_reserved = seats_reserved + 1")).
		WithArgs(5, 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM class_sessions WHERE id = $1 AND tenant_id = $2`)).
		WithArgs(5, 1).
		WillReturnRows(sessionRow(5, 10, 10, SessionScheduled))
	mock.ExpectRollback()

	tx, err := sqlxDB.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	err = repo.ReserveSeatTx(context.Background(), tx, scope, 5)
	assert.ErrorIs(t, err, ErrSessionFull)
}

func TestReserveSeatCancelledSession(t *testing.T) {
	repo, sqlxDB, mock, close := setupMock(t)
	defer close()

	scope := tenant.Scope{TenantID: 1}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET seats_reserved = seats_reserved + 1")).
		WithArgs(5, 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM class_sessions")).
		WithArgs(5, 1).
		WillReturnRows(sessionRow(5, 10, 3, SessionCancelled))
	mock.ExpectRollback()

	tx, err := sqlxDB.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	err = repo.ReserveSeatTx(context.Background(), tx, scope, 5)
	assert.ErrorIs(t, err, ErrSessionNotBookable)
}

func TestReserveSeatWrongTenantIsNotFound(t *testing.T) {
	repo, sqlxDB, mock, close := setupMock(t)
	defer close()

	scope := tenant.Scope{TenantID: 2}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET seats_reserved = seats_reserved + 1")).
		WithArgs(5, 2).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM class_sessions")).
		WithArgs(5, 2).
		WillReturnRows(sqlmock.NewRows(sessionColumns))
	mock.ExpectRollback()

	tx, err := sqlxDB.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	err = repo.ReserveSeatTx(context.Background(), tx, scope, 5)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestReleaseSeatFloor(t *testing.T) {
	repo, sqlxDB, mock, close := setupMock(t)
	defer close()

	scope := tenant.Scope{TenantID: 1}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET seats_reserved = seats_reserved - 1")).
		WithArgs(5, 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := sqlxDB.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	err = repo.ReleaseSeatTx(context.Background(), tx, scope, 5)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEnqueueWaitlistCapped(t *testing.T) {
	repo, _, mock, close := setupMock(t)
	defer close()

	scope := tenant.Scope{TenantID: 1}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM waitlist_entries")).
		WithArgs(5, 1).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	mock.ExpectRollback()

	_, err := repo.EnqueueWaitlist(context.Background(), scope, 5, 7, 10)
	assert.ErrorIs(t, err, ErrWaitlistFull)
}

func TestEnqueueWaitlistSuccess(t *testing.T) {
	repo, _, mock, close := setupMock(t)
	defer close()

	scope := tenant.Scope{TenantID: 1}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM waitlist_entries")).
		WithArgs(5, 1).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO waitlist_entries")).
		WithArgs(1, 5, 7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(33, time.Now()))
	mock.ExpectCommit()

	entry, err := repo.EnqueueWaitlist(context.Background(), scope, 5, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, 33, entry.ID)
	assert.Equal(t, 7, entry.MemberID)
}

func TestDequeueLongestWaiting(t *testing.T) {
	repo, sqlxDB, mock, close := setupMock(t)
	defer close()

	scope := tenant.Scope{TenantID: 1}
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM waitlist_entries")).
		WithArgs(5, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "session_id", "member_id", "created_at"}).
			AddRow(33, 1, 5, 7, now))
	mock.ExpectCommit()

	tx, err := sqlxDB.Beginx()
	require.NoError(t, err)

	entry, err := repo.DequeueLongestWaitingTx(context.Background(), tx, scope, 5)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, 7, entry.MemberID)
}

func TestDequeueEmptyWaitlist(t *testing.T) {
	repo, sqlxDB, mock, close := setupMock(t)
	defer close()

	scope := tenant.Scope{TenantID: 1}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM waitlist_entries")).
		WithArgs(5, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "session_id", "member_id", "created_at"}))
	mock.ExpectRollback()

	tx, err := sqlxDB.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = repo.DequeueLongestWaitingTx(context.Background(), tx, scope, 5)
	assert.ErrorIs(t, err, ErrWaitlistEmpty)
}

func TestCompleteDueSessions(t *testing.T) {
	repo, _, mock, close := setupMock(t)
	defer close()

	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SET status = 'completed'")).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5).AddRow(6))

	ids, err := repo.CompleteDueSessions(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 6}, ids)
}
