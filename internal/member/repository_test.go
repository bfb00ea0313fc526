package member

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

func setupMock(t *testing.T) (Repository, sqlmock.Sqlmock) {
	mockDB, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewRepository(sqlx.NewDb(mockDB, "sqlmock")), dbMock
}

var memberColumns = []string{"id", "tenant_id", "user_id", "name", "email", "phone", "status", "created_at", "updated_at"}

func TestCreateMemberScopedToTenant(t *testing.T) {
	repo, dbMock := setupMock(t)
	now := time.Now()

	dbMock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO members`)).
		WithArgs(3, "Sara", "sara@example.com", "").
		WillReturnRows(sqlmock.NewRows(memberColumns).
			AddRow(7, 3, nil, "Sara", "sara@example.com", "", "active", now, now))

	m, err := repo.Create(context.Background(), tenant.Scope{TenantID: 3}, "Sara", "sara@example.com", "")
	require.NoError(t, err)

	assert.Equal(t, 7, m.ID)
	assert.Equal(t, 3, m.TenantID)
	assert.True(t, m.IsActive())
}

func TestGetByIDWrongTenantFailsClosed(t *testing.T) {
	repo, dbMock := setupMock(t)

	dbMock.ExpectQuery(regexp.QuoteMeta(`FROM members`)).
		WithArgs(7, 2).
		WillReturnRows(sqlmock.NewRows(memberColumns))

	_, err := repo.GetByID(context.Background(), tenant.Scope{TenantID: 2}, 7)
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestGetByIDRequiresScope(t *testing.T) {
	repo, _ := setupMock(t)

	_, err := repo.GetByID(context.Background(), tenant.Scope{}, 7)
	assert.ErrorIs(t, err, tenant.ErrMissingScope)
}

func TestSetStatusMissingMember(t *testing.T) {
	repo, dbMock := setupMock(t)

	dbMock.ExpectExec(regexp.QuoteMeta(`UPDATE members`)).
		WithArgs(StatusSuspended, 7, 3).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetStatus(context.Background(), tenant.Scope{TenantID: 3}, 7, StatusSuspended)
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestLinkUser(t *testing.T) {
	repo, dbMock := setupMock(t)

	dbMock.ExpectExec(regexp.QuoteMeta(`SET user_id = $1`)).
		WithArgs(1, 7, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.LinkUser(context.Background(), tenant.Scope{TenantID: 3}, 7, 1)
	assert.NoError(t, err)
}
