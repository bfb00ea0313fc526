package schedule

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"liyaqa/internal/tenant"
)

type Repository interface {
	CreateClass(ctx context.Context, scope tenant.Scope, class *GymClass) error
	GetClass(ctx context.Context, scope tenant.Scope, id int) (*GymClass, error)
	ListClasses(ctx context.Context, scope tenant.Scope) ([]GymClass, error)

	CreateSession(ctx context.Context, scope tenant.Scope, session *ClassSession) error
	GetSession(ctx context.Context, scope tenant.Scope, id int) (*ClassSession, error)
	GetSessionDetail(ctx context.Context, scope tenant.Scope, id int) (*SessionDetail, error)
	ListUpcomingSessions(ctx context.Context, scope tenant.Scope, from time.Time) ([]SessionDetail, error)
	CancelSession(ctx context.Context, scope tenant.Scope, id int) error
	CompleteDueSessions(ctx context.Context, now time.Time) ([]int, error)

	ReserveSeatTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, sessionID int) error
	ReleaseSeatTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, sessionID int) error

	EnqueueWaitlist(ctx context.Context, scope tenant.Scope, sessionID, memberID, maxSize int) (*WaitlistEntry, error)
	DequeueLongestWaitingTx(ctx context.Context, tx *sqlx.Tx, scope tenant.Scope, sessionID int) (*WaitlistEntry, error)
	RemoveFromWaitlist(ctx context.Context, scope tenant.Scope, sessionID, memberID int) error
	WaitlistPosition(ctx context.Context, scope tenant.Scope, sessionID, memberID int) (int, error)
}
