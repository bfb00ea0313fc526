package subscription

import (
	"context"
	"time"

	"liyaqa/internal/tenant"
)

type Repository interface {
	Create(ctx context.Context, scope tenant.Scope, sub *Subscription) error
	GetByID(ctx context.Context, scope tenant.Scope, id int) (*Subscription, error)
	GetActiveForMember(ctx context.Context, scope tenant.Scope, memberID int) (*Subscription, error)
	ListForMember(ctx context.Context, scope tenant.Scope, memberID int) ([]Subscription, error)
	Activate(ctx context.Context, scope tenant.Scope, id int) error
	Freeze(ctx context.Context, scope tenant.Scope, id, days int) (*Subscription, error)
	Unfreeze(ctx context.Context, scope tenant.Scope, id int) (*Subscription, error)
	Renew(ctx context.Context, scope tenant.Scope, id, durationDays int, classesIncluded *int) (*Subscription, error)
	Cancel(ctx context.Context, scope tenant.Scope, id int, reason string) error
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}
