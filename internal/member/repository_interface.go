package member

import (
	"context"

	"liyaqa/internal/tenant"
)

type Repository interface {
	Create(ctx context.Context, scope tenant.Scope, name, email, phone string) (*Member, error)
	GetByID(ctx context.Context, scope tenant.Scope, id int) (*Member, error)
	List(ctx context.Context, scope tenant.Scope, limit, offset int) ([]Member, error)
	SetStatus(ctx context.Context, scope tenant.Scope, id int, status Status) error
	LinkUser(ctx context.Context, scope tenant.Scope, id, userID int) error
}
