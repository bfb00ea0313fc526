package user

import "context"

type Repository interface {
	Create(ctx context.Context, tenantID int, name, email, passwordHash, role string) (*User, error)
	FindByEmail(ctx context.Context, tenantID int, email string) (*User, error)
	FindByID(ctx context.Context, id int) (*User, error)
	EmailExists(ctx context.Context, tenantID int, email string) (bool, error)
	SetMember(ctx context.Context, id, memberID int) error
}
