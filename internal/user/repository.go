package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var ErrUserNotFound = errors.New("user not found")

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, tenantID int, name, email, passwordHash, role string) (*User, error) {
	var user User
	err := r.db.GetContext(ctx, &user, `
		INSERT INTO users (tenant_id, name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *`,
		tenantID, name, email, passwordHash, role)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}

func (r *repository) FindByEmail(ctx context.Context, tenantID int, email string) (*User, error) {
	var user User
	err := r.db.GetContext(ctx, &user,
		`SELECT * FROM users WHERE tenant_id = $1 AND email = $2`, tenantID, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

func (r *repository) FindByID(ctx context.Context, id int) (*User, error) {
	var user User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

func (r *repository) EmailExists(ctx context.Context, tenantID int, email string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM users WHERE tenant_id = $1 AND email = $2)`, tenantID, email)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

func (r *repository) SetMember(ctx context.Context, id, memberID int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET member_id = $2 WHERE id = $1`, id, memberID)
	if err != nil {
		return fmt.Errorf("failed to link member: %w", err)
	}
	return nil
}
