package member

import (
	"context"
	"database/sql"
	"errors"

	"liyaqa/internal/tenant"

	"github.com/jmoiron/sqlx"
)

var ErrMemberNotFound = errors.New("member not found")

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, scope tenant.Scope, name, email, phone string) (*Member, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	query := `
		INSERT INTO members (tenant_id, name, email, phone, status)
		VALUES ($1, $2, $3, $4, 'active')
		RETURNING id, tenant_id, user_id, name, email, phone, status, created_at, updated_at
	`

	var m Member
	err := r.db.GetContext(ctx, &m, query, scope.TenantID, name, email, phone)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

func (r *repository) GetByID(ctx context.Context, scope tenant.Scope, id int) (*Member, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}

	query := `
		SELECT id, tenant_id, user_id, name, email, phone, status, created_at, updated_at
		FROM members
		WHERE id = $1 AND tenant_id = $2
	`

	var m Member
	err := r.db.GetContext(ctx, &m, query, id, scope.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}

	return &m, nil
}

func (r *repository) List(ctx context.Context, scope tenant.Scope, limit, offset int) ([]Member, error) {
	if !scope.Valid() {
		return nil, tenant.ErrMissingScope
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, tenant_id, user_id, name, email, phone, status, created_at, updated_at
		FROM members
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var members []Member
	err := r.db.SelectContext(ctx, &members, query, scope.TenantID, limit, offset)
	if err != nil {
		return nil, err
	}

	return members, nil
}

func (r *repository) SetStatus(ctx context.Context, scope tenant.Scope, id int, status Status) error {
	if !scope.Valid() {
		return tenant.ErrMissingScope
	}

	query := `
		UPDATE members
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND tenant_id = $3
	`

	result, err := r.db.ExecContext(ctx, query, status, id, scope.TenantID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrMemberNotFound
	}

	return nil
}

func (r *repository) LinkUser(ctx context.Context, scope tenant.Scope, id, userID int) error {
	if !scope.Valid() {
		return tenant.ErrMissingScope
	}

	query := `
		UPDATE members
		SET user_id = $1, updated_at = NOW()
		WHERE id = $2 AND tenant_id = $3
	`

	result, err := r.db.ExecContext(ctx, query, userID, id, scope.TenantID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrMemberNotFound
	}

	return nil
}
