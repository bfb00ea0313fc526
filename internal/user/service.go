package user

import (
	"context"
	"errors"

	"liyaqa/internal/auth"
	"liyaqa/internal/logger"
	"liyaqa/internal/member"
	"liyaqa/internal/tenant"
)

var (
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*User, string, string, error)
	Login(ctx context.Context, req LoginRequest) (*User, string, string, error)
	GetByID(ctx context.Context, userID int) (*User, error)
	RefreshToken(ctx context.Context, refreshToken string) (string, *User, error)
}

type service struct {
	repo      Repository
	members   member.Repository
	jwtSecret string
}

func NewService(repo Repository, members member.Repository, jwtSecret string) Service {
	return &service{
		repo:      repo,
		members:   members,
		jwtSecret: jwtSecret,
	}
}

// Register creates a member account: the login record plus the member
// profile the booking side operates on, linked both ways.
func (s *service) Register(ctx context.Context, req RegisterRequest) (*User, string, string, error) {
	exists, err := s.repo.EmailExists(ctx, req.TenantID, req.Email)
	if err != nil {
		return nil, "", "", err
	}
	if exists {
		return nil, "", "", ErrEmailExists
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, "", "", err
	}

	user, err := s.repo.Create(ctx, req.TenantID, req.Name, req.Email, passwordHash, RoleMember)
	if err != nil {
		return nil, "", "", err
	}

	scope := tenant.Scope{TenantID: req.TenantID}
	m, err := s.members.Create(ctx, scope, req.Name, req.Email, req.Phone)
	if err != nil {
		return nil, "", "", err
	}
	if err := s.members.LinkUser(ctx, scope, m.ID, user.ID); err != nil {
		return nil, "", "", err
	}
	if err := s.repo.SetMember(ctx, user.ID, m.ID); err != nil {
		return nil, "", "", err
	}
	user.MemberID = &m.ID

	accessToken, refreshToken, err := auth.GenerateTokens(s.subject(user), s.jwtSecret, s.jwtSecret)
	if err != nil {
		return nil, "", "", err
	}

	logger.Info("user registered", "user_id", user.ID, "tenant_id", user.TenantID, "member_id", m.ID)
	return user, accessToken, refreshToken, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*User, string, string, error) {
	user, err := s.repo.FindByEmail(ctx, req.TenantID, req.Email)
	if err != nil {
		return nil, "", "", ErrInvalidCredentials
	}

	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		return nil, "", "", ErrInvalidCredentials
	}

	accessToken, refreshToken, err := auth.GenerateTokens(s.subject(user), s.jwtSecret, s.jwtSecret)
	if err != nil {
		return nil, "", "", err
	}

	return user, accessToken, refreshToken, nil
}

func (s *service) GetByID(ctx context.Context, userID int) (*User, error) {
	return s.repo.FindByID(ctx, userID)
}

func (s *service) RefreshToken(ctx context.Context, refreshToken string) (string, *User, error) {
	_, claims, err := auth.RefreshAccessToken(refreshToken, s.jwtSecret, s.jwtSecret)
	if err != nil {
		return "", nil, err
	}

	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		return "", nil, ErrUserNotFound
	}

	newAccessToken, err := auth.GenerateAccessToken(s.subject(user), s.jwtSecret)
	if err != nil {
		return "", nil, err
	}

	return newAccessToken, user, nil
}

func (s *service) subject(u *User) auth.TokenSubject {
	sub := auth.TokenSubject{
		UserID:   u.ID,
		TenantID: u.TenantID,
		Email:    u.Email,
		Role:     u.Role,
	}
	if u.MemberID != nil {
		sub.MemberID = *u.MemberID
	}
	return sub
}
