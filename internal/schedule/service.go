package schedule

import (
	"context"
	"errors"
	"time"

	"liyaqa/internal/logger"
	"liyaqa/internal/tenant"
)

var ErrInvalidSessionWindow = errors.New("session must end after it starts")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreateClass(ctx context.Context, scope tenant.Scope, req CreateClassRequest) (*GymClass, error) {
	class := &GymClass{
		TenantID:         scope.TenantID,
		Name:             req.Name,
		Description:      req.Description,
		PricingModel:     req.PricingModel,
		DropInPriceCents: req.DropInPriceCents,
		Currency:         req.Currency,
	}
	if err := s.repo.CreateClass(ctx, scope, class); err != nil {
		return nil, err
	}
	logger.Info("class created", "class_id", class.ID, "name", class.Name)
	return class, nil
}

func (s *Service) GetClass(ctx context.Context, scope tenant.Scope, id int) (*GymClass, error) {
	return s.repo.GetClass(ctx, scope, id)
}

func (s *Service) ListClasses(ctx context.Context, scope tenant.Scope) ([]GymClass, error) {
	return s.repo.ListClasses(ctx, scope)
}

func (s *Service) CreateSession(ctx context.Context, scope tenant.Scope, req CreateSessionRequest) (*ClassSession, error) {
	if !req.EndsAt.After(req.StartsAt) {
		return nil, ErrInvalidSessionWindow
	}
	if _, err := s.repo.GetClass(ctx, scope, req.ClassID); err != nil {
		return nil, err
	}

	session := &ClassSession{
		TenantID: scope.TenantID,
		ClassID:  req.ClassID,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
		Capacity: req.Capacity,
		Status:   SessionScheduled,
	}
	if err := s.repo.CreateSession(ctx, scope, session); err != nil {
		return nil, err
	}
	logger.Info("session created", "session_id", session.ID, "class_id", session.ClassID, "capacity", session.Capacity)
	return session, nil
}

func (s *Service) GetSessionDetail(ctx context.Context, scope tenant.Scope, id int) (*SessionDetail, error) {
	return s.repo.GetSessionDetail(ctx, scope, id)
}

func (s *Service) ListUpcomingSessions(ctx context.Context, scope tenant.Scope) ([]SessionDetail, error) {
	return s.repo.ListUpcomingSessions(ctx, scope, time.Now().UTC())
}

func (s *Service) CancelSession(ctx context.Context, scope tenant.Scope, id int) error {
	if err := s.repo.CancelSession(ctx, scope, id); err != nil {
		return err
	}
	logger.Info("session cancelled", "session_id", id)
	return nil
}
