package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/attendlab/gatesight-backend/internal/logger"
	"github.com/attendlab/gatesight-backend/internal/pkg/errors"
	"github.com/attendlab/gatesight-backend/internal/repos"
	"github.com/attendlab/gatesight-backend/internal/types"
)

type EventSessionService interface {
	Create(ctx context.Context, name string) (*types.EventSession, error)
	Get(ctx context.Context, id uuid.UUID) (*types.EventSession, error)
	ListActive(ctx context.Context) ([]*types.EventSession, error)
	// SetStatus activates or deactivates a session. Deactivation is what
	// stops background cycles; it does not delete any data.
	SetStatus(ctx context.Context, id uuid.UUID, status string) (*types.EventSession, error)
}

type eventSessionService struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.EventSessionRepo
}

func NewEventSessionService(db *gorm.DB, baseLog *logger.Logger, repo repos.EventSessionRepo) EventSessionService {
	return &eventSessionService{
		db:   db,
		log:  baseLog.With("service", "EventSessionService"),
		repo: repo,
	}
}

func (s *eventSessionService) Create(ctx context.Context, name string) (*types.EventSession, error) {
	if name == "" {
		return nil, fmt.Errorf("session name required: %w", errors.ErrInvalidArgument)
	}
	session, err := s.repo.Create(ctx, nil, &types.EventSession{
		Name:   name,
		Status: types.SessionStatusActive,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.log.Info("Session created", "session_id", session.ID, "name", name)
	return session, nil
}

func (s *eventSessionService) Get(ctx context.Context, id uuid.UUID) (*types.EventSession, error) {
	session, err := s.repo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("session %s: %w", id, errors.ErrNotFound)
	}
	return session, nil
}

func (s *eventSessionService) ListActive(ctx context.Context) ([]*types.EventSession, error) {
	return s.repo.ListActive(ctx, nil)
}

func (s *eventSessionService) SetStatus(ctx context.Context, id uuid.UUID, status string) (*types.EventSession, error) {
	if status != types.SessionStatusActive && status != types.SessionStatusInactive {
		return nil, fmt.Errorf("unknown session status %q: %w", status, errors.ErrInvalidArgument)
	}
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status == status {
		return session, nil
	}
	if err := s.repo.UpdateFields(ctx, nil, id, map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("update session status: %w", err)
	}
	s.log.Info("Session status changed", "session_id", id, "from", session.Status, "to", status)
	return s.Get(ctx, id)
}
