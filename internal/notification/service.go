package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/service-marketplace/internal/apperr"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Service is the read side of notifications: listing and flipping is_read.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]Notification, error) {
	if userID == uuid.Nil {
		return nil, apperr.ErrAuthRequired
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	items, err := s.repo.ListForUser(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) (*Notification, error) {
	if userID == uuid.Nil {
		return nil, apperr.ErrAuthRequired
	}
	n, err := s.repo.MarkRead(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	return n, nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, apperr.ErrAuthRequired
	}
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return n, nil
}
