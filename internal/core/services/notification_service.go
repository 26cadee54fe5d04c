package services

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
)

var ErrNotificationInvalidInput = domain.NewSentinel("notification: invalid input", domain.ErrDataIntegrity)

type notificationService struct {
	repo   ports.NotificationRepository
	logger *logger.Logger
	now    Clock
}

func NewNotificationService(repo ports.NotificationRepository, logger *logger.Logger, clock Clock) ports.NotificationService {
	if clock == nil {
		clock = SystemClock
	}
	return &notificationService{repo: repo, logger: logger, now: clock}
}

func (s *notificationService) Notify(ctx context.Context, input ports.NotifyInput) (*domain.SystemNotification, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, errors.Wrap(ErrNotificationInvalidInput, "title is required")
	}
	level := input.Level
	if level == "" {
		level = domain.NotificationLevelInfo
	}
	n := &domain.SystemNotification{
		TenantID:    input.TenantID,
		UserID:      input.UserID,
		Title:       input.Title,
		Message:     input.Message,
		Level:       level,
		RelatedType: input.RelatedType,
		RelatedID:   input.RelatedID,
	}
	if input.TTL > 0 {
		expires := s.now().Add(input.TTL)
		n.ExpiresAt = &expires
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	s.logger.Infow("notification_created", "id", n.ID, "level", n.Level, "related_type", n.RelatedType)
	return n, nil
}

func (s *notificationService) ListNotifications(ctx context.Context, tenantID uint, filter ports.NotificationFilter, page ports.PageRequest) ([]domain.SystemNotification, int64, error) {
	return s.repo.List(ctx, tenantID, filter, page)
}

func (s *notificationService) MarkRead(ctx context.Context, tenantID, id uint) error {
	return s.repo.MarkRead(ctx, tenantID, id, s.now())
}

func (s *notificationService) DeleteNotification(ctx context.Context, tenantID, id uint) error {
	return s.repo.Delete(ctx, tenantID, id)
}
