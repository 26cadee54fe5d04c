package services

import (
	"context"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
)

type auditService struct {
	repo   ports.AuditLogRepository
	logger *logger.Logger
}

func NewAuditService(repo ports.AuditLogRepository, logger *logger.Logger) ports.AuditService {
	return &auditService{repo: repo, logger: logger}
}

// Record never fails the caller; a lost audit row is logged instead.
func (s *auditService) Record(ctx context.Context, entry ports.AuditEntry) {
	row := &domain.AuditLog{
		TenantID:     entry.TenantID,
		UserID:       entry.UserID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Details:      entry.Details,
		IPAddress:    entry.IPAddress,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		s.logger.Errorw("audit_record_failed",
			"tenant_id", entry.TenantID,
			"action", entry.Action,
			"resource_type", entry.ResourceType,
			"error", err,
		)
	}
}

func (s *auditService) ListAuditLogs(ctx context.Context, tenantID uint, page ports.PageRequest) ([]domain.AuditLog, int64, error) {
	return s.repo.List(ctx, tenantID, page)
}
