package db

import (
	"context"

	"gorm.io/gorm"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
)

type auditLogRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditLogRepository(db *gorm.DB, log *logger.Logger) ports.AuditLogRepository {
	return &auditLogRepository{db: db, log: log}
}

func (r *auditLogRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	if err := requireTenant(entry.TenantID); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		r.log.Errorw("audit_repo_create_failed", "action", entry.Action, "error", err)
		return translateWriteErr(err, "audit log")
	}
	return nil
}

func (r *auditLogRepository) List(ctx context.Context, tenantID uint, page ports.PageRequest) ([]domain.AuditLog, int64, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, 0, err
	}
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&domain.AuditLog{}).Scopes(tenantScope(tenantID))
	}
	var (
		items []domain.AuditLog
		total int64
	)
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, translateReadErr(err, "audit logs")
	}
	if err := base().Scopes(paginate(page)).Order("created_at DESC").Order("id DESC").Find(&items).Error; err != nil {
		r.log.Errorw("audit_repo_list_failed", "tenant_id", tenantID, "error", err)
		return nil, 0, translateReadErr(err, "audit logs")
	}
	return items, total, nil
}
