package db

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
)

type hostRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHostRepository(db *gorm.DB, log *logger.Logger) ports.HostRepository {
	return &hostRepository{db: db, log: log}
}

func (r *hostRepository) Create(ctx context.Context, host *domain.Host) error {
	if err := requireTenant(host.TenantID); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(host).Error; err != nil {
		r.log.Errorw("host_repo_create_failed", "tenant_id", host.TenantID, "name", host.Name, "error", err)
		return translateWriteErr(err, "host "+host.Name)
	}
	r.log.Infow("host_repo_create_ok", "id", host.ID, "tenant_id", host.TenantID)
	return nil
}

func (r *hostRepository) GetByID(ctx context.Context, tenantID, id uint) (*domain.Host, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	var host domain.Host
	if err := r.db.WithContext(ctx).Scopes(tenantScope(tenantID)).First(&host, id).Error; err != nil {
		return nil, translateReadErr(err, "host")
	}
	return &host, nil
}

func (r *hostRepository) List(ctx context.Context, tenantID uint, page ports.PageRequest) ([]domain.Host, int64, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, 0, err
	}
	var (
		hosts []domain.Host
		total int64
	)
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&domain.Host{}).Scopes(tenantScope(tenantID))
	}
	if err := base().Count(&total).Error; err != nil {
		r.log.Errorw("host_repo_count_failed", "tenant_id", tenantID, "error", err)
		return nil, 0, translateReadErr(err, "hosts")
	}
	if err := base().Scopes(paginate(page)).Order("name").Find(&hosts).Error; err != nil {
		r.log.Errorw("host_repo_list_failed", "tenant_id", tenantID, "error", err)
		return nil, 0, translateReadErr(err, "hosts")
	}
	return hosts, total, nil
}

func (r *hostRepository) UpdateStatus(ctx context.Context, tenantID, id uint, status domain.HostStatus, seenAt *time.Time) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	updates := map[string]interface{}{"status": status}
	if seenAt != nil {
		updates["last_seen_at"] = *seenAt
	}
	res := r.db.WithContext(ctx).Model(&domain.Host{}).Scopes(tenantScope(tenantID)).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		r.log.Errorw("host_repo_update_status_failed", "id", id, "status", status, "error", res.Error)
		return translateWriteErr(res.Error, "host")
	}
	if res.RowsAffected == 0 {
		return translateReadErr(gorm.ErrRecordNotFound, "host")
	}
	return nil
}

func (r *hostRepository) Delete(ctx context.Context, tenantID, id uint) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Scopes(tenantScope(tenantID)).Delete(&domain.Host{}, id)
	if res.Error != nil {
		r.log.Errorw("host_repo_delete_failed", "id", id, "error", res.Error)
		return translateWriteErr(res.Error, "host")
	}
	if res.RowsAffected == 0 {
		return translateReadErr(gorm.ErrRecordNotFound, "host")
	}
	r.log.Infow("host_repo_delete_ok", "id", id, "tenant_id", tenantID)
	return nil
}
