package db

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
)

type notificationRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNotificationRepository(db *gorm.DB, log *logger.Logger) ports.NotificationRepository {
	return &notificationRepository{db: db, log: log}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.SystemNotification) error {
	if n.TenantID != nil {
		if err := requireTenant(*n.TenantID); err != nil {
			return err
		}
	}
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		r.log.Errorw("notification_repo_create_failed", "title", n.Title, "error", err)
		return translateWriteErr(err, "notification")
	}
	return nil
}

// visibleTo matches the tenant's own rows and global rows.
func visibleTo(tenantID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(tenant_id = ? OR tenant_id IS NULL)", tenantID)
	}
}

func (r *notificationRepository) List(ctx context.Context, tenantID uint, filter ports.NotificationFilter, page ports.PageRequest) ([]domain.SystemNotification, int64, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, 0, err
	}
	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&domain.SystemNotification{}).Scopes(visibleTo(tenantID))
		if filter.UserID != nil {
			q = q.Where("(user_id = ? OR user_id IS NULL)", *filter.UserID)
		}
		if filter.UnreadOnly {
			q = q.Where("is_read = ?", false)
		}
		return q
	}

	var (
		items []domain.SystemNotification
		total int64
	)
	if err := base().Count(&total).Error; err != nil {
		r.log.Errorw("notification_repo_count_failed", "tenant_id", tenantID, "error", err)
		return nil, 0, translateReadErr(err, "notifications")
	}
	if err := base().Scopes(paginate(page)).Order("created_at DESC").Order("id DESC").Find(&items).Error; err != nil {
		r.log.Errorw("notification_repo_list_failed", "tenant_id", tenantID, "error", err)
		return nil, 0, translateReadErr(err, "notifications")
	}
	return items, total, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, tenantID, id uint, at time.Time) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(&domain.SystemNotification{}).
		Scopes(tenantScope(tenantID)).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_read": true, "read_at": at})
	if res.Error != nil {
		r.log.Errorw("notification_repo_mark_read_failed", "id", id, "error", res.Error)
		return translateWriteErr(res.Error, "notification")
	}
	if res.RowsAffected == 0 {
		return translateReadErr(gorm.ErrRecordNotFound, "notification")
	}
	return nil
}

func (r *notificationRepository) Delete(ctx context.Context, tenantID, id uint) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Scopes(tenantScope(tenantID)).Delete(&domain.SystemNotification{}, id)
	if res.Error != nil {
		r.log.Errorw("notification_repo_delete_failed", "id", id, "error", res.Error)
		return translateWriteErr(res.Error, "notification")
	}
	if res.RowsAffected == 0 {
		return translateReadErr(gorm.ErrRecordNotFound, "notification")
	}
	return nil
}

func (r *notificationRepository) TenantIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&domain.SystemNotification{}).
		Where("tenant_id IS NOT NULL").Distinct().Order("tenant_id").Pluck("tenant_id", &ids).Error
	if err != nil {
		r.log.Errorw("notification_repo_tenants_failed", "error", err)
		return nil, translateReadErr(err, "notifications")
	}
	return ids, nil
}

func (r *notificationRepository) DeleteExpired(ctx context.Context, tenantID *uint, now time.Time) (int64, error) {
	q := r.db.WithContext(ctx).Where("expires_at IS NOT NULL AND expires_at < ?", now)
	if tenantID != nil {
		if err := requireTenant(*tenantID); err != nil {
			return 0, err
		}
		q = q.Scopes(tenantScope(*tenantID))
	} else {
		q = q.Where("tenant_id IS NULL")
	}
	res := q.Delete(&domain.SystemNotification{})
	if res.Error != nil {
		r.log.Errorw("notification_repo_delete_expired_failed", "error", res.Error)
		return 0, translateWriteErr(res.Error, "notifications")
	}
	return res.RowsAffected, nil
}
