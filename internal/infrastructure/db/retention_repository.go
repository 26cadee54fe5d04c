package db

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
)

type retentionRepository[T any] struct {
	db    *gorm.DB
	log   *logger.Logger
	table string
}

func NewNetworkProbeResultRetention(db *gorm.DB, log *logger.Logger) ports.RetentionStore {
	return &retentionRepository[domain.NetworkProbeResult]{db: db, log: log, table: "network_probe_results"}
}

func NewHostProbeResultRetention(db *gorm.DB, log *logger.Logger) ports.RetentionStore {
	return &retentionRepository[domain.HostProbeResult]{db: db, log: log, table: "host_probe_results"}
}

func NewAuditLogRetention(db *gorm.DB, log *logger.Logger) ports.RetentionStore {
	return &retentionRepository[domain.AuditLog]{db: db, log: log, table: "audit_logs"}
}

func (r *retentionRepository[T]) Table() string {
	return r.table
}

func (r *retentionRepository[T]) TenantIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(new(T)).Distinct().Order("tenant_id").Pluck("tenant_id", &ids).Error; err != nil {
		r.log.Errorw("retention_repo_tenants_failed", "table", r.table, "error", err)
		return nil, translateReadErr(err, r.table)
	}
	return ids, nil
}

// DeleteOlderThan removes rows created strictly before cutoff.
func (r *retentionRepository[T]) DeleteOlderThan(ctx context.Context, tenantID uint, cutoff time.Time) (int64, error) {
	if err := requireTenant(tenantID); err != nil {
		return 0, err
	}
	res := r.db.WithContext(ctx).Scopes(tenantScope(tenantID)).Where("created_at < ?", cutoff).Delete(new(T))
	if res.Error != nil {
		r.log.Errorw("retention_repo_delete_failed", "table", r.table, "tenant_id", tenantID, "error", res.Error)
		return 0, translateWriteErr(res.Error, r.table)
	}
	return res.RowsAffected, nil
}
