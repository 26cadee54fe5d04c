package db

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
)

type networkProbeRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNetworkProbeRepository(db *gorm.DB, log *logger.Logger) ports.NetworkProbeRepository {
	return &networkProbeRepository{db: db, log: log}
}

func (r *networkProbeRepository) Create(ctx context.Context, probe *domain.NetworkProbe) error {
	if err := requireTenant(probe.TenantID); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(probe).Error; err != nil {
		r.log.Errorw("network_probe_repo_create_failed", "name", probe.Name, "error", err)
		return translateWriteErr(err, "network probe")
	}
	return nil
}

func (r *networkProbeRepository) TenantIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&domain.NetworkProbe{}).Where("enabled = ?", true).Distinct().Order("tenant_id").Pluck("tenant_id", &ids).Error
	if err != nil {
		r.log.Errorw("network_probe_repo_tenants_failed", "error", err)
		return nil, translateReadErr(err, "network probes")
	}
	return ids, nil
}

func (r *networkProbeRepository) ListEnabled(ctx context.Context, tenantID uint) ([]domain.NetworkProbe, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	var probes []domain.NetworkProbe
	if err := r.db.WithContext(ctx).Scopes(tenantScope(tenantID)).Where("enabled = ?", true).Order("id").Find(&probes).Error; err != nil {
		r.log.Errorw("network_probe_repo_list_failed", "tenant_id", tenantID, "error", err)
		return nil, translateReadErr(err, "network probes")
	}
	return probes, nil
}

func (r *networkProbeRepository) MarkProbed(ctx context.Context, tenantID, id uint, at time.Time) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).Model(&domain.NetworkProbe{}).Scopes(tenantScope(tenantID)).Where("id = ?", id).Update("last_probed_at", at).Error
	if err != nil {
		return translateWriteErr(err, "network probe")
	}
	return nil
}

func (r *networkProbeRepository) CreateResult(ctx context.Context, result *domain.NetworkProbeResult) error {
	if err := requireTenant(result.TenantID); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(result).Error; err != nil {
		r.log.Errorw("network_probe_repo_result_failed", "probe_id", result.ProbeID, "error", err)
		return translateWriteErr(err, "network probe result")
	}
	return nil
}

type hostProbeRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHostProbeRepository(db *gorm.DB, log *logger.Logger) ports.HostProbeRepository {
	return &hostProbeRepository{db: db, log: log}
}

func (r *hostProbeRepository) Create(ctx context.Context, probe *domain.HostProbe) error {
	if err := requireTenant(probe.TenantID); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(probe).Error; err != nil {
		r.log.Errorw("host_probe_repo_create_failed", "host_id", probe.HostID, "error", err)
		return translateWriteErr(err, "host probe")
	}
	return nil
}

func (r *hostProbeRepository) TenantIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&domain.HostProbe{}).Where("enabled = ?", true).Distinct().Order("tenant_id").Pluck("tenant_id", &ids).Error
	if err != nil {
		r.log.Errorw("host_probe_repo_tenants_failed", "error", err)
		return nil, translateReadErr(err, "host probes")
	}
	return ids, nil
}

func (r *hostProbeRepository) ListEnabled(ctx context.Context, tenantID uint) ([]domain.HostProbe, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	var probes []domain.HostProbe
	if err := r.db.WithContext(ctx).Scopes(tenantScope(tenantID)).Where("enabled = ?", true).Order("id").Find(&probes).Error; err != nil {
		r.log.Errorw("host_probe_repo_list_failed", "tenant_id", tenantID, "error", err)
		return nil, translateReadErr(err, "host probes")
	}
	return probes, nil
}

func (r *hostProbeRepository) MarkProbed(ctx context.Context, tenantID, id uint, at time.Time) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).Model(&domain.HostProbe{}).Scopes(tenantScope(tenantID)).Where("id = ?", id).Update("last_probed_at", at).Error
	if err != nil {
		return translateWriteErr(err, "host probe")
	}
	return nil
}

func (r *hostProbeRepository) CreateResult(ctx context.Context, result *domain.HostProbeResult) error {
	if err := requireTenant(result.TenantID); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(result).Error; err != nil {
		r.log.Errorw("host_probe_repo_result_failed", "probe_id", result.ProbeID, "error", err)
		return translateWriteErr(err, "host probe result")
	}
	return nil
}
