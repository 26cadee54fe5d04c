package db

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
)

type backupPolicyRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBackupPolicyRepository(db *gorm.DB, log *logger.Logger) ports.BackupPolicyRepository {
	return &backupPolicyRepository{db: db, log: log}
}

func (r *backupPolicyRepository) Create(ctx context.Context, policy *domain.BackupPolicy) error {
	if err := requireTenant(policy.TenantID); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(policy).Error; err != nil {
		r.log.Errorw("backup_policy_repo_create_failed", "tenant_id", policy.TenantID, "error", err)
		return translateWriteErr(err, "backup policy")
	}
	return nil
}

func (r *backupPolicyRepository) GetByID(ctx context.Context, tenantID, id uint) (*domain.BackupPolicy, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	var policy domain.BackupPolicy
	if err := r.db.WithContext(ctx).Scopes(tenantScope(tenantID)).First(&policy, id).Error; err != nil {
		return nil, translateReadErr(err, "backup policy")
	}
	return &policy, nil
}

func (r *backupPolicyRepository) TenantIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&domain.BackupPolicy{}).Where("enabled = ?", true).Distinct().Order("tenant_id").Pluck("tenant_id", &ids).Error; err != nil {
		r.log.Errorw("backup_policy_repo_tenants_failed", "error", err)
		return nil, translateReadErr(err, "backup policies")
	}
	return ids, nil
}

func (r *backupPolicyRepository) ListEnabled(ctx context.Context, tenantID uint) ([]domain.BackupPolicy, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	var policies []domain.BackupPolicy
	if err := r.db.WithContext(ctx).Scopes(tenantScope(tenantID)).Where("enabled = ?", true).Order("id").Find(&policies).Error; err != nil {
		r.log.Errorw("backup_policy_repo_list_failed", "tenant_id", tenantID, "error", err)
		return nil, translateReadErr(err, "backup policies")
	}
	return policies, nil
}

// ClaimRun moves last_backup_at from previous to at only if no other
// worker moved it first. The caller that gets true owns this run.
func (r *backupPolicyRepository) ClaimRun(ctx context.Context, tenantID, id uint, previous *time.Time, at time.Time) (bool, error) {
	if err := requireTenant(tenantID); err != nil {
		return false, err
	}
	q := r.db.WithContext(ctx).Model(&domain.BackupPolicy{}).Scopes(tenantScope(tenantID)).Where("id = ?", id)
	if previous == nil {
		q = q.Where("last_backup_at IS NULL")
	} else {
		q = q.Where("last_backup_at = ?", *previous)
	}
	res := q.Update("last_backup_at", at)
	if res.Error != nil {
		r.log.Errorw("backup_policy_repo_claim_failed", "id", id, "error", res.Error)
		return false, translateWriteErr(res.Error, "backup policy")
	}
	return res.RowsAffected == 1, nil
}

type backupRecordRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBackupRecordRepository(db *gorm.DB, log *logger.Logger) ports.BackupRecordRepository {
	return &backupRecordRepository{db: db, log: log}
}

func (r *backupRecordRepository) Create(ctx context.Context, record *domain.BackupRecord) error {
	if err := requireTenant(record.TenantID); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		r.log.Errorw("backup_repo_create_failed", "tenant_id", record.TenantID, "filename", record.Filename, "error", err)
		return translateWriteErr(err, "backup record")
	}
	r.log.Infow("backup_repo_create_ok", "id", record.ID, "status", record.Status)
	return nil
}

func (r *backupRecordRepository) GetByID(ctx context.Context, tenantID, id uint) (*domain.BackupRecord, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	var record domain.BackupRecord
	if err := r.db.WithContext(ctx).Scopes(tenantScope(tenantID)).First(&record, id).Error; err != nil {
		return nil, translateReadErr(err, "backup record")
	}
	return &record, nil
}

func (r *backupRecordRepository) List(ctx context.Context, tenantID uint, filter ports.BackupFilter, page ports.PageRequest) ([]domain.BackupRecord, int64, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, 0, err
	}
	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&domain.BackupRecord{}).Scopes(tenantScope(tenantID))
		if filter.Category != "" {
			q = q.Where("category = ?", filter.Category)
		}
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		return q
	}

	var (
		records []domain.BackupRecord
		total   int64
	)
	if err := base().Count(&total).Error; err != nil {
		r.log.Errorw("backup_repo_count_failed", "tenant_id", tenantID, "error", err)
		return nil, 0, translateReadErr(err, "backup records")
	}
	if err := base().Scopes(paginate(page)).Order("created_at DESC").Find(&records).Error; err != nil {
		r.log.Errorw("backup_repo_list_failed", "tenant_id", tenantID, "error", err)
		return nil, 0, translateReadErr(err, "backup records")
	}
	return records, total, nil
}

func (r *backupRecordRepository) ListAutoSuccess(ctx context.Context, tenantID, policyID uint) ([]domain.BackupRecord, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	var records []domain.BackupRecord
	err := r.db.WithContext(ctx).Scopes(tenantScope(tenantID)).
		Where("policy_id = ? AND backup_type = ? AND status = ?", policyID, domain.BackupTypeAuto, domain.BackupStatusSuccess).
		Order("created_at DESC").Order("id DESC").
		Find(&records).Error
	if err != nil {
		r.log.Errorw("backup_repo_list_auto_failed", "tenant_id", tenantID, "policy_id", policyID, "error", err)
		return nil, translateReadErr(err, "backup records")
	}
	return records, nil
}

// SoftDelete only moves success -> deleted. The status guard sits in the
// UPDATE itself so two concurrent deletes cannot both succeed.
func (r *backupRecordRepository) SoftDelete(ctx context.Context, tenantID, id uint, at time.Time) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(&domain.BackupRecord{}).
		Scopes(tenantScope(tenantID)).
		Where("id = ? AND status = ?", id, domain.BackupStatusSuccess).
		Updates(map[string]interface{}{
			"status":     domain.BackupStatusDeleted,
			"deleted_at": at,
		})
	if res.Error != nil {
		r.log.Errorw("backup_repo_soft_delete_failed", "id", id, "error", res.Error)
		return translateWriteErr(res.Error, "backup record")
	}
	if res.RowsAffected == 1 {
		r.log.Infow("backup_repo_soft_delete_ok", "id", id, "tenant_id", tenantID)
		return nil
	}

	var current domain.BackupRecord
	err := r.db.WithContext(ctx).Unscoped().Scopes(tenantScope(tenantID)).Select("id", "status").First(&current, id).Error
	if err != nil {
		return translateReadErr(err, "backup record")
	}
	return errors.Wrapf(domain.ErrInvalidStatus, "backup %d is %s", id, current.Status)
}
