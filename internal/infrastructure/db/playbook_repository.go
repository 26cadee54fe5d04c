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

var activeStatuses = []domain.ExecutionStatus{domain.ExecutionStatusPending, domain.ExecutionStatusRunning}

type playbookExecutionRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPlaybookExecutionRepository(db *gorm.DB, log *logger.Logger) ports.PlaybookExecutionRepository {
	return &playbookExecutionRepository{db: db, log: log}
}

func (r *playbookExecutionRepository) Create(ctx context.Context, exec *domain.PlaybookExecution) error {
	if err := requireTenant(exec.TenantID); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(exec).Error; err != nil {
		r.log.Errorw("playbook_repo_create_failed", "execution_id", exec.ExecutionID, "error", err)
		return translateWriteErr(err, "playbook execution")
	}
	r.log.Infow("playbook_repo_create_ok", "id", exec.ID, "execution_id", exec.ExecutionID)
	return nil
}

func (r *playbookExecutionRepository) GetByExecutionID(ctx context.Context, tenantID uint, executionID string) (*domain.PlaybookExecution, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	var exec domain.PlaybookExecution
	if err := r.db.WithContext(ctx).Scopes(tenantScope(tenantID)).Where("execution_id = ?", executionID).First(&exec).Error; err != nil {
		return nil, translateReadErr(err, "playbook execution")
	}
	return &exec, nil
}

func (r *playbookExecutionRepository) List(ctx context.Context, tenantID uint, page ports.PageRequest) ([]domain.PlaybookExecution, int64, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, 0, err
	}
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&domain.PlaybookExecution{}).Scopes(tenantScope(tenantID))
	}
	var (
		items []domain.PlaybookExecution
		total int64
	)
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, translateReadErr(err, "playbook executions")
	}
	if err := base().Scopes(paginate(page)).Omit("output").Order("created_at DESC").Find(&items).Error; err != nil {
		r.log.Errorw("playbook_repo_list_failed", "tenant_id", tenantID, "error", err)
		return nil, 0, translateReadErr(err, "playbook executions")
	}
	return items, total, nil
}

// IncrementProgress is a single UPDATE ... SET col = col + ? so concurrent
// callbacks never read-modify-write.
func (r *playbookExecutionRepository) IncrementProgress(ctx context.Context, tenantID uint, executionID string, delta domain.ProgressDelta) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if delta.IsZero() {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&domain.PlaybookExecution{}).
		Scopes(tenantScope(tenantID)).
		Where("execution_id = ? AND status IN ?", executionID, activeStatuses).
		Updates(map[string]interface{}{
			"completed_tasks": gorm.Expr("completed_tasks + ?", delta.Completed),
			"failed_tasks":    gorm.Expr("failed_tasks + ?", delta.Failed),
			"skipped_tasks":   gorm.Expr("skipped_tasks + ?", delta.Skipped),
			"changed_tasks":   gorm.Expr("changed_tasks + ?", delta.Changed),
		})
	if res.Error != nil {
		r.log.Errorw("playbook_repo_increment_failed", "execution_id", executionID, "error", res.Error)
		return translateWriteErr(res.Error, "playbook execution")
	}
	if res.RowsAffected == 0 {
		exec, err := r.GetByExecutionID(ctx, tenantID, executionID)
		if err != nil {
			return err
		}
		return errors.Wrapf(domain.ErrInvalidStatus, "execution %s is %s", executionID, exec.Status)
	}
	return nil
}

func (r *playbookExecutionRepository) Transition(ctx context.Context, tenantID uint, executionID string, from []domain.ExecutionStatus, to domain.ExecutionStatus, fields map[string]interface{}) (bool, error) {
	if err := requireTenant(tenantID); err != nil {
		return false, err
	}
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&domain.PlaybookExecution{}).
		Scopes(tenantScope(tenantID)).
		Where("execution_id = ? AND status IN ?", executionID, from).
		Updates(updates)
	if res.Error != nil {
		r.log.Errorw("playbook_repo_transition_failed", "execution_id", executionID, "to", to, "error", res.Error)
		return false, translateWriteErr(res.Error, "playbook execution")
	}
	return res.RowsAffected == 1, nil
}

func (r *playbookExecutionRepository) TenantIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&domain.PlaybookExecution{}).
		Where("status IN ?", activeStatuses).Distinct().Order("tenant_id").Pluck("tenant_id", &ids).Error
	if err != nil {
		r.log.Errorw("playbook_repo_tenants_failed", "error", err)
		return nil, translateReadErr(err, "playbook executions")
	}
	return ids, nil
}

// MarkStale times out active executions that started (or, never started,
// were created) before the threshold.
func (r *playbookExecutionRepository) MarkStale(ctx context.Context, tenantID uint, startedBefore, now time.Time) (int64, error) {
	if err := requireTenant(tenantID); err != nil {
		return 0, err
	}
	res := r.db.WithContext(ctx).Model(&domain.PlaybookExecution{}).
		Scopes(tenantScope(tenantID)).
		Where("status IN ?", activeStatuses).
		Where("(started_at < ? OR (started_at IS NULL AND created_at < ?))", startedBefore, startedBefore).
		Updates(map[string]interface{}{
			"status":        domain.ExecutionStatusTimeout,
			"finished_at":   now,
			"error_message": "execution exceeded the staleness threshold",
		})
	if res.Error != nil {
		r.log.Errorw("playbook_repo_mark_stale_failed", "tenant_id", tenantID, "error", res.Error)
		return 0, translateWriteErr(res.Error, "playbook executions")
	}
	return res.RowsAffected, nil
}
