package services

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/infrastructure/metrics"
)

// CleanupService runs the retention sweeps. Every sweep is idempotent: a
// second run at the same instant deletes nothing.
type CleanupService struct {
	executions    ports.PlaybookExecutionRepository
	notifications ports.NotificationRepository
	metrics       *metrics.Metrics
	logger        *logger.Logger
	now           Clock
}

type CleanupServiceConfig struct {
	Executions    ports.PlaybookExecutionRepository
	Notifications ports.NotificationRepository
	Metrics       *metrics.Metrics
	Logger        *logger.Logger
	Clock         Clock
}

func NewCleanupService(cfg CleanupServiceConfig) *CleanupService {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}
	return &CleanupService{
		executions:    cfg.Executions,
		notifications: cfg.Notifications,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		now:           clock,
	}
}

func (s *CleanupService) count(table string, n int64) {
	if s.metrics != nil && n > 0 {
		s.metrics.CleanupDeleted.WithLabelValues(table).Add(float64(n))
	}
}

// Retention windows are capped well below the point where the cutoff
// arithmetic overflows time.Duration.
const (
	MaxRetentionDays = 36500
	MaxStaleHours    = MaxRetentionDays * 24
)

// PurgeOlderThan deletes rows created strictly before now-days. A row
// exactly at the cutoff is kept. A failing tenant does not stop the others.
func (s *CleanupService) PurgeOlderThan(ctx context.Context, store ports.RetentionStore, days int, only *uint) (int64, error) {
	if days <= 0 || days > MaxRetentionDays {
		return 0, errors.Wrapf(ErrCleanupInvalidRetention, "%s: days=%d outside 1..%d", store.Table(), days, MaxRetentionDays)
	}
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)

	tenants, err := tenantTargets(only, func() ([]uint, error) { return store.TenantIDs(ctx) })
	if err != nil {
		return 0, err
	}

	var (
		total int64
		errs  error
	)
	for _, tenantID := range tenants {
		n, err := store.DeleteOlderThan(ctx, tenantID, cutoff)
		if err != nil {
			s.logger.Errorw("cleanup_tenant_failed", "table", store.Table(), "tenant_id", tenantID, "error", err)
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "tenant %d", tenantID))
			continue
		}
		total += n
	}
	s.count(store.Table(), total)
	s.logger.Infow("cleanup_ok",
		"table", store.Table(),
		"days", days,
		"cutoff", cutoff,
		"tenants", len(tenants),
		"deleted", total,
	)
	return total, errs
}

// TimeoutStaleExecutions moves pending or running executions started more
// than hours ago to timeout.
func (s *CleanupService) TimeoutStaleExecutions(ctx context.Context, hours int, only *uint) (int64, error) {
	if hours <= 0 || hours > MaxStaleHours {
		return 0, errors.Wrapf(ErrCleanupInvalidRetention, "playbook_executions: hours=%d outside 1..%d", hours, MaxStaleHours)
	}
	now := s.now()
	cutoff := now.Add(-time.Duration(hours) * time.Hour)

	tenants, err := tenantTargets(only, func() ([]uint, error) { return s.executions.TenantIDs(ctx) })
	if err != nil {
		return 0, err
	}

	var (
		total int64
		errs  error
	)
	for _, tenantID := range tenants {
		n, err := s.executions.MarkStale(ctx, tenantID, cutoff, now)
		if err != nil {
			s.logger.Errorw("cleanup_stale_executions_failed", "tenant_id", tenantID, "error", err)
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "tenant %d", tenantID))
			continue
		}
		total += n
	}
	s.count("playbook_executions", total)
	if total > 0 {
		s.logger.Warnw("cleanup_stale_executions_timed_out", "count", total, "cutoff", cutoff)
	}
	return total, errs
}

// DeleteExpiredNotifications sweeps tenant rows and, unless a tenant is
// pinned, the global rows too.
func (s *CleanupService) DeleteExpiredNotifications(ctx context.Context, only *uint) (int64, error) {
	now := s.now()

	tenants, err := tenantTargets(only, func() ([]uint, error) { return s.notifications.TenantIDs(ctx) })
	if err != nil {
		return 0, err
	}

	var (
		total int64
		errs  error
	)
	for _, tenantID := range tenants {
		n, err := s.notifications.DeleteExpired(ctx, uintPtr(tenantID), now)
		if err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "tenant %d", tenantID))
			continue
		}
		total += n
	}
	if only == nil {
		n, err := s.notifications.DeleteExpired(ctx, nil, now)
		if err != nil {
			errs = errors.CombineErrors(errs, errors.Wrap(err, "global notifications"))
		}
		total += n
	}
	s.count("system_notifications", total)
	s.logger.Infow("cleanup_notifications_ok", "deleted", total)
	return total, errs
}
