package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared", logger.NewNop())
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, RunMigrations(gdb, logger.NewNop()))
	return gdb
}

func TestMigrations_UpDown(t *testing.T) {
	gdb := newTestDB(t)

	rev, err := CurrentRevision(gdb)
	require.NoError(t, err)
	assert.Equal(t, "0006_retention_indexes", rev)
	assert.True(t, gdb.Migrator().HasTable(&domain.PlaybookExecution{}))

	// re-running is a no-op
	require.NoError(t, RunMigrations(gdb, logger.NewNop()))

	require.NoError(t, Rollback(gdb, 2, logger.NewNop()))
	rev, err = CurrentRevision(gdb)
	require.NoError(t, err)
	assert.Equal(t, "0004_playbook_executions", rev)
	assert.False(t, gdb.Migrator().HasTable(&domain.NetworkProbe{}))

	require.NoError(t, Rollback(gdb, 10, logger.NewNop()))
	rev, err = CurrentRevision(gdb)
	require.NoError(t, err)
	assert.Empty(t, rev)
	assert.False(t, gdb.Migrator().HasTable(&domain.Host{}))

	require.NoError(t, RunMigrations(gdb, logger.NewNop()))
	assert.True(t, gdb.Migrator().HasTable(&domain.NetworkProbe{}))
}

func TestOrderedMigrations_RejectsBrokenChains(t *testing.T) {
	noop := func(*gorm.DB) error { return nil }

	_, err := orderedMigrations([]Migration{
		{Revision: "a", Up: noop, Down: noop},
		{Revision: "b", DownRevision: "a", Up: noop, Down: noop},
		{Revision: "c", DownRevision: "a", Up: noop, Down: noop},
	})
	assert.Error(t, err)

	_, err = orderedMigrations([]Migration{
		{Revision: "a", Up: noop, Down: noop},
		{Revision: "c", DownRevision: "b", Up: noop, Down: noop},
	})
	assert.Error(t, err)

	ordered, err := orderedMigrations([]Migration{
		{Revision: "b", DownRevision: "a", Up: noop, Down: noop},
		{Revision: "a", Up: noop, Down: noop},
	})
	require.NoError(t, err)
	assert.Equal(t, "a", ordered[0].Revision)
	assert.Equal(t, "b", ordered[1].Revision)
}

func TestRetention_CutoffIsExclusive(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-30 * 24 * time.Hour)

	rows := []domain.NetworkProbeResult{
		{TenantID: 1, ProbeID: 1, CreatedAt: cutoff.Add(-time.Second)},
		{TenantID: 1, ProbeID: 1, CreatedAt: cutoff},
		{TenantID: 1, ProbeID: 1, CreatedAt: now.Add(-29 * 24 * time.Hour)},
		{TenantID: 2, ProbeID: 2, CreatedAt: cutoff.Add(-time.Hour)},
	}
	require.NoError(t, gdb.Create(&rows).Error)

	store := NewNetworkProbeResultRetention(gdb, logger.NewNop())
	tenants, err := store.TenantIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2}, tenants)

	n, err := store.DeleteOlderThan(ctx, 1, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var left int64
	gdb.Model(&domain.NetworkProbeResult{}).Where("tenant_id = ?", 1).Count(&left)
	assert.EqualValues(t, 2, left)

	// tenant 2 is untouched by a tenant 1 sweep
	gdb.Model(&domain.NetworkProbeResult{}).Where("tenant_id = ?", 2).Count(&left)
	assert.EqualValues(t, 1, left)

	_, err = store.DeleteOlderThan(ctx, 0, cutoff)
	assert.True(t, errors.Is(err, domain.ErrTenantMissing))
}

func TestAuditRetention_Idempotent(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	repo := NewAuditLogRepository(gdb, logger.NewNop())
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &domain.AuditLog{
			TenantID:  5,
			Action:    domain.AuditActionTaskRun,
			CreatedAt: now.Add(-time.Duration(200+i) * 24 * time.Hour),
		}))
	}
	require.NoError(t, repo.Create(ctx, &domain.AuditLog{TenantID: 5, Action: domain.AuditActionTaskRun, CreatedAt: now}))

	store := NewAuditLogRetention(gdb, logger.NewNop())
	cutoff := now.Add(-180 * 24 * time.Hour)

	n, err := store.DeleteOlderThan(ctx, 5, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = store.DeleteOlderThan(ctx, 5, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	items, total, err := repo.List(ctx, 5, ports.PageRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, items, 1)
}

func TestConnectionRepository_TenantIsolation(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	repo := NewRedisConnectionRepository(gdb, logger.NewNop())

	require.NoError(t, repo.Create(ctx, &domain.RedisConnection{TenantID: 1, Name: "cache", Host: "10.0.0.1", Port: 6379}))
	require.NoError(t, repo.Create(ctx, &domain.RedisConnection{TenantID: 2, Name: "cache", Host: "10.0.0.2", Port: 6379}))

	err := repo.Create(ctx, &domain.RedisConnection{TenantID: 1, Name: "cache", Host: "10.0.0.3", Port: 6379})
	assert.True(t, errors.Is(err, domain.ErrDuplicateName))
	assert.Equal(t, "data_integrity", domain.Kind(err))

	c1, err := repo.GetByName(ctx, 1, "cache")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", c1.Host)

	c2, err := repo.GetByName(ctx, 2, "cache")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", c2.Host)

	_, err = repo.GetByName(ctx, 3, "cache")
	assert.True(t, domain.IsKind(err, domain.ErrNotFound))

	_, err = repo.GetByID(ctx, 2, c1.ID)
	assert.True(t, domain.IsKind(err, domain.ErrNotFound))

	err = repo.Delete(ctx, 2, c1.ID)
	assert.True(t, domain.IsKind(err, domain.ErrNotFound))
}

func TestPlaybookRepository_ConcurrentIncrements(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	repo := NewPlaybookExecutionRepository(gdb, logger.NewNop())

	exec := &domain.PlaybookExecution{
		TenantID:    1,
		ExecutionID: uuid.NewString(),
		Playbook:    "site.yml",
		Status:      domain.ExecutionStatusRunning,
	}
	require.NoError(t, repo.Create(ctx, exec))

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.IncrementProgress(ctx, 1, exec.ExecutionID, domain.ProgressDelta{Completed: 1, Changed: 1}))
			assert.NoError(t, repo.IncrementProgress(ctx, 1, exec.ExecutionID, domain.ProgressDelta{Failed: 1}))
		}()
	}
	wg.Wait()

	got, err := repo.GetByExecutionID(ctx, 1, exec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, workers, got.CompletedTasks)
	assert.Equal(t, workers, got.ChangedTasks)
	assert.Equal(t, workers, got.FailedTasks)
	assert.Equal(t, 0, got.SkippedTasks)
}

func TestPlaybookRepository_TransitionAndStale(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	repo := NewPlaybookExecutionRepository(gdb, logger.NewNop())
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	old := now.Add(-8 * time.Hour)
	recent := now.Add(-time.Hour)
	stale := &domain.PlaybookExecution{TenantID: 1, ExecutionID: "stale", Playbook: "a.yml", Status: domain.ExecutionStatusRunning, StartedAt: &old}
	fresh := &domain.PlaybookExecution{TenantID: 1, ExecutionID: "fresh", Playbook: "a.yml", Status: domain.ExecutionStatusRunning, StartedAt: &recent}
	done := &domain.PlaybookExecution{TenantID: 1, ExecutionID: "done", Playbook: "a.yml", Status: domain.ExecutionStatusSuccess, StartedAt: &old}
	for _, e := range []*domain.PlaybookExecution{stale, fresh, done} {
		require.NoError(t, repo.Create(ctx, e))
	}

	n, err := repo.MarkStale(ctx, 1, now.Add(-6*time.Hour), now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := repo.GetByExecutionID(ctx, 1, "stale")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusTimeout, got.Status)
	require.NotNil(t, got.FinishedAt)

	err = repo.IncrementProgress(ctx, 1, "done", domain.ProgressDelta{Completed: 1})
	assert.True(t, errors.Is(err, domain.ErrInvalidStatus))

	moved, err := repo.Transition(ctx, 1, "fresh", []domain.ExecutionStatus{domain.ExecutionStatusPending}, domain.ExecutionStatusRunning, nil)
	require.NoError(t, err)
	assert.False(t, moved)

	moved, err = repo.Transition(ctx, 1, "fresh", activeStatuses, domain.ExecutionStatusSuccess, map[string]interface{}{"finished_at": now})
	require.NoError(t, err)
	assert.True(t, moved)
}

func TestBackupRecord_SoftDeleteOnlyFromSuccess(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	repo := NewBackupRecordRepository(gdb, logger.NewNop())
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	ok := &domain.BackupRecord{TenantID: 1, Filename: "a.sql", Filepath: "/b/a.sql", Category: domain.BackupCategoryDatabase, BackupType: domain.BackupTypeManual, Status: domain.BackupStatusSuccess}
	failed := &domain.BackupRecord{TenantID: 1, Filename: "b.sql", Filepath: "/b/b.sql", Category: domain.BackupCategoryDatabase, BackupType: domain.BackupTypeManual, Status: domain.BackupStatusFailed}
	require.NoError(t, repo.Create(ctx, ok))
	require.NoError(t, repo.Create(ctx, failed))

	require.NoError(t, repo.SoftDelete(ctx, 1, ok.ID, now))

	err := repo.SoftDelete(ctx, 1, ok.ID, now)
	assert.True(t, errors.Is(err, domain.ErrInvalidStatus))

	err = repo.SoftDelete(ctx, 1, failed.ID, now)
	assert.True(t, errors.Is(err, domain.ErrInvalidStatus))

	err = repo.SoftDelete(ctx, 2, failed.ID, now)
	assert.True(t, domain.IsKind(err, domain.ErrNotFound))

	items, total, err := repo.List(ctx, 1, ports.BackupFilter{}, ports.PageRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, failed.ID, items[0].ID)

	var deleted domain.BackupRecord
	require.NoError(t, gdb.Unscoped().First(&deleted, ok.ID).Error)
	assert.Equal(t, domain.BackupStatusDeleted, deleted.Status)
	assert.True(t, deleted.DeletedAt.Valid)
}

func TestNotifications_GlobalVisibilityAndExpiry(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	repo := NewNotificationRepository(gdb, logger.NewNop())
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	one, two := uint(1), uint(2)

	require.NoError(t, repo.Create(ctx, &domain.SystemNotification{TenantID: &one, Title: "mine", Level: domain.NotificationLevelInfo}))
	require.NoError(t, repo.Create(ctx, &domain.SystemNotification{TenantID: &two, Title: "theirs", Level: domain.NotificationLevelInfo}))
	require.NoError(t, repo.Create(ctx, &domain.SystemNotification{Title: "global", Level: domain.NotificationLevelWarning, ExpiresAt: &past}))
	require.NoError(t, repo.Create(ctx, &domain.SystemNotification{TenantID: &one, Title: "expired", Level: domain.NotificationLevelInfo, ExpiresAt: &past}))

	_, total, err := repo.List(ctx, 1, ports.NotificationFilter{}, ports.PageRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)

	n, err := repo.DeleteExpired(ctx, &one, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = repo.DeleteExpired(ctx, nil, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	items, total, err := repo.List(ctx, 1, ports.NotificationFilter{}, ports.PageRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "mine", items[0].Title)
}

func TestJSONBColumns_RoundTrip(t *testing.T) {
	gdb := newTestDB(t)
	one := uint(1)

	n := &domain.SystemNotification{
		TenantID: &one,
		Title:    "backup failed",
		Level:    domain.NotificationLevelError,
		Payload:  domain.JSONB{"policy_id": float64(7), "file": "db.sql.gz"},
	}
	require.NoError(t, gdb.Create(n).Error)

	var got domain.SystemNotification
	require.NoError(t, gdb.First(&got, n.ID).Error)
	assert.Equal(t, n.Payload, got.Payload)

	var empty domain.SystemNotification
	require.NoError(t, gdb.Create(&domain.SystemNotification{TenantID: &one, Title: "plain", Level: domain.NotificationLevelInfo}).Error)
	require.NoError(t, gdb.Where("title = ?", "plain").First(&empty).Error)
	assert.Nil(t, empty.Payload)
}

func TestBackupPolicy_ClaimRunIsCompareAndSwap(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	repo := NewBackupPolicyRepository(gdb, logger.NewNop())

	p := &domain.BackupPolicy{TenantID: 1, Name: "nightly", Category: domain.BackupCategoryDatabase, Enabled: true, IntervalHours: 24}
	require.NoError(t, repo.Create(ctx, p))

	first := time.Date(2024, 8, 1, 2, 0, 0, 0, time.UTC)
	ok, err := repo.ClaimRun(ctx, 1, p.ID, nil, first)
	require.NoError(t, err)
	assert.True(t, ok)

	// a second delivery holding the same stale snapshot loses
	ok, err = repo.ClaimRun(ctx, 1, p.ID, nil, first)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.GetByID(ctx, 1, p.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastBackupAt)

	next := first.Add(24 * time.Hour)
	ok, err = repo.ClaimRun(ctx, 1, p.ID, stored.LastBackupAt, next)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.ClaimRun(ctx, 1, p.ID, stored.LastBackupAt, next)
	require.NoError(t, err)
	assert.False(t, ok)

	// other tenants cannot claim it
	ok, err = repo.ClaimRun(ctx, 2, p.ID, &next, next.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
}
