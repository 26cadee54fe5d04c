package services

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opspanel/backend/internal/config"
	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/db"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/infrastructure/remote"
	"github.com/opspanel/backend/internal/infrastructure/runner"
)

type fakeDumper struct {
	mu    sync.Mutex
	specs []runner.DumpSpec
	err   error
}

func (d *fakeDumper) Dump(_ context.Context, spec runner.DumpSpec, w io.Writer) error {
	d.mu.Lock()
	d.specs = append(d.specs, spec)
	d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	_, err := io.WriteString(w, "CREATE TABLE widgets (id int);\n")
	return err
}

type fakeFetcher struct {
	cfgs []remote.SSHConfig
}

func (f *fakeFetcher) Fetch(_ context.Context, cfg remote.SSHConfig, remotePath string, w io.Writer) (int64, error) {
	f.cfgs = append(f.cfgs, cfg)
	n, err := io.WriteString(w, "hostname edge-1\n! "+remotePath+"\n")
	return int64(n), err
}

type backupFixture struct {
	svc      ports.BackupService
	records  ports.BackupRecordRepository
	policies ports.BackupPolicyRepository
	notes    ports.NotificationRepository
	dumper   *fakeDumper
	fetcher  *fakeFetcher
	clock    *manualClock
	conn     *domain.DatabaseConnection
	host     *domain.Host
	dir      string
}

func newBackupFixture(t *testing.T, compress bool) *backupFixture {
	gdb := newTestDB(t)
	ctx := context.Background()
	vault := newTestVault(t)
	log := logger.NewNop()
	f := &backupFixture{
		records:  db.NewBackupRecordRepository(gdb, log),
		policies: db.NewBackupPolicyRepository(gdb, log),
		notes:    db.NewNotificationRepository(gdb, log),
		dumper:   &fakeDumper{},
		fetcher:  &fakeFetcher{},
		clock:    newManualClock(time.Date(2024, 8, 1, 2, 0, 0, 0, time.UTC)),
		dir:      t.TempDir(),
	}

	databases := db.NewDatabaseConnectionRepository(gdb, log)
	conns := NewConnectionService(ConnectionServiceConfig{
		RedisRepository:    db.NewRedisConnectionRepository(gdb, log),
		DatabaseRepository: databases,
		Vault:              vault,
		Logger:             log,
	})
	conn, err := conns.CreateDatabase(ctx, 1, ports.DatabaseConnectionInput{
		Name: "orders", DBType: domain.DatabaseTypePostgres, Host: "db.internal", Port: 5432,
		DatabaseName: "orders", Username: "backup", Password: "pg-pass",
	})
	require.NoError(t, err)
	f.conn = conn

	hostRepo := db.NewHostRepository(gdb, log)
	host, err := NewHostService(hostRepo, vault, log).CreateHost(ctx, 1, ports.CreateHostInput{
		Name: "edge-1", Address: "192.0.2.10", SSHPort: 22, User: "netops", Password: "ssh-pass",
	})
	require.NoError(t, err)
	f.host = host

	f.svc = NewBackupService(BackupServiceConfig{
		Policies:      f.policies,
		Records:       f.records,
		Databases:     databases,
		Hosts:         hostRepo,
		Notifications: NewNotificationService(f.notes, log, f.clock.Now),
		Vault:         vault,
		Dumper:        f.dumper,
		Fetcher:       f.fetcher,
		Config:        config.BackupConfig{Dir: f.dir, Compress: compress, Timeout: time.Minute},
		Logger:        log,
		Clock:         f.clock.Now,
	})
	return f
}

func TestBackupService_ManualDatabaseBackup(t *testing.T) {
	f := newBackupFixture(t, true)
	ctx := context.Background()

	rec, err := f.svc.CreateManual(ctx, 1, ports.ManualBackupInput{ConnectionID: &f.conn.ID, CreatedBy: "admin"})
	require.NoError(t, err)
	assert.Equal(t, domain.BackupStatusSuccess, rec.Status)
	assert.Equal(t, domain.BackupTypeManual, rec.BackupType)
	assert.True(t, strings.HasPrefix(rec.Filename, "orders_orders_20240801_020000_"), rec.Filename)
	assert.True(t, strings.HasSuffix(rec.Filename, ".sql.gz"), rec.Filename)
	assert.Equal(t, filepath.Join(f.dir, "tenant-1", "database", rec.Filename), rec.Filepath)
	assert.True(t, rec.Compressed)
	assert.Positive(t, rec.FileSize)

	require.Len(t, f.dumper.specs, 1)
	assert.Equal(t, "pg-pass", f.dumper.specs[0].Password)
	assert.Equal(t, "postgres", f.dumper.specs[0].Type)

	file, err := os.Open(rec.Filepath)
	require.NoError(t, err)
	defer file.Close()
	zr, err := gzip.NewReader(file)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(body), "CREATE TABLE widgets")

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(rec.Filepath), "*.part"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestBackupService_NetworkBackupUsesHostCredentials(t *testing.T) {
	f := newBackupFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.CreateManual(ctx, 1, ports.ManualBackupInput{HostID: &f.host.ID})
	assert.True(t, errors.Is(err, ErrBackupInvalidInput))

	rec, err := f.svc.CreateManual(ctx, 1, ports.ManualBackupInput{HostID: &f.host.ID, RemotePath: "/etc/running.cfg"})
	require.NoError(t, err)
	assert.Equal(t, domain.BackupCategoryNetwork, rec.Category)
	assert.True(t, strings.HasPrefix(rec.Filename, "edge-1_running.cfg_20240801_020000_"), rec.Filename)

	require.Len(t, f.fetcher.cfgs, 1)
	assert.Equal(t, "netops", f.fetcher.cfgs[0].User)
	assert.Equal(t, "ssh-pass", f.fetcher.cfgs[0].Password)
	assert.Equal(t, "192.0.2.10", f.fetcher.cfgs[0].Host)
}

func TestBackupService_FailureWritesRecordAndNotifies(t *testing.T) {
	f := newBackupFixture(t, false)
	ctx := context.Background()
	f.dumper.err = errors.New("pg_dump: connection refused")

	rec, err := f.svc.CreateManual(ctx, 1, ports.ManualBackupInput{ConnectionID: &f.conn.ID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackupFailed))
	assert.Equal(t, "task_execution", domain.Kind(err))
	require.NotNil(t, rec)
	assert.Equal(t, domain.BackupStatusFailed, rec.Status)
	assert.Contains(t, rec.ErrorMessage, "connection refused")

	_, err = os.Stat(rec.Filepath)
	assert.True(t, os.IsNotExist(err))

	notes, total, err := f.notes.List(ctx, 1, ports.NotificationFilter{}, ports.PageRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, domain.NotificationLevelError, notes[0].Level)
	require.NotNil(t, notes[0].ExpiresAt)

	// a failed record cannot be soft-deleted
	err = f.svc.DeleteBackup(ctx, 1, rec.ID)
	assert.True(t, errors.Is(err, domain.ErrInvalidStatus))
}

func TestBackupService_CheckScheduleKeepsLastN(t *testing.T) {
	f := newBackupFixture(t, false)
	ctx := context.Background()

	policy := &domain.BackupPolicy{
		TenantID: 1, Name: "nightly", Category: domain.BackupCategoryDatabase, Enabled: true,
		IntervalHours: 1, KeepLast: 2, ConnectionID: &f.conn.ID,
	}
	require.NoError(t, f.policies.Create(ctx, policy))

	var paths []string
	for i := 0; i < 3; i++ {
		ran, err := f.svc.CheckSchedule(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, ran)

		// not due again until the interval passes
		ran, err = f.svc.CheckSchedule(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, ran)

		recs, _, err := f.records.List(ctx, 1, ports.BackupFilter{}, ports.PageRequest{})
		require.NoError(t, err)
		for _, r := range recs {
			if !containsString(paths, r.Filepath) {
				paths = append(paths, r.Filepath)
			}
		}
		f.clock.Advance(time.Hour)
	}

	live, total, err := f.records.List(ctx, 1, ports.BackupFilter{Status: domain.BackupStatusSuccess}, ports.PageRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	for _, r := range live {
		assert.NotContains(t, r.Filename, "020000")
	}

	require.Len(t, paths, 3)
	for _, p := range paths {
		_, err := os.Stat(p)
		if strings.Contains(p, "020000") {
			assert.True(t, os.IsNotExist(err), p)
		} else {
			assert.NoError(t, err, p)
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestBackupService_UnresolvablePolicyRecordsFailure(t *testing.T) {
	f := newBackupFixture(t, false)
	ctx := context.Background()

	missing := uint(999)
	policy := &domain.BackupPolicy{
		TenantID: 1, Name: "orphaned", Category: domain.BackupCategoryDatabase, Enabled: true,
		IntervalHours: 24, KeepLast: 3, ConnectionID: &missing,
	}
	require.NoError(t, f.policies.Create(ctx, policy))

	ran, err := f.svc.CheckSchedule(ctx)
	assert.Equal(t, 1, ran)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackupFailed))
	assert.Empty(t, f.dumper.specs)

	recs, total, err := f.records.List(ctx, 1, ports.BackupFilter{}, ports.PageRequest{})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, domain.BackupStatusFailed, recs[0].Status)
	assert.Equal(t, domain.BackupCategoryDatabase, recs[0].Category)
	assert.Equal(t, domain.BackupTypeAuto, recs[0].BackupType)
	require.NotNil(t, recs[0].PolicyID)
	assert.Equal(t, policy.ID, *recs[0].PolicyID)
	assert.Contains(t, recs[0].ErrorMessage, "not found")

	notes, total, err := f.notes.List(ctx, 1, ports.NotificationFilter{}, ports.PageRequest{})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Contains(t, notes[0].Message, "policy")

	// the failed run still counts; no retry until the interval passes
	ran, err = f.svc.CheckSchedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, ran)

	stored, err := f.policies.GetByID(ctx, 1, policy.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastBackupAt)
	assert.True(t, stored.LastBackupAt.Equal(f.clock.Now()))
}

func TestBackupService_RedeliveredCheckRunsPolicyOnce(t *testing.T) {
	f := newBackupFixture(t, false)
	ctx := context.Background()

	policy := &domain.BackupPolicy{
		TenantID: 1, Name: "nightly", Category: domain.BackupCategoryDatabase, Enabled: true,
		IntervalHours: 24, KeepLast: 3, ConnectionID: &f.conn.ID,
	}
	require.NoError(t, f.policies.Create(ctx, policy))

	const deliveries = 2
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		ran   [deliveries]int
		errs  [deliveries]error
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			ran[i], errs[i] = f.svc.CheckSchedule(ctx)
		}(i)
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, ran[0]+ran[1])

	recs, total, err := f.records.List(ctx, 1, ports.BackupFilter{}, ports.PageRequest{})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, domain.BackupStatusSuccess, recs[0].Status)
	assert.Len(t, f.dumper.specs, 1)

	_, total, err = f.notes.List(ctx, 1, ports.NotificationFilter{}, ports.PageRequest{})
	require.NoError(t, err)
	assert.Zero(t, total)
}
