package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/opspanel/backend/internal/config"
	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/infrastructure/metrics"
	"github.com/opspanel/backend/internal/infrastructure/remote"
	"github.com/opspanel/backend/internal/infrastructure/runner"
)

// DatabaseDumper streams a logical dump of one database.
type DatabaseDumper interface {
	Dump(ctx context.Context, spec runner.DumpSpec, w io.Writer) error
}

// FileFetcher copies one file off a host.
type FileFetcher interface {
	Fetch(ctx context.Context, cfg remote.SSHConfig, remotePath string, w io.Writer) (int64, error)
}

type sftpFetcher struct{}

func (sftpFetcher) Fetch(ctx context.Context, cfg remote.SSHConfig, remotePath string, w io.Writer) (int64, error) {
	return remote.NewSSHClient(cfg).FetchFile(ctx, remotePath, w)
}

// SFTPFetcher fetches over SFTP on a fresh SSH connection per file.
func SFTPFetcher() FileFetcher { return sftpFetcher{} }

type backupService struct {
	policies      ports.BackupPolicyRepository
	records       ports.BackupRecordRepository
	databases     ports.DatabaseConnectionRepository
	hosts         ports.HostRepository
	notifications ports.NotificationService
	vault         *Vault
	dumper        DatabaseDumper
	fetcher       FileFetcher
	cfg           config.BackupConfig
	metrics       *metrics.Metrics
	logger        *logger.Logger
	now           Clock
}

type BackupServiceConfig struct {
	Policies      ports.BackupPolicyRepository
	Records       ports.BackupRecordRepository
	Databases     ports.DatabaseConnectionRepository
	Hosts         ports.HostRepository
	Notifications ports.NotificationService
	Vault         *Vault
	Dumper        DatabaseDumper
	Fetcher       FileFetcher
	Config        config.BackupConfig
	Metrics       *metrics.Metrics
	Logger        *logger.Logger
	Clock         Clock
}

func NewBackupService(cfg BackupServiceConfig) ports.BackupService {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}
	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = SFTPFetcher()
	}
	return &backupService{
		policies:      cfg.Policies,
		records:       cfg.Records,
		databases:     cfg.Databases,
		hosts:         cfg.Hosts,
		notifications: cfg.Notifications,
		vault:         cfg.Vault,
		dumper:        cfg.Dumper,
		fetcher:       fetcher,
		cfg:           cfg.Config,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		now:           clock,
	}
}

// backupJob describes one backup to produce. Exactly one of database or
// host is set.
type backupJob struct {
	tenantID   uint
	policyID   *uint
	backupType domain.BackupType
	createdBy  string
	database   *domain.DatabaseConnection
	host       *domain.Host
	remotePath string
}

func (j backupJob) category() domain.BackupCategory {
	if j.database != nil {
		return domain.BackupCategoryDatabase
	}
	return domain.BackupCategoryNetwork
}

func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

// fileName is unique per run: two runs in the same second get different
// suffixes.
func (s *backupService) fileName(job backupJob, at time.Time) string {
	stamp := at.Format("20060102_150405") + "_" + uuid.NewString()[:8]
	var name string
	if job.database != nil {
		name = fmt.Sprintf("%s_%s_%s.sql", sanitizeName(job.database.Name), sanitizeName(job.database.DatabaseName), stamp)
	} else {
		name = fmt.Sprintf("%s_%s_%s", sanitizeName(job.host.Name), sanitizeName(path.Base(job.remotePath)), stamp)
	}
	if s.cfg.Compress {
		name += ".gz"
	}
	return name
}

func (s *backupService) targetDir(job backupJob) string {
	return filepath.Join(s.cfg.Dir, fmt.Sprintf("tenant-%d", job.tenantID), string(job.category()))
}

// produce writes the backup file and returns its size. A partial file is
// removed on failure.
func (s *backupService) produce(ctx context.Context, job backupJob, fullPath string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return 0, errors.Wrap(err, "create backup directory")
	}
	tmp := fmt.Sprintf("%s.%s.part", fullPath, uuid.NewString()[:8])
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, errors.Wrap(err, "create backup file")
	}

	err = s.write(ctx, job, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		_ = os.Remove(tmp)
		return 0, errors.Wrap(err, "finalize backup file")
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *backupService) write(ctx context.Context, job backupJob, f io.Writer) error {
	var (
		w  = f
		gz *gzip.Writer
	)
	if s.cfg.Compress {
		gz = gzip.NewWriter(f)
		w = gz
	}

	var err error
	if job.database != nil {
		err = s.dumpDatabase(ctx, job, w)
	} else {
		err = s.fetchFile(ctx, job, w)
	}
	if gz != nil {
		if cerr := gz.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (s *backupService) dumpDatabase(ctx context.Context, job backupJob, w io.Writer) error {
	conn := job.database
	if conn.Status == domain.ConnectionStatusDisabled {
		return ErrConnectionDisabled
	}
	password, err := s.vault.Open(job.tenantID, conn.Password)
	if err != nil {
		return err
	}
	return s.dumper.Dump(ctx, runner.DumpSpec{
		Type:     string(conn.DBType),
		Host:     conn.Host,
		Port:     conn.Port,
		User:     conn.Username,
		Password: password,
		Database: conn.DatabaseName,
	}, w)
}

func (s *backupService) fetchFile(ctx context.Context, job backupJob, w io.Writer) error {
	sshCfg, err := s.vault.SSHConfig(job.host, s.cfg.Timeout)
	if err != nil {
		return err
	}
	_, err = s.fetcher.Fetch(ctx, sshCfg, job.remotePath, w)
	return err
}

// run produces one backup and always writes a record describing the
// outcome. The returned error is the task failure, if any.
func (s *backupService) run(ctx context.Context, job backupJob) (*domain.BackupRecord, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	started := s.now()
	filename := s.fileName(job, started)
	fullPath := filepath.Join(s.targetDir(job), filename)

	record := &domain.BackupRecord{
		TenantID:   job.tenantID,
		PolicyID:   job.policyID,
		Filename:   filename,
		Filepath:   fullPath,
		Category:   job.category(),
		BackupType: job.backupType,
		Compressed: s.cfg.Compress,
		CreatedBy:  job.createdBy,
	}
	if job.database != nil {
		record.DBHost = job.database.Host
		record.DBName = job.database.DatabaseName
	} else {
		record.DBHost = job.host.Address
		record.DBName = job.remotePath
	}

	size, runErr := s.produce(ctx, job, fullPath)
	if runErr != nil {
		record.Status = domain.BackupStatusFailed
		record.ErrorMessage = runErr.Error()
	} else {
		record.Status = domain.BackupStatusSuccess
		record.FileSize = size
	}

	// The record outlives a cancelled run.
	if err := s.records.Create(context.WithoutCancel(ctx), record); err != nil {
		s.logger.Errorw("backup_record_write_failed", "tenant_id", job.tenantID, "filename", filename, "error", err)
		return nil, errors.CombineErrors(runErr, err)
	}
	if s.metrics != nil {
		s.metrics.BackupsCreated.WithLabelValues(string(record.Category), string(record.Status)).Inc()
	}

	if runErr != nil {
		s.logger.Errorw("backup_failed",
			"tenant_id", job.tenantID,
			"record_id", record.ID,
			"category", record.Category,
			"error", runErr,
		)
		s.notifyFailure(context.WithoutCancel(ctx), record)
		return record, errors.Wrapf(ErrBackupFailed, "%v", runErr)
	}
	s.logger.Infow("backup_ok",
		"tenant_id", job.tenantID,
		"record_id", record.ID,
		"category", record.Category,
		"size", size,
		"duration", s.now().Sub(started).String(),
	)
	return record, nil
}

func (s *backupService) notifyFailure(ctx context.Context, record *domain.BackupRecord) {
	if s.notifications == nil {
		return
	}
	_, err := s.notifications.Notify(ctx, ports.NotifyInput{
		TenantID:    uintPtr(record.TenantID),
		Level:       domain.NotificationLevelError,
		Title:       fmt.Sprintf("%s backup failed", record.Category),
		Message:     failureMessage(record),
		RelatedType: domain.ResourceTypeBackup,
		RelatedID:   uintPtr(record.ID),
		TTL:         7 * 24 * time.Hour,
	})
	if err != nil {
		s.logger.Warnw("backup_failure_notification_failed", "record_id", record.ID, "error", err)
	}
}

func failureMessage(record *domain.BackupRecord) string {
	if record.Filename == "" && record.PolicyID != nil {
		return fmt.Sprintf("Backup policy %d failed: %s", *record.PolicyID, record.ErrorMessage)
	}
	return fmt.Sprintf("Backup %s failed: %s", record.Filename, record.ErrorMessage)
}

func (s *backupService) jobForPolicy(ctx context.Context, p *domain.BackupPolicy) (backupJob, error) {
	job := backupJob{
		tenantID:   p.TenantID,
		policyID:   uintPtr(p.ID),
		backupType: domain.BackupTypeAuto,
		createdBy:  "scheduler",
	}
	switch p.Category {
	case domain.BackupCategoryDatabase:
		if p.ConnectionID == nil {
			return job, errors.Wrapf(ErrBackupInvalidInput, "policy %d has no connection", p.ID)
		}
		conn, err := s.databases.GetByID(ctx, p.TenantID, *p.ConnectionID)
		if err != nil {
			return job, err
		}
		job.database = conn
	case domain.BackupCategoryNetwork:
		if p.HostID == nil || p.RemotePath == "" {
			return job, errors.Wrapf(ErrBackupInvalidInput, "policy %d needs a host and remote path", p.ID)
		}
		host, err := s.hosts.GetByID(ctx, p.TenantID, *p.HostID)
		if err != nil {
			return job, err
		}
		job.host = host
		job.remotePath = p.RemotePath
	default:
		return job, errors.Wrapf(ErrBackupInvalidInput, "policy %d has unknown category %q", p.ID, p.Category)
	}
	return job, nil
}

// CheckSchedule runs every enabled policy whose interval has elapsed.
// last_backup_at moves on failure too, so a broken target is retried on its
// next interval instead of on every check. Each due policy is claimed first;
// a redelivered check finds it claimed and skips it.
func (s *backupService) CheckSchedule(ctx context.Context) (int, error) {
	now := s.now().UTC()
	tenants, err := s.policies.TenantIDs(ctx)
	if err != nil {
		return 0, err
	}

	var (
		ran  int
		errs error
	)
	for _, tenantID := range tenants {
		policies, err := s.policies.ListEnabled(ctx, tenantID)
		if err != nil {
			errs = errors.CombineErrors(errs, err)
			continue
		}
		for i := range policies {
			p := &policies[i]
			if !p.Due(now) {
				continue
			}
			claimed, err := s.policies.ClaimRun(ctx, p.TenantID, p.ID, p.LastBackupAt, now)
			if err != nil {
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "policy %d", p.ID))
				continue
			}
			if !claimed {
				s.logger.Debugw("backup_policy_already_claimed", "policy_id", p.ID, "tenant_id", p.TenantID)
				continue
			}
			ran++
			if err := s.runPolicy(ctx, p); err != nil {
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "policy %d", p.ID))
			}
		}
	}
	s.logger.Infow("backup_schedule_checked", "tenants", len(tenants), "ran", ran)
	return ran, errs
}

func (s *backupService) runPolicy(ctx context.Context, p *domain.BackupPolicy) error {
	job, err := s.jobForPolicy(ctx, p)
	if err != nil {
		s.logger.Errorw("backup_policy_unresolvable", "policy_id", p.ID, "tenant_id", p.TenantID, "error", err)
		return s.recordPolicyFailure(ctx, p, err)
	}

	if _, err := s.run(ctx, job); err != nil {
		return err
	}
	s.applyRetention(ctx, p)
	return nil
}

// recordPolicyFailure writes the failed record for a policy whose target
// could not be resolved, so the failure is visible like any other.
func (s *backupService) recordPolicyFailure(ctx context.Context, p *domain.BackupPolicy, cause error) error {
	record := &domain.BackupRecord{
		TenantID:     p.TenantID,
		PolicyID:     uintPtr(p.ID),
		Category:     p.Category,
		BackupType:   domain.BackupTypeAuto,
		CreatedBy:    "scheduler",
		Status:       domain.BackupStatusFailed,
		ErrorMessage: cause.Error(),
	}
	if err := s.records.Create(context.WithoutCancel(ctx), record); err != nil {
		s.logger.Errorw("backup_record_write_failed", "tenant_id", p.TenantID, "policy_id", p.ID, "error", err)
		return errors.CombineErrors(cause, err)
	}
	if s.metrics != nil {
		s.metrics.BackupsCreated.WithLabelValues(string(record.Category), string(record.Status)).Inc()
	}
	s.notifyFailure(context.WithoutCancel(ctx), record)
	return errors.Wrapf(ErrBackupFailed, "%v", cause)
}

// applyRetention keeps the newest KeepLast automatic successes of a policy
// and soft-deletes the rest together with their files.
func (s *backupService) applyRetention(ctx context.Context, p *domain.BackupPolicy) {
	if p.KeepLast <= 0 {
		return
	}
	records, err := s.records.ListAutoSuccess(ctx, p.TenantID, p.ID)
	if err != nil {
		s.logger.Warnw("backup_retention_list_failed", "policy_id", p.ID, "error", err)
		return
	}
	if len(records) <= p.KeepLast {
		return
	}
	for _, r := range records[p.KeepLast:] {
		if err := s.deleteRecord(ctx, &r); err != nil {
			s.logger.Warnw("backup_retention_delete_failed", "record_id", r.ID, "error", err)
		}
	}
}

func (s *backupService) deleteRecord(ctx context.Context, r *domain.BackupRecord) error {
	if err := s.records.SoftDelete(ctx, r.TenantID, r.ID, s.now()); err != nil {
		return err
	}
	if err := os.Remove(r.Filepath); err != nil && !os.IsNotExist(err) {
		s.logger.Warnw("backup_file_remove_failed", "record_id", r.ID, "path", r.Filepath, "error", err)
	}
	return nil
}

func (s *backupService) ListBackups(ctx context.Context, tenantID uint, filter ports.BackupFilter, page ports.PageRequest) ([]domain.BackupRecord, int64, error) {
	return s.records.List(ctx, tenantID, filter, page)
}

// CreateManual runs a backup synchronously. The record is returned for
// failed runs too, alongside the error.
func (s *backupService) CreateManual(ctx context.Context, tenantID uint, input ports.ManualBackupInput) (*domain.BackupRecord, error) {
	job := backupJob{
		tenantID:   tenantID,
		backupType: domain.BackupTypeManual,
		createdBy:  input.CreatedBy,
	}
	switch {
	case input.ConnectionID != nil && input.HostID != nil:
		return nil, errors.Wrap(ErrBackupInvalidInput, "choose a connection or a host, not both")
	case input.ConnectionID != nil:
		conn, err := s.databases.GetByID(ctx, tenantID, *input.ConnectionID)
		if err != nil {
			return nil, err
		}
		job.database = conn
	case input.HostID != nil:
		if strings.TrimSpace(input.RemotePath) == "" {
			return nil, errors.Wrap(ErrBackupInvalidInput, "remote_path is required for network backups")
		}
		host, err := s.hosts.GetByID(ctx, tenantID, *input.HostID)
		if err != nil {
			return nil, err
		}
		job.host = host
		job.remotePath = input.RemotePath
	default:
		return nil, errors.Wrap(ErrBackupInvalidInput, "connection_id or host_id is required")
	}
	return s.run(ctx, job)
}

func (s *backupService) DeleteBackup(ctx context.Context, tenantID, id uint) error {
	record, err := s.records.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	return s.deleteRecord(ctx, record)
}
