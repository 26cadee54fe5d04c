package app

import (
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/opspanel/backend/internal/config"
	"github.com/opspanel/backend/internal/core/jobs"
	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/core/schedule"
	"github.com/opspanel/backend/internal/core/services"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/db"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/infrastructure/metrics"
	"github.com/opspanel/backend/internal/infrastructure/queue"
	"github.com/opspanel/backend/internal/infrastructure/remote"
	"github.com/opspanel/backend/internal/infrastructure/runner"
	"github.com/opspanel/backend/pkg/utils/crypto"
)

// Options carries the clients a process opened. Redis may be nil, in which
// case the broker and overrides live in memory (single-process dev mode).
// The remaining fields replace external tools and default to the real ones.
type Options struct {
	Config  *config.Config
	DB      *gorm.DB
	Redis   redis.UniversalClient
	Metrics *metrics.Metrics
	Logger  *logger.Logger
	Clock   services.Clock

	Broker    ports.TaskBroker
	Overrides ports.ScheduleOverrides
	Dumper    services.DatabaseDumper
	Fetcher   services.FileFetcher
	Checker   services.ReachabilityChecker
	Handshake services.SSHHandshaker
	Runner    services.PlaybookRunner
}

// Container holds every service of the process, built once at start.
type Container struct {
	Broker    ports.TaskBroker
	Overrides ports.ScheduleOverrides
	Registry  *schedule.Registry

	Audit         ports.AuditService
	Notifications ports.NotificationService
	Connections   ports.ConnectionService
	Hosts         ports.HostService
	Backups       ports.BackupService
	Playbooks     ports.PlaybookService
	Schedules     ports.ScheduleService
	Cleanup       *services.CleanupService
	Probes        *services.ProbeService

	probeResults     ports.RetentionStore
	hostProbeResults ports.RetentionStore
	auditLogs        ports.RetentionStore
	logger           *logger.Logger
}

func Build(opts Options) (*Container, error) {
	if opts.Config == nil || opts.DB == nil || opts.Logger == nil {
		return nil, domain.MarkConfiguration(errors.New("app: config, database and logger are required"))
	}
	cfg := opts.Config
	log := opts.Logger
	m := opts.Metrics

	cipher, err := crypto.NewCipher(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, domain.MarkConfiguration(errors.Wrap(err, "encryption key"))
	}
	vault := services.NewVault(cipher)

	broker, overrides := opts.Broker, opts.Overrides
	if broker == nil {
		if opts.Redis != nil {
			broker = queue.NewRedisBroker(opts.Redis, cfg.Redis.KeyPrefix)
		} else {
			broker = queue.NewMemoryBroker()
		}
	}
	if overrides == nil {
		if opts.Redis != nil {
			overrides = queue.NewRedisOverrides(opts.Redis, cfg.Redis.KeyPrefix)
		} else {
			overrides = queue.NewMemoryOverrides()
		}
	}

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, domain.MarkConfiguration(err)
	}
	table, err := schedule.LoadTable(cfg.Scheduler.ScheduleFile, loc, jobs.Known)
	if err != nil {
		return nil, err
	}
	registry := schedule.NewRegistry(table, jobs.Known)

	// Repositories
	hostRepo := db.NewHostRepository(opts.DB, log)
	redisRepo := db.NewRedisConnectionRepository(opts.DB, log)
	databaseRepo := db.NewDatabaseConnectionRepository(opts.DB, log)
	policyRepo := db.NewBackupPolicyRepository(opts.DB, log)
	recordRepo := db.NewBackupRecordRepository(opts.DB, log)
	notificationRepo := db.NewNotificationRepository(opts.DB, log)
	executionRepo := db.NewPlaybookExecutionRepository(opts.DB, log)
	networkProbeRepo := db.NewNetworkProbeRepository(opts.DB, log)
	hostProbeRepo := db.NewHostProbeRepository(opts.DB, log)
	auditRepo := db.NewAuditLogRepository(opts.DB, log)

	dumper := opts.Dumper
	if dumper == nil {
		dumper = runner.NewDumper(cfg.Backup.PgDumpPath, cfg.Backup.MysqlDumpPath)
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = services.SFTPFetcher()
	}
	checker := opts.Checker
	if checker == nil {
		checker = remote.NewProber(cfg.Probe.PingPath)
	}
	playbookRunner := opts.Runner
	if playbookRunner == nil {
		playbookRunner = runner.NewAnsibleRunner(cfg.Ansible.PlaybookBin, cfg.Ansible.PlaybookDir, cfg.Ansible.Inventory)
	}

	// Services
	audit := services.NewAuditService(auditRepo, log)
	notifications := services.NewNotificationService(notificationRepo, log, opts.Clock)

	c := &Container{
		Broker:        broker,
		Overrides:     overrides,
		Registry:      registry,
		Audit:         audit,
		Notifications: notifications,
		Connections: services.NewConnectionService(services.ConnectionServiceConfig{
			RedisRepository:    redisRepo,
			DatabaseRepository: databaseRepo,
			Vault:              vault,
			Logger:             log,
		}),
		Hosts: services.NewHostService(hostRepo, vault, log),
		Backups: services.NewBackupService(services.BackupServiceConfig{
			Policies:      policyRepo,
			Records:       recordRepo,
			Databases:     databaseRepo,
			Hosts:         hostRepo,
			Notifications: notifications,
			Vault:         vault,
			Dumper:        dumper,
			Fetcher:       fetcher,
			Config:        cfg.Backup,
			Metrics:       m,
			Logger:        log,
			Clock:         opts.Clock,
		}),
		Playbooks: services.NewPlaybookService(services.PlaybookServiceConfig{
			Repository: executionRepo,
			Broker:     broker,
			Runner:     playbookRunner,
			Audit:      audit,
			Config:     cfg.Ansible,
			Logger:     log,
			Clock:      opts.Clock,
		}),
		Schedules: services.NewScheduleService(services.ScheduleServiceConfig{
			Registry:  registry,
			Overrides: overrides,
			Broker:    broker,
			Queues:    cfg.Worker.Queues,
			Logger:    log,
			Clock:     opts.Clock,
		}),
		Cleanup: services.NewCleanupService(services.CleanupServiceConfig{
			Executions:    executionRepo,
			Notifications: notificationRepo,
			Metrics:       m,
			Logger:        log,
			Clock:         opts.Clock,
		}),
		Probes: services.NewProbeService(services.ProbeServiceConfig{
			NetworkProbes: networkProbeRepo,
			HostProbes:    hostProbeRepo,
			Hosts:         hostRepo,
			Vault:         vault,
			Checker:       checker,
			Handshake:     opts.Handshake,
			Config:        cfg.Probe,
			Metrics:       m,
			Logger:        log,
			Clock:         opts.Clock,
		}),

		probeResults:     db.NewNetworkProbeResultRetention(opts.DB, log),
		hostProbeResults: db.NewHostProbeResultRetention(opts.DB, log),
		auditLogs:        db.NewAuditLogRetention(opts.DB, log),
		logger:           log,
	}
	return c, nil
}

// JobDeps returns what the worker task handlers need.
func (c *Container) JobDeps() jobs.Deps {
	return jobs.Deps{
		Cleanup:          c.Cleanup,
		ProbeResults:     c.probeResults,
		HostProbeResults: c.hostProbeResults,
		AuditLogs:        c.auditLogs,
		Backups:          c.Backups,
		Probes:           c.Probes,
		Playbooks:        c.Playbooks,
		Logger:           c.logger,
	}
}
