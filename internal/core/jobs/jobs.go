// Package jobs binds task names to the services that implement them.
package jobs

import (
	"context"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/core/services"
	"github.com/opspanel/backend/internal/core/worker"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
)

const (
	defaultProbeRetentionDays = 30
	defaultAuditRetentionDays = 180
	defaultStaleHours         = 6
)

type Deps struct {
	Cleanup          *services.CleanupService
	ProbeResults     ports.RetentionStore
	HostProbeResults ports.RetentionStore
	AuditLogs        ports.RetentionStore
	Backups          ports.BackupService
	Probes           *services.ProbeService
	Playbooks        ports.PlaybookService
	Logger           *logger.Logger
}

// Names lists every task the worker can execute. The schedule table is
// validated against it at startup.
func Names() []string {
	return []string{
		domain.TaskCleanupProbeResults,
		domain.TaskCleanupHostProbeResults,
		domain.TaskCleanupAuditLogs,
		domain.TaskCleanupStaleAnsible,
		domain.TaskCleanupNotifications,
		domain.TaskBackupCheckSchedule,
		domain.TaskProbeScheduleNetwork,
		domain.TaskProbeScheduleHost,
		domain.TaskAnsibleRunPlaybook,
	}
}

// Known reports whether name is in Names.
func Known(name string) bool {
	for _, n := range Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Register is the explicit registration list. Every name in Names gets a
// handler here.
func Register(reg *worker.Registry, d Deps) {
	reg.Register(domain.TaskCleanupProbeResults, purge(d, d.ProbeResults, defaultProbeRetentionDays))
	reg.Register(domain.TaskCleanupHostProbeResults, purge(d, d.HostProbeResults, defaultProbeRetentionDays))
	reg.Register(domain.TaskCleanupAuditLogs, purge(d, d.AuditLogs, defaultAuditRetentionDays))
	reg.Register(domain.TaskCleanupStaleAnsible, d.staleExecutions)
	reg.Register(domain.TaskCleanupNotifications, d.expiredNotifications)
	reg.Register(domain.TaskBackupCheckSchedule, d.checkBackups)
	reg.Register(domain.TaskProbeScheduleNetwork, d.networkProbes)
	reg.Register(domain.TaskProbeScheduleHost, d.hostProbes)
	reg.Register(domain.TaskAnsibleRunPlaybook, d.runPlaybook)
}

func purge(d Deps, store ports.RetentionStore, defaultDays int) worker.HandlerFunc {
	return func(ctx context.Context, inv *domain.TaskInvocation) error {
		days, err := boundedKwarg(inv.Kwargs, "days", defaultDays, services.MaxRetentionDays)
		if err != nil {
			return err
		}
		only, err := tenantKwarg(inv.Kwargs)
		if err != nil {
			return err
		}
		n, err := d.Cleanup.PurgeOlderThan(ctx, store, days, only)
		d.Logger.Infow("cleanup_done", "task", inv.Task, "table", store.Table(), "days", days, "deleted", n)
		return err
	}
}

func (d Deps) staleExecutions(ctx context.Context, inv *domain.TaskInvocation) error {
	hours, err := boundedKwarg(inv.Kwargs, "hours", defaultStaleHours, services.MaxStaleHours)
	if err != nil {
		return err
	}
	only, err := tenantKwarg(inv.Kwargs)
	if err != nil {
		return err
	}
	n, err := d.Cleanup.TimeoutStaleExecutions(ctx, hours, only)
	d.Logger.Infow("stale_executions_timed_out", "hours", hours, "count", n)
	return err
}

func (d Deps) expiredNotifications(ctx context.Context, inv *domain.TaskInvocation) error {
	only, err := tenantKwarg(inv.Kwargs)
	if err != nil {
		return err
	}
	n, err := d.Cleanup.DeleteExpiredNotifications(ctx, only)
	d.Logger.Infow("expired_notifications_deleted", "count", n)
	return err
}

func (d Deps) checkBackups(ctx context.Context, _ *domain.TaskInvocation) error {
	ran, err := d.Backups.CheckSchedule(ctx)
	d.Logger.Infow("backup_schedule_checked", "ran", ran)
	return err
}

func (d Deps) networkProbes(ctx context.Context, inv *domain.TaskInvocation) error {
	only, err := tenantKwarg(inv.Kwargs)
	if err != nil {
		return err
	}
	sum, err := d.Probes.RunNetworkProbes(ctx, only)
	d.Logger.Debugw("network_probes_done", "checked", sum.Checked, "failed", sum.Failed)
	return err
}

func (d Deps) hostProbes(ctx context.Context, inv *domain.TaskInvocation) error {
	only, err := tenantKwarg(inv.Kwargs)
	if err != nil {
		return err
	}
	sum, err := d.Probes.RunHostProbes(ctx, only)
	d.Logger.Debugw("host_probes_done", "checked", sum.Checked, "failed", sum.Failed)
	return err
}

func (d Deps) runPlaybook(ctx context.Context, inv *domain.TaskInvocation) error {
	tenant, err := tenantKwarg(inv.Kwargs)
	if err != nil {
		return err
	}
	if tenant == nil {
		return ErrMissingTenant
	}
	executionID, err := stringKwarg(inv.Kwargs, "execution_id")
	if err != nil {
		return err
	}
	return d.Playbooks.RunExecution(ctx, *tenant, executionID)
}
