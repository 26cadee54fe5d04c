package domain

import "time"

// Priority levels follow the lower-number-first convention: 0 is served
// before 9. Values outside the range are clamped by NormalizePriority.
const (
	PriorityHighest = 0
	PriorityDefault = 5
	PriorityLowest  = 9
)

func NormalizePriority(p int) int {
	if p < PriorityHighest {
		return PriorityHighest
	}
	if p > PriorityLowest {
		return PriorityLowest
	}
	return p
}

type InvocationOrigin string

const (
	OriginBeat InvocationOrigin = "beat"
	OriginAPI  InvocationOrigin = "api"
)

// TaskInvocation is the broker message. It lives only on the queue and in
// the worker that consumed it.
type TaskInvocation struct {
	ID         string                 `json:"id"`
	Task       string                 `json:"task"`
	Args       []interface{}          `json:"args,omitempty"`
	Kwargs     map[string]interface{} `json:"kwargs,omitempty"`
	Queue      string                 `json:"queue"`
	Priority   int                    `json:"priority"`
	Origin     InvocationOrigin       `json:"origin"`
	EnqueuedAt time.Time              `json:"enqueued_at"`
}

// Registered task names. The worker registration list and the schedule
// table both refer to handlers by these names.
const (
	TaskCleanupProbeResults     = "cleanup.probe_results"
	TaskCleanupHostProbeResults = "cleanup.host_probe_results"
	TaskCleanupAuditLogs        = "cleanup.audit_logs"
	TaskCleanupStaleAnsible     = "cleanup.stale_ansible_executions"
	TaskCleanupNotifications    = "cleanup.expired_notifications"
	TaskBackupCheckSchedule     = "backup.check_schedule"
	TaskProbeScheduleNetwork    = "probe.schedule_network"
	TaskProbeScheduleHost       = "probe.schedule_host"
	TaskAnsibleRunPlaybook      = "ansible.run_playbook"
)

// Queue names.
const (
	QueueDefault     = "default"
	QueueMaintenance = "maintenance"
	QueueBackup      = "backup"
	QueueProbe       = "probe"
	QueueAnsible     = "ansible"
)
