package domain

// Audit actions recorded by the API layer and the worker.
const (
	AuditActionConnectionCreate = "CONNECTION_CREATE"
	AuditActionConnectionUpdate = "CONNECTION_UPDATE"
	AuditActionConnectionDelete = "CONNECTION_DELETE"
	AuditActionHostCreate       = "HOST_CREATE"
	AuditActionHostDelete       = "HOST_DELETE"
	AuditActionBackupCreate     = "BACKUP_CREATE"
	AuditActionBackupDelete     = "BACKUP_DELETE"
	AuditActionPlaybookRun      = "PLAYBOOK_RUN"
	AuditActionScheduleToggle   = "SCHEDULE_TOGGLE"
	AuditActionTaskRun          = "TASK_RUN"
	AuditActionTaskRevoke       = "TASK_REVOKE"
)

const (
	ResourceTypeRedisConnection    = "redis_connection"
	ResourceTypeDatabaseConnection = "database_connection"
	ResourceTypeHost               = "host"
	ResourceTypeBackup             = "backup_record"
	ResourceTypePlaybookExecution  = "playbook_execution"
	ResourceTypeScheduledTask      = "scheduled_task"
)
