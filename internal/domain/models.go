package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// ==================== ENUMS ====================

type HostStatus string

const (
	HostStatusUnknown HostStatus = "unknown"
	HostStatusOnline  HostStatus = "online"
	HostStatusOffline HostStatus = "offline"
)

type BackupCategory string

const (
	BackupCategoryDatabase BackupCategory = "database"
	BackupCategoryNetwork  BackupCategory = "network"
)

type BackupType string

const (
	BackupTypeAuto   BackupType = "auto"
	BackupTypeManual BackupType = "manual"
)

type BackupStatus string

const (
	BackupStatusSuccess BackupStatus = "success"
	BackupStatusFailed  BackupStatus = "failed"
	BackupStatusDeleted BackupStatus = "deleted"
)

type ConnectionStatus string

const (
	ConnectionStatusEnabled  ConnectionStatus = "enabled"
	ConnectionStatusDisabled ConnectionStatus = "disabled"
)

type DatabaseType string

const (
	DatabaseTypePostgres DatabaseType = "postgres"
	DatabaseTypeMySQL    DatabaseType = "mysql"
)

type NotificationLevel string

const (
	NotificationLevelInfo    NotificationLevel = "info"
	NotificationLevelWarning NotificationLevel = "warning"
	NotificationLevelError   NotificationLevel = "error"
)

type ExecutionStatus string

const (
	ExecutionStatusPending ExecutionStatus = "pending"
	ExecutionStatusRunning ExecutionStatus = "running"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
	ExecutionStatusTimeout ExecutionStatus = "timeout"
)

func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusFailed || s == ExecutionStatusTimeout
}

type ProbeKind string

const (
	ProbeKindICMP ProbeKind = "icmp"
	ProbeKindTCP  ProbeKind = "tcp"
	ProbeKindSSH  ProbeKind = "ssh"
)

// ==================== JSONB TYPES ====================

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("failed to scan JSONB: invalid type")
	}
	return json.Unmarshal(raw, j)
}

func (JSONB) GormDataType() string {
	return "json"
}

func (JSONB) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "JSONB"
	case "mysql":
		return "JSON"
	default:
		return "TEXT"
	}
}

// ==================== ENTITIES ====================

type Host struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TenantID   uint       `gorm:"not null;uniqueIndex:idx_hosts_tenant_name,priority:1" json:"tenant_id"`
	Name       string     `gorm:"size:255;not null;uniqueIndex:idx_hosts_tenant_name,priority:2" json:"name"`
	Address    string     `gorm:"size:255;not null" json:"address"`
	SSHPort    int        `gorm:"default:22" json:"ssh_port"`
	Status     HostStatus `gorm:"size:20;not null;default:'unknown'" json:"status"`
	AuthData   string     `gorm:"type:text" json:"-"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

type BackupPolicy struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TenantID      uint           `gorm:"not null;index" json:"tenant_id"`
	Name          string         `gorm:"size:255;not null" json:"name"`
	Category      BackupCategory `gorm:"size:20;not null" json:"category"`
	Enabled       bool           `gorm:"not null;default:true" json:"enabled"`
	IntervalHours int            `gorm:"not null;default:24" json:"interval_hours"`
	KeepLast      int            `gorm:"not null;default:7" json:"keep_last"`
	ConnectionID  *uint          `json:"connection_id,omitempty"`
	HostID        *uint          `json:"host_id,omitempty"`
	RemotePath    string         `gorm:"size:1024" json:"remote_path,omitempty"`
	LastBackupAt  *time.Time     `json:"last_backup_at,omitempty"`
}

// Due reports whether an automatic backup should run at now.
func (p *BackupPolicy) Due(now time.Time) bool {
	if !p.Enabled || p.IntervalHours <= 0 {
		return false
	}
	if p.LastBackupAt == nil {
		return true
	}
	return !now.Before(p.LastBackupAt.Add(time.Duration(p.IntervalHours) * time.Hour))
}

type BackupRecord struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	TenantID     uint           `gorm:"not null;index" json:"tenant_id"`
	PolicyID     *uint          `gorm:"index" json:"policy_id,omitempty"`
	Filename     string         `gorm:"size:255;not null" json:"filename"`
	Filepath     string         `gorm:"size:1024;not null" json:"filepath"`
	Category     BackupCategory `gorm:"size:20;not null;index" json:"category"`
	BackupType   BackupType     `gorm:"size:20;not null" json:"backup_type"`
	FileSize     int64          `json:"file_size"`
	Compressed   bool           `json:"compressed"`
	Status       BackupStatus   `gorm:"size:20;not null;index" json:"status"`
	DBHost       string         `gorm:"size:255" json:"db_host,omitempty"`
	DBName       string         `gorm:"size:255" json:"db_name,omitempty"`
	CreatedBy    string         `gorm:"size:255" json:"created_by"`
	ErrorMessage string         `gorm:"type:text" json:"error_message,omitempty"`
}

type RedisConnection struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TenantID    uint             `gorm:"not null;uniqueIndex:idx_redis_conn_tenant_name,priority:1" json:"tenant_id"`
	Name        string           `gorm:"size:255;not null;uniqueIndex:idx_redis_conn_tenant_name,priority:2" json:"name"`
	Host        string           `gorm:"size:255;not null" json:"host"`
	Port        int              `gorm:"not null;default:6379" json:"port"`
	DBIndex     int              `gorm:"not null;default:0" json:"db_index"`
	Password    string           `gorm:"type:text" json:"-"`
	Status      ConnectionStatus `gorm:"size:20;not null;default:'enabled'" json:"status"`
	Timeout     int              `gorm:"not null;default:5" json:"timeout"`
	Description string           `gorm:"type:text" json:"description,omitempty"`
}

type DatabaseConnection struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TenantID     uint             `gorm:"not null;uniqueIndex:idx_db_conn_tenant_name,priority:1" json:"tenant_id"`
	Name         string           `gorm:"size:255;not null;uniqueIndex:idx_db_conn_tenant_name,priority:2" json:"name"`
	DBType       DatabaseType     `gorm:"size:20;not null" json:"db_type"`
	Host         string           `gorm:"size:255;not null" json:"host"`
	Port         int              `gorm:"not null" json:"port"`
	DatabaseName string           `gorm:"size:255" json:"database_name"`
	Username     string           `gorm:"size:255" json:"username"`
	Password     string           `gorm:"type:text" json:"-"`
	Status       ConnectionStatus `gorm:"size:20;not null;default:'enabled'" json:"status"`
	Timeout      int              `gorm:"not null;default:10" json:"timeout"`
	Description  string           `gorm:"type:text" json:"description,omitempty"`
}

// SystemNotification with a nil TenantID is global and visible to every tenant.
type SystemNotification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TenantID    *uint             `gorm:"index" json:"tenant_id,omitempty"`
	UserID      *uint             `gorm:"index" json:"user_id,omitempty"`
	Title       string            `gorm:"size:255;not null" json:"title"`
	Message     string            `gorm:"type:text" json:"message"`
	Level       NotificationLevel `gorm:"size:20;not null;default:'info'" json:"level"`
	Payload     JSONB             `json:"payload,omitempty"`
	IsRead      bool              `gorm:"not null;default:false;index" json:"is_read"`
	ReadAt      *time.Time        `json:"read_at,omitempty"`
	RelatedType string            `gorm:"size:100" json:"related_type,omitempty"`
	RelatedID   *uint             `json:"related_id,omitempty"`
	ExpiresAt   *time.Time        `gorm:"index" json:"expires_at,omitempty"`
}

type PlaybookExecution struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TenantID       uint            `gorm:"not null;index" json:"tenant_id"`
	ExecutionID    string          `gorm:"size:36;not null;uniqueIndex" json:"execution_id"`
	Playbook       string          `gorm:"size:255;not null" json:"playbook"`
	Hosts          string          `gorm:"type:text" json:"hosts,omitempty"`
	ExtraVars      JSONB           `json:"extra_vars,omitempty"`
	Status         ExecutionStatus `gorm:"size:20;not null;index" json:"status"`
	TotalTasks     int             `gorm:"not null;default:0" json:"total_tasks"`
	CompletedTasks int             `gorm:"not null;default:0" json:"completed_tasks"`
	FailedTasks    int             `gorm:"not null;default:0" json:"failed_tasks"`
	SkippedTasks   int             `gorm:"not null;default:0" json:"skipped_tasks"`
	ChangedTasks   int             `gorm:"not null;default:0" json:"changed_tasks"`
	StartedAt      *time.Time      `gorm:"index" json:"started_at,omitempty"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
	Output         string          `gorm:"type:text" json:"output,omitempty"`
	ErrorMessage   string          `gorm:"type:text" json:"error_message,omitempty"`
	CreatedBy      string          `gorm:"size:255" json:"created_by"`
}

// ProgressDelta is applied as one atomic increment per column.
type ProgressDelta struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Changed   int `json:"changed"`
}

func (d ProgressDelta) IsZero() bool {
	return d.Completed == 0 && d.Failed == 0 && d.Skipped == 0 && d.Changed == 0
}

type NetworkProbe struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TenantID        uint       `gorm:"not null;index" json:"tenant_id"`
	Name            string     `gorm:"size:255;not null" json:"name"`
	Target          string     `gorm:"size:255;not null" json:"target"`
	Kind            ProbeKind  `gorm:"size:20;not null" json:"kind"`
	Port            int        `json:"port,omitempty"`
	IntervalSeconds int        `gorm:"not null;default:60" json:"interval_seconds"`
	TimeoutSeconds  int        `gorm:"not null;default:5" json:"timeout_seconds"`
	Enabled         bool       `gorm:"not null;default:true" json:"enabled"`
	LastProbedAt    *time.Time `json:"last_probed_at,omitempty"`
}

type NetworkProbeResult struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	TenantID  uint    `gorm:"not null;index" json:"tenant_id"`
	ProbeID   uint    `gorm:"not null;index" json:"probe_id"`
	Success   bool    `json:"success"`
	LatencyMS float64 `json:"latency_ms"`
	Message   string  `gorm:"type:text" json:"message,omitempty"`
}

type HostProbe struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TenantID        uint       `gorm:"not null;index" json:"tenant_id"`
	HostID          uint       `gorm:"not null;index" json:"host_id"`
	Kind            ProbeKind  `gorm:"size:20;not null" json:"kind"`
	IntervalSeconds int        `gorm:"not null;default:60" json:"interval_seconds"`
	TimeoutSeconds  int        `gorm:"not null;default:5" json:"timeout_seconds"`
	Enabled         bool       `gorm:"not null;default:true" json:"enabled"`
	LastProbedAt    *time.Time `json:"last_probed_at,omitempty"`
}

type HostProbeResult struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	TenantID  uint    `gorm:"not null;index" json:"tenant_id"`
	ProbeID   uint    `gorm:"not null;index" json:"probe_id"`
	HostID    uint    `gorm:"not null;index" json:"host_id"`
	Success   bool    `json:"success"`
	LatencyMS float64 `json:"latency_ms"`
	Message   string  `gorm:"type:text" json:"message,omitempty"`
}

// ProbeDue is the second-level due-check shared by network and host probes.
func ProbeDue(enabled bool, intervalSeconds int, last *time.Time, now time.Time) bool {
	if !enabled || intervalSeconds <= 0 {
		return false
	}
	if last == nil {
		return true
	}
	return now.Sub(*last) >= time.Duration(intervalSeconds)*time.Second
}

type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	TenantID     uint   `gorm:"not null;index" json:"tenant_id"`
	UserID       *uint  `gorm:"index" json:"user_id,omitempty"`
	Action       string `gorm:"size:100;not null;index" json:"action"`
	ResourceType string `gorm:"size:100;index" json:"resource_type"`
	ResourceID   *uint  `json:"resource_id,omitempty"`
	Details      JSONB  `json:"details,omitempty"`
	IPAddress    string `gorm:"size:45" json:"ip_address,omitempty"`
}

func (Host) TableName() string               { return "hosts" }
func (BackupPolicy) TableName() string       { return "backup_policies" }
func (BackupRecord) TableName() string       { return "backup_records" }
func (RedisConnection) TableName() string    { return "redis_connections" }
func (DatabaseConnection) TableName() string { return "database_connections" }
func (SystemNotification) TableName() string { return "system_notifications" }
func (PlaybookExecution) TableName() string  { return "playbook_executions" }
func (NetworkProbe) TableName() string       { return "network_probes" }
func (NetworkProbeResult) TableName() string { return "network_probe_results" }
func (HostProbe) TableName() string          { return "host_probes" }
func (HostProbeResult) TableName() string    { return "host_probe_results" }
func (AuditLog) TableName() string           { return "audit_logs" }
