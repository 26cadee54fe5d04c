package ports

import (
	"context"
	"time"

	"github.com/opspanel/backend/internal/domain"
)

type RedisConnectionInput struct {
	Name        string
	Host        string
	Port        int
	DBIndex     int
	Password    string
	Status      domain.ConnectionStatus
	Timeout     int
	Description string
}

type DatabaseConnectionInput struct {
	Name         string
	DBType       domain.DatabaseType
	Host         string
	Port         int
	DatabaseName string
	Username     string
	Password     string
	Status       domain.ConnectionStatus
	Timeout      int
	Description  string
}

// ConnectionService manages connection profiles. Passwords are sealed on
// write and only opened inside Test* and backup runs.
type ConnectionService interface {
	CreateRedis(ctx context.Context, tenantID uint, input RedisConnectionInput) (*domain.RedisConnection, error)
	GetRedis(ctx context.Context, tenantID, id uint) (*domain.RedisConnection, error)
	ListRedis(ctx context.Context, tenantID uint, page PageRequest) ([]domain.RedisConnection, int64, error)
	// UpdateRedis replaces the profile; an empty password keeps the stored one.
	UpdateRedis(ctx context.Context, tenantID, id uint, input RedisConnectionInput) (*domain.RedisConnection, error)
	DeleteRedis(ctx context.Context, tenantID, id uint) error
	TestRedis(ctx context.Context, tenantID, id uint) (time.Duration, error)

	CreateDatabase(ctx context.Context, tenantID uint, input DatabaseConnectionInput) (*domain.DatabaseConnection, error)
	GetDatabase(ctx context.Context, tenantID, id uint) (*domain.DatabaseConnection, error)
	ListDatabases(ctx context.Context, tenantID uint, page PageRequest) ([]domain.DatabaseConnection, int64, error)
	UpdateDatabase(ctx context.Context, tenantID, id uint, input DatabaseConnectionInput) (*domain.DatabaseConnection, error)
	DeleteDatabase(ctx context.Context, tenantID, id uint) error
	TestDatabase(ctx context.Context, tenantID, id uint) (time.Duration, error)
}

type CreateHostInput struct {
	Name     string
	Address  string
	SSHPort  int
	User     string
	Password string
	SSHKey   string
}

type HostService interface {
	CreateHost(ctx context.Context, tenantID uint, input CreateHostInput) (*domain.Host, error)
	GetHost(ctx context.Context, tenantID, id uint) (*domain.Host, error)
	ListHosts(ctx context.Context, tenantID uint, page PageRequest) ([]domain.Host, int64, error)
	DeleteHost(ctx context.Context, tenantID, id uint) error
}

type ManualBackupInput struct {
	ConnectionID *uint
	HostID       *uint
	RemotePath   string
	CreatedBy    string
}

type BackupService interface {
	ListBackups(ctx context.Context, tenantID uint, filter BackupFilter, page PageRequest) ([]domain.BackupRecord, int64, error)
	CreateManual(ctx context.Context, tenantID uint, input ManualBackupInput) (*domain.BackupRecord, error)
	DeleteBackup(ctx context.Context, tenantID, id uint) error
	// CheckSchedule runs every due policy and returns how many ran.
	CheckSchedule(ctx context.Context) (int, error)
}

type NotifyInput struct {
	TenantID    *uint
	UserID      *uint
	Level       domain.NotificationLevel
	Title       string
	Message     string
	RelatedType string
	RelatedID   *uint
	TTL         time.Duration
}

type NotificationService interface {
	Notify(ctx context.Context, input NotifyInput) (*domain.SystemNotification, error)
	ListNotifications(ctx context.Context, tenantID uint, filter NotificationFilter, page PageRequest) ([]domain.SystemNotification, int64, error)
	MarkRead(ctx context.Context, tenantID, id uint) error
	DeleteNotification(ctx context.Context, tenantID, id uint) error
}

type CreatePlaybookInput struct {
	Playbook   string
	Limit      string
	ExtraVars  map[string]string
	TotalTasks int
	CreatedBy  string
}

// PlaybookResultInput is posted by the runner callback. Status, when set,
// finalizes the execution.
type PlaybookResultInput struct {
	Delta        domain.ProgressDelta
	Status       domain.ExecutionStatus
	ErrorMessage string
}

type PlaybookService interface {
	CreateExecution(ctx context.Context, tenantID uint, input CreatePlaybookInput) (*domain.PlaybookExecution, error)
	GetExecution(ctx context.Context, tenantID uint, executionID string) (*domain.PlaybookExecution, error)
	ListExecutions(ctx context.Context, tenantID uint, page PageRequest) ([]domain.PlaybookExecution, int64, error)
	RecordResults(ctx context.Context, tenantID uint, executionID string, input PlaybookResultInput) (*domain.PlaybookExecution, error)
	RunExecution(ctx context.Context, tenantID uint, executionID string) error
}

type AuditEntry struct {
	TenantID     uint
	UserID       *uint
	Action       string
	ResourceType string
	ResourceID   *uint
	Details      domain.JSONB
	IPAddress    string
}

type AuditService interface {
	Record(ctx context.Context, entry AuditEntry)
	ListAuditLogs(ctx context.Context, tenantID uint, page PageRequest) ([]domain.AuditLog, int64, error)
}

// ScheduleView is the API projection of a scheduled definition.
type ScheduleView struct {
	Name      string                 `json:"name"`
	Task      string                 `json:"task"`
	Rule      string                 `json:"rule"`
	Queue     string                 `json:"queue"`
	Priority  int                    `json:"priority"`
	Enabled   bool                   `json:"enabled"`
	Kwargs    map[string]interface{} `json:"kwargs,omitempty"`
	NextRunAt *time.Time             `json:"next_run_at,omitempty"`
}

type ScheduleService interface {
	ListSchedules(ctx context.Context) ([]ScheduleView, error)
	SetEnabled(ctx context.Context, name string, enabled bool) (*ScheduleView, error)
	RunNow(ctx context.Context, name string) (*domain.TaskInvocation, error)
	Revoke(ctx context.Context, invocationID string) error
	QueueLengths(ctx context.Context) (map[string]int64, error)
}
