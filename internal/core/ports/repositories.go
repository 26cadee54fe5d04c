package ports

import (
	"context"
	"time"

	"github.com/opspanel/backend/internal/domain"
)

type PageRequest struct {
	Page    int
	PerPage int
}

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

func (p PageRequest) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PerPage
}

// RetentionStore is implemented by every table swept by age.
type RetentionStore interface {
	Table() string
	TenantIDs(ctx context.Context) ([]uint, error)
	DeleteOlderThan(ctx context.Context, tenantID uint, cutoff time.Time) (int64, error)
}

type HostRepository interface {
	Create(ctx context.Context, host *domain.Host) error
	GetByID(ctx context.Context, tenantID, id uint) (*domain.Host, error)
	List(ctx context.Context, tenantID uint, page PageRequest) ([]domain.Host, int64, error)
	UpdateStatus(ctx context.Context, tenantID, id uint, status domain.HostStatus, seenAt *time.Time) error
	Delete(ctx context.Context, tenantID, id uint) error
}

type RedisConnectionRepository interface {
	Create(ctx context.Context, conn *domain.RedisConnection) error
	GetByID(ctx context.Context, tenantID, id uint) (*domain.RedisConnection, error)
	GetByName(ctx context.Context, tenantID uint, name string) (*domain.RedisConnection, error)
	List(ctx context.Context, tenantID uint, page PageRequest) ([]domain.RedisConnection, int64, error)
	Update(ctx context.Context, conn *domain.RedisConnection) error
	Delete(ctx context.Context, tenantID, id uint) error
}

type DatabaseConnectionRepository interface {
	Create(ctx context.Context, conn *domain.DatabaseConnection) error
	GetByID(ctx context.Context, tenantID, id uint) (*domain.DatabaseConnection, error)
	GetByName(ctx context.Context, tenantID uint, name string) (*domain.DatabaseConnection, error)
	List(ctx context.Context, tenantID uint, page PageRequest) ([]domain.DatabaseConnection, int64, error)
	Update(ctx context.Context, conn *domain.DatabaseConnection) error
	Delete(ctx context.Context, tenantID, id uint) error
}

type BackupFilter struct {
	Category domain.BackupCategory
	Status   domain.BackupStatus
}

type BackupPolicyRepository interface {
	Create(ctx context.Context, policy *domain.BackupPolicy) error
	GetByID(ctx context.Context, tenantID, id uint) (*domain.BackupPolicy, error)
	TenantIDs(ctx context.Context) ([]uint, error)
	ListEnabled(ctx context.Context, tenantID uint) ([]domain.BackupPolicy, error)
	// ClaimRun is a compare-and-swap on last_backup_at; false means another
	// delivery already claimed this run.
	ClaimRun(ctx context.Context, tenantID, id uint, previous *time.Time, at time.Time) (bool, error)
}

type BackupRecordRepository interface {
	Create(ctx context.Context, record *domain.BackupRecord) error
	GetByID(ctx context.Context, tenantID, id uint) (*domain.BackupRecord, error)
	List(ctx context.Context, tenantID uint, filter BackupFilter, page PageRequest) ([]domain.BackupRecord, int64, error)
	ListAutoSuccess(ctx context.Context, tenantID, policyID uint) ([]domain.BackupRecord, error)
	// SoftDelete moves a success record to deleted. Any other current
	// status yields domain.ErrInvalidStatus.
	SoftDelete(ctx context.Context, tenantID, id uint, at time.Time) error
}

type NotificationFilter struct {
	UserID     *uint
	UnreadOnly bool
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.SystemNotification) error
	// List returns the tenant's notifications plus global ones.
	List(ctx context.Context, tenantID uint, filter NotificationFilter, page PageRequest) ([]domain.SystemNotification, int64, error)
	MarkRead(ctx context.Context, tenantID, id uint, at time.Time) error
	Delete(ctx context.Context, tenantID, id uint) error
	TenantIDs(ctx context.Context) ([]uint, error)
	// DeleteExpired sweeps one tenant, or the global rows when tenantID is nil.
	DeleteExpired(ctx context.Context, tenantID *uint, now time.Time) (int64, error)
}

type PlaybookExecutionRepository interface {
	Create(ctx context.Context, exec *domain.PlaybookExecution) error
	GetByExecutionID(ctx context.Context, tenantID uint, executionID string) (*domain.PlaybookExecution, error)
	List(ctx context.Context, tenantID uint, page PageRequest) ([]domain.PlaybookExecution, int64, error)
	// IncrementProgress applies delta as atomic column increments on a
	// non-terminal execution.
	IncrementProgress(ctx context.Context, tenantID uint, executionID string, delta domain.ProgressDelta) error
	// Transition is a compare-and-swap on status; it reports whether the row moved.
	Transition(ctx context.Context, tenantID uint, executionID string, from []domain.ExecutionStatus, to domain.ExecutionStatus, fields map[string]interface{}) (bool, error)
	TenantIDs(ctx context.Context) ([]uint, error)
	MarkStale(ctx context.Context, tenantID uint, startedBefore, now time.Time) (int64, error)
}

type NetworkProbeRepository interface {
	Create(ctx context.Context, probe *domain.NetworkProbe) error
	TenantIDs(ctx context.Context) ([]uint, error)
	ListEnabled(ctx context.Context, tenantID uint) ([]domain.NetworkProbe, error)
	MarkProbed(ctx context.Context, tenantID, id uint, at time.Time) error
	CreateResult(ctx context.Context, result *domain.NetworkProbeResult) error
}

type HostProbeRepository interface {
	Create(ctx context.Context, probe *domain.HostProbe) error
	TenantIDs(ctx context.Context) ([]uint, error)
	ListEnabled(ctx context.Context, tenantID uint) ([]domain.HostProbe, error)
	MarkProbed(ctx context.Context, tenantID, id uint, at time.Time) error
	CreateResult(ctx context.Context, result *domain.HostProbeResult) error
}

type AuditLogRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
	List(ctx context.Context, tenantID uint, page PageRequest) ([]domain.AuditLog, int64, error)
}
