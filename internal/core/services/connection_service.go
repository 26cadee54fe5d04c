package services

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/opspanel/backend/internal/config"
	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/db"
	"github.com/opspanel/backend/internal/infrastructure/logger"
)

type connectionService struct {
	redisRepo ports.RedisConnectionRepository
	dbRepo    ports.DatabaseConnectionRepository
	vault     *Vault
	logger    *logger.Logger
}

type ConnectionServiceConfig struct {
	RedisRepository    ports.RedisConnectionRepository
	DatabaseRepository ports.DatabaseConnectionRepository
	Vault              *Vault
	Logger             *logger.Logger
}

func NewConnectionService(cfg ConnectionServiceConfig) ports.ConnectionService {
	return &connectionService{
		redisRepo: cfg.RedisRepository,
		dbRepo:    cfg.DatabaseRepository,
		vault:     cfg.Vault,
		logger:    cfg.Logger,
	}
}

func validatePort(port int) bool {
	return port > 0 && port < 65536
}

func normalizeStatus(s domain.ConnectionStatus) (domain.ConnectionStatus, error) {
	switch s {
	case "":
		return domain.ConnectionStatusEnabled, nil
	case domain.ConnectionStatusEnabled, domain.ConnectionStatusDisabled:
		return s, nil
	default:
		return "", errors.Wrapf(ErrConnectionInvalidInput, "unknown status %q", s)
	}
}

func (s *connectionService) validateRedis(input ports.RedisConnectionInput) error {
	switch {
	case strings.TrimSpace(input.Name) == "":
		return errors.Wrap(ErrConnectionInvalidInput, "name is required")
	case strings.TrimSpace(input.Host) == "":
		return errors.Wrap(ErrConnectionInvalidInput, "host is required")
	case !validatePort(input.Port):
		return errors.Wrapf(ErrConnectionInvalidInput, "invalid port %d", input.Port)
	case input.DBIndex < 0 || input.DBIndex > 15:
		return errors.Wrapf(ErrConnectionInvalidInput, "db index %d outside 0..15", input.DBIndex)
	case input.Timeout < 0:
		return errors.Wrap(ErrConnectionInvalidInput, "timeout must not be negative")
	}
	return nil
}

func (s *connectionService) CreateRedis(ctx context.Context, tenantID uint, input ports.RedisConnectionInput) (*domain.RedisConnection, error) {
	if err := s.validateRedis(input); err != nil {
		return nil, err
	}
	status, err := normalizeStatus(input.Status)
	if err != nil {
		return nil, err
	}
	sealed, err := s.vault.Seal(tenantID, input.Password)
	if err != nil {
		s.logger.Errorw("failed to encrypt redis password", "tenant_id", tenantID, "error", err)
		return nil, err
	}

	conn := &domain.RedisConnection{
		TenantID:    tenantID,
		Name:        strings.TrimSpace(input.Name),
		Host:        input.Host,
		Port:        input.Port,
		DBIndex:     input.DBIndex,
		Password:    sealed,
		Status:      status,
		Timeout:     input.Timeout,
		Description: input.Description,
	}
	if conn.Timeout == 0 {
		conn.Timeout = 5
	}
	if err := s.redisRepo.Create(ctx, conn); err != nil {
		return nil, err
	}
	s.logger.Infow("redis connection created", "tenant_id", tenantID, "id", conn.ID, "name", conn.Name)
	return conn, nil
}

func (s *connectionService) GetRedis(ctx context.Context, tenantID, id uint) (*domain.RedisConnection, error) {
	return s.redisRepo.GetByID(ctx, tenantID, id)
}

func (s *connectionService) ListRedis(ctx context.Context, tenantID uint, page ports.PageRequest) ([]domain.RedisConnection, int64, error) {
	return s.redisRepo.List(ctx, tenantID, page)
}

func (s *connectionService) UpdateRedis(ctx context.Context, tenantID, id uint, input ports.RedisConnectionInput) (*domain.RedisConnection, error) {
	if err := s.validateRedis(input); err != nil {
		return nil, err
	}
	status, err := normalizeStatus(input.Status)
	if err != nil {
		return nil, err
	}
	conn, err := s.redisRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if input.Password != "" {
		sealed, err := s.vault.Seal(tenantID, input.Password)
		if err != nil {
			return nil, err
		}
		conn.Password = sealed
	}
	conn.Name = strings.TrimSpace(input.Name)
	conn.Host = input.Host
	conn.Port = input.Port
	conn.DBIndex = input.DBIndex
	conn.Status = status
	if input.Timeout > 0 {
		conn.Timeout = input.Timeout
	}
	conn.Description = input.Description

	if err := s.redisRepo.Update(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *connectionService) DeleteRedis(ctx context.Context, tenantID, id uint) error {
	return s.redisRepo.Delete(ctx, tenantID, id)
}

// TestRedis dials the profile with its own timeout and returns the PING
// round trip.
func (s *connectionService) TestRedis(ctx context.Context, tenantID, id uint) (time.Duration, error) {
	conn, err := s.redisRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return 0, err
	}
	if conn.Status == domain.ConnectionStatusDisabled {
		return 0, ErrConnectionDisabled
	}
	password, err := s.vault.Open(tenantID, conn.Password)
	if err != nil {
		return 0, err
	}

	timeout := time.Duration(conn.Timeout) * time.Second
	client := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port)),
		Password:     password,
		DB:           conn.DBIndex,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		MaxRetries:   -1,
	})
	defer client.Close()

	start := time.Now()
	if err := client.Ping(ctx).Err(); err != nil {
		s.logger.Warnw("redis connection test failed", "tenant_id", tenantID, "id", id, "error", err)
		return 0, errors.Wrapf(ErrConnectionTestFailed, "%v", err)
	}
	return time.Since(start), nil
}

func (s *connectionService) validateDatabase(input ports.DatabaseConnectionInput) error {
	switch {
	case strings.TrimSpace(input.Name) == "":
		return errors.Wrap(ErrConnectionInvalidInput, "name is required")
	case strings.TrimSpace(input.Host) == "":
		return errors.Wrap(ErrConnectionInvalidInput, "host is required")
	case !validatePort(input.Port):
		return errors.Wrapf(ErrConnectionInvalidInput, "invalid port %d", input.Port)
	case input.DBType != domain.DatabaseTypePostgres && input.DBType != domain.DatabaseTypeMySQL:
		return errors.Wrapf(ErrConnectionInvalidInput, "unsupported db type %q", input.DBType)
	case strings.TrimSpace(input.DatabaseName) == "":
		return errors.Wrap(ErrConnectionInvalidInput, "database name is required")
	case input.Timeout < 0:
		return errors.Wrap(ErrConnectionInvalidInput, "timeout must not be negative")
	}
	return nil
}

func (s *connectionService) CreateDatabase(ctx context.Context, tenantID uint, input ports.DatabaseConnectionInput) (*domain.DatabaseConnection, error) {
	if err := s.validateDatabase(input); err != nil {
		return nil, err
	}
	status, err := normalizeStatus(input.Status)
	if err != nil {
		return nil, err
	}
	sealed, err := s.vault.Seal(tenantID, input.Password)
	if err != nil {
		s.logger.Errorw("failed to encrypt database password", "tenant_id", tenantID, "error", err)
		return nil, err
	}

	conn := &domain.DatabaseConnection{
		TenantID:     tenantID,
		Name:         strings.TrimSpace(input.Name),
		DBType:       input.DBType,
		Host:         input.Host,
		Port:         input.Port,
		DatabaseName: input.DatabaseName,
		Username:     input.Username,
		Password:     sealed,
		Status:       status,
		Timeout:      input.Timeout,
		Description:  input.Description,
	}
	if conn.Timeout == 0 {
		conn.Timeout = 10
	}
	if err := s.dbRepo.Create(ctx, conn); err != nil {
		return nil, err
	}
	s.logger.Infow("database connection created", "tenant_id", tenantID, "id", conn.ID, "name", conn.Name, "db_type", conn.DBType)
	return conn, nil
}

func (s *connectionService) GetDatabase(ctx context.Context, tenantID, id uint) (*domain.DatabaseConnection, error) {
	return s.dbRepo.GetByID(ctx, tenantID, id)
}

func (s *connectionService) ListDatabases(ctx context.Context, tenantID uint, page ports.PageRequest) ([]domain.DatabaseConnection, int64, error) {
	return s.dbRepo.List(ctx, tenantID, page)
}

func (s *connectionService) UpdateDatabase(ctx context.Context, tenantID, id uint, input ports.DatabaseConnectionInput) (*domain.DatabaseConnection, error) {
	if err := s.validateDatabase(input); err != nil {
		return nil, err
	}
	status, err := normalizeStatus(input.Status)
	if err != nil {
		return nil, err
	}
	conn, err := s.dbRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if input.Password != "" {
		sealed, err := s.vault.Seal(tenantID, input.Password)
		if err != nil {
			return nil, err
		}
		conn.Password = sealed
	}
	conn.Name = strings.TrimSpace(input.Name)
	conn.DBType = input.DBType
	conn.Host = input.Host
	conn.Port = input.Port
	conn.DatabaseName = input.DatabaseName
	conn.Username = input.Username
	conn.Status = status
	if input.Timeout > 0 {
		conn.Timeout = input.Timeout
	}
	conn.Description = input.Description

	if err := s.dbRepo.Update(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *connectionService) DeleteDatabase(ctx context.Context, tenantID, id uint) error {
	return s.dbRepo.Delete(ctx, tenantID, id)
}

// databaseDSN opens the stored password and renders a driver DSN. The
// result must not outlive the caller.
func databaseDSN(conn *domain.DatabaseConnection, password string) (driver, dsn string) {
	cfg := config.DatabaseConfig{
		Driver:      string(conn.DBType),
		Host:        conn.Host,
		Port:        conn.Port,
		User:        conn.Username,
		Password:    password,
		Name:        conn.DatabaseName,
		SSLMode:     "prefer",
		PoolTimeout: time.Duration(conn.Timeout) * time.Second,
	}
	return cfg.Driver, cfg.DSN()
}

func (s *connectionService) TestDatabase(ctx context.Context, tenantID, id uint) (time.Duration, error) {
	conn, err := s.dbRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return 0, err
	}
	if conn.Status == domain.ConnectionStatusDisabled {
		return 0, ErrConnectionDisabled
	}
	password, err := s.vault.Open(tenantID, conn.Password)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	driver, dsn := databaseDSN(conn, password)
	gdb, err := db.Open(driver, dsn, s.logger)
	if err != nil {
		s.logger.Warnw("database connection test failed", "tenant_id", tenantID, "id", id, "db_type", conn.DBType, "error", errors.Redact(err))
		return 0, errors.Wrap(ErrConnectionTestFailed, "open failed")
	}
	defer db.Close(gdb)

	pingCtx, cancel := context.WithTimeout(ctx, time.Duration(conn.Timeout)*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx, gdb); err != nil {
		return 0, errors.Wrap(ErrConnectionTestFailed, "ping failed")
	}
	return time.Since(start), nil
}
