package db

import (
	"context"

	"gorm.io/gorm"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
)

type redisConnectionRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRedisConnectionRepository(db *gorm.DB, log *logger.Logger) ports.RedisConnectionRepository {
	return &redisConnectionRepository{db: db, log: log}
}

func (r *redisConnectionRepository) Create(ctx context.Context, conn *domain.RedisConnection) error {
	if err := requireTenant(conn.TenantID); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(conn).Error; err != nil {
		r.log.Errorw("redis_conn_repo_create_failed", "tenant_id", conn.TenantID, "name", conn.Name, "error", err)
		return translateWriteErr(err, "redis connection "+conn.Name)
	}
	r.log.Infow("redis_conn_repo_create_ok", "id", conn.ID, "tenant_id", conn.TenantID)
	return nil
}

func (r *redisConnectionRepository) GetByID(ctx context.Context, tenantID, id uint) (*domain.RedisConnection, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	var conn domain.RedisConnection
	if err := r.db.WithContext(ctx).Scopes(tenantScope(tenantID)).First(&conn, id).Error; err != nil {
		return nil, translateReadErr(err, "redis connection")
	}
	return &conn, nil
}

func (r *redisConnectionRepository) GetByName(ctx context.Context, tenantID uint, name string) (*domain.RedisConnection, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	var conn domain.RedisConnection
	if err := r.db.WithContext(ctx).Scopes(tenantScope(tenantID)).Where("name = ?", name).First(&conn).Error; err != nil {
		return nil, translateReadErr(err, "redis connection")
	}
	return &conn, nil
}

func (r *redisConnectionRepository) List(ctx context.Context, tenantID uint, page ports.PageRequest) ([]domain.RedisConnection, int64, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, 0, err
	}
	var (
		conns []domain.RedisConnection
		total int64
	)
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&domain.RedisConnection{}).Scopes(tenantScope(tenantID))
	}
	if err := base().Count(&total).Error; err != nil {
		r.log.Errorw("redis_conn_repo_count_failed", "tenant_id", tenantID, "error", err)
		return nil, 0, translateReadErr(err, "redis connections")
	}
	if err := base().Scopes(paginate(page)).Order("name").Find(&conns).Error; err != nil {
		r.log.Errorw("redis_conn_repo_list_failed", "tenant_id", tenantID, "error", err)
		return nil, 0, translateReadErr(err, "redis connections")
	}
	return conns, total, nil
}

func (r *redisConnectionRepository) Update(ctx context.Context, conn *domain.RedisConnection) error {
	if err := requireTenant(conn.TenantID); err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Scopes(tenantScope(conn.TenantID)).Where("id = ?", conn.ID).Select("*").Omit("id", "tenant_id", "created_at").Updates(conn)
	if res.Error != nil {
		r.log.Errorw("redis_conn_repo_update_failed", "id", conn.ID, "error", res.Error)
		return translateWriteErr(res.Error, "redis connection "+conn.Name)
	}
	if res.RowsAffected == 0 {
		return translateReadErr(gorm.ErrRecordNotFound, "redis connection")
	}
	r.log.Infow("redis_conn_repo_update_ok", "id", conn.ID)
	return nil
}

func (r *redisConnectionRepository) Delete(ctx context.Context, tenantID, id uint) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Scopes(tenantScope(tenantID)).Delete(&domain.RedisConnection{}, id)
	if res.Error != nil {
		r.log.Errorw("redis_conn_repo_delete_failed", "id", id, "error", res.Error)
		return translateWriteErr(res.Error, "redis connection")
	}
	if res.RowsAffected == 0 {
		return translateReadErr(gorm.ErrRecordNotFound, "redis connection")
	}
	r.log.Infow("redis_conn_repo_delete_ok", "id", id, "tenant_id", tenantID)
	return nil
}

type databaseConnectionRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDatabaseConnectionRepository(db *gorm.DB, log *logger.Logger) ports.DatabaseConnectionRepository {
	return &databaseConnectionRepository{db: db, log: log}
}

func (r *databaseConnectionRepository) Create(ctx context.Context, conn *domain.DatabaseConnection) error {
	if err := requireTenant(conn.TenantID); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(conn).Error; err != nil {
		r.log.Errorw("db_conn_repo_create_failed", "tenant_id", conn.TenantID, "name", conn.Name, "error", err)
		return translateWriteErr(err, "database connection "+conn.Name)
	}
	r.log.Infow("db_conn_repo_create_ok", "id", conn.ID, "tenant_id", conn.TenantID)
	return nil
}

func (r *databaseConnectionRepository) GetByID(ctx context.Context, tenantID, id uint) (*domain.DatabaseConnection, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	var conn domain.DatabaseConnection
	if err := r.db.WithContext(ctx).Scopes(tenantScope(tenantID)).First(&conn, id).Error; err != nil {
		return nil, translateReadErr(err, "database connection")
	}
	return &conn, nil
}

func (r *databaseConnectionRepository) GetByName(ctx context.Context, tenantID uint, name string) (*domain.DatabaseConnection, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	var conn domain.DatabaseConnection
	if err := r.db.WithContext(ctx).Scopes(tenantScope(tenantID)).Where("name = ?", name).First(&conn).Error; err != nil {
		return nil, translateReadErr(err, "database connection")
	}
	return &conn, nil
}

func (r *databaseConnectionRepository) List(ctx context.Context, tenantID uint, page ports.PageRequest) ([]domain.DatabaseConnection, int64, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, 0, err
	}
	var (
		conns []domain.DatabaseConnection
		total int64
	)
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&domain.DatabaseConnection{}).Scopes(tenantScope(tenantID))
	}
	if err := base().Count(&total).Error; err != nil {
		r.log.Errorw("db_conn_repo_count_failed", "tenant_id", tenantID, "error", err)
		return nil, 0, translateReadErr(err, "database connections")
	}
	if err := base().Scopes(paginate(page)).Order("name").Find(&conns).Error; err != nil {
		r.log.Errorw("db_conn_repo_list_failed", "tenant_id", tenantID, "error", err)
		return nil, 0, translateReadErr(err, "database connections")
	}
	return conns, total, nil
}

func (r *databaseConnectionRepository) Update(ctx context.Context, conn *domain.DatabaseConnection) error {
	if err := requireTenant(conn.TenantID); err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Scopes(tenantScope(conn.TenantID)).Where("id = ?", conn.ID).Select("*").Omit("id", "tenant_id", "created_at").Updates(conn)
	if res.Error != nil {
		r.log.Errorw("db_conn_repo_update_failed", "id", conn.ID, "error", res.Error)
		return translateWriteErr(res.Error, "database connection "+conn.Name)
	}
	if res.RowsAffected == 0 {
		return translateReadErr(gorm.ErrRecordNotFound, "database connection")
	}
	r.log.Infow("db_conn_repo_update_ok", "id", conn.ID)
	return nil
}

func (r *databaseConnectionRepository) Delete(ctx context.Context, tenantID, id uint) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Scopes(tenantScope(tenantID)).Delete(&domain.DatabaseConnection{}, id)
	if res.Error != nil {
		r.log.Errorw("db_conn_repo_delete_failed", "id", id, "error", res.Error)
		return translateWriteErr(res.Error, "database connection")
	}
	if res.RowsAffected == 0 {
		return translateReadErr(gorm.ErrRecordNotFound, "database connection")
	}
	r.log.Infow("db_conn_repo_delete_ok", "id", id, "tenant_id", tenantID)
	return nil
}
