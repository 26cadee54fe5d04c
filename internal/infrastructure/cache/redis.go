package cache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/opspanel/backend/internal/config"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
)

// NewRedisClient builds the one client a process shares between the broker,
// the scheduler lock and health checks. It must be created before any of
// them and closed with Close after they have stopped.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,

		DialTimeout:  cfg.SocketConnectTimeout,
		ReadTimeout:  cfg.SocketTimeout,
		WriteTimeout: cfg.SocketTimeout,

		// Idle connections older than the health-check interval are dropped
		// instead of being handed out possibly dead.
		ConnMaxIdleTime: cfg.HealthCheckInterval,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, domain.MarkTransient(errors.Wrapf(err, "redis ping %s", cfg.Address()))
	}

	log.Infow("redis_connected", "address", cfg.Address(), "db", cfg.DB)
	return client, nil
}

func HealthCheck(ctx context.Context, client redis.UniversalClient) error {
	if client == nil {
		return errors.New("redis client nil")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

func Close(client redis.UniversalClient, log *logger.Logger) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		log.Warnw("redis_close_failed", "error", err)
		return
	}
	log.Infow("redis_closed")
}
