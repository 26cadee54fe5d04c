package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/opspanel/backend/internal/config"
	"github.com/opspanel/backend/internal/infrastructure/cache"
	"github.com/opspanel/backend/internal/infrastructure/db"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/infrastructure/metrics"
)

// ConfigPath is set by the root --config flag.
var ConfigPath string

const shutdownGrace = 30 * time.Second

// process holds the clients opened at start. They are created in
// dependency order and closed in reverse by close.
type process struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *gorm.DB
	redis   *redis.Client
	metrics *metrics.Metrics
}

// openProcess fails before any work is accepted when configuration or a
// required client is unusable.
func openProcess(ctx context.Context, name string, withRedis bool) (*process, error) {
	cfg, err := config.Load(ConfigPath)
	if err != nil {
		return nil, err
	}

	base, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize logger")
	}
	rt := &process{cfg: cfg, log: base.Named(name), metrics: metrics.New()}

	rt.db, err = db.NewConnection(ctx, cfg.Database, rt.log)
	if err != nil {
		rt.close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if withRedis {
		rt.redis, err = cache.NewRedisClient(ctx, cfg.Redis, rt.log)
		if err != nil {
			rt.close()
			return nil, errors.Wrap(err, "failed to connect to redis")
		}
	}
	return rt, nil
}

// redisClient returns nil as an interface when no client was opened.
func (rt *process) redisClient() redis.UniversalClient {
	if rt.redis == nil {
		return nil
	}
	return rt.redis
}

func (rt *process) close() {
	if rt.redis != nil {
		cache.Close(rt.redis, rt.log)
	}
	if rt.db != nil {
		if err := db.Close(rt.db); err != nil {
			rt.log.Errorw("database_close_failed", "error", err)
		}
	}
	_ = rt.log.Sync()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func redisKey(cfg *config.Config, key string) string {
	if cfg.Redis.KeyPrefix == "" {
		return key
	}
	return cfg.Redis.KeyPrefix + ":" + key
}
