package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opspanel/backend/internal/domain"
)

func TestLoad_DefaultsAndEnvironment(t *testing.T) {
	t.Setenv("OPSPANEL_SECURITY_ENCRYPTION_KEY", "k")
	t.Setenv("OPSPANEL_SERVER_PORT", "9090")
	t.Setenv("OPSPANEL_SCHEDULER_TICK_INTERVAL", "2s")
	t.Setenv("OPSPANEL_DATABASE_DRIVER", "sqlite")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Address())
	assert.Equal(t, 2*time.Second, cfg.Scheduler.TickInterval)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "opspanel.db", cfg.Database.DSN())
	assert.Equal(t, 30, cfg.Database.MaxOpenConns())
	assert.Equal(t, "opspanel", cfg.Redis.KeyPrefix)
	assert.Equal(t, "beat:leader", cfg.Scheduler.LockKey)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opspanel.yaml")
	body := []byte("security:\n  encryption_key: from-file\nworker:\n  concurrency: 8\nscheduler:\n  timezone: Europe/Berlin\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("OPSPANEL_WORKER_CONCURRENCY", "2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Security.EncryptionKey)
	assert.Equal(t, 2, cfg.Worker.Concurrency)
	loc, err := cfg.Scheduler.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrConfiguration))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:  DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, Name: "opspanel"},
			Redis:     RedisConfig{Host: "redis", Port: 6379},
			Security:  SecurityConfig{EncryptionKey: "k"},
			Scheduler: SchedulerConfig{TickInterval: time.Second, EnqueueTimeout: 500 * time.Millisecond, Timezone: "UTC"},
			Worker:    WorkerConfig{Queues: []string{"default"}, Concurrency: 1},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, "not supported"},
		{"sqlite without path", func(c *Config) { c.Database.Driver = "sqlite" }, "database.path"},
		{"missing key", func(c *Config) { c.Security.EncryptionKey = "" }, "encryption_key"},
		{"zero tick", func(c *Config) { c.Scheduler.TickInterval = 0 }, "tick_interval"},
		{"slow enqueue", func(c *Config) { c.Scheduler.EnqueueTimeout = time.Minute }, "enqueue_timeout"},
		{"bad timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, "scheduler.timezone"},
		{"no queues", func(c *Config) { c.Worker.Queues = nil }, "worker.queues"},
		{"no workers", func(c *Config) { c.Worker.Concurrency = 0 }, "worker.concurrency"},
		{"no redis", func(c *Config) { c.Redis.Host = "" }, "redis.host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, "configuration", domain.Kind(err))
		})
	}
}

func TestDSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable", PoolTimeout: 10 * time.Second}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable connect_timeout=10", pg.DSN())

	my := DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Name: "n", PoolTimeout: 5 * time.Second}
	assert.Equal(t, "u:p@tcp(db:3306)/n?charset=utf8mb4&parseTime=True&loc=UTC&timeout=5s", my.DSN())
}
