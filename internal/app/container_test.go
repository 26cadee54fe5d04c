package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opspanel/backend/internal/config"
	"github.com/opspanel/backend/internal/core/jobs"
	"github.com/opspanel/backend/internal/core/worker"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/db"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/infrastructure/queue"
)

func testConfig() *config.Config {
	return &config.Config{
		Security: config.SecurityConfig{EncryptionKey: "container-test-key-0123456789abcdef"},
		Scheduler: config.SchedulerConfig{
			Timezone: "UTC",
		},
		Worker: config.WorkerConfig{Queues: []string{domain.QueueDefault, domain.QueueAnsible}},
	}
}

func TestBuildWiresEveryService(t *testing.T) {
	log := logger.NewNop()
	gdb, err := db.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), log)
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.RunMigrations(gdb, log))

	broker := queue.NewMemoryBroker()
	c, err := Build(Options{Config: testConfig(), DB: gdb, Logger: log, Broker: broker})
	require.NoError(t, err)

	assert.Same(t, broker, c.Broker)
	assert.NotNil(t, c.Overrides)
	assert.NotEmpty(t, c.Registry.All())

	reg := worker.NewRegistry()
	jobs.Register(reg, c.JobDeps())
	for _, name := range jobs.Names() {
		assert.True(t, reg.Has(name), name)
	}

	views, err := c.Schedules.ListSchedules(context.Background())
	require.NoError(t, err)
	assert.Len(t, views, len(c.Registry.All()))

	lengths, err := c.Schedules.QueueLengths(context.Background())
	require.NoError(t, err)
	assert.Len(t, lengths, 2)
}

func TestBuildRejectsMissingKey(t *testing.T) {
	cfg := testConfig()
	cfg.Security.EncryptionKey = ""
	gdb, err := db.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), logger.NewNop())
	require.NoError(t, err)

	_, err = Build(Options{Config: cfg, DB: gdb, Logger: logger.NewNop()})
	require.Error(t, err)
	assert.Equal(t, "configuration", domain.Kind(err))
}
