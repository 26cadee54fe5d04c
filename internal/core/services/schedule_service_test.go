package services

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opspanel/backend/internal/core/schedule"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/infrastructure/queue"
)

func TestScheduleService(t *testing.T) {
	table, err := schedule.BuildTable(schedule.DefaultEntries(), time.UTC, nil)
	require.NoError(t, err)
	registry := schedule.NewRegistry(table, nil)
	overrides := queue.NewMemoryOverrides()
	broker := queue.NewMemoryBroker()
	now := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)
	ctx := context.Background()

	svc := NewScheduleService(ScheduleServiceConfig{
		Registry:  registry,
		Overrides: overrides,
		Broker:    broker,
		Logger:    logger.NewNop(),
		Clock:     func() time.Time { return now },
	})

	views, err := svc.ListSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, views, table.Len())
	for _, v := range views {
		if v.Name == "cleanup-probe-results" {
			assert.Equal(t, "cron(0 3 * * *)", v.Rule)
			require.NotNil(t, v.NextRunAt)
			assert.True(t, v.NextRunAt.Equal(time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)))
		}
	}

	v, err := svc.SetEnabled(ctx, "probe-network", false)
	require.NoError(t, err)
	assert.False(t, v.Enabled)
	assert.Nil(t, v.NextRunAt)
	stored, err := overrides.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"probe-network": false}, stored)

	_, err = svc.SetEnabled(ctx, "nope", true)
	assert.True(t, domain.IsKind(err, domain.ErrNotFound))

	// run-now ignores the enabled flag
	inv, err := svc.RunNow(ctx, "probe-network")
	require.NoError(t, err)
	assert.Equal(t, domain.OriginAPI, inv.Origin)

	lengths, err := svc.QueueLengths(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, lengths[domain.QueueProbe])

	require.NoError(t, svc.Revoke(ctx, inv.ID))
	revoked, err := broker.IsRevoked(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	assert.True(t, errors.Is(svc.Revoke(ctx, ""), ErrScheduleInvalidInput))
}
