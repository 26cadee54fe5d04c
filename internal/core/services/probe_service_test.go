package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opspanel/backend/internal/config"
	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/db"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/infrastructure/metrics"
	"github.com/opspanel/backend/internal/infrastructure/remote"
)

type fakeChecker struct {
	mu   sync.Mutex
	down map[string]bool
	hits []string
}

func (c *fakeChecker) check(host string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits = append(c.hits, host)
	if c.down[host] {
		return 0, errors.New("connection refused")
	}
	return 3 * time.Millisecond, nil
}

func (c *fakeChecker) TCP(_ context.Context, host string, _ int, _ time.Duration) (time.Duration, error) {
	return c.check(host)
}

func (c *fakeChecker) ICMP(_ context.Context, host string, _ time.Duration) (time.Duration, error) {
	return c.check(host)
}

func TestProbeService_NetworkProbes(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	log := logger.NewNop()
	clock := newManualClock(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC))
	m := metrics.New()
	checker := &fakeChecker{down: map[string]bool{"10.9.9.9": true}}

	repo := db.NewNetworkProbeRepository(gdb, log)
	for _, p := range []*domain.NetworkProbe{
		{TenantID: 1, Name: "gw", Target: "10.0.0.1", Kind: domain.ProbeKindICMP, IntervalSeconds: 60, Enabled: true},
		{TenantID: 1, Name: "web", Target: "10.0.0.2", Kind: domain.ProbeKindTCP, Port: 443, IntervalSeconds: 300, Enabled: true},
		{TenantID: 2, Name: "dead", Target: "10.9.9.9", Kind: domain.ProbeKindTCP, Port: 22, IntervalSeconds: 60, Enabled: true},
	} {
		require.NoError(t, repo.Create(ctx, p))
	}

	svc := NewProbeService(ProbeServiceConfig{
		NetworkProbes: repo,
		Checker:       checker,
		Config:        config.ProbeConfig{Concurrency: 2},
		Metrics:       m,
		Logger:        log,
		Clock:         clock.Now,
	})

	sum, err := svc.RunNetworkProbes(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, ProbeSummary{Checked: 3, Succeeded: 2, Failed: 1}, sum)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProbeResults.WithLabelValues("network", "tcp", "false")))

	var results []domain.NetworkProbeResult
	require.NoError(t, gdb.Order("probe_id").Find(&results).Error)
	require.Len(t, results, 3)
	assert.False(t, results[2].Success)
	assert.Contains(t, results[2].Message, "refused")
	assert.InDelta(t, 3.0, results[0].LatencyMS, 0.001)

	// nothing is due until the shortest interval passes
	sum, err = svc.RunNetworkProbes(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Checked)

	clock.Advance(61 * time.Second)
	sum, err = svc.RunNetworkProbes(ctx, uintPtr(1))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Checked)
}

func TestProbeService_HostProbesUpdateStatus(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	log := logger.NewNop()
	vault := newTestVault(t)
	clock := newManualClock(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC))

	hostRepo := db.NewHostRepository(gdb, log)
	hosts := NewHostService(hostRepo, vault, log)
	up, err := hosts.CreateHost(ctx, 1, ports.CreateHostInput{Name: "up", Address: "192.0.2.1", User: "root", Password: "pw"})
	require.NoError(t, err)
	down, err := hosts.CreateHost(ctx, 1, ports.CreateHostInput{Name: "down", Address: "192.0.2.2", User: "root", Password: "pw"})
	require.NoError(t, err)

	probes := db.NewHostProbeRepository(gdb, log)
	require.NoError(t, probes.Create(ctx, &domain.HostProbe{TenantID: 1, HostID: up.ID, Kind: domain.ProbeKindSSH, IntervalSeconds: 60, Enabled: true}))
	require.NoError(t, probes.Create(ctx, &domain.HostProbe{TenantID: 1, HostID: down.ID, Kind: domain.ProbeKindSSH, IntervalSeconds: 60, Enabled: true}))

	var users []string
	var mu sync.Mutex
	handshake := func(_ context.Context, cfg remote.SSHConfig) (time.Duration, error) {
		mu.Lock()
		users = append(users, cfg.User+":"+cfg.Password)
		mu.Unlock()
		if cfg.Host == "192.0.2.2" {
			return 0, remote.ErrSSHTimeout
		}
		return 10 * time.Millisecond, nil
	}

	svc := NewProbeService(ProbeServiceConfig{
		HostProbes: probes,
		Hosts:      hostRepo,
		Vault:      vault,
		Checker:    &fakeChecker{},
		Handshake:  handshake,
		Logger:     log,
		Clock:      clock.Now,
	})

	sum, err := svc.RunHostProbes(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, ProbeSummary{Checked: 2, Succeeded: 1, Failed: 1}, sum)
	assert.Equal(t, []string{"root:pw", "root:pw"}, users)

	got, err := hostRepo.GetByID(ctx, 1, up.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HostStatusOnline, got.Status)
	require.NotNil(t, got.LastSeenAt)

	got, err = hostRepo.GetByID(ctx, 1, down.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HostStatusOffline, got.Status)
	assert.Nil(t, got.LastSeenAt)
}

func TestProbeService_HostProbeForDeletedHostRecordsFailure(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	log := logger.NewNop()
	clock := newManualClock(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC))

	probes := db.NewHostProbeRepository(gdb, log)
	probe := &domain.HostProbe{TenantID: 1, HostID: 404, Kind: domain.ProbeKindTCP, IntervalSeconds: 60, Enabled: true}
	require.NoError(t, probes.Create(ctx, probe))

	svc := NewProbeService(ProbeServiceConfig{
		HostProbes: probes,
		Hosts:      db.NewHostRepository(gdb, log),
		Vault:      newTestVault(t),
		Checker:    &fakeChecker{},
		Logger:     log,
		Clock:      clock.Now,
	})

	sum, err := svc.RunHostProbes(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, ProbeSummary{Checked: 1, Failed: 1}, sum)

	var results []domain.HostProbeResult
	require.NoError(t, gdb.Find(&results).Error)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.EqualValues(t, 404, results[0].HostID)
	assert.Contains(t, results[0].Message, "not found")

	var stored domain.HostProbe
	require.NoError(t, gdb.First(&stored, probe.ID).Error)
	require.NotNil(t, stored.LastProbedAt)

	// not due again inside the interval
	sum, err = svc.RunHostProbes(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, sum.Checked)
}
