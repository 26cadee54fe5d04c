package services

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/opspanel/backend/internal/config"
	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/infrastructure/metrics"
	"github.com/opspanel/backend/internal/infrastructure/remote"
)

// ReachabilityChecker performs single network checks.
type ReachabilityChecker interface {
	TCP(ctx context.Context, host string, port int, timeout time.Duration) (time.Duration, error)
	ICMP(ctx context.Context, host string, timeout time.Duration) (time.Duration, error)
}

// SSHHandshaker opens and closes one SSH session.
type SSHHandshaker func(ctx context.Context, cfg remote.SSHConfig) (time.Duration, error)

func DefaultSSHHandshaker(ctx context.Context, cfg remote.SSHConfig) (time.Duration, error) {
	return remote.NewSSHClient(cfg).Handshake(ctx)
}

type ProbeSummary struct {
	Checked   int
	Succeeded int
	Failed    int
}

type ProbeService struct {
	networkProbes ports.NetworkProbeRepository
	hostProbes    ports.HostProbeRepository
	hosts         ports.HostRepository
	vault         *Vault
	checker       ReachabilityChecker
	handshake     SSHHandshaker
	limiter       *rate.Limiter
	concurrency   int
	timeout       time.Duration
	metrics       *metrics.Metrics
	logger        *logger.Logger
	now           Clock
}

type ProbeServiceConfig struct {
	NetworkProbes ports.NetworkProbeRepository
	HostProbes    ports.HostProbeRepository
	Hosts         ports.HostRepository
	Vault         *Vault
	Checker       ReachabilityChecker
	Handshake     SSHHandshaker
	Config        config.ProbeConfig
	Metrics       *metrics.Metrics
	Logger        *logger.Logger
	Clock         Clock
}

func NewProbeService(cfg ProbeServiceConfig) *ProbeService {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}
	handshake := cfg.Handshake
	if handshake == nil {
		handshake = DefaultSSHHandshaker
	}
	limit := rate.Inf
	burst := 1
	if cfg.Config.RatePerSecond > 0 {
		limit = rate.Limit(cfg.Config.RatePerSecond)
		burst = int(cfg.Config.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	concurrency := cfg.Config.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	timeout := cfg.Config.DefaultTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ProbeService{
		networkProbes: cfg.NetworkProbes,
		hostProbes:    cfg.HostProbes,
		hosts:         cfg.Hosts,
		vault:         cfg.Vault,
		checker:       cfg.Checker,
		handshake:     handshake,
		limiter:       rate.NewLimiter(limit, burst),
		concurrency:   concurrency,
		timeout:       timeout,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		now:           clock,
	}
}

func (s *ProbeService) probeTimeout(seconds int) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return s.timeout
}

func (s *ProbeService) record(scope string, kind domain.ProbeKind, ok bool) {
	if s.metrics != nil {
		s.metrics.ProbeResults.WithLabelValues(scope, string(kind), strconv.FormatBool(ok)).Inc()
	}
}

func latencyMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// fanOut runs check for n items with bounded concurrency and the shared
// rate limit. Only context cancellation aborts the batch.
func (s *ProbeService) fanOut(ctx context.Context, n int, check func(ctx context.Context, i int) bool) (ProbeSummary, error) {
	var ok, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return err
			}
			if check(gctx, i) {
				ok.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()
	return ProbeSummary{
		Checked:   int(ok.Load() + failed.Load()),
		Succeeded: int(ok.Load()),
		Failed:    int(failed.Load()),
	}, err
}

// RunNetworkProbes checks every due network probe and records one result
// per check. A failed check is a failed result, not an error.
func (s *ProbeService) RunNetworkProbes(ctx context.Context, only *uint) (ProbeSummary, error) {
	now := s.now()
	tenants, err := tenantTargets(only, func() ([]uint, error) { return s.networkProbes.TenantIDs(ctx) })
	if err != nil {
		return ProbeSummary{}, err
	}

	var due []domain.NetworkProbe
	for _, tenantID := range tenants {
		probes, err := s.networkProbes.ListEnabled(ctx, tenantID)
		if err != nil {
			s.logger.Errorw("probe_network_list_failed", "tenant_id", tenantID, "error", err)
			continue
		}
		for _, p := range probes {
			if domain.ProbeDue(p.Enabled, p.IntervalSeconds, p.LastProbedAt, now) {
				due = append(due, p)
			}
		}
	}

	summary, err := s.fanOut(ctx, len(due), func(ctx context.Context, i int) bool {
		return s.checkNetwork(ctx, &due[i])
	})
	s.logger.Infow("probe_network_batch_done",
		"due", len(due),
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)
	return summary, err
}

func (s *ProbeService) checkNetwork(ctx context.Context, p *domain.NetworkProbe) bool {
	timeout := s.probeTimeout(p.TimeoutSeconds)
	var (
		rtt time.Duration
		err error
	)
	switch p.Kind {
	case domain.ProbeKindTCP:
		rtt, err = s.checker.TCP(ctx, p.Target, p.Port, timeout)
	case domain.ProbeKindICMP:
		rtt, err = s.checker.ICMP(ctx, p.Target, timeout)
	default:
		err = errors.Wrapf(remote.ErrProbeUnsupported, "network probe kind %q", p.Kind)
	}

	result := &domain.NetworkProbeResult{
		TenantID: p.TenantID,
		ProbeID:  p.ID,
		Success:  err == nil,
	}
	if err != nil {
		result.Message = err.Error()
	} else {
		result.LatencyMS = latencyMS(rtt)
	}

	store := context.WithoutCancel(ctx)
	if werr := s.networkProbes.CreateResult(store, result); werr != nil {
		s.logger.Errorw("probe_result_write_failed", "probe_id", p.ID, "error", werr)
	}
	if werr := s.networkProbes.MarkProbed(store, p.TenantID, p.ID, s.now()); werr != nil {
		s.logger.Errorw("probe_mark_failed", "probe_id", p.ID, "error", werr)
	}
	s.record("network", p.Kind, result.Success)
	return result.Success
}

// hostCheck carries a nil host when the probe points at a deleted host.
type hostCheck struct {
	probe domain.HostProbe
	host  *domain.Host
}

// RunHostProbes checks every due host probe and moves the host status to
// online or offline accordingly.
func (s *ProbeService) RunHostProbes(ctx context.Context, only *uint) (ProbeSummary, error) {
	now := s.now()
	tenants, err := tenantTargets(only, func() ([]uint, error) { return s.hostProbes.TenantIDs(ctx) })
	if err != nil {
		return ProbeSummary{}, err
	}

	var due []hostCheck
	for _, tenantID := range tenants {
		probes, err := s.hostProbes.ListEnabled(ctx, tenantID)
		if err != nil {
			s.logger.Errorw("probe_host_list_failed", "tenant_id", tenantID, "error", err)
			continue
		}
		for _, p := range probes {
			if !domain.ProbeDue(p.Enabled, p.IntervalSeconds, p.LastProbedAt, now) {
				continue
			}
			host, err := s.hosts.GetByID(ctx, tenantID, p.HostID)
			switch {
			case domain.IsKind(err, domain.ErrNotFound):
				s.logger.Warnw("probe_host_missing", "probe_id", p.ID, "host_id", p.HostID)
				due = append(due, hostCheck{probe: p})
			case err != nil:
				s.logger.Errorw("probe_host_lookup_failed", "probe_id", p.ID, "host_id", p.HostID, "error", err)
			default:
				due = append(due, hostCheck{probe: p, host: host})
			}
		}
	}

	summary, err := s.fanOut(ctx, len(due), func(ctx context.Context, i int) bool {
		return s.checkHost(ctx, due[i])
	})
	s.logger.Infow("probe_host_batch_done",
		"due", len(due),
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)
	return summary, err
}

func (s *ProbeService) checkHost(ctx context.Context, c hostCheck) bool {
	p, host := c.probe, c.host
	timeout := s.probeTimeout(p.TimeoutSeconds)

	var (
		rtt time.Duration
		err error
	)
	switch {
	case host == nil:
		err = errors.Newf("host %d not found", p.HostID)
	case p.Kind == domain.ProbeKindTCP:
		rtt, err = s.checker.TCP(ctx, host.Address, host.SSHPort, timeout)
	case p.Kind == domain.ProbeKindICMP:
		rtt, err = s.checker.ICMP(ctx, host.Address, timeout)
	case p.Kind == domain.ProbeKindSSH:
		var sshCfg remote.SSHConfig
		sshCfg, err = s.vault.SSHConfig(host, timeout)
		if err == nil {
			rtt, err = s.handshake(ctx, sshCfg)
		}
	default:
		err = errors.Wrapf(remote.ErrProbeUnsupported, "host probe kind %q", p.Kind)
	}

	result := &domain.HostProbeResult{
		TenantID: p.TenantID,
		ProbeID:  p.ID,
		HostID:   p.HostID,
		Success:  err == nil,
	}
	if err != nil {
		result.Message = err.Error()
	} else {
		result.LatencyMS = latencyMS(rtt)
	}

	store := context.WithoutCancel(ctx)
	checkedAt := s.now()
	if werr := s.hostProbes.CreateResult(store, result); werr != nil {
		s.logger.Errorw("probe_result_write_failed", "probe_id", p.ID, "error", werr)
	}
	if werr := s.hostProbes.MarkProbed(store, p.TenantID, p.ID, checkedAt); werr != nil {
		s.logger.Errorw("probe_mark_failed", "probe_id", p.ID, "error", werr)
	}

	if host == nil {
		s.record("host", p.Kind, false)
		return false
	}

	status := domain.HostStatusOffline
	var seenAt *time.Time
	if result.Success {
		status = domain.HostStatusOnline
		seenAt = &checkedAt
	}
	if werr := s.hosts.UpdateStatus(store, p.TenantID, host.ID, status, seenAt); werr != nil {
		s.logger.Errorw("probe_host_status_failed", "host_id", host.ID, "error", werr)
	}
	s.record("host", p.Kind, result.Success)
	return result.Success
}
