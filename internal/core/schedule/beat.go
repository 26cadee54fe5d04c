package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opspanel/backend/internal/config"
	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/infrastructure/metrics"
)

// Scheduler is the beat loop. Only the instance holding the leader lock
// evaluates definitions; missed ticks are never replayed.
type Scheduler struct {
	registry  *Registry
	broker    ports.TaskBroker
	lock      ports.LeaderLock
	overrides ports.ScheduleOverrides
	metrics   *metrics.Metrics
	log       *logger.Logger

	tickInterval   time.Duration
	enqueueTimeout time.Duration
	renewEvery     time.Duration

	mu        sync.Mutex
	lastFired map[string]time.Time
	leader    bool
	renewedAt time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewScheduler(
	cfg config.SchedulerConfig,
	registry *Registry,
	broker ports.TaskBroker,
	lock ports.LeaderLock,
	m *metrics.Metrics,
	log *logger.Logger,
) *Scheduler {
	renew := cfg.LockTTL / 3
	if renew <= 0 {
		renew = cfg.TickInterval
	}
	return &Scheduler{
		registry:       registry,
		broker:         broker,
		lock:           lock,
		metrics:        m,
		log:            log.Named("beat"),
		tickInterval:   cfg.TickInterval,
		enqueueTimeout: cfg.EnqueueTimeout,
		renewEvery:     renew,
		lastFired:      make(map[string]time.Time),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start runs the loop in the background until ctx ends or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Infow("scheduler_started",
		"tick", s.tickInterval.String(),
		"definitions", len(s.registry.All()),
	)
	go s.run(ctx)
}

// Stop ends the loop, waits for the current tick and releases leadership.
func (s *Scheduler) Stop(ctx context.Context) {
	s.stopOnce.Do(func() { close(s.stop) })
	select {
	case <-s.done:
	case <-ctx.Done():
	}

	s.mu.Lock()
	wasLeader := s.leader
	s.leader = false
	s.mu.Unlock()
	if wasLeader {
		if err := s.lock.Release(ctx); err != nil {
			s.log.Warnw("scheduler_lock_release_failed", "error", err)
		}
		s.metrics.SchedulerLeader.Set(0)
	}
	s.log.Infow("scheduler_stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case now := <-ticker.C:
			if !s.ensureLeader(ctx, now) {
				continue
			}
			s.Tick(ctx, now)
		}
	}
}

// WithOverrides makes the scheduler apply enable/disable toggles stored by
// the API each time it renews leadership.
func (s *Scheduler) WithOverrides(o ports.ScheduleOverrides) *Scheduler {
	s.overrides = o
	return s
}

func (s *Scheduler) syncOverrides(ctx context.Context) {
	if s.overrides == nil {
		return
	}
	loadCtx, cancel := context.WithTimeout(ctx, s.enqueueTimeout)
	values, err := s.overrides.Load(loadCtx)
	cancel()
	if err != nil {
		s.log.Warnw("scheduler_overrides_load_failed", "error", err)
		return
	}
	for name, enabled := range values {
		def, err := s.registry.Lookup(name)
		if err != nil || def.Enabled == enabled {
			continue
		}
		if err := s.registry.SetEnabled(name, enabled); err == nil {
			s.log.Infow("scheduler_definition_toggled", "definition", name, "enabled", enabled)
		}
	}
}

func (s *Scheduler) ensureLeader(ctx context.Context, now time.Time) bool {
	s.mu.Lock()
	leader, renewedAt := s.leader, s.renewedAt
	s.mu.Unlock()
	if leader && now.Sub(renewedAt) < s.renewEvery {
		return true
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.enqueueTimeout)
	ok, err := s.lock.Acquire(lockCtx)
	cancel()
	if err != nil {
		s.log.Warnw("scheduler_lock_failed", "error", err, "kind", domain.Kind(err))
		ok = false
	}

	s.mu.Lock()
	switch {
	case ok && !s.leader:
		s.log.Infow("scheduler_leadership_acquired")
	case !ok && s.leader:
		// A later leadership starts from a clean slate so interval rules
		// are re-seeded instead of firing at once.
		s.lastFired = make(map[string]time.Time)
		s.log.Warnw("scheduler_leadership_lost")
	}
	s.leader = ok
	if ok {
		s.renewedAt = now
	}
	s.mu.Unlock()

	if !ok {
		s.metrics.SchedulerLeader.Set(0)
		return false
	}
	s.metrics.SchedulerLeader.Set(1)
	s.syncOverrides(ctx)
	return true
}

// Tick evaluates every enabled definition once at now and returns how many
// invocations were enqueued.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	s.metrics.SchedulerTicks.Inc()

	enqueued := 0
	for _, def := range s.registry.Enabled() {
		s.mu.Lock()
		last, seen := s.lastFired[def.Name]
		if !seen {
			last = def.Rule.Seed(now)
			if !last.IsZero() {
				s.lastFired[def.Name] = last
			}
		}
		s.mu.Unlock()

		if !def.Rule.Due(now, last) {
			continue
		}
		if err := s.enqueue(ctx, def, now, domain.OriginBeat); err != nil {
			s.metrics.SchedulerEnqueueFailed.WithLabelValues(def.Name).Inc()
			s.log.Errorw("scheduler_enqueue_failed",
				"definition", def.Name,
				"task", def.Task,
				"queue", def.Queue,
				"error", err,
				"kind", domain.Kind(err),
			)
			continue
		}

		s.mu.Lock()
		s.lastFired[def.Name] = now
		s.mu.Unlock()
		s.metrics.SchedulerEnqueued.WithLabelValues(def.Name).Inc()
		enqueued++
	}
	return enqueued
}

func (s *Scheduler) enqueue(ctx context.Context, def *Definition, now time.Time, origin domain.InvocationOrigin) error {
	inv := NewInvocation(def, now, origin)

	enqCtx, cancel := context.WithTimeout(ctx, s.enqueueTimeout)
	defer cancel()
	if err := s.broker.Enqueue(enqCtx, inv); err != nil {
		return err
	}
	s.log.Debugw("scheduler_enqueued", "definition", def.Name, "task", def.Task, "id", inv.ID)
	return nil
}

// NewInvocation builds the broker message for def.
func NewInvocation(def *Definition, now time.Time, origin domain.InvocationOrigin) *domain.TaskInvocation {
	kwargs := make(map[string]interface{}, len(def.Kwargs))
	for k, v := range def.Kwargs {
		kwargs[k] = v
	}
	return &domain.TaskInvocation{
		ID:         uuid.NewString(),
		Task:       def.Task,
		Args:       def.Args,
		Kwargs:     kwargs,
		Queue:      def.Queue,
		Priority:   def.Priority,
		Origin:     origin,
		EnqueuedAt: now.UTC(),
	}
}

// LastFired returns the last-fired mark for name. Interval rules carry the
// time they were first seen until their first successful enqueue.
func (s *Scheduler) LastFired(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastFired[name]
	return t, ok
}

func (s *Scheduler) IsLeader() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leader
}

// Trigger enqueues the named definition right away on behalf of an
// operator. Scheduler last-fired state is left alone, so the regular cadence
// is unaffected.
func Trigger(ctx context.Context, registry *Registry, broker ports.TaskBroker, name string, now time.Time) (*domain.TaskInvocation, error) {
	def, err := registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	inv := NewInvocation(def, now, domain.OriginAPI)
	if err := broker.Enqueue(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}
