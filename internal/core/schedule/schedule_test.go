package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opspanel/backend/internal/config"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/infrastructure/metrics"
	"github.com/opspanel/backend/internal/infrastructure/queue"
)

type recordingBroker struct {
	*queue.MemoryBroker
	mu      sync.Mutex
	fail    int
	enqueue []*domain.TaskInvocation
}

func newRecordingBroker() *recordingBroker {
	return &recordingBroker{MemoryBroker: queue.NewMemoryBroker()}
}

func (b *recordingBroker) Enqueue(_ context.Context, inv *domain.TaskInvocation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail > 0 {
		b.fail--
		return domain.MarkTransient(errors.New("broker unreachable"))
	}
	b.enqueue = append(b.enqueue, inv)
	return nil
}

func (b *recordingBroker) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.enqueue)
}

type stubLock struct {
	mu    sync.Mutex
	grant bool
	calls int
}

func (l *stubLock) Acquire(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.grant, nil
}

func (l *stubLock) Release(context.Context) error { return nil }

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		TickInterval:   time.Second,
		EnqueueTimeout: 200 * time.Millisecond,
		LockTTL:        3 * time.Second,
	}
}

func mustCron(t *testing.T, f CronFields) *CronRule {
	t.Helper()
	r, err := NewCronRule(f, time.UTC)
	require.NoError(t, err)
	return r
}

func mustInterval(t *testing.T, s float64) *IntervalRule {
	t.Helper()
	r, err := NewIntervalRule(s)
	require.NoError(t, err)
	return r
}

func newTestScheduler(t *testing.T, broker *recordingBroker, defs ...*Definition) *Scheduler {
	t.Helper()
	reg := NewRegistry(nil, nil)
	for _, d := range defs {
		require.NoError(t, reg.Add(d))
	}
	return NewScheduler(testConfig(), reg, broker, &stubLock{grant: true}, metrics.New(), logger.NewNop())
}

func def(name string, rule Rule) *Definition {
	return &Definition{
		Name:     name,
		Task:     domain.TaskCleanupAuditLogs,
		Rule:     rule,
		Kwargs:   map[string]interface{}{"days": 30},
		Queue:    domain.QueueMaintenance,
		Priority: 7,
		Enabled:  true,
	}
}

func TestCronRule_FiresOncePerDayWhenTickedEverySecond(t *testing.T) {
	broker := newRecordingBroker()
	s := newTestScheduler(t, broker, def("nightly", mustCron(t, CronFields{Minute: "0", Hour: "2"})))

	day := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	var firedAt []time.Time
	for sec := 0; sec < 24*60*60; sec++ {
		now := day.Add(time.Duration(sec) * time.Second)
		if s.Tick(context.Background(), now) > 0 {
			firedAt = append(firedAt, now)
		}
	}

	require.Len(t, firedAt, 1)
	assert.Equal(t, time.Date(2024, 3, 12, 2, 0, 0, 0, time.UTC), firedAt[0])
	assert.Equal(t, 1, broker.count())
}

func TestCronRule_DayOfWeek(t *testing.T) {
	r := mustCron(t, CronFields{Minute: "30", Hour: "3", DayOfWeek: "0"})
	sunday := time.Date(2024, 3, 10, 3, 30, 15, 0, time.UTC)
	monday := sunday.Add(24 * time.Hour)

	assert.True(t, r.Due(sunday, time.Time{}))
	assert.False(t, r.Due(monday, time.Time{}))
	assert.Equal(t, time.Date(2024, 3, 17, 3, 30, 0, 0, time.UTC), r.Next(sunday))
}

func TestCronRule_HonoursLocation(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*60*60)
	r, err := NewCronRule(CronFields{Minute: "0", Hour: "2"}, loc)
	require.NoError(t, err)

	assert.True(t, r.Due(time.Date(2024, 3, 11, 18, 0, 5, 0, time.UTC), time.Time{}))
	assert.False(t, r.Due(time.Date(2024, 3, 12, 2, 0, 5, 0, time.UTC), time.Time{}))
}

func TestScheduler_NoBackfillAfterMissedMinute(t *testing.T) {
	broker := newRecordingBroker()
	s := newTestScheduler(t, broker, def("nightly", mustCron(t, CronFields{Minute: "0", Hour: "2"})))

	// The process was down across 02:00; the first tick after is 02:01.
	assert.Equal(t, 0, s.Tick(context.Background(), time.Date(2024, 3, 12, 2, 1, 0, 0, time.UTC)))
	assert.Equal(t, 0, broker.count())
}

func TestScheduler_EnqueueFailureDoesNotAdvanceLastFired(t *testing.T) {
	broker := newRecordingBroker()
	broker.fail = 1
	s := newTestScheduler(t, broker, def("nightly", mustCron(t, CronFields{Minute: "0", Hour: "2"})))

	first := time.Date(2024, 3, 12, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, s.Tick(context.Background(), first))
	_, ok := s.LastFired("nightly")
	assert.False(t, ok, "last_fired must stay unset after a failed enqueue")

	second := first.Add(time.Second)
	assert.Equal(t, 1, s.Tick(context.Background(), second))
	last, ok := s.LastFired("nightly")
	require.True(t, ok)
	assert.Equal(t, second, last)

	assert.Equal(t, 0, s.Tick(context.Background(), second.Add(time.Second)))
}

func TestScheduler_IntervalSeededAtStart(t *testing.T) {
	broker := newRecordingBroker()
	s := newTestScheduler(t, broker, def("probe", mustInterval(t, 30)))
	start := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, s.Tick(context.Background(), start))
	assert.Equal(t, 0, s.Tick(context.Background(), start.Add(29*time.Second)))
	assert.Equal(t, 1, s.Tick(context.Background(), start.Add(30*time.Second)))
	assert.Equal(t, 0, s.Tick(context.Background(), start.Add(31*time.Second)))
	assert.Equal(t, 1, s.Tick(context.Background(), start.Add(60*time.Second)))
}

func TestScheduler_IntervalRetriedAfterFailure(t *testing.T) {
	broker := newRecordingBroker()
	s := newTestScheduler(t, broker, def("probe", mustInterval(t, 10)))
	start := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	s.Tick(context.Background(), start)

	broker.fail = 2
	assert.Equal(t, 0, s.Tick(context.Background(), start.Add(10*time.Second)))
	assert.Equal(t, 0, s.Tick(context.Background(), start.Add(11*time.Second)))
	assert.Equal(t, 1, s.Tick(context.Background(), start.Add(12*time.Second)))
}

func TestScheduler_InvocationCarriesDefinition(t *testing.T) {
	broker := newRecordingBroker()
	s := newTestScheduler(t, broker, def("nightly", mustCron(t, CronFields{Minute: "0", Hour: "2"})))

	now := time.Date(2024, 3, 12, 2, 0, 0, 0, time.UTC)
	require.Equal(t, 1, s.Tick(context.Background(), now))

	inv := broker.enqueue[0]
	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, domain.TaskCleanupAuditLogs, inv.Task)
	assert.Equal(t, domain.QueueMaintenance, inv.Queue)
	assert.Equal(t, 7, inv.Priority)
	assert.Equal(t, domain.OriginBeat, inv.Origin)
	assert.Equal(t, 30, inv.Kwargs["days"])
	assert.Equal(t, now, inv.EnqueuedAt)
}

func TestScheduler_DisabledDefinitionSkipped(t *testing.T) {
	broker := newRecordingBroker()
	s := newTestScheduler(t, broker, def("nightly", mustCron(t, CronFields{Minute: "0", Hour: "2"})))
	require.NoError(t, s.registry.SetEnabled("nightly", false))

	assert.Equal(t, 0, s.Tick(context.Background(), time.Date(2024, 3, 12, 2, 0, 0, 0, time.UTC)))
}

func TestScheduler_StandbyDoesNotTick(t *testing.T) {
	broker := newRecordingBroker()
	lock := &stubLock{grant: false}
	reg := NewRegistry(nil, nil)
	require.NoError(t, reg.Add(def("probe", mustInterval(t, 1))))
	s := NewScheduler(testConfig(), reg, broker, lock, metrics.New(), logger.NewNop())

	now := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	assert.False(t, s.ensureLeader(context.Background(), now))
	assert.False(t, s.IsLeader())

	lock.grant = true
	assert.True(t, s.ensureLeader(context.Background(), now.Add(time.Second)))
	assert.True(t, s.IsLeader())

	// Leadership is cached until the renew interval passes.
	assert.True(t, s.ensureLeader(context.Background(), now.Add(1500*time.Millisecond)))
	assert.Equal(t, 2, lock.calls)
}

func TestScheduler_LosingLeadershipResetsState(t *testing.T) {
	broker := newRecordingBroker()
	lock := &stubLock{grant: true}
	reg := NewRegistry(nil, nil)
	require.NoError(t, reg.Add(def("probe", mustInterval(t, 10))))
	s := NewScheduler(testConfig(), reg, broker, lock, metrics.New(), logger.NewNop())

	now := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	require.True(t, s.ensureLeader(context.Background(), now))
	s.Tick(context.Background(), now)
	_, ok := s.LastFired("probe")
	require.True(t, ok)

	lock.grant = false
	assert.False(t, s.ensureLeader(context.Background(), now.Add(5*time.Second)))
	_, ok = s.LastFired("probe")
	assert.False(t, ok)
}

func TestScheduler_AppliesOverridesOnRenew(t *testing.T) {
	broker := newRecordingBroker()
	s := newTestScheduler(t, broker, def("nightly", mustCron(t, CronFields{Minute: "0", Hour: "2"})))
	overrides := queue.NewMemoryOverrides()
	s.WithOverrides(overrides)

	require.NoError(t, overrides.Set(context.Background(), "nightly", false))
	require.NoError(t, overrides.Set(context.Background(), "unknown", true))
	require.True(t, s.ensureLeader(context.Background(), time.Now()))

	d, err := s.registry.Lookup("nightly")
	require.NoError(t, err)
	assert.False(t, d.Enabled)
}

func TestScheduler_StartStop(t *testing.T) {
	broker := newRecordingBroker()
	cfg := testConfig()
	cfg.TickInterval = 10 * time.Millisecond
	reg := NewRegistry(nil, nil)
	require.NoError(t, reg.Add(def("fast", mustInterval(t, 0.01))))
	s := NewScheduler(cfg, reg, broker, &stubLock{grant: true}, metrics.New(), logger.NewNop())

	s.Start(context.Background())
	require.Eventually(t, func() bool { return broker.count() > 0 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.False(t, s.IsLeader())
}

func TestTrigger(t *testing.T) {
	broker := newRecordingBroker()
	reg := NewRegistry(nil, nil)
	require.NoError(t, reg.Add(def("nightly", mustCron(t, CronFields{Minute: "0", Hour: "2"}))))

	inv, err := Trigger(context.Background(), reg, broker, "nightly", time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.OriginAPI, inv.Origin)
	assert.Equal(t, 1, broker.count())

	_, err = Trigger(context.Background(), reg, broker, "missing", time.Now())
	assert.True(t, domain.IsKind(err, domain.ErrNotFound))
}
