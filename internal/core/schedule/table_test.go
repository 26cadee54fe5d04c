package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opspanel/backend/internal/domain"
)

func knownTasks(names ...string) KnownTask {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

var allTasks = knownTasks(
	domain.TaskCleanupProbeResults,
	domain.TaskCleanupHostProbeResults,
	domain.TaskCleanupAuditLogs,
	domain.TaskCleanupStaleAnsible,
	domain.TaskCleanupNotifications,
	domain.TaskBackupCheckSchedule,
	domain.TaskProbeScheduleNetwork,
	domain.TaskProbeScheduleHost,
)

func TestDefaultTableIsValid(t *testing.T) {
	table, err := LoadTable("", time.UTC, allTasks)
	require.NoError(t, err)
	assert.Equal(t, len(DefaultEntries()), table.Len())

	for _, d := range table.Definitions() {
		assert.True(t, d.Enabled, d.Name)
		assert.NotEmpty(t, d.Queue, d.Name)
	}
}

func TestParseTable(t *testing.T) {
	data := []byte(`
schedule:
  - name: audit
    task: cleanup.audit_logs
    cron: {minute: "0", hour: "2"}
    kwargs: {days: 90}
    options: {queue: maintenance, priority: 8}
  - name: probes
    task: probe.schedule_network
    interval: 2.5
    enabled: false
`)
	table, err := ParseTable(data, time.UTC, allTasks)
	require.NoError(t, err)

	reg := NewRegistry(table, allTasks)
	audit, err := reg.Lookup("audit")
	require.NoError(t, err)
	assert.Equal(t, "maintenance", audit.Queue)
	assert.Equal(t, 8, audit.Priority)
	assert.Equal(t, "cron(0 2 * * *)", audit.Rule.String())
	assert.Equal(t, 90, audit.Kwargs["days"])

	probes, err := reg.Lookup("probes")
	require.NoError(t, err)
	assert.Equal(t, domain.QueueDefault, probes.Queue)
	assert.Equal(t, domain.PriorityDefault, probes.Priority)
	assert.False(t, probes.Enabled)
	assert.Equal(t, 2500*time.Millisecond, probes.Rule.(*IntervalRule).Every())

	enabled := reg.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "audit", enabled[0].Name)
}

func TestBuildTable_RejectsMalformedEntries(t *testing.T) {
	neg := -5.0
	zero := 0.0
	ten := 10.0
	tooLow := 12

	cases := map[string]Entry{
		"bad cron minute":   {Name: "a", Task: domain.TaskCleanupAuditLogs, Cron: &CronFields{Minute: "61"}},
		"bad cron word":     {Name: "a", Task: domain.TaskCleanupAuditLogs, Cron: &CronFields{Hour: "noon"}},
		"negative interval": {Name: "a", Task: domain.TaskCleanupAuditLogs, Interval: &neg},
		"zero interval":     {Name: "a", Task: domain.TaskCleanupAuditLogs, Interval: &zero},
		"no rule":           {Name: "a", Task: domain.TaskCleanupAuditLogs},
		"both rules":        {Name: "a", Task: domain.TaskCleanupAuditLogs, Cron: &CronFields{}, Interval: &ten},
		"unknown task":      {Name: "a", Task: "nope", Interval: &ten},
		"missing name":      {Task: domain.TaskCleanupAuditLogs, Interval: &ten},
		"priority range":    {Name: "a", Task: domain.TaskCleanupAuditLogs, Interval: &ten, Options: EntryOptions{Priority: &tooLow}},
	}
	for name, entry := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := BuildTable([]Entry{entry}, time.UTC, allTasks)
			require.Error(t, err)
			assert.Equal(t, "configuration", domain.Kind(err))
		})
	}
}

func TestBuildTable_RejectsDuplicateNames(t *testing.T) {
	ten := 10.0
	e := Entry{Name: "dup", Task: domain.TaskCleanupAuditLogs, Interval: &ten}
	_, err := BuildTable([]Entry{e, e}, time.UTC, allTasks)
	assert.Error(t, err)
}

func TestLoadTable_MissingFile(t *testing.T) {
	_, err := LoadTable("/nonexistent/schedule.yaml", time.UTC, allTasks)
	require.Error(t, err)
	assert.Equal(t, "configuration", domain.Kind(err))
}

func TestRegistry_SnapshotSwap(t *testing.T) {
	ten := 10.0
	table, err := BuildTable([]Entry{
		{Name: "b", Task: domain.TaskCleanupAuditLogs, Interval: &ten},
		{Name: "a", Task: domain.TaskCleanupAuditLogs, Interval: &ten},
	}, time.UTC, allTasks)
	require.NoError(t, err)
	reg := NewRegistry(table, allTasks)

	before := reg.Enabled()
	require.Len(t, before, 2)
	assert.Equal(t, "a", before[0].Name)

	require.NoError(t, reg.SetEnabled("a", false))
	assert.True(t, before[0].Enabled, "published definitions are never mutated")
	assert.Len(t, reg.Enabled(), 1)
	assert.Len(t, reg.All(), 2)

	_, err = reg.Lookup("zzz")
	assert.True(t, domain.IsKind(err, domain.ErrNotFound))
	assert.True(t, domain.IsKind(reg.SetEnabled("zzz", true), domain.ErrNotFound))

	dup := *before[1]
	assert.True(t, domain.IsKind(reg.Add(&dup), domain.ErrDataIntegrity))

	require.NoError(t, reg.Remove("b"))
	assert.Len(t, reg.All(), 1)
	assert.True(t, domain.IsKind(reg.Remove("b"), domain.ErrNotFound))
}

func TestRegistry_AddChecksKnownTasks(t *testing.T) {
	reg := NewRegistry(nil, knownTasks(domain.TaskCleanupAuditLogs))

	unknown := &Definition{
		Name:     "typo",
		Task:     "cleanup.audit_logz",
		Rule:     mustInterval(t, 60),
		Queue:    "maintenance",
		Priority: domain.PriorityLowest,
		Enabled:  true,
	}
	err := reg.Add(unknown)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task")
	assert.Empty(t, reg.All())

	known := *unknown
	known.Name = "audit"
	known.Task = domain.TaskCleanupAuditLogs
	require.NoError(t, reg.Add(&known))
	assert.Len(t, reg.All(), 1)
}
