package schedule

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/opspanel/backend/internal/domain"
)

// Entry is one row of the schedule file.
type Entry struct {
	Name     string                 `yaml:"name"`
	Task     string                 `yaml:"task"`
	Cron     *CronFields            `yaml:"cron"`
	Interval *float64               `yaml:"interval"`
	Args     []interface{}          `yaml:"args"`
	Kwargs   map[string]interface{} `yaml:"kwargs"`
	Options  EntryOptions           `yaml:"options"`
	Enabled  *bool                  `yaml:"enabled"`
}

type EntryOptions struct {
	Queue    string `yaml:"queue"`
	Priority *int   `yaml:"priority"`
}

type tableFile struct {
	Schedule []Entry `yaml:"schedule"`
}

// Table is the validated, immutable schedule loaded once at start.
type Table struct {
	defs []*Definition
}

// Definitions returns copies so callers cannot alter the table.
func (t *Table) Definitions() []*Definition {
	out := make([]*Definition, 0, len(t.defs))
	for _, d := range t.defs {
		copied := *d
		out = append(out, &copied)
	}
	return out
}

func (t *Table) Len() int {
	return len(t.defs)
}

// KnownTask reports whether a task name has a registered handler.
type KnownTask func(name string) bool

func validateDefinition(d *Definition, known KnownTask) error {
	switch {
	case d == nil:
		return errors.New("definition is nil")
	case strings.TrimSpace(d.Name) == "":
		return errors.New("definition name is required")
	case d.Task == "":
		return errors.Newf("%s: task is required", d.Name)
	case d.Rule == nil:
		return errors.Newf("%s: a cron or interval rule is required", d.Name)
	case d.Queue == "":
		return errors.Newf("%s: queue is required", d.Name)
	case d.Priority < domain.PriorityHighest || d.Priority > domain.PriorityLowest:
		return errors.Newf("%s: priority %d outside %d..%d", d.Name, d.Priority, domain.PriorityHighest, domain.PriorityLowest)
	}
	if known != nil && !known(d.Task) {
		return errors.Newf("%s: unknown task %q", d.Name, d.Task)
	}
	return nil
}

func entryToDefinition(e Entry, loc *time.Location) (*Definition, error) {
	var rule Rule
	switch {
	case e.Cron != nil && e.Interval != nil:
		return nil, errors.Newf("%s: cron and interval are mutually exclusive", e.Name)
	case e.Cron != nil:
		r, err := NewCronRule(*e.Cron, loc)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", e.Name)
		}
		rule = r
	case e.Interval != nil:
		r, err := NewIntervalRule(*e.Interval)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", e.Name)
		}
		rule = r
	}

	queue := e.Options.Queue
	if queue == "" {
		queue = domain.QueueDefault
	}
	priority := domain.PriorityDefault
	if e.Options.Priority != nil {
		priority = *e.Options.Priority
	}
	enabled := true
	if e.Enabled != nil {
		enabled = *e.Enabled
	}
	return &Definition{
		Name:     e.Name,
		Task:     e.Task,
		Rule:     rule,
		Args:     e.Args,
		Kwargs:   e.Kwargs,
		Queue:    queue,
		Priority: priority,
		Enabled:  enabled,
	}, nil
}

// BuildTable validates every entry up front and fails on the first problem
// so a malformed schedule stops the process before it ticks.
func BuildTable(entries []Entry, loc *time.Location, known KnownTask) (*Table, error) {
	seen := make(map[string]bool, len(entries))
	t := &Table{}
	for _, e := range entries {
		d, err := entryToDefinition(e, loc)
		if err != nil {
			return nil, domain.MarkConfiguration(err)
		}
		if err := validateDefinition(d, known); err != nil {
			return nil, domain.MarkConfiguration(err)
		}
		if seen[d.Name] {
			return nil, domain.MarkConfiguration(errors.Newf("duplicate schedule entry %q", d.Name))
		}
		seen[d.Name] = true
		t.defs = append(t.defs, d)
	}
	return t, nil
}

func ParseTable(data []byte, loc *time.Location, known KnownTask) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, domain.MarkConfiguration(errors.Wrap(err, "parse schedule"))
	}
	return BuildTable(file.Schedule, loc, known)
}

// LoadTable reads path, or returns the built-in table when path is empty.
func LoadTable(path string, loc *time.Location, known KnownTask) (*Table, error) {
	if path == "" {
		return BuildTable(DefaultEntries(), loc, known)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.MarkConfiguration(errors.Wrapf(err, "read schedule file %s", path))
	}
	return ParseTable(data, loc, known)
}

func seconds(v float64) *float64 { return &v }
func priority(v int) *int        { return &v }

// DefaultEntries is the maintenance schedule used when no file is configured.
func DefaultEntries() []Entry {
	return []Entry{
		{
			Name:    "cleanup-probe-results",
			Task:    domain.TaskCleanupProbeResults,
			Cron:    &CronFields{Minute: "0", Hour: "3"},
			Kwargs:  map[string]interface{}{"days": 30},
			Options: EntryOptions{Queue: domain.QueueMaintenance, Priority: priority(7)},
		},
		{
			Name:    "cleanup-host-probe-results",
			Task:    domain.TaskCleanupHostProbeResults,
			Cron:    &CronFields{Minute: "15", Hour: "3"},
			Kwargs:  map[string]interface{}{"days": 30},
			Options: EntryOptions{Queue: domain.QueueMaintenance, Priority: priority(7)},
		},
		{
			Name:    "cleanup-audit-logs",
			Task:    domain.TaskCleanupAuditLogs,
			Cron:    &CronFields{Minute: "30", Hour: "3", DayOfWeek: "0"},
			Kwargs:  map[string]interface{}{"days": 180},
			Options: EntryOptions{Queue: domain.QueueMaintenance, Priority: priority(8)},
		},
		{
			Name:     "cleanup-stale-ansible-executions",
			Task:     domain.TaskCleanupStaleAnsible,
			Interval: seconds(600),
			Kwargs:   map[string]interface{}{"hours": 6},
			Options:  EntryOptions{Queue: domain.QueueMaintenance, Priority: priority(6)},
		},
		{
			Name:    "cleanup-expired-notifications",
			Task:    domain.TaskCleanupNotifications,
			Cron:    &CronFields{Minute: "0", Hour: "4"},
			Options: EntryOptions{Queue: domain.QueueMaintenance, Priority: priority(8)},
		},
		{
			Name:     "backup-check-schedule",
			Task:     domain.TaskBackupCheckSchedule,
			Interval: seconds(300),
			Options:  EntryOptions{Queue: domain.QueueBackup, Priority: priority(3)},
		},
		{
			Name:     "probe-network",
			Task:     domain.TaskProbeScheduleNetwork,
			Interval: seconds(30),
			Options:  EntryOptions{Queue: domain.QueueProbe, Priority: priority(2)},
		},
		{
			Name:     "probe-host",
			Task:     domain.TaskProbeScheduleHost,
			Interval: seconds(60),
			Options:  EntryOptions{Queue: domain.QueueProbe, Priority: priority(2)},
		},
	}
}
