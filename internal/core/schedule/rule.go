package schedule

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

// Rule decides whether a definition is due at now given when it last fired.
type Rule interface {
	Due(now, lastFired time.Time) bool
	Next(after time.Time) time.Time
	// Seed returns the initial last-fired value for a definition seen for
	// the first time at now.
	Seed(now time.Time) time.Time
	String() string
}

// CronFields are the crontab fields. Empty fields are wildcards.
type CronFields struct {
	Minute     string `yaml:"minute" json:"minute,omitempty"`
	Hour       string `yaml:"hour" json:"hour,omitempty"`
	DayOfMonth string `yaml:"day_of_month" json:"day_of_month,omitempty"`
	Month      string `yaml:"month" json:"month,omitempty"`
	DayOfWeek  string `yaml:"day_of_week" json:"day_of_week,omitempty"`
}

func orWildcard(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "*"
	}
	return s
}

func (f CronFields) Expression() string {
	return strings.Join([]string{
		orWildcard(f.Minute),
		orWildcard(f.Hour),
		orWildcard(f.DayOfMonth),
		orWildcard(f.Month),
		orWildcard(f.DayOfWeek),
	}, " ")
}

// CronRule fires once per matching minute. A tick anywhere inside the
// minute counts as the match; later ticks in the same minute see a
// last-fired value that is not before the minute start and are skipped.
type CronRule struct {
	expr     string
	schedule cron.Schedule
	loc      *time.Location
}

func NewCronRule(fields CronFields, loc *time.Location) (*CronRule, error) {
	if loc == nil {
		loc = time.UTC
	}
	expr := fields.Expression()
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "cron %q", expr)
	}
	return &CronRule{expr: expr, schedule: sched, loc: loc}, nil
}

func (r *CronRule) minuteStart(now time.Time) time.Time {
	return now.In(r.loc).Truncate(time.Minute)
}

func (r *CronRule) Due(now, lastFired time.Time) bool {
	start := r.minuteStart(now)
	if !lastFired.IsZero() && !lastFired.Before(start) {
		return false
	}
	return r.schedule.Next(start.Add(-time.Second)).Equal(start)
}

func (r *CronRule) Next(after time.Time) time.Time {
	return r.schedule.Next(after.In(r.loc))
}

func (r *CronRule) Seed(time.Time) time.Time {
	return time.Time{}
}

func (r *CronRule) String() string {
	return "cron(" + r.expr + ")"
}

// IntervalRule fires every interval measured from the previous firing,
// with the first interval measured from scheduler start.
type IntervalRule struct {
	every time.Duration
}

func NewIntervalRule(seconds float64) (*IntervalRule, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return nil, errors.Newf("interval must be a positive number of seconds, got %v", seconds)
	}
	every := time.Duration(seconds * float64(time.Second))
	if every < time.Millisecond {
		return nil, errors.Newf("interval %vs is below the 1ms resolution", seconds)
	}
	return &IntervalRule{every: every}, nil
}

func (r *IntervalRule) Every() time.Duration {
	return r.every
}

func (r *IntervalRule) Due(now, lastFired time.Time) bool {
	if lastFired.IsZero() {
		return true
	}
	return now.Sub(lastFired) >= r.every
}

func (r *IntervalRule) Next(after time.Time) time.Time {
	return after.Add(r.every)
}

func (r *IntervalRule) Seed(now time.Time) time.Time {
	return now
}

func (r *IntervalRule) String() string {
	return fmt.Sprintf("every(%s)", r.every)
}
