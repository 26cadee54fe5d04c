package services

import (
	"context"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/core/schedule"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
)

type scheduleService struct {
	registry  *schedule.Registry
	overrides ports.ScheduleOverrides
	broker    ports.TaskBroker
	queues    []string
	logger    *logger.Logger
	now       Clock
}

type ScheduleServiceConfig struct {
	Registry  *schedule.Registry
	Overrides ports.ScheduleOverrides
	Broker    ports.TaskBroker
	Queues    []string
	Logger    *logger.Logger
	Clock     Clock
}

// NewScheduleService exposes the schedule table to operators. The API
// process keeps its own registry copy; toggles reach the beat process
// through the overrides store.
func NewScheduleService(cfg ScheduleServiceConfig) ports.ScheduleService {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = []string{domain.QueueDefault, domain.QueueMaintenance, domain.QueueBackup, domain.QueueProbe, domain.QueueAnsible}
	}
	return &scheduleService{
		registry:  cfg.Registry,
		overrides: cfg.Overrides,
		broker:    cfg.Broker,
		queues:    queues,
		logger:    cfg.Logger,
		now:       clock,
	}
}

func (s *scheduleService) view(def *schedule.Definition) ports.ScheduleView {
	v := ports.ScheduleView{
		Name:     def.Name,
		Task:     def.Task,
		Rule:     def.Rule.String(),
		Queue:    def.Queue,
		Priority: def.Priority,
		Enabled:  def.Enabled,
		Kwargs:   def.Kwargs,
	}
	if def.Enabled {
		next := def.Rule.Next(s.now())
		v.NextRunAt = &next
	}
	return v
}

func (s *scheduleService) applyOverrides(ctx context.Context) {
	if s.overrides == nil {
		return
	}
	toggles, err := s.overrides.Load(ctx)
	if err != nil {
		s.logger.Warnw("schedule_overrides_load_failed", "error", err)
		return
	}
	for name, enabled := range toggles {
		def, err := s.registry.Lookup(name)
		if err != nil || def.Enabled == enabled {
			continue
		}
		_ = s.registry.SetEnabled(name, enabled)
	}
}

func (s *scheduleService) ListSchedules(ctx context.Context) ([]ports.ScheduleView, error) {
	s.applyOverrides(ctx)
	defs := s.registry.All()
	views := make([]ports.ScheduleView, 0, len(defs))
	for _, d := range defs {
		views = append(views, s.view(d))
	}
	return views, nil
}

func (s *scheduleService) SetEnabled(ctx context.Context, name string, enabled bool) (*ports.ScheduleView, error) {
	if _, err := s.registry.Lookup(name); err != nil {
		return nil, err
	}
	if s.overrides != nil {
		if err := s.overrides.Set(ctx, name, enabled); err != nil {
			return nil, err
		}
	}
	if err := s.registry.SetEnabled(name, enabled); err != nil {
		return nil, err
	}
	def, err := s.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	s.logger.Infow("schedule_toggled", "name", name, "enabled", enabled)
	v := s.view(def)
	return &v, nil
}

// RunNow enqueues a definition regardless of its enabled flag.
func (s *scheduleService) RunNow(ctx context.Context, name string) (*domain.TaskInvocation, error) {
	inv, err := schedule.Trigger(ctx, s.registry, s.broker, name, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Infow("schedule_run_now", "name", name, "invocation_id", inv.ID)
	return inv, nil
}

func (s *scheduleService) Revoke(ctx context.Context, invocationID string) error {
	if invocationID == "" {
		return ErrScheduleInvalidInput
	}
	return s.broker.Revoke(ctx, invocationID)
}

func (s *scheduleService) QueueLengths(ctx context.Context) (map[string]int64, error) {
	return s.broker.QueueLengths(ctx, s.queues)
}
