package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/opspanel/backend/internal/config"
	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/infrastructure/runner"
)

// PlaybookRunner runs one playbook and reports host results as they stream.
type PlaybookRunner interface {
	Run(ctx context.Context, spec runner.PlaybookSpec, onResult func(runner.ResultKind)) (string, error)
}

var activeExecution = []domain.ExecutionStatus{domain.ExecutionStatusPending, domain.ExecutionStatusRunning}

type playbookService struct {
	repo    ports.PlaybookExecutionRepository
	broker  ports.TaskBroker
	runner  PlaybookRunner
	audit   ports.AuditService
	timeout time.Duration
	logger  *logger.Logger
	now     Clock
}

type PlaybookServiceConfig struct {
	Repository ports.PlaybookExecutionRepository
	Broker     ports.TaskBroker
	Runner     PlaybookRunner
	Audit      ports.AuditService
	Config     config.AnsibleConfig
	Logger     *logger.Logger
	Clock      Clock
}

func NewPlaybookService(cfg PlaybookServiceConfig) ports.PlaybookService {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}
	return &playbookService{
		repo:    cfg.Repository,
		broker:  cfg.Broker,
		runner:  cfg.Runner,
		audit:   cfg.Audit,
		timeout: cfg.Config.Timeout,
		logger:  cfg.Logger,
		now:     clock,
	}
}

func (s *playbookService) CreateExecution(ctx context.Context, tenantID uint, input ports.CreatePlaybookInput) (*domain.PlaybookExecution, error) {
	playbook := strings.TrimSpace(input.Playbook)
	if playbook == "" || strings.Contains(playbook, "..") {
		return nil, errors.Wrapf(ErrPlaybookInvalidInput, "invalid playbook %q", input.Playbook)
	}
	if input.TotalTasks < 0 {
		return nil, errors.Wrap(ErrPlaybookInvalidInput, "total_tasks must not be negative")
	}

	exec := &domain.PlaybookExecution{
		TenantID:    tenantID,
		ExecutionID: uuid.NewString(),
		Playbook:    playbook,
		Hosts:       input.Limit,
		Status:      domain.ExecutionStatusPending,
		TotalTasks:  input.TotalTasks,
		CreatedBy:   input.CreatedBy,
	}
	if len(input.ExtraVars) > 0 {
		exec.ExtraVars = make(domain.JSONB, len(input.ExtraVars))
		for k, v := range input.ExtraVars {
			exec.ExtraVars[k] = v
		}
	}
	if err := s.repo.Create(ctx, exec); err != nil {
		return nil, err
	}

	inv := &domain.TaskInvocation{
		ID:   uuid.NewString(),
		Task: domain.TaskAnsibleRunPlaybook,
		Kwargs: map[string]interface{}{
			"tenant_id":    tenantID,
			"execution_id": exec.ExecutionID,
		},
		Queue:      domain.QueueAnsible,
		Priority:   4,
		Origin:     domain.OriginAPI,
		EnqueuedAt: s.now(),
	}
	if err := s.broker.Enqueue(ctx, inv); err != nil {
		s.logger.Errorw("playbook_enqueue_failed", "execution_id", exec.ExecutionID, "error", err)
		_, _ = s.repo.Transition(context.WithoutCancel(ctx), tenantID, exec.ExecutionID, activeExecution, domain.ExecutionStatusFailed, map[string]interface{}{
			"finished_at":   s.now(),
			"error_message": "could not be queued",
		})
		return nil, err
	}
	s.logger.Infow("playbook_execution_queued", "tenant_id", tenantID, "execution_id", exec.ExecutionID, "playbook", playbook)
	return exec, nil
}

func (s *playbookService) GetExecution(ctx context.Context, tenantID uint, executionID string) (*domain.PlaybookExecution, error) {
	return s.repo.GetByExecutionID(ctx, tenantID, executionID)
}

func (s *playbookService) ListExecutions(ctx context.Context, tenantID uint, page ports.PageRequest) ([]domain.PlaybookExecution, int64, error) {
	return s.repo.List(ctx, tenantID, page)
}

func deltaFor(kind runner.ResultKind) domain.ProgressDelta {
	switch kind {
	case runner.ResultOK:
		return domain.ProgressDelta{Completed: 1}
	case runner.ResultChanged:
		return domain.ProgressDelta{Completed: 1, Changed: 1}
	case runner.ResultFailed:
		return domain.ProgressDelta{Failed: 1}
	case runner.ResultSkipped:
		return domain.ProgressDelta{Skipped: 1}
	}
	return domain.ProgressDelta{}
}

// RecordResults applies a callback from an external runner. Counters are
// incremented atomically in the store so concurrent callbacks add up.
func (s *playbookService) RecordResults(ctx context.Context, tenantID uint, executionID string, input ports.PlaybookResultInput) (*domain.PlaybookExecution, error) {
	d := input.Delta
	if d.Completed < 0 || d.Failed < 0 || d.Skipped < 0 || d.Changed < 0 {
		return nil, errors.Wrap(ErrPlaybookInvalidInput, "counters must not be negative")
	}
	if err := s.repo.IncrementProgress(ctx, tenantID, executionID, d); err != nil {
		return nil, err
	}

	switch {
	case input.Status == "":
	case input.Status == domain.ExecutionStatusRunning:
		_, err := s.repo.Transition(ctx, tenantID, executionID,
			[]domain.ExecutionStatus{domain.ExecutionStatusPending}, domain.ExecutionStatusRunning,
			map[string]interface{}{"started_at": s.now()})
		if err != nil {
			return nil, err
		}
	case input.Status.Terminal():
		moved, err := s.repo.Transition(ctx, tenantID, executionID, activeExecution, input.Status, map[string]interface{}{
			"finished_at":   s.now(),
			"error_message": input.ErrorMessage,
		})
		if err != nil {
			return nil, err
		}
		if !moved {
			return nil, errors.Wrapf(domain.ErrInvalidStatus, "execution %s is already finished", executionID)
		}
	default:
		return nil, errors.Wrapf(ErrPlaybookInvalidInput, "unknown status %q", input.Status)
	}
	return s.repo.GetByExecutionID(ctx, tenantID, executionID)
}

// RunExecution claims a pending execution, runs it and finalizes it. A
// second delivery of the same invocation finds it no longer pending.
func (s *playbookService) RunExecution(ctx context.Context, tenantID uint, executionID string) error {
	exec, err := s.repo.GetByExecutionID(ctx, tenantID, executionID)
	if err != nil {
		return err
	}
	moved, err := s.repo.Transition(ctx, tenantID, executionID,
		[]domain.ExecutionStatus{domain.ExecutionStatusPending}, domain.ExecutionStatusRunning,
		map[string]interface{}{"started_at": s.now()})
	if err != nil {
		return err
	}
	if !moved {
		return errors.Wrapf(ErrPlaybookNotRunnable, "execution %s", executionID)
	}

	spec := runner.PlaybookSpec{Playbook: exec.Playbook, Limit: exec.Hosts}
	if len(exec.ExtraVars) > 0 {
		spec.ExtraVars = make(map[string]string, len(exec.ExtraVars))
		for k, v := range exec.ExtraVars {
			spec.ExtraVars[k] = fmt.Sprint(v)
		}
	}

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var (
		mu   sync.Mutex
		seen int
	)
	store := context.WithoutCancel(ctx)
	output, runErr := s.runner.Run(runCtx, spec, func(kind runner.ResultKind) {
		mu.Lock()
		seen++
		mu.Unlock()
		if err := s.repo.IncrementProgress(store, tenantID, executionID, deltaFor(kind)); err != nil {
			s.logger.Warnw("playbook_progress_failed", "execution_id", executionID, "error", err)
		}
	})

	status := domain.ExecutionStatusSuccess
	errMsg := ""
	switch {
	case runErr == nil:
	case runCtx.Err() == context.DeadlineExceeded:
		status = domain.ExecutionStatusTimeout
		errMsg = "playbook exceeded its time limit"
	default:
		status = domain.ExecutionStatusFailed
		errMsg = runErr.Error()
	}

	fields := map[string]interface{}{
		"finished_at":   s.now(),
		"output":        output,
		"error_message": errMsg,
	}
	mu.Lock()
	if seen > exec.TotalTasks {
		fields["total_tasks"] = seen
	}
	mu.Unlock()

	if _, err := s.repo.Transition(store, tenantID, executionID,
		[]domain.ExecutionStatus{domain.ExecutionStatusRunning}, status, fields); err != nil {
		return errors.CombineErrors(runErr, err)
	}

	if s.audit != nil {
		s.audit.Record(store, ports.AuditEntry{
			TenantID:     tenantID,
			Action:       domain.AuditActionPlaybookRun,
			ResourceType: domain.ResourceTypePlaybookExecution,
			ResourceID:   uintPtr(exec.ID),
			Details:      domain.JSONB{"execution_id": executionID, "status": string(status)},
		})
	}
	s.logger.Infow("playbook_execution_finished", "execution_id", executionID, "status", status, "results", seen)
	if runErr != nil {
		return domain.MarkTaskExecution(runErr)
	}
	return nil
}
