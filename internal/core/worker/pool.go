package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/opspanel/backend/internal/config"
	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/infrastructure/metrics"
)

// Outcome labels recorded per invocation.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusPanic   = "panic"
	StatusTimeout = "timeout"
	StatusRevoked = "revoked"
	StatusUnknown = "unknown_task"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

var ErrTaskPanicked = domain.NewSentinel("worker: task panicked", domain.ErrTaskExecution)

// Pool runs Concurrency consumers over the subscribed queues. Consumers
// share nothing but the broker and the handler registry.
type Pool struct {
	broker   ports.TaskBroker
	registry *Registry
	metrics  *metrics.Metrics
	log      *logger.Logger

	queues      []string
	concurrency int
	taskTimeout time.Duration
	pollTimeout time.Duration

	wg         sync.WaitGroup
	stopPoll   context.CancelFunc
	cancelTask context.CancelFunc
}

func NewPool(cfg config.WorkerConfig, broker ports.TaskBroker, registry *Registry, m *metrics.Metrics, log *logger.Logger) *Pool {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	poll := cfg.PollTimeout
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &Pool{
		broker:      broker,
		registry:    registry,
		metrics:     m,
		log:         log.Named("worker"),
		queues:      cfg.Queues,
		concurrency: concurrency,
		taskTimeout: cfg.TaskTimeout,
		pollTimeout: poll,
	}
}

func (p *Pool) Start(ctx context.Context) {
	pollCtx, stopPoll := context.WithCancel(ctx)
	taskCtx, cancelTask := context.WithCancel(context.WithoutCancel(ctx))
	p.stopPoll = stopPoll
	p.cancelTask = cancelTask

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.consume(pollCtx, taskCtx, i)
	}
	p.log.Infow("worker_pool_started",
		"concurrency", p.concurrency,
		"queues", p.queues,
		"tasks", p.registry.Names(),
	)
}

// Stop stops polling and waits for running invocations. When ctx ends
// first, running invocations are cancelled.
func (p *Pool) Stop(ctx context.Context) {
	if p.stopPoll == nil {
		return
	}
	p.stopPoll()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.log.Warnw("worker_pool_stop_deadline", "error", ctx.Err())
		p.cancelTask()
		<-done
	}
	p.cancelTask()
	p.log.Infow("worker_pool_stopped")
}

func (p *Pool) consume(pollCtx, taskCtx context.Context, id int) {
	defer p.wg.Done()

	backoff := minBackoff
	for {
		if pollCtx.Err() != nil {
			return
		}
		inv, err := p.broker.Dequeue(pollCtx, p.queues, p.pollTimeout)
		if err != nil {
			if pollCtx.Err() != nil {
				return
			}
			p.log.Warnw("worker_dequeue_failed",
				"consumer", id,
				"error", err,
				"kind", domain.Kind(err),
				"retry_in", backoff.String(),
			)
			select {
			case <-pollCtx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = minBackoff
		if inv == nil {
			continue
		}
		p.Dispatch(taskCtx, inv)
	}
}

// Dispatch runs one invocation to completion and returns its outcome label.
func (p *Pool) Dispatch(ctx context.Context, inv *domain.TaskInvocation) string {
	log := p.log.With("task", inv.Task, "id", inv.ID, "queue", inv.Queue)

	revoked, err := p.broker.IsRevoked(ctx, inv.ID)
	if err != nil {
		log.Warnw("worker_revocation_check_failed", "error", err)
	}
	if revoked {
		log.Infow("worker_task_revoked")
		p.metrics.WorkerTasks.WithLabelValues(inv.Task, StatusRevoked).Inc()
		return StatusRevoked
	}

	handler, ok := p.registry.Get(inv.Task)
	if !ok {
		log.Errorw("worker_unknown_task")
		p.metrics.WorkerTasks.WithLabelValues(inv.Task, StatusUnknown).Inc()
		return StatusUnknown
	}

	runCtx := ctx
	if p.taskTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.taskTimeout)
		defer cancel()
	}

	p.metrics.WorkerInFlight.Inc()
	start := time.Now()
	err = invoke(runCtx, handler, inv)
	elapsed := time.Since(start)
	p.metrics.WorkerInFlight.Dec()
	p.metrics.WorkerTaskDuration.WithLabelValues(inv.Task).Observe(elapsed.Seconds())

	status := StatusSuccess
	switch {
	case err == nil:
	case errors.Is(err, ErrTaskPanicked):
		status = StatusPanic
	case errors.Is(err, context.DeadlineExceeded) || runCtx.Err() == context.DeadlineExceeded:
		status = StatusTimeout
	default:
		status = StatusFailed
	}
	p.metrics.WorkerTasks.WithLabelValues(inv.Task, status).Inc()

	if err != nil {
		log.Errorw("worker_task_failed",
			"status", status,
			"kind", domain.Kind(err),
			"error", err,
			"duration", elapsed.String(),
		)
		return status
	}
	log.Infow("worker_task_ok", "duration", elapsed.String())
	return status
}

func invoke(ctx context.Context, h HandlerFunc, inv *domain.TaskInvocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrTaskPanicked, "%v\n%s", r, debug.Stack())
		}
	}()
	if err := h(ctx, inv); err != nil {
		return domain.MarkTaskExecution(err)
	}
	return nil
}

