package ports

import (
	"context"
	"time"

	"github.com/opspanel/backend/internal/domain"
)

// TaskBroker carries invocations from producers to workers with
// at-least-once delivery. Dequeue returns (nil, nil) when timeout passes
// without a message.
type TaskBroker interface {
	Enqueue(ctx context.Context, inv *domain.TaskInvocation) error
	Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*domain.TaskInvocation, error)
	Revoke(ctx context.Context, id string) error
	IsRevoked(ctx context.Context, id string) (bool, error)
	QueueLengths(ctx context.Context, queues []string) (map[string]int64, error)
}

// LeaderLock elects the single scheduler instance. Acquire both takes a free
// lock and extends one already held by the caller.
type LeaderLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// ScheduleOverrides persists enable/disable toggles made through the API
// so the beat process picks them up.
type ScheduleOverrides interface {
	Load(ctx context.Context) (map[string]bool, error)
	Set(ctx context.Context, name string, enabled bool) error
}
