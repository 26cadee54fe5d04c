package queue

import (
	"context"
	"sync"
	"time"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
)

type priorityLists [domain.PriorityLowest + 1][]*domain.TaskInvocation

// MemoryBroker is an in-process broker for single-binary development runs
// and tests. It follows the same priority order as the Redis broker.
type MemoryBroker struct {
	mu      sync.Mutex
	queues  map[string]*priorityLists
	revoked map[string]bool
	signal  chan struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues:  make(map[string]*priorityLists),
		revoked: make(map[string]bool),
		signal:  make(chan struct{}),
	}
}

var _ ports.TaskBroker = (*MemoryBroker)(nil)

func (b *MemoryBroker) Enqueue(ctx context.Context, inv *domain.TaskInvocation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateInvocation(inv); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	lists, ok := b.queues[inv.Queue]
	if !ok {
		lists = &priorityLists{}
		b.queues[inv.Queue] = lists
	}
	p := domain.NormalizePriority(inv.Priority)
	copied := *inv
	lists[p] = append(lists[p], &copied)

	close(b.signal)
	b.signal = make(chan struct{})
	return nil
}

func (b *MemoryBroker) pop(queues []string) *domain.TaskInvocation {
	for p := domain.PriorityHighest; p <= domain.PriorityLowest; p++ {
		for _, q := range queues {
			lists, ok := b.queues[q]
			if !ok || len(lists[p]) == 0 {
				continue
			}
			inv := lists[p][0]
			lists[p] = lists[p][1:]
			return inv
		}
	}
	return nil
}

func (b *MemoryBroker) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*domain.TaskInvocation, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		b.mu.Lock()
		inv := b.pop(queues)
		wait := b.signal
		b.mu.Unlock()
		if inv != nil {
			return inv, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-wait:
		}
	}
}

func (b *MemoryBroker) Revoke(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[id] = true
	return nil
}

func (b *MemoryBroker) IsRevoked(_ context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.revoked[id], nil
}

func (b *MemoryBroker) QueueLengths(_ context.Context, queues []string) (map[string]int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int64, len(queues))
	for _, q := range queues {
		var n int64
		if lists, ok := b.queues[q]; ok {
			for _, l := range lists {
				n += int64(len(l))
			}
		}
		out[q] = n
	}
	return out, nil
}

// LocalLock always grants leadership; for deployments that run exactly one
// beat process by construction.
type LocalLock struct{}

func (LocalLock) Acquire(context.Context) (bool, error) { return true, nil }
func (LocalLock) Release(context.Context) error         { return nil }
