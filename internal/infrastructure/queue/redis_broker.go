package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
)

const revokedTTL = 24 * time.Hour

// RedisBroker keeps one list per (queue, priority). Producers LPUSH and
// workers BRPOP across all keys ordered by priority first, so a level-0
// message on any subscribed queue is served before level-1 work.
type RedisBroker struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisBroker(client redis.UniversalClient, prefix string) *RedisBroker {
	return &RedisBroker{client: client, prefix: prefix}
}

var _ ports.TaskBroker = (*RedisBroker)(nil)

func validateInvocation(inv *domain.TaskInvocation) error {
	if inv == nil || inv.ID == "" || inv.Task == "" || inv.Queue == "" {
		return errors.New("invocation requires id, task and queue")
	}
	return nil
}

func (b *RedisBroker) listKey(queue string, priority int) string {
	return b.prefix + ":queue:" + queue + ":" + strconv.Itoa(priority)
}

func (b *RedisBroker) revokedKey(id string) string {
	return b.prefix + ":revoked:" + id
}

func (b *RedisBroker) Enqueue(ctx context.Context, inv *domain.TaskInvocation) error {
	if err := validateInvocation(inv); err != nil {
		return err
	}
	payload, err := json.Marshal(inv)
	if err != nil {
		return errors.Wrap(err, "encode invocation")
	}
	key := b.listKey(inv.Queue, domain.NormalizePriority(inv.Priority))
	if err := b.client.LPush(ctx, key, payload).Err(); err != nil {
		return domain.MarkTransient(errors.Wrapf(err, "enqueue %s", inv.Task))
	}
	return nil
}

func (b *RedisBroker) keysFor(queues []string) []string {
	keys := make([]string, 0, len(queues)*(domain.PriorityLowest+1))
	for p := domain.PriorityHighest; p <= domain.PriorityLowest; p++ {
		for _, q := range queues {
			keys = append(keys, b.listKey(q, p))
		}
	}
	return keys
}

func (b *RedisBroker) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*domain.TaskInvocation, error) {
	res, err := b.client.BRPop(ctx, timeout, b.keysFor(queues)...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.MarkTransient(errors.Wrap(err, "dequeue"))
	}
	if len(res) != 2 {
		return nil, errors.Newf("unexpected BRPOP reply of %d elements", len(res))
	}

	var inv domain.TaskInvocation
	if err := json.Unmarshal([]byte(res[1]), &inv); err != nil {
		return nil, errors.Wrapf(err, "decode invocation from %s", res[0])
	}
	return &inv, nil
}

func (b *RedisBroker) Revoke(ctx context.Context, id string) error {
	if err := b.client.Set(ctx, b.revokedKey(id), "1", revokedTTL).Err(); err != nil {
		return domain.MarkTransient(errors.Wrapf(err, "revoke %s", id))
	}
	return nil
}

func (b *RedisBroker) IsRevoked(ctx context.Context, id string) (bool, error) {
	n, err := b.client.Exists(ctx, b.revokedKey(id)).Result()
	if err != nil {
		return false, domain.MarkTransient(errors.Wrapf(err, "check revoked %s", id))
	}
	return n > 0, nil
}

func (b *RedisBroker) QueueLengths(ctx context.Context, queues []string) (map[string]int64, error) {
	pipe := b.client.Pipeline()
	cmds := make(map[string][]*redis.IntCmd, len(queues))
	for _, q := range queues {
		for p := domain.PriorityHighest; p <= domain.PriorityLowest; p++ {
			cmds[q] = append(cmds[q], pipe.LLen(ctx, b.listKey(q, p)))
		}
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, domain.MarkTransient(errors.Wrap(err, "queue lengths"))
	}
	out := make(map[string]int64, len(queues))
	for q, list := range cmds {
		for _, c := range list {
			out[q] += c.Val()
		}
	}
	return out, nil
}
