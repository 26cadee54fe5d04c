package queue

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
)

type RedisOverrides struct {
	client redis.UniversalClient
	key    string
}

func NewRedisOverrides(client redis.UniversalClient, prefix string) *RedisOverrides {
	return &RedisOverrides{client: client, key: prefix + ":schedule:enabled"}
}

var _ ports.ScheduleOverrides = (*RedisOverrides)(nil)

func (o *RedisOverrides) Load(ctx context.Context) (map[string]bool, error) {
	raw, err := o.client.HGetAll(ctx, o.key).Result()
	if err != nil {
		return nil, domain.MarkTransient(errors.Wrap(err, "load schedule overrides"))
	}
	out := make(map[string]bool, len(raw))
	for name, v := range raw {
		out[name] = v == "1"
	}
	return out, nil
}

func (o *RedisOverrides) Set(ctx context.Context, name string, enabled bool) error {
	v := "0"
	if enabled {
		v = "1"
	}
	if err := o.client.HSet(ctx, o.key, name, v).Err(); err != nil {
		return domain.MarkTransient(errors.Wrapf(err, "store schedule override %s", name))
	}
	return nil
}

type MemoryOverrides struct {
	mu     sync.RWMutex
	values map[string]bool
}

func NewMemoryOverrides() *MemoryOverrides {
	return &MemoryOverrides{values: make(map[string]bool)}
}

func (o *MemoryOverrides) Load(context.Context) (map[string]bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]bool, len(o.values))
	for k, v := range o.values {
		out[k] = v
	}
	return out, nil
}

func (o *MemoryOverrides) Set(_ context.Context, name string, enabled bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.values[name] = enabled
	return nil
}
