package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/opspanel/backend/internal/domain"
)

// HandlerFunc executes one invocation. Returned errors are logged and
// counted; they never stop the pool.
type HandlerFunc func(ctx context.Context, inv *domain.TaskInvocation) error

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register binds name to h. Registration happens once at start from an
// explicit list, so a duplicate is a programming error and panics.
func (r *Registry) Register(name string, h HandlerFunc) {
	if name == "" || h == nil {
		panic("worker: Register needs a name and a handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[name]; ok {
		panic(fmt.Sprintf("worker: handler %q registered twice", name))
	}
	r.handlers[name] = h
}

func (r *Registry) Get(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
