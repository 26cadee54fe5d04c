package schedule

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/opspanel/backend/internal/domain"
)

var (
	ErrDefinitionNotFound = domain.NewSentinel("schedule: definition not found", domain.ErrNotFound)
	ErrDefinitionExists   = domain.NewSentinel("schedule: definition already exists", domain.ErrDataIntegrity)
)

// Definition is one periodic task. Values are never mutated after they are
// published in a snapshot; changes publish a copy.
type Definition struct {
	Name     string
	Task     string
	Rule     Rule
	Args     []interface{}
	Kwargs   map[string]interface{}
	Queue    string
	Priority int
	Enabled  bool
}

type snapshot struct {
	byName map[string]*Definition
	order  []*Definition
}

func newSnapshot(defs []*Definition) *snapshot {
	s := &snapshot{byName: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		s.byName[d.Name] = d
	}
	s.order = append(s.order, defs...)
	sort.SliceStable(s.order, func(i, j int) bool { return s.order[i].Name < s.order[j].Name })
	return s
}

// Registry is read on every scheduler tick and written rarely from the API.
// Readers load an immutable snapshot; writers serialize on mu and swap in
// a new one.
type Registry struct {
	mu    sync.Mutex
	snap  atomic.Pointer[snapshot]
	known KnownTask
}

// NewRegistry seeds the registry from table. Definitions added later are
// checked against known; a nil known accepts any task name.
func NewRegistry(table *Table, known KnownTask) *Registry {
	r := &Registry{known: known}
	var defs []*Definition
	if table != nil {
		defs = table.Definitions()
	}
	r.snap.Store(newSnapshot(defs))
	return r
}

func (r *Registry) Lookup(name string) (*Definition, error) {
	d, ok := r.snap.Load().byName[name]
	if !ok {
		return nil, errors.Wrapf(ErrDefinitionNotFound, "%q", name)
	}
	return d, nil
}

func (r *Registry) All() []*Definition {
	order := r.snap.Load().order
	out := make([]*Definition, len(order))
	copy(out, order)
	return out
}

func (r *Registry) Enabled() []*Definition {
	var out []*Definition
	for _, d := range r.snap.Load().order {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

func (r *Registry) mutate(fn func(defs map[string]*Definition) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.snap.Load()
	next := make(map[string]*Definition, len(current.byName)+1)
	for k, v := range current.byName {
		next[k] = v
	}
	if err := fn(next); err != nil {
		return err
	}
	defs := make([]*Definition, 0, len(next))
	for _, d := range next {
		defs = append(defs, d)
	}
	r.snap.Store(newSnapshot(defs))
	return nil
}

func (r *Registry) SetEnabled(name string, enabled bool) error {
	return r.mutate(func(defs map[string]*Definition) error {
		d, ok := defs[name]
		if !ok {
			return errors.Wrapf(ErrDefinitionNotFound, "%q", name)
		}
		updated := *d
		updated.Enabled = enabled
		defs[name] = &updated
		return nil
	})
}

func (r *Registry) Add(def *Definition) error {
	if err := validateDefinition(def, r.known); err != nil {
		return err
	}
	return r.mutate(func(defs map[string]*Definition) error {
		if _, ok := defs[def.Name]; ok {
			return errors.Wrapf(ErrDefinitionExists, "%q", def.Name)
		}
		copied := *def
		defs[def.Name] = &copied
		return nil
	})
}

func (r *Registry) Remove(name string) error {
	return r.mutate(func(defs map[string]*Definition) error {
		if _, ok := defs[name]; !ok {
			return errors.Wrapf(ErrDefinitionNotFound, "%q", name)
		}
		delete(defs, name)
		return nil
	})
}
