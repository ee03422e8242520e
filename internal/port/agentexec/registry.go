package agentexec

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Strob0t/agentplan/internal/domain/plan"
)

// Factory builds an Executor of one kind from its spec.
type Factory func(spec Spec) (Executor, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes an executor kind available by name.
// It is typically called from an init() function in the adapter package.
func Register(kind string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("agentexec: duplicate registration for %q", kind))
	}
	factories[kind] = factory
}

// New creates an Executor of the given kind using the registered factory.
func New(spec Spec) (Executor, error) {
	mu.RLock()
	factory, ok := factories[spec.Kind]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("agentexec: unknown executor kind %q", spec.Kind)
	}
	return factory(spec)
}

// Kinds returns the sorted names of all registered executor kinds.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Registry maps agent types to executors. Adding an agent type only requires
// adding an executor here.
type Registry struct {
	mu        sync.RWMutex
	executors map[plan.AgentType]Executor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[plan.AgentType]Executor)}
}

// Add binds an executor to an agent type.
func (r *Registry) Add(agentType plan.AgentType, e Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[agentType]; exists {
		return fmt.Errorf("agentexec: agent type %q already has an executor", agentType)
	}
	r.executors[agentType] = e
	return nil
}

// Lookup returns the executor bound to agentType.
func (r *Registry) Lookup(agentType plan.AgentType) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[agentType]
	return e, ok
}

// Types returns the sorted agent types that have an executor.
func (r *Registry) Types() []plan.AgentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]plan.AgentType, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
