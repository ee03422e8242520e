package notifier

import (
	"fmt"
	"slices"
	"sync"
)

// Factory creates a Notifier from its spec.
type Factory func(spec Spec) (Notifier, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a notifier factory available by kind.
// It is typically called from an init() function in the adapter package.
func Register(kind string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("notifier: duplicate registration for %q", kind))
	}
	factories[kind] = factory
}

// New creates a Notifier through the factory registered for spec.Kind.
func New(spec Spec) (Notifier, error) {
	mu.RLock()
	factory, ok := factories[spec.Kind]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("notifier: unknown kind %q", spec.Kind)
	}
	return factory(spec)
}

// Kinds returns the registered notifier kinds, sorted.
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
