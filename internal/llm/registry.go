package llm

import (
	"fmt"
	"sync"
)

// Registry holds the configured backends in registration order.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	backends map[string]*Backend
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]*Backend)}
}

// Register adds b. Ids must be unique.
func (r *Registry) Register(b *Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.backends[b.ID]; ok {
		return fmt.Errorf("backend %q already registered", b.ID)
	}
	r.backends[b.ID] = b
	r.order = append(r.order, b.ID)
	return nil
}

// Get returns the backend registered under id.
func (r *Registry) Get(id string) (*Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, id)
	}
	return b, nil
}

// All returns the backends in registration order.
func (r *Registry) All() []*Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Backend, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.backends[id])
	}
	return out
}
