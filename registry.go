package recordcache

import (
	"sort"
	"sync"
)

// Registry holds named stores so outer surfaces (the SQL facade, admin
// tooling) can address them like tables.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*Store
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		stores: make(map[string]*Store),
	}
}

// Bind registers a store under a name. Binding an already bound name fails;
// use Unbind first to replace a store.
func (r *Registry) Bind(name string, s *Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.stores[name]; ok {
		return WithContext(ErrAlreadyBound, map[string]interface{}{
			"name": name,
		})
	}
	r.stores[name] = s
	return nil
}

// Unbind removes a named store
func (r *Registry) Unbind(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.stores[name]; !ok {
		return WithContext(ErrNotFound, map[string]interface{}{
			"name": name,
		})
	}
	delete(r.stores, name)
	return nil
}

// Get returns the store bound under name, if any
func (r *Registry) Get(name string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[name]
	return s, ok
}

// Names lists bound names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
