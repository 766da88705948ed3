package session

import "sync"

// Registry maps session ids to live resources. Every operation is atomic per
// key.
type Registry[T comparable] struct {
	mu    sync.RWMutex
	items map[string]T
}

func NewRegistry[T comparable]() *Registry[T] {
	return &Registry[T]{items: make(map[string]T)}
}

// Insert stores v under id unless id is already taken.
func (r *Registry[T]) Insert(id string, v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; ok {
		return false
	}
	r.items[id] = v
	return true
}

func (r *Registry[T]) Get(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[id]
	return v, ok
}

// GetOrInsert returns the entry for id, storing v first when id is free. It
// reports whether the entry already existed.
func (r *Registry[T]) GetOrInsert(id string, v T) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.items[id]; ok {
		return cur, true
	}
	r.items[id] = v
	return v, false
}

// Remove deletes and returns the entry for id.
func (r *Registry[T]) Remove(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[id]
	if ok {
		delete(r.items, id)
	}
	return v, ok
}

// RemoveIf deletes the entry for id only while it still holds v. It reports
// whether it removed anything.
func (r *Registry[T]) RemoveIf(id string, v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.items[id]; ok && cur == v {
		delete(r.items, id)
		return true
	}
	return false
}

func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Drain empties the registry and returns what it held.
func (r *Registry[T]) Drain() map[string]T {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.items
	r.items = make(map[string]T)
	return all
}
