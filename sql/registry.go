package sql

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// instanceRegistry tracks live instances under opaque ids so a sweep can
// walk them without knowing how they were created.
type instanceRegistry[T any] struct {
	mu    sync.Mutex
	seq   uint64
	items map[uuid.UUID]registryEntry[T]
}

type registryEntry[T any] struct {
	seq   uint64
	value T
}

func newInstanceRegistry[T any]() *instanceRegistry[T] {
	return &instanceRegistry[T]{
		items: make(map[uuid.UUID]registryEntry[T]),
	}
}

// register adds v under id. Registering an id twice replaces the entry.
func (r *instanceRegistry[T]) register(id uuid.UUID, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.items[id] = registryEntry[T]{seq: r.seq, value: v}
}

// deregister removes id and reports whether it was present.
func (r *instanceRegistry[T]) deregister(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.items[id]
	delete(r.items, id)
	return ok
}

// snapshot copies the live instances in registration order.
func (r *instanceRegistry[T]) snapshot() []T {
	r.mu.Lock()
	entries := make([]registryEntry[T], 0, len(r.items))
	for _, e := range r.items {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	slices.SortFunc(entries, func(a, b registryEntry[T]) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})

	out := make([]T, len(entries))
	for i, e := range entries {
		out[i] = e.value
	}
	return out
}

func (r *instanceRegistry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
