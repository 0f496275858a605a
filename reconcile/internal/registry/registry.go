// Package registry holds non-owning references to tracked host elements.
//
// Entries are weak: the registry never keeps an element alive, and a Get
// after the referent is collected transparently yields nil. All operations
// are total: there is deliberately no error path and no list-all.
package registry

import (
	"sync"
	"weak"
)

// Table maps a logical key to a weak reference. The zero Table is not
// usable; create one with New. Safe for concurrent use.
type Table[K comparable, T any] struct {
	mu   sync.Mutex
	refs map[K]weak.Pointer[T]
}

// New creates an empty Table.
func New[K comparable, T any]() *Table[K, T] {
	return &Table[K, T]{refs: make(map[K]weak.Pointer[T])}
}

// Set stores a weak reference for key, silently replacing any previous one.
// A nil value clears the entry.
func (t *Table[K, T]) Set(key K, v *T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v == nil {
		delete(t.refs, key)
		return
	}
	t.refs[key] = weak.Make(v)
}

// Get dereferences the weak reference for key. Returns nil when the key is
// unset or the referent has been collected; callers treat nil as "feature
// currently unavailable", never as a fatal condition.
func (t *Table[K, T]) Get(key K) *T {
	t.mu.Lock()
	defer t.mu.Unlock()
	ref, ok := t.refs[key]
	if !ok {
		return nil
	}
	v := ref.Value()
	if v == nil {
		// Referent collected, drop the dead entry.
		delete(t.refs, key)
	}
	return v
}

// Clear removes the entry for key.
func (t *Table[K, T]) Clear(key K) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.refs, key)
}
