// Package weakmap provides a map whose values are weak pointers. Entries whose
// value has been garbage collected are dropped the next time the map is read.
package weakmap

import (
	"cmp"
	"slices"
	"weak"
)

// Map is a map from K to weak references of *V. It is not safe for
// concurrent use; callers provide locking.
type Map[K cmp.Ordered, V any] struct {
	m map[K]weak.Pointer[V]
}

// New returns an empty map.
func New[K cmp.Ordered, V any]() *Map[K, V] {
	return &Map[K, V]{m: make(map[K]weak.Pointer[V])}
}

// Insert stores a weak reference to v under k.
func (w *Map[K, V]) Insert(k K, v *V) {
	w.m[k] = weak.Make(v)
}

// Remove deletes k.
func (w *Map[K, V]) Remove(k K) {
	delete(w.m, k)
}

// Get returns the value under k if it is still alive.
func (w *Map[K, V]) Get(k K) (*V, bool) {
	p, ok := w.m[k]
	if !ok {
		return nil, false
	}
	v := p.Value()
	if v == nil {
		delete(w.m, k)
		return nil, false
	}
	return v, true
}

// Values returns the live values ordered by key, pruning dead entries.
func (w *Map[K, V]) Values() []*V {
	keys := make([]K, 0, len(w.m))
	for k := range w.m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]*V, 0, len(keys))
	for _, k := range keys {
		if v := w.m[k].Value(); v != nil {
			out = append(out, v)
		} else {
			delete(w.m, k)
		}
	}
	return out
}

// Len returns the number of live entries.
func (w *Map[K, V]) Len() int {
	return len(w.Values())
}
