package resource

import (
	"fmt"
	"sync"
)

// ID is a generation-tagged slot index. The zero ID never refers to a live value.
type ID struct {
	Index      uint32
	Generation uint32
}

// IsZero reports whether the ID is the zero ID.
func (id ID) IsZero() bool {
	return id.Generation == 0
}

func (id ID) String() string {
	return fmt.Sprintf("%d.%d", id.Index, id.Generation)
}

type slot[T any] struct {
	value      T
	generation uint32
	live       bool
}

// Arena stores values in reusable slots. Removing a value bumps its slot's generation, so IDs handed
// out for the old value stop resolving instead of aliasing the next value stored in the slot.
type Arena[T any] struct {
	mu    *sync.Mutex
	slots []slot[T]
	free  []uint32
	live  int
}

// NewArena creates an empty Arena.
func NewArena[T any]() *Arena[T] {
	return &Arena[T]{mu: &sync.Mutex{}}
}

// Insert stores v and returns its ID.
//
// Parameters:
//   - v: the value to store
//
// Returns:
//   - ID: the handle of the stored value
func (a *Arena[T]) Insert(v T) ID {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live++
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[idx]
		s.value = v
		s.live = true
		return ID{Index: idx, Generation: s.generation}
	}
	a.slots = append(a.slots, slot[T]{value: v, generation: 1, live: true})
	return ID{Index: uint32(len(a.slots) - 1), Generation: 1}
}

// Get returns the value of id, or false if id is stale or was never issued.
func (a *Arena[T]) Get(id ID) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var zero T
	if int(id.Index) >= len(a.slots) {
		return zero, false
	}
	s := a.slots[id.Index]
	if !s.live || s.generation != id.Generation {
		return zero, false
	}
	return s.value, true
}

// Remove frees the slot of id and returns the value it held.
//
// Parameters:
//   - id: the handle to remove
//
// Returns:
//   - T: the removed value
//   - bool: false if id was already stale
func (a *Arena[T]) Remove(id ID) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var zero T
	if int(id.Index) >= len(a.slots) {
		return zero, false
	}
	s := &a.slots[id.Index]
	if !s.live || s.generation != id.Generation {
		return zero, false
	}
	v := s.value
	s.value = zero
	s.live = false
	s.generation++
	a.free = append(a.free, id.Index)
	a.live--
	return v, true
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Drain removes every live value and calls fn with it, in slot order.
func (a *Arena[T]) Drain(fn func(ID, T)) {
	a.mu.Lock()
	var ids []ID
	var values []T
	for i := range a.slots {
		s := &a.slots[i]
		if !s.live {
			continue
		}
		ids = append(ids, ID{Index: uint32(i), Generation: s.generation})
		values = append(values, s.value)
		var zero T
		s.value = zero
		s.live = false
		s.generation++
		a.free = append(a.free, uint32(i))
	}
	a.live = 0
	a.mu.Unlock()

	for i := range ids {
		fn(ids[i], values[i])
	}
}
