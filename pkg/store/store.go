// Package store provides a generic, thread-safe key-value store used as the
// service's ledger storage. Beyond plain CRUD it exposes the conditional
// primitives the payment and fulfillment paths depend on: atomic
// read-modify-write, compare-and-set updates, and insert-if-absent.
package store

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Store is a generic, thread-safe store for objects of type T.
// T must be a struct that can be marshaled/unmarshaled to JSON.
type Store[T any] struct {
	mu      sync.RWMutex
	items   map[string]T
	order   []string // insertion order for deterministic listing
	prefix  string
	counter atomic.Uint64
}

// New creates a new Store with the given ID prefix (e.g., "ord", "pi", "xp").
func New[T any](prefix string) *Store[T] {
	return &Store[T]{
		items:  make(map[string]T),
		order:  make([]string, 0),
		prefix: prefix,
	}
}

// NextID generates a deterministic ID with the store's prefix.
// IDs are of the form "{prefix}_{counter}" e.g., "ord_000001".
func (s *Store[T]) NextID() string {
	n := s.counter.Add(1)
	return fmt.Sprintf("%s_%06d", s.prefix, n)
}

// Set stores an item with the given ID. If the ID already exists, it is
// overwritten but its position in the insertion order is preserved.
func (s *Store[T]) Set(id string, item T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; !exists {
		s.order = append(s.order, id)
	}
	s.items[id] = item
}

// SetIfAbsent inserts the item only if no item with the given ID exists.
// Returns true if the insert happened. This is the unique-constraint
// primitive: of two concurrent inserts for the same ID, exactly one wins.
func (s *Store[T]) SetIfAbsent(id string, item T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; exists {
		return false
	}
	s.order = append(s.order, id)
	s.items[id] = item
	return true
}

// Get retrieves an item by ID.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

// Update atomically applies fn to the item with the given ID and stores the
// result. Returns false if the item does not exist. No other writer can
// interleave between the read and the write.
func (s *Store[T]) Update(id string, fn func(T) T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return false
	}
	s.items[id] = fn(item)
	return true
}

// UpdateIf applies fn only when pred holds for the current item, as a single
// atomic step. The first return reports whether the item exists, the second
// whether the update was applied. Callers use this for guarded transitions
// such as "decrement stock if stock >= qty" and "mark paid if still created".
func (s *Store[T]) UpdateIf(id string, pred func(T) bool, fn func(T) T) (found bool, applied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return false, false
	}
	if !pred(item) {
		return true, false
	}
	s.items[id] = fn(item)
	return true, true
}

// Delete removes an item by ID. Returns true if the item existed.
func (s *Store[T]) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; !exists {
		return false
	}
	delete(s.items, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns all items in insertion order.
func (s *Store[T]) List() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]T, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.items[id])
	}
	return result
}

// Count returns the number of items in the store.
func (s *Store[T]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Filter returns items that match the given predicate, in insertion order.
func (s *Store[T]) Filter(predicate func(id string, item T) bool) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []T
	for _, id := range s.order {
		if predicate(id, s.items[id]) {
			result = append(result, s.items[id])
		}
	}
	return result
}

// FilterIDs returns the IDs of items matching the predicate, in insertion order.
func (s *Store[T]) FilterIDs(predicate func(id string, item T) bool) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, id := range s.order {
		if predicate(id, s.items[id]) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Reset clears all items and resets the ID counter.
func (s *Store[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T)
	s.order = make([]string, 0)
	s.counter.Store(0)
}

// Snapshot returns all items as a JSON-serializable map.
func (s *Store[T]) Snapshot() map[string]T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[string]T, len(s.items))
	for k, v := range s.items {
		snapshot[k] = v
	}
	return snapshot
}

// LoadSnapshot replaces all items from a JSON-serializable map.
// Existing items are cleared. IDs are sorted to maintain deterministic order.
func (s *Store[T]) LoadSnapshot(snapshot map[string]T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T, len(snapshot))
	s.order = make([]string, 0, len(snapshot))
	for k, v := range snapshot {
		s.items[k] = v
		s.order = append(s.order, k)
	}
	sort.Strings(s.order)
}

// Clock provides the service clock. Tests advance it to cross daily-cap
// boundaries without sleeping.
type Clock struct {
	mu     sync.RWMutex
	offset time.Duration
}

// NewClock creates a new clock with no offset.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current time including any test offset.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().Add(c.offset)
}

// Advance moves the clock forward by the given duration.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}

// Reset resets the clock offset to zero.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = 0
}
