package resource

import (
	"sort"
	"sync"
)

var _ Backend = (*LocalBackend)(nil)

// LocalBackend is an in-memory resource backend with borrow tracking.
// IDs are allocated monotonically and never reused within one backend.
type LocalBackend struct {
	entries map[ID]*entry
	nextID  ID
	mu      sync.Mutex
	closed  bool
}

type entry struct {
	value       Resource
	borrowCount uint32
	removed     bool
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		entries: make(map[ID]*entry, 64),
		nextID:  1,
	}
}

// Create stores a value and returns a fresh ID.
func (b *LocalBackend) Create(res Resource) (ID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}
	if b.nextID == 0 {
		return 0, ErrExhausted
	}

	id := b.nextID
	b.nextID++
	b.entries[id] = &entry{value: res}
	return id, nil
}

// Get retrieves a value by ID.
func (b *LocalBackend) Get(id ID) (Resource, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[id]
	if !ok || e.removed {
		return nil, false
	}
	return e.value, true
}

// Remove unlinks id. Returns (value, closeNow, ok).
func (b *LocalBackend) Remove(id ID) (Resource, bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[id]
	if !ok || e.removed {
		return nil, false, false
	}

	if e.borrowCount > 0 {
		e.removed = true
		return e.value, false, true
	}

	delete(b.entries, id)
	return e.value, true, true
}

// Borrow increments the borrow count for an ID.
func (b *LocalBackend) Borrow(id ID) (Resource, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[id]
	if !ok || e.removed {
		return nil, false
	}

	e.borrowCount++
	return e.value, true
}

// ReturnBorrow decrements the borrow count for an ID.
func (b *LocalBackend) ReturnBorrow(id ID) (Resource, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[id]
	if !ok || e.borrowCount == 0 {
		return nil, false
	}

	e.borrowCount--
	if e.borrowCount == 0 && e.removed {
		delete(b.entries, id)
		return e.value, true
	}
	return nil, false
}

// Close stops accepting resources and unlinks everything that is not
// borrowed, returning it in ID order for the caller to close. Borrowed
// entries are marked removed so their last ReturnBorrow hands them back;
// they are returned as leased so the caller can interrupt their holders.
func (b *LocalBackend) Close() (closeNow, leased []Held) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true

	for id, e := range b.entries {
		if e.removed {
			continue
		}
		if e.borrowCount > 0 {
			e.removed = true
			leased = append(leased, Held{ID: id, Value: e.value})
			continue
		}
		closeNow = append(closeNow, Held{ID: id, Value: e.value})
		delete(b.entries, id)
	}
	sort.Slice(closeNow, func(i, j int) bool { return closeNow[i].ID < closeNow[j].ID })
	sort.Slice(leased, func(i, j int) bool { return leased[i].ID < leased[j].ID })
	return closeNow, leased
}

// Len returns the number of linked resources.
func (b *LocalBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for _, e := range b.entries {
		if !e.removed {
			count++
		}
	}
	return count
}

// Each iterates over linked resources in ID order.
func (b *LocalBackend) Each(fn func(ID, Resource) bool) {
	b.mu.Lock()
	ids := make([]ID, 0, len(b.entries))
	vals := make(map[ID]Resource, len(b.entries))
	for id, e := range b.entries {
		if !e.removed {
			ids = append(ids, id)
			vals[id] = e.value
		}
	}
	b.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if !fn(id, vals[id]) {
			break
		}
	}
}
