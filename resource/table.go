package resource

import (
	"sync"

	"go.uber.org/multierr"

	"github.com/wippyai/opcore/errors"
)

var (
	ErrClosed    = &errors.Error{Phase: errors.PhaseResource, Kind: errors.KindBadResource, Detail: "resource table closed"}
	ErrExhausted = &errors.Error{Phase: errors.PhaseResource, Kind: errors.KindGeneric, Detail: "resource ids exhausted"}
)

// Table is the handle-indexed registry of live native resources.
// Each method is individually atomic; nothing serializes across calls.
type Table struct {
	backend   *LocalBackend
	observers map[int]Observer
	failures  []error
	obsMu     sync.RWMutex
	failMu    sync.Mutex
	nextObs   int
}

// NewTable creates a new table with a LocalBackend.
func NewTable() *Table {
	return &Table{
		backend:   NewLocalBackend(),
		observers: make(map[int]Observer),
	}
}

// Add takes ownership of res and returns its rid.
func (t *Table) Add(res Resource) (ID, error) {
	id, err := t.backend.Create(res)
	if err != nil {
		return 0, err
	}

	t.notify(Event{Type: EventCreated, ID: id, Name: res.Name()})
	return id, nil
}

// Get retrieves a resource by rid.
func (t *Table) Get(id ID) (Resource, error) {
	res, ok := t.backend.Get(id)
	if !ok {
		return nil, errors.BadResource(uint32(id))
	}
	return res, nil
}

// GetAs retrieves a resource only if it has the expected Go type.
func GetAs[T Resource](t *Table, id ID) (T, error) {
	var zero T
	res, err := t.Get(id)
	if err != nil {
		return zero, err
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.BadResource(uint32(id))
	}
	return v, nil
}

// Borrow leases a resource of type T. While leased, Close unlinks the rid
// immediately but defers the native close until the lease is released.
func Borrow[T Resource](t *Table, id ID) (*Lease[T], error) {
	res, ok := t.backend.Borrow(id)
	if !ok {
		return nil, errors.BadResource(uint32(id))
	}

	v, ok := res.(T)
	if !ok {
		t.returnBorrow(id)
		return nil, errors.BadResource(uint32(id))
	}

	return &Lease[T]{
		Value:   v,
		release: func() error { return t.returnBorrow(id) },
	}, nil
}

func (t *Table) returnBorrow(id ID) error {
	res, closeNow := t.backend.ReturnBorrow(id)
	if !closeNow {
		return nil
	}
	return t.closeNative(id, res)
}

// Close closes the resource behind id. Closing an unknown or already-closed
// rid fails with BadResource.
func (t *Table) Close(id ID) error {
	res, closeNow, ok := t.backend.Remove(id)
	if !ok {
		return errors.BadResource(uint32(id))
	}
	if !closeNow {
		if c, ok := res.(Canceler); ok {
			c.CancelPending()
		}
		return nil
	}
	return t.closeNative(id, res)
}

// Take unlinks a resource without closing it, handing ownership to the caller.
func (t *Table) Take(id ID) (Resource, error) {
	res, closeNow, ok := t.backend.Remove(id)
	if !ok {
		return nil, errors.BadResource(uint32(id))
	}
	if !closeNow {
		// Borrowed: the pending lease will close it, so it cannot be handed off.
		return nil, errors.New(errors.PhaseResource, errors.KindBadResource).
			Value(uint32(id)).
			Detail("resource %d is in use", id).
			Build()
	}

	t.notify(Event{Type: EventTaken, ID: id, Name: res.Name()})
	return res, nil
}

func (t *Table) closeNative(id ID, res Resource) error {
	if err := res.Close(); err != nil {
		wrapped := errors.Generic(errors.PhaseResource, "close "+res.Name(), err)
		t.recordFailure(wrapped)
		t.notify(Event{Type: EventCloseFailed, ID: id, Name: res.Name(), Err: err})
		return wrapped
	}
	t.notify(Event{Type: EventClosed, ID: id, Name: res.Name()})
	return nil
}

func (t *Table) recordFailure(err error) {
	t.failMu.Lock()
	t.failures = append(t.failures, err)
	t.failMu.Unlock()
}

// Entries lists open resources in rid order.
func (t *Table) Entries() []Entry {
	var out []Entry
	t.backend.Each(func(id ID, res Resource) bool {
		out = append(out, Entry{ID: id, Name: res.Name()})
		return true
	})
	return out
}

// Len returns the number of open resources.
func (t *Table) Len() int {
	return t.backend.Len()
}

// Subscribe adds an observer for lifecycle events and returns a function
// that removes it.
func (t *Table) Subscribe(o Observer) func() {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	key := t.nextObs
	t.nextObs++
	t.observers[key] = o
	return func() {
		t.obsMu.Lock()
		delete(t.observers, key)
		t.obsMu.Unlock()
	}
}

// Shutdown closes every remaining resource exactly once and stops accepting
// new ones. Individual close failures do not stop the sweep; they are
// aggregated into the returned error and kept in Failures. Resources that are
// leased by in-flight work are closed when their lease is released; those
// implementing Canceler are told to abort the pending work first.
func (t *Table) Shutdown() error {
	closeNow, leased := t.backend.Close()
	for _, h := range leased {
		if c, ok := h.Value.(Canceler); ok {
			c.CancelPending()
		}
	}

	var errs error
	for _, h := range closeNow {
		errs = multierr.Append(errs, t.closeNative(h.ID, h.Value))
	}
	return errs
}

// Failures returns every close failure recorded so far.
func (t *Table) Failures() []error {
	t.failMu.Lock()
	defer t.failMu.Unlock()
	out := make([]error, len(t.failures))
	copy(out, t.failures)
	return out
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
