package opstate

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/metrics"
	"github.com/wippyai/opcore/permission"
	"github.com/wippyai/opcore/resource"
)

// Cell owns the op state of one isolate. The only way to reach the values
// inside is Borrow, which grants exclusive access for the duration of a
// callback.
type Cell struct {
	values map[reflect.Type]any
	mu     sync.Mutex
}

// State is the view handed to a Borrow callback. It is invalid once the
// callback returns; any later use panics.
type State struct {
	cell    *Cell
	expired atomic.Bool
}

// NewCell creates an empty cell.
func NewCell() *Cell {
	return &Cell{values: make(map[reflect.Type]any)}
}

// New creates a cell holding the core collaborators every op relies on.
func New(table *resource.Table, perms *permission.Permissions, m *metrics.Collector) *Cell {
	c := NewCell()
	c.Borrow(func(st *State) error {
		Put(st, table)
		Put(st, perms)
		Put(st, m)
		return nil
	})
	return c
}

// Borrow runs fn with exclusive access to the state. Borrows never overlap:
// concurrent callers wait. Calling Borrow again from inside fn deadlocks, so
// fn must only use the *State it is given.
func (c *Cell) Borrow(fn func(st *State) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := &State{cell: c}
	defer st.expired.Store(true)
	return fn(st)
}

func (s *State) values() map[reflect.Type]any {
	if s.expired.Load() {
		panic(errors.Internal(errors.PhaseRuntime, "op state used after its borrow ended"))
	}
	return s.cell.values
}

// Resources returns the isolate's resource table.
func (s *State) Resources() *resource.Table {
	return *Borrow[*resource.Table](s)
}

// Permissions returns the isolate's permission gate.
func (s *State) Permissions() *permission.Permissions {
	return *Borrow[*permission.Permissions](s)
}

// Metrics returns the isolate's metrics collector.
func (s *State) Metrics() *metrics.Collector {
	return *Borrow[*metrics.Collector](s)
}

func typeKey[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

// Put stores v, replacing any existing value of type T.
func Put[T any](st *State, v T) {
	st.values()[typeKey[T]()] = &v
}

// Borrow returns a pointer to the stored T. A missing value is a wiring bug,
// so it panics with an internal error instead of returning one.
func Borrow[T any](st *State) *T {
	v, ok := TryBorrow[T](st)
	if !ok {
		panic(errors.Internal(errors.PhaseRuntime, fmt.Sprintf("op state has no value of type %s", typeKey[T]())))
	}
	return v
}

// TryBorrow returns a pointer to the stored T, if any.
func TryBorrow[T any](st *State) (*T, bool) {
	v, ok := st.values()[typeKey[T]()]
	if !ok {
		return nil, false
	}
	return v.(*T), true
}

// TryTake removes and returns the stored T, if any.
func TryTake[T any](st *State) (T, bool) {
	m := st.values()
	key := typeKey[T]()
	v, ok := m[key]
	if !ok {
		var zero T
		return zero, false
	}
	delete(m, key)
	return *v.(*T), true
}

// Has reports whether a T is stored.
func Has[T any](st *State) bool {
	_, ok := st.values()[typeKey[T]()]
	return ok
}
