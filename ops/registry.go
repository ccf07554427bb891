package ops

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/opstate"
)

// Extension is a named group of ops registered together.
type Extension interface {
	Name() string
	Ops() []Decl
}

// Initializer is implemented by extensions that seed the op state.
type Initializer interface {
	Init(st *opstate.State) error
}

// Registry maps op names to declarations. It is filled at setup and sealed
// before the first dispatch; lookups after that take no write lock.
type Registry struct {
	decls  map[string]Decl
	exts   []Extension
	mu     sync.RWMutex
	sealed bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{decls: make(map[string]Decl)}
}

// Register adds one declaration.
func (r *Registry) Register(d Decl) error {
	if err := validate(d); err != nil {
		return errors.Registration(d.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return errors.Registration(d.Name, fmt.Errorf("registry is sealed"))
	}
	if _, dup := r.decls[d.Name]; dup {
		return errors.Registration(d.Name, fmt.Errorf("duplicate op name"))
	}
	r.decls[d.Name] = d
	return nil
}

func validate(d Decl) error {
	if d.Name == "" {
		return fmt.Errorf("op name cannot be empty")
	}
	if (d.Sync == nil) == (d.Async == nil) {
		return fmt.Errorf("exactly one of sync or async handler must be set")
	}
	if d.Unref && d.Sync != nil {
		return fmt.Errorf("only async ops can be unref")
	}
	return nil
}

// RegisterExtension adds every op of ext. Nothing is registered when any
// op fails.
func (r *Registry) RegisterExtension(ext Extension) error {
	decls := ext.Ops()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return errors.Registration(ext.Name(), fmt.Errorf("registry is sealed"))
	}
	seen := make(map[string]bool, len(decls))
	for _, d := range decls {
		if err := validate(d); err != nil {
			return errors.Registration(d.Name, fmt.Errorf("extension %s: %w", ext.Name(), err))
		}
		if _, dup := r.decls[d.Name]; dup || seen[d.Name] {
			return errors.Registration(d.Name, fmt.Errorf("extension %s: duplicate op name", ext.Name()))
		}
		seen[d.Name] = true
	}
	for _, d := range decls {
		r.decls[d.Name] = d
	}
	r.exts = append(r.exts, ext)
	return nil
}

// Init runs the Initializer of every registered extension, in registration
// order, inside one borrow.
func (r *Registry) Init(cell *opstate.Cell) error {
	r.mu.RLock()
	exts := append([]Extension(nil), r.exts...)
	r.mu.RUnlock()

	return cell.Borrow(func(st *opstate.State) error {
		for _, ext := range exts {
			in, ok := ext.(Initializer)
			if !ok {
				continue
			}
			if err := in.Init(st); err != nil {
				return errors.Registration(ext.Name(), err)
			}
		}
		return nil
	})
}

// Seal rejects further registration.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Lookup resolves an op name.
func (r *Registry) Lookup(name string) (Decl, bool) {
	r.mu.RLock()
	d, ok := r.decls[name]
	r.mu.RUnlock()
	return d, ok
}

// Names returns every registered op name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.decls))
	for name := range r.decls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Extensions returns the registered extensions in registration order.
func (r *Registry) Extensions() []Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Extension(nil), r.exts...)
}
